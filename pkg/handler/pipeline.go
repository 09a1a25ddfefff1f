// Package handler wires the message pipeline: normalize the event, run
// the side-effect policies, parse and gate the command, then dispatch.
package handler

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"wabot/pkg/commands"
	"wabot/pkg/config"
	"wabot/pkg/gate"
	"wabot/pkg/logger"
	"wabot/pkg/message"
	"wabot/pkg/moderation"
	"wabot/pkg/state"
	"wabot/pkg/store"
	"wabot/pkg/whatsapp"
)

// handleTimeout bounds the total work done for one inbound event.
const handleTimeout = 2 * time.Minute

// Pipeline processes inbound events end to end.
type Pipeline struct {
	log      *logger.Logger
	cfg      *config.Config
	client   whatsapp.Client
	store    *store.Store
	cache    state.Cache
	registry *commands.Registry
	gate     *gate.Gate
	stats    *Stats

	antilink *moderation.AntiLink
	afk      *moderation.AFK
}

// New assembles the pipeline.
func New(
	log *logger.Logger,
	cfg *config.Config,
	client whatsapp.Client,
	st *store.Store,
	cache state.Cache,
	registry *commands.Registry,
	g *gate.Gate,
	stats *Stats,
) *Pipeline {
	p := &Pipeline{
		log:      log,
		cfg:      cfg,
		client:   client,
		store:    st,
		cache:    cache,
		registry: registry,
		gate:     g,
		stats:    stats,
	}

	isOwner := func(jid string) bool { return cfg.IsOwner(jid) }
	p.antilink = moderation.NewAntiLink(log, client, isOwner, p.groupMetadata)
	p.afk = moderation.NewAFK(log, client)

	return p
}

// Register subscribes the pipeline to the client's event stream.
func (p *Pipeline) Register() {
	p.client.OnEvent(p.HandleEvent)
}

// scope returns the store partition for the connected account. The
// configured session id wins; otherwise it derives from the bot jid.
func (p *Pipeline) scope() *store.Scope {
	session := p.cfg.Bot.SessionID
	if session == "" {
		session = whatsapp.SessionID(p.client.BotJID())
	}
	return p.store.Scope(session)
}

// groupMetadata is the cached metadata lookup shared by the policies
// and the command context.
func (p *Pipeline) groupMetadata(ctx context.Context, chatJID string) (*whatsapp.GroupMetadata, error) {
	g := &groupInfo{client: p.client, cache: p.cache, chat: chatJID}
	return g.Metadata(ctx)
}

// HandleEvent processes one inbound event. It never panics outward;
// the bridge calls it on a fresh goroutine per event.
func (p *Pipeline) HandleEvent(ev *message.RawEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Panic in event handler", zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	msg, err := message.Normalize(ev, p.client.BotJID())
	if err != nil {
		p.log.Debug("Dropping malformed event", zap.Error(err))
		return
	}

	// Status posts, protocol chatter, and reactions carry nothing the
	// pipeline acts on.
	if msg.IsStatus || msg.IsReaction || msg.Type == message.TypeProtocol {
		return
	}

	p.stats.messagesSeen.Add(1)
	p.log.Debug("Message received",
		zap.String("chat", msg.Chat),
		zap.String("sender", msg.Sender),
		zap.String("type", string(msg.Type)))

	sc := p.scope()

	name, rawArgs, args, isCommand := splitCommand(msg.Text, p.cfg.Bot.Prefix)

	// Side effects run before dispatch, on every message. A removed
	// link message is done; nothing may respond to it afterwards.
	if acted, err := p.antilink.Handle(ctx, sc, msg); err != nil {
		p.log.Error("Anti-link policy failed", zap.Error(err))
	} else if acted {
		return
	}
	p.afk.Handle(ctx, sc, msg, isCommand && name == "afk")

	if !isCommand {
		return
	}

	p.dispatch(ctx, sc, msg, name, rawArgs, args)
}

// dispatch resolves, gates, and runs one command invocation.
func (p *Pipeline) dispatch(ctx context.Context, sc *store.Scope, msg *message.Message, name, rawArgs string, args []string) {
	resp := &responder{client: p.client, msg: msg}

	d, ok := p.registry.Resolve(name)
	if !ok {
		p.stats.unknown.Add(1)
		p.handleUnknown(ctx, sc, msg, resp, name)
		return
	}

	req := p.buildRequest(ctx, sc, msg, d, name, rawArgs, args, resp)

	decision := p.gate.Check(ctx, req, d)
	switch decision.Verdict {
	case gate.Deny:
		p.stats.gateDenials.Add(1)
		if _, err := resp.Reply(ctx, decision.Reply); err != nil {
			p.log.Warn("Failed to send denial reply", zap.Error(err))
		}
		return
	case gate.DenySilent:
		p.stats.gateDenials.Add(1)
		p.log.Debug("Command denied silently",
			zap.String("command", d.Name),
			zap.String("sender", msg.Sender),
			zap.String("stage", decision.Stage))
		return
	}

	p.run(ctx, req, d, resp)
}

// run executes the handler with panic isolation. Failures get a generic
// apology; the cause stays in the log.
func (p *Pipeline) run(ctx context.Context, req *commands.Request, d *commands.Descriptor, resp *responder) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.stats.Record(d.Name, time.Since(start), true)
			p.log.Error("Command panicked",
				zap.String("command", d.Name),
				zap.Any("panic", r))
			p.apologize(ctx, resp)
		}
	}()

	if err := d.Handler(ctx, req); err != nil {
		p.stats.Record(d.Name, time.Since(start), true)
		p.log.Error("Command failed",
			zap.String("command", d.Name),
			zap.String("sender", req.Message.Sender),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		p.apologize(ctx, resp)
		return
	}

	p.stats.Record(d.Name, time.Since(start), false)
	p.log.Info("Command executed",
		zap.String("command", d.Name),
		zap.String("chat", req.Message.Chat),
		zap.String("sender", req.Message.Sender),
		zap.Duration("elapsed", time.Since(start)))
}

func (p *Pipeline) apologize(ctx context.Context, resp *responder) {
	if _, err := resp.Reply(ctx, "Something went wrong running that command."); err != nil {
		p.log.Warn("Failed to send apology", zap.Error(err))
	}
}

// handleUnknown points the sender at the menu, but only when the gate
// would have let a real command through. Banned or out-of-mode senders
// stay in the dark.
func (p *Pipeline) handleUnknown(ctx context.Context, sc *store.Scope, msg *message.Message, resp *responder, name string) {
	probe := &commands.Descriptor{Name: name}
	req := p.buildRequest(ctx, sc, msg, probe, name, "", nil, resp)

	if decision := p.gate.Check(ctx, req, probe); decision.Verdict != gate.Allow {
		return
	}

	reply := "Unknown command " + p.cfg.Bot.Prefix + name + ". Try " + p.cfg.Bot.Prefix + "menu."
	if _, err := resp.Reply(ctx, reply); err != nil {
		p.log.Warn("Failed to send unknown-command reply", zap.Error(err))
	}
}

// buildRequest assembles the capability-scoped request, resolving the
// caller's privileges up front.
func (p *Pipeline) buildRequest(ctx context.Context, sc *store.Scope, msg *message.Message, d *commands.Descriptor, invoked, rawArgs string, args []string, resp *responder) *commands.Request {
	req := &commands.Request{
		Message:    msg,
		Command:    d.Name,
		Invoked:    invoked,
		Args:       args,
		RawArgs:    rawArgs,
		Prefix:     p.cfg.Bot.Prefix,
		Responder:  resp,
		Client:     p.client,
		Store:      sc,
		Registry:   p.registry,
		Runtime:    p.stats,
		IsOwnerJID: p.cfg.IsOwner,
	}

	// A message from the bot's own account is always the operator.
	req.Perms.IsOwner = msg.FromMe || p.cfg.IsOwner(msg.Sender)

	if isMod, err := sc.HasRole(ctx, msg.Sender, store.RoleModerator); err != nil {
		p.log.Warn("Moderator lookup failed", zap.Error(err))
	} else {
		req.Perms.IsModerator = isMod
	}

	if msg.IsGroup {
		group := &groupInfo{client: p.client, cache: p.cache, chat: msg.Chat}
		req.Group = group

		// Admin facts feed the restricted mode and the admin gates.
		// The lookup is cheap while the metadata cache is warm.
		meta, err := group.Metadata(ctx)
		if err != nil {
			p.log.Warn("Group metadata lookup failed",
				zap.String("chat", msg.Chat),
				zap.Error(err))
		} else {
			if participant, ok := meta.Find(msg.Sender); ok {
				req.Perms.IsGroupAdmin = participant.IsAdmin()
			}
			botJID := message.NormalizeJID(p.client.BotJID())
			if bot, ok := meta.Find(botJID); ok {
				req.Perms.IsBotAdmin = bot.IsAdmin()
			}
		}
	}

	return req
}

// splitCommand parses "<prefix><name> <args...>" out of the message
// text. Bare prefixes and non-prefixed text are not commands.
func splitCommand(text, prefix string) (name, rawArgs string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", "", nil, false
	}

	rest := strings.TrimSpace(strings.TrimPrefix(text, prefix))
	if rest == "" {
		return "", "", nil, false
	}

	fields := strings.Fields(rest)
	name = strings.ToLower(fields[0])
	args = fields[1:]
	rawArgs = strings.TrimSpace(strings.TrimPrefix(rest, fields[0]))
	return name, rawArgs, args, true
}

package gate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wabot/pkg/commands"
	"wabot/pkg/config"
	"wabot/pkg/logger"
	"wabot/pkg/store"
)

// Verdict is the gate's answer for one invocation.
type Verdict int

const (
	// Allow lets the command run.
	Allow Verdict = iota
	// Deny refuses and tells the sender why.
	Deny
	// DenySilent refuses without any reply. Banned users and senders
	// outside the bot's mode never learn the bot saw them; rate-limited
	// users always do.
	DenySilent
)

// Decision is a verdict plus the reply for visible denials and the
// stage that produced it.
type Decision struct {
	Verdict Verdict
	Reply   string
	Stage   string
}

func allow() Decision {
	return Decision{Verdict: Allow}
}

func deny(stage, reply string) Decision {
	return Decision{Verdict: Deny, Stage: stage, Reply: reply}
}

func denySilent(stage string) Decision {
	return Decision{Verdict: DenySilent, Stage: stage}
}

// Gate runs every invocation through the check chain.
type Gate struct {
	log       *logger.Logger
	cfg       *config.Config
	Cooldowns *CooldownTable
	Limiter   *RateLimiter
}

// New creates a gate with fresh cooldown and rate-limit tables.
func New(log *logger.Logger, cfg *config.Config) *Gate {
	return &Gate{
		log:       log,
		cfg:       cfg,
		Cooldowns: NewCooldownTable(),
		Limiter: NewRateLimiter(
			cfg.RateLimit.MaxCommands,
			time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		),
	}
}

// Check runs the chain in order: mode, ban, rate limit, cooldown,
// arguments, permissions. The first objection wins.
func (g *Gate) Check(ctx context.Context, req *commands.Request, d *commands.Descriptor) Decision {
	if dec := g.checkMode(ctx, req, d); dec.Verdict != Allow {
		return dec
	}
	if dec := g.checkBan(ctx, req); dec.Verdict != Allow {
		return dec
	}
	if dec := g.checkRateLimit(req); dec.Verdict != Allow {
		return dec
	}
	if dec := g.checkCooldown(req, d); dec.Verdict != Allow {
		return dec
	}
	if dec := checkArgs(req, d); dec.Verdict != Allow {
		return dec
	}
	return checkPermissions(req, d)
}

// checkMode applies the session operating mode and per-chat mutes.
// A store failure fails open: a broken database must not silence a
// public bot.
func (g *Gate) checkMode(ctx context.Context, req *commands.Request, d *commands.Descriptor) Decision {
	settings, err := req.Store.GetMode(ctx)
	if err != nil {
		g.log.Error("Mode lookup failed, allowing", zap.Error(err))
		settings = store.DefaultModeSettings()
	}

	if req.Perms.IsOwner {
		return allow()
	}

	if settings.GroupOnly && !req.Message.IsGroup {
		return denySilent("mode")
	}

	switch settings.Mode {
	case store.ModePrivate:
		return denySilent("mode")
	case store.ModeRestricted:
		// Group-admin rank carries no weight here; only bot-level
		// moderators pass alongside owners.
		if !req.Perms.IsModerator {
			return deny("mode", "The bot is in restricted mode.")
		}
	}

	if req.Message.IsGroup && d.Name != "unmute" {
		muted, err := req.Store.IsChatMuted(ctx, req.Message.Chat)
		if err != nil {
			g.log.Error("Mute lookup failed, allowing", zap.Error(err))
		} else if muted {
			return denySilent("mute")
		}
	}

	return allow()
}

// checkBan silently drops banned senders. Owners cannot be locked out.
func (g *Gate) checkBan(ctx context.Context, req *commands.Request) Decision {
	if req.Perms.IsOwner {
		return allow()
	}

	ban, err := req.Store.GetBan(ctx, req.Message.Sender)
	if err != nil {
		g.log.Error("Ban lookup failed, allowing", zap.Error(err))
		return allow()
	}
	if ban != nil {
		return denySilent("ban")
	}
	return allow()
}

// checkRateLimit refuses loudly: unlike a ban, the sender should know
// to slow down.
func (g *Gate) checkRateLimit(req *commands.Request) Decision {
	if req.Perms.IsOwner {
		return allow()
	}

	retryAfter, ok := g.Limiter.Allow(req.Message.Sender)
	if !ok {
		return deny("ratelimit", fmt.Sprintf(
			"⏳ Too many commands. Try again in %ds.",
			int(retryAfter.Seconds())+1))
	}
	return allow()
}

func (g *Gate) checkCooldown(req *commands.Request, d *commands.Descriptor) Decision {
	isAdmin := req.Perms.IsModerator || req.Perms.IsGroupAdmin
	remaining, ok := g.Cooldowns.Check(
		req.Message.Sender, d.Name, d.Cooldown, req.Perms.IsOwner, isAdmin)
	if !ok {
		return deny("cooldown", fmt.Sprintf(
			"Slow down. %s%s is available again in %.1fs.",
			req.Prefix, d.Name, remaining.Seconds()))
	}
	return allow()
}

// checkArgs enforces the descriptor's argument bounds.
func checkArgs(req *commands.Request, d *commands.Descriptor) Decision {
	if len(req.Args) < d.MinArgs {
		return deny("args", fmt.Sprintf(
			"Missing arguments.\nUsage: %s", d.UsageLine(req.Prefix)))
	}
	if !d.Unlimited() && len(req.Args) > d.MaxArgs {
		return deny("args", fmt.Sprintf(
			"Too many arguments.\nUsage: %s", d.UsageLine(req.Prefix)))
	}
	return allow()
}

// checkPermissions enforces the descriptor's audience flags. Owners
// pass everything except chat-type restrictions.
func checkPermissions(req *commands.Request, d *commands.Descriptor) Decision {
	if d.GroupOnly && !req.Message.IsGroup {
		return deny("permissions", "This command only works in groups.")
	}
	if d.PrivateOnly && req.Message.IsGroup {
		return deny("permissions", "This command only works in a direct chat.")
	}

	if d.OwnerOnly && !req.Perms.IsOwner {
		return deny("permissions", "This command is for the bot owner.")
	}
	if d.AdminOnly && !req.Perms.IsOwner && !req.Perms.Privileged() {
		return deny("permissions", "This command is for group admins.")
	}
	if d.BotAdminRequired && !req.Perms.IsBotAdmin {
		return deny("permissions", "I need to be a group admin for that.")
	}
	return allow()
}

// Package commands provides the command registry and the built-in
// command set. Commands are registered through explicit sources and
// executed against a capability-scoped request, so handlers only see
// the surfaces they actually need.
package commands

import (
	"context"
	"time"

	"wabot/pkg/message"
	"wabot/pkg/store"
	"wabot/pkg/whatsapp"
)

// Command categories, used by the menu and for grouping.
const (
	CategoryGeneral = "general"
	CategoryGroup   = "group"
	CategoryOwner   = "owner"
)

// ArgSpec describes one positional argument for usage rendering and
// required-argument validation.
type ArgSpec struct {
	Name     string
	Required bool
}

// Handler executes a command.
type Handler func(ctx context.Context, req *Request) error

// Descriptor declares a command: its names, its gate requirements, and
// its handler.
type Descriptor struct {
	Name        string
	Aliases     []string
	Category    string
	Description string

	// Usage is the argument synopsis without the prefix or name,
	// e.g. "<number> [duration]". Rendered as prefix+name+" "+Usage.
	Usage string

	// Cooldown between invocations per sender. Zero means none.
	Cooldown time.Duration

	// MinArgs and MaxArgs bound the argument count. MaxArgs <= 0
	// means unlimited.
	MinArgs int
	MaxArgs int
	Args    []ArgSpec

	OwnerOnly        bool
	GroupOnly        bool
	PrivateOnly      bool
	AdminOnly        bool
	BotAdminRequired bool

	// Hidden keeps the command out of the menu.
	Hidden bool

	Handler Handler
}

// UsageLine renders the full invocation synopsis for error replies.
func (d *Descriptor) UsageLine(prefix string) string {
	line := prefix + d.Name
	if d.Usage != "" {
		line += " " + d.Usage
	}
	return line
}

// Unlimited reports whether the descriptor accepts any number of args.
func (d *Descriptor) Unlimited() bool {
	return d.MaxArgs <= 0
}

// Source supplies a named batch of descriptors. A failing source is
// skipped without poisoning the rest of the load.
type Source struct {
	Name string
	Load func() ([]*Descriptor, error)
}

// Perms are the caller's resolved privileges for one invocation.
type Perms struct {
	IsOwner      bool
	IsModerator  bool
	IsGroupAdmin bool
	IsBotAdmin   bool
}

// Privileged reports whether the caller clears admin-gated commands.
func (p Perms) Privileged() bool {
	return p.IsOwner || p.IsModerator || p.IsGroupAdmin
}

// Responder sends protocol actions on behalf of the current invocation.
type Responder interface {
	// Reply sends text into the invocation chat, quoting the message.
	Reply(ctx context.Context, text string) (message.Key, error)

	// ReplyMentions replies with tagged jids.
	ReplyMentions(ctx context.Context, text string, mentions []string) (message.Key, error)

	// React puts an emoji reaction on the invoking message.
	React(ctx context.Context, emoji string) error

	// Edit replaces the text of a previously sent message.
	Edit(ctx context.Context, key message.Key, text string) error

	// Delete revokes a message in the invocation chat.
	Delete(ctx context.Context, key message.Key) error

	// Send sends text to an arbitrary chat without quoting.
	Send(ctx context.Context, chatID, text string) (message.Key, error)
}

// Group exposes group facts for group-chat invocations. It is nil in
// direct chats.
type Group interface {
	// Metadata returns the group metadata, possibly cached.
	Metadata(ctx context.Context) (*whatsapp.GroupMetadata, error)
}

// Runtime exposes process-level facts to informational commands.
type Runtime interface {
	Uptime() time.Duration
	Counters() Counters
	Usage() map[string]CommandUsage
}

// Counters are the pipeline totals reported by the stats command.
// TotalTime accumulates handler run time across every dispatch attempt,
// successful or not.
type Counters struct {
	MessagesSeen  int64
	CommandsRun   int64
	CommandErrors int64
	GateDenials   int64
	Unknown       int64
	TotalTime     time.Duration
}

// AverageTime is the mean handler run time per dispatch attempt.
func (c Counters) AverageTime() time.Duration {
	attempts := c.CommandsRun + c.CommandErrors
	if attempts == 0 {
		return 0
	}
	return c.TotalTime / time.Duration(attempts)
}

// CommandUsage aggregates dispatch outcomes for one command.
type CommandUsage struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
}

// Request is everything a handler may touch for one invocation.
type Request struct {
	Message *message.Message

	// Command is the resolved canonical name; Invoked is what was typed.
	Command string
	Invoked string

	Args    []string
	RawArgs string
	Prefix  string

	Perms Perms

	Responder Responder
	Group     Group
	Client    whatsapp.Client
	Store     *store.Scope
	Registry  *Registry
	Runtime   Runtime

	// IsOwnerJID reports whether a jid belongs to a configured owner.
	// Moderation commands use it to protect owners from being targeted.
	IsOwnerJID func(jid string) bool
}

// Target resolution order for commands acting on users: explicit
// mentions, then the quoted sender, then bare numbers in the args.
func (r *Request) Targets() []string {
	if len(r.Message.Mentions) > 0 {
		return r.Message.Mentions
	}
	if r.Message.Quoted != nil && r.Message.Quoted.Sender != "" {
		return []string{r.Message.Quoted.Sender}
	}

	var targets []string
	for _, arg := range r.Args {
		if jid := numberToJID(arg); jid != "" {
			targets = append(targets, jid)
		}
	}
	return targets
}

// numberToJID turns a phone-number-looking argument into a jid. Short
// digit runs (durations, counts) are not numbers.
func numberToJID(arg string) string {
	digits := 0
	for _, r := range arg {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')':
		default:
			return ""
		}
	}
	if digits < 5 {
		return ""
	}
	return message.NormalizeJID(arg)
}

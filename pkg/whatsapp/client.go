// Package whatsapp provides the protocol client contract and a WebSocket
// bridge implementation. The pipeline only consumes the Client interface;
// the wire protocol itself lives behind the bridge.
package whatsapp

import (
	"context"
	"strings"

	"wabot/pkg/message"
)

// ParticipantAction is a group participant mutation.
type ParticipantAction string

const (
	ActionPromote ParticipantAction = "promote"
	ActionDemote  ParticipantAction = "demote"
	ActionRemove  ParticipantAction = "remove"
)

// AdminRank is a participant's admin level inside a group.
type AdminRank string

const (
	RankMember     AdminRank = ""
	RankAdmin      AdminRank = "admin"
	RankSuperAdmin AdminRank = "superadmin"
)

// Participant is a group member.
type Participant struct {
	JID   string    `json:"id"`
	Admin AdminRank `json:"admin,omitempty"`
}

// IsAdmin reports whether the participant holds any admin rank.
func (p Participant) IsAdmin() bool {
	return p.Admin == RankAdmin || p.Admin == RankSuperAdmin
}

// IsSuperAdmin reports whether the participant is the group owner.
func (p Participant) IsSuperAdmin() bool {
	return p.Admin == RankSuperAdmin
}

// GroupMetadata describes a group chat.
type GroupMetadata struct {
	ID           string        `json:"id"`
	Subject      string        `json:"subject"`
	Description  string        `json:"desc,omitempty"`
	Participants []Participant `json:"participants"`
}

// Find returns the participant with the given jid, if present.
func (g *GroupMetadata) Find(jid string) (Participant, bool) {
	jid = message.NormalizeJID(jid)
	for _, p := range g.Participants {
		if message.NormalizeJID(p.JID) == jid {
			return p, true
		}
	}
	return Participant{}, false
}

// Admins returns the jids of every admin and superadmin.
func (g *GroupMetadata) Admins() []string {
	var out []string
	for _, p := range g.Participants {
		if p.IsAdmin() {
			out = append(out, p.JID)
		}
	}
	return out
}

// Owner returns the jid of the group superadmin, or "".
func (g *GroupMetadata) Owner() string {
	for _, p := range g.Participants {
		if p.IsSuperAdmin() {
			return p.JID
		}
	}
	return ""
}

// SendOptions carries optional send parameters.
type SendOptions struct {
	// Quoted makes the outbound message a reply to the given key.
	Quoted *message.Key

	// Mentions lists jids to tag in the message.
	Mentions []string
}

// EventHandler receives inbound protocol events.
type EventHandler func(ev *message.RawEvent)

// Client is the protocol surface the pipeline depends on. Every method may
// fail; callers treat them as opaque remote operations.
type Client interface {
	// BotJID returns the connected account jid.
	BotJID() string

	// BotName returns the connected account display name.
	BotName() string

	// SendText sends a text message and returns the key of the sent message.
	SendText(ctx context.Context, chatID, text string, opts *SendOptions) (message.Key, error)

	// SendReaction reacts to the message identified by key.
	SendReaction(ctx context.Context, chatID string, key message.Key, emoji string) error

	// EditMessage replaces the text of a previously sent message.
	EditMessage(ctx context.Context, chatID string, key message.Key, text string) error

	// DeleteMessage revokes the message identified by key.
	DeleteMessage(ctx context.Context, chatID string, key message.Key) error

	// GroupMetadata fetches metadata for a group chat.
	GroupMetadata(ctx context.Context, chatID string) (*GroupMetadata, error)

	// UpdateParticipants applies a participant mutation to a group.
	UpdateParticipants(ctx context.Context, chatID string, jids []string, action ParticipantAction) error

	// OnEvent registers a handler for inbound events. Handlers run on
	// their own goroutine so the receive loop is never blocked.
	OnEvent(handler EventHandler)
}

// SessionID derives the store partition key from a bot jid
// ("4915112345678:3@s.whatsapp.net" -> "4915112345678").
func SessionID(botJID string) string {
	if botJID == "" {
		return "default"
	}
	user := botJID
	if at := strings.Index(user, "@"); at >= 0 {
		user = user[:at]
	}
	if colon := strings.Index(user, ":"); colon >= 0 {
		user = user[:colon]
	}
	if user == "" {
		return "default"
	}
	return user
}

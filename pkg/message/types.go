// Package message converts raw bridge events into a canonical message view
// used by the rest of the pipeline.
package message

import "encoding/json"

// Key identifies a message on the wire. It is what the protocol client
// needs to reply to, edit, react to, or delete a message.
type Key struct {
	ID          string `json:"id"`
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	Participant string `json:"participant,omitempty"`
}

// ContextInfo carries quoting and mention metadata for an event.
type ContextInfo struct {
	StanzaID      string                     `json:"stanzaId,omitempty"`
	Participant   string                     `json:"participant,omitempty"`
	MentionedJIDs []string                   `json:"mentionedJid,omitempty"`
	QuotedPayload map[string]json.RawMessage `json:"quotedMessage,omitempty"`
}

// RawEvent is an inbound protocol event as delivered by the bridge.
// Payload maps the wire content-type tag (conversation, imageMessage, ...)
// to its still-encoded body.
type RawEvent struct {
	Key         Key                        `json:"key"`
	PushName    string                     `json:"pushName,omitempty"`
	Timestamp   int64                      `json:"messageTimestamp,omitempty"`
	Payload     map[string]json.RawMessage `json:"message"`
	ContextInfo *ContextInfo               `json:"contextInfo,omitempty"`
}

// Type is the canonical content type of a message.
type Type string

const (
	TypeText        Type = "text"
	TypeImage       Type = "image"
	TypeVideo       Type = "video"
	TypeAudio       Type = "audio"
	TypeDocument    Type = "document"
	TypeSticker     Type = "sticker"
	TypeViewOnce    Type = "viewOnce"
	TypeLocation    Type = "location"
	TypeContact     Type = "contact"
	TypeReaction    Type = "reaction"
	TypePoll        Type = "poll"
	TypeGroupInvite Type = "groupInvite"
	TypeProtocol    Type = "protocol"
	TypeUnknown     Type = "unknown"
)

// Message is the normalized, derived view of an inbound event. It is
// created fresh per event and never persisted.
type Message struct {
	ID           string
	Key          Key
	Chat         string
	IsGroup      bool
	Sender       string
	SenderNumber string
	PushName     string
	FromMe       bool

	Type    Type
	RawType string
	Text    string

	Mentions []string
	Quoted   *Quoted

	HasMedia      bool
	IsViewOnce    bool
	IsEphemeral   bool
	IsReaction    bool
	IsPoll        bool
	IsLocation    bool
	IsGroupInvite bool
	IsStatus      bool
}

// Quoted is the sub-view of a quoted message. Its Key is synthetic,
// assembled from context metadata, so the quoted message can be replied
// to or deleted through the same client contract as a top-level one.
type Quoted struct {
	Type       Type
	RawType    string
	Text       string
	Sender     string
	Key        Key
	HasMedia   bool
	IsViewOnce bool
}

package message

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	groupSuffix  = "@g.us"
	userSuffix   = "@s.whatsapp.net"
	statusJID    = "status@broadcast"
	tagViewOnce  = "viewOnceMessage"
	tagViewOnce2 = "viewOnceMessageV2"
	tagEphemeral = "ephemeralMessage"
)

// typeEntry maps a wire content tag to a canonical type. The table is
// priority ordered; the first tag present in the payload wins.
type typeEntry struct {
	tag string
	typ Type
}

var typeTable = []typeEntry{
	{"conversation", TypeText},
	{"extendedTextMessage", TypeText},
	{"imageMessage", TypeImage},
	{"videoMessage", TypeVideo},
	{"audioMessage", TypeAudio},
	{"documentMessage", TypeDocument},
	{"stickerMessage", TypeSticker},
	{tagViewOnce, TypeViewOnce},
	{tagViewOnce2, TypeViewOnce},
	{"locationMessage", TypeLocation},
	{"liveLocationMessage", TypeLocation},
	{"contactMessage", TypeContact},
	{"contactsArrayMessage", TypeContact},
	{"reactionMessage", TypeReaction},
	{"pollCreationMessage", TypePoll},
	{"pollUpdateMessage", TypePoll},
	{"groupInviteMessage", TypeGroupInvite},
	{"protocolMessage", TypeProtocol},
	{"senderKeyDistributionMessage", TypeProtocol},
}

var mediaTypes = map[Type]bool{
	TypeImage:    true,
	TypeVideo:    true,
	TypeAudio:    true,
	TypeDocument: true,
	TypeSticker:  true,
	TypeViewOnce: true,
}

// textBody is the decoded shape of extendedTextMessage.
type textBody struct {
	Text        string       `json:"text"`
	ContextInfo *ContextInfo `json:"contextInfo,omitempty"`
}

// mediaBody covers every captioned media payload.
type mediaBody struct {
	Caption     string       `json:"caption"`
	ContextInfo *ContextInfo `json:"contextInfo,omitempty"`
}

// wrapBody is the shape of viewOnce/ephemeral wrappers.
type wrapBody struct {
	Message map[string]json.RawMessage `json:"message"`
}

// Normalize converts a raw bridge event into the canonical Message view.
// It is pure: the same event always yields a structurally equal result,
// and the raw event is never mutated.
//
// botJID is the connected account's jid; it resolves the sender of
// self-sent messages.
func Normalize(ev *RawEvent, botJID string) (*Message, error) {
	if ev == nil {
		return nil, fmt.Errorf("nil event")
	}
	if ev.Key.ID == "" || ev.Key.RemoteJID == "" {
		return nil, fmt.Errorf("event missing message key")
	}
	if len(ev.Payload) == 0 {
		return nil, fmt.Errorf("event %s has no content", ev.Key.ID)
	}

	chat := ev.Key.RemoteJID
	isGroup := strings.HasSuffix(chat, groupSuffix)

	sender := chat
	switch {
	case ev.Key.FromMe:
		sender = NormalizeJID(botJID)
	case isGroup:
		sender = NormalizeJID(ev.Key.Participant)
	default:
		sender = NormalizeJID(chat)
	}
	if sender == "" {
		return nil, fmt.Errorf("event %s has no resolvable sender", ev.Key.ID)
	}

	// Disappearing-message chats wrap every payload in an ephemeral
	// envelope; unwrap it so the inner content drives the type.
	payload := ev.Payload
	isEphemeral := false
	if raw, ok := payload[tagEphemeral]; ok {
		var wrap wrapBody
		if err := json.Unmarshal(raw, &wrap); err == nil && len(wrap.Message) > 0 {
			payload = wrap.Message
			isEphemeral = true
		}
	}

	rawType, typ := resolveType(payload)

	m := &Message{
		ID:            ev.Key.ID,
		Key:           ev.Key,
		Chat:          chat,
		IsGroup:       isGroup,
		Sender:        sender,
		SenderNumber:  bareNumber(sender),
		PushName:      ev.PushName,
		FromMe:        ev.Key.FromMe,
		Type:          typ,
		RawType:       rawType,
		Text:          extractText(payload, rawType),
		HasMedia:      mediaTypes[typ],
		IsViewOnce:    typ == TypeViewOnce,
		IsEphemeral:   isEphemeral,
		IsReaction:    typ == TypeReaction,
		IsPoll:        typ == TypePoll,
		IsLocation:    typ == TypeLocation,
		IsGroupInvite: typ == TypeGroupInvite,
		IsStatus:      chat == statusJID,
	}

	ctx := resolveContextInfo(ev, payload, rawType)
	if ctx != nil {
		m.Mentions = normalizeMentions(ctx.MentionedJIDs)
		m.Quoted = resolveQuoted(ctx, chat, isGroup)
	}

	return m, nil
}

// resolveType scans the payload against the priority-ordered type table.
func resolveType(payload map[string]json.RawMessage) (string, Type) {
	for _, entry := range typeTable {
		if _, ok := payload[entry.tag]; ok {
			return entry.tag, entry.typ
		}
	}
	return "", TypeUnknown
}

// extractText applies the text-precedence policy: conversation text,
// extended-text body, media caption, then view-once inner caption. It
// always returns a string, never fails.
func extractText(payload map[string]json.RawMessage, rawType string) string {
	switch rawType {
	case "conversation":
		var s string
		if err := json.Unmarshal(payload[rawType], &s); err == nil {
			return s
		}
	case "extendedTextMessage":
		var body textBody
		if err := json.Unmarshal(payload[rawType], &body); err == nil {
			return body.Text
		}
	case tagViewOnce, tagViewOnce2:
		var wrap wrapBody
		if err := json.Unmarshal(payload[rawType], &wrap); err == nil && wrap.Message != nil {
			inner, _ := resolveType(wrap.Message)
			if inner != "" {
				return extractText(wrap.Message, inner)
			}
		}
	case "":
	default:
		var body mediaBody
		if err := json.Unmarshal(payload[rawType], &body); err == nil {
			return body.Caption
		}
	}
	return ""
}

// resolveContextInfo prefers the event-level context and falls back to one
// embedded in the content payload.
func resolveContextInfo(ev *RawEvent, payload map[string]json.RawMessage, rawType string) *ContextInfo {
	if ev.ContextInfo != nil {
		return ev.ContextInfo
	}

	switch rawType {
	case "extendedTextMessage":
		var body textBody
		if err := json.Unmarshal(payload[rawType], &body); err == nil {
			return body.ContextInfo
		}
	case "conversation", "":
	default:
		var body mediaBody
		if err := json.Unmarshal(payload[rawType], &body); err == nil {
			return body.ContextInfo
		}
	}
	return nil
}

// resolveQuoted builds the quoted sub-view, including the synthetic key
// that lets the quoted message be acted on independently.
func resolveQuoted(ctx *ContextInfo, chat string, isGroup bool) *Quoted {
	if len(ctx.QuotedPayload) == 0 {
		return nil
	}

	rawType, typ := resolveType(ctx.QuotedPayload)
	sender := NormalizeJID(ctx.Participant)

	key := Key{
		ID:        ctx.StanzaID,
		RemoteJID: chat,
	}
	if isGroup {
		key.Participant = sender
	}

	return &Quoted{
		Type:       typ,
		RawType:    rawType,
		Text:       extractText(ctx.QuotedPayload, rawType),
		Sender:     sender,
		Key:        key,
		HasMedia:   mediaTypes[typ],
		IsViewOnce: typ == TypeViewOnce,
	}
}

// normalizeMentions normalizes and deduplicates mentioned jids, keeping
// first-seen order.
func normalizeMentions(jids []string) []string {
	if len(jids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(jids))
	out := make([]string, 0, len(jids))
	for _, jid := range jids {
		normalized := NormalizeJID(jid)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}

// NormalizeJID strips the device suffix from a jid and completes bare
// numbers with the user-host suffix.
func NormalizeJID(jid string) string {
	jid = strings.TrimSpace(jid)
	if jid == "" {
		return ""
	}

	at := strings.Index(jid, "@")
	if at < 0 {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, jid)
		if digits == "" {
			return ""
		}
		return digits + userSuffix
	}

	user, host := jid[:at], jid[at+1:]
	if colon := strings.Index(user, ":"); colon >= 0 {
		user = user[:colon]
	}
	return user + "@" + host
}

// bareNumber returns the user part of a jid without device suffix.
func bareNumber(jid string) string {
	user := jid
	if at := strings.Index(user, "@"); at >= 0 {
		user = user[:at]
	}
	if colon := strings.Index(user, ":"); colon >= 0 {
		user = user[:colon]
	}
	return user
}

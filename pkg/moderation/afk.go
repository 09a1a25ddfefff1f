package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"wabot/pkg/logger"
	"wabot/pkg/message"
	"wabot/pkg/store"
	"wabot/pkg/whatsapp"
)

// AFK welcomes returning users and answers mentions of away users. It
// is strictly best-effort: every failure is logged and swallowed, a
// broken AFK feature must never cost a message.
type AFK struct {
	log    *logger.Logger
	client whatsapp.Client
	now    func() time.Time
}

// NewAFK creates the AFK policy.
func NewAFK(log *logger.Logger, client whatsapp.Client) *AFK {
	return &AFK{log: log, client: client, now: time.Now}
}

// Handle processes one message for AFK effects. settingAFK is true when
// the message is the afk command itself, so setting your status does
// not immediately clear it.
func (a *AFK) Handle(ctx context.Context, sc *store.Scope, msg *message.Message, settingAFK bool) {
	if msg.FromMe {
		return
	}

	if !settingAFK {
		a.handleReturn(ctx, sc, msg)
	}
	a.handleMentions(ctx, sc, msg)
}

// handleReturn clears the sender's away status on any activity and
// reports what they missed.
func (a *AFK) handleReturn(ctx context.Context, sc *store.Scope, msg *message.Message) {
	status, err := sc.ClearAFK(ctx, msg.Sender)
	if err != nil {
		a.log.Error("Failed to clear afk status", zap.Error(err))
		return
	}
	if status == nil {
		return
	}

	mentions, err := sc.TakeAFKMentions(ctx, msg.Sender)
	if err != nil {
		a.log.Error("Failed to collect afk mentions", zap.Error(err))
	}

	away := a.now().Sub(status.Since).Round(time.Second)
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome back! You were away for %s.", away)
	if len(mentions) > 0 {
		fmt.Fprintf(&b, "\nYou were mentioned %d time(s):", len(mentions))
		for _, m := range mentions {
			who := m.SenderName
			if who == "" {
				who = jidUser(m.Sender)
			}
			text := m.Text
			if len(text) > 80 {
				text = text[:80] + "…"
			}
			fmt.Fprintf(&b, "\n• %s: %s", who, text)
		}
	}

	_, err = a.client.SendText(ctx, msg.Chat, b.String(), &whatsapp.SendOptions{Quoted: &msg.Key})
	if err != nil {
		a.log.Warn("Failed to send welcome-back reply", zap.Error(err))
	}
}

// handleMentions records and answers mentions of away users.
func (a *AFK) handleMentions(ctx context.Context, sc *store.Scope, msg *message.Message) {
	targets := msg.Mentions
	if msg.Quoted != nil && msg.Quoted.Sender != "" {
		targets = append(append([]string{}, targets...), msg.Quoted.Sender)
	}

	seen := make(map[string]bool, len(targets))
	for _, jid := range targets {
		if jid == msg.Sender || seen[jid] {
			continue
		}
		seen[jid] = true

		status, err := sc.GetAFK(ctx, jid)
		if err != nil {
			a.log.Error("Failed to look up afk status", zap.Error(err))
			continue
		}
		if status == nil {
			continue
		}

		if err := sc.AddAFKMention(ctx, jid, store.AFKMention{
			Chat:       msg.Chat,
			Sender:     msg.Sender,
			SenderName: msg.PushName,
			Text:       msg.Text,
		}); err != nil {
			a.log.Error("Failed to record afk mention", zap.Error(err))
		}

		if !status.Notify {
			continue
		}

		away := a.now().Sub(status.Since).Round(time.Second)
		reply := fmt.Sprintf("%s is away (%s).", jidUser(jid), away)
		if status.Reply != "" {
			reply = status.Reply
		} else if status.Reason != "" {
			reply = fmt.Sprintf("%s is away: %s (%s).", jidUser(jid), status.Reason, away)
		}

		_, err = a.client.SendText(ctx, msg.Chat, reply, &whatsapp.SendOptions{Quoted: &msg.Key})
		if err != nil {
			a.log.Warn("Failed to send afk auto-reply", zap.Error(err))
		}
	}
}

func jidUser(jid string) string {
	if at := strings.Index(jid, "@"); at >= 0 {
		return jid[:at]
	}
	return jid
}

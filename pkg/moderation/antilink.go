// Package moderation implements the message side-effect policies that
// run before command dispatch: invite-link enforcement and AFK
// tracking. Policies are best-effort; their failures never stop the
// pipeline.
package moderation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"wabot/pkg/logger"
	"wabot/pkg/message"
	"wabot/pkg/store"
	"wabot/pkg/whatsapp"
)

// inviteLinkPattern matches group invite links, with or without scheme.
var inviteLinkPattern = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?chat\.whatsapp\.com/(?:invite/)?[A-Za-z0-9]{8,}`)

// warnKickThreshold is how many warnings a sender gets in warn mode
// before being kicked.
const warnKickThreshold = 3

// MetadataFunc resolves group metadata, usually through the pipeline's
// cache.
type MetadataFunc func(ctx context.Context, chatJID string) (*whatsapp.GroupMetadata, error)

// AntiLink enforces per-group invite-link policy.
type AntiLink struct {
	log      *logger.Logger
	client   whatsapp.Client
	isOwner  func(jid string) bool
	metadata MetadataFunc
}

// NewAntiLink creates the anti-link policy.
func NewAntiLink(log *logger.Logger, client whatsapp.Client, isOwner func(string) bool, metadata MetadataFunc) *AntiLink {
	return &AntiLink{
		log:      log,
		client:   client,
		isOwner:  isOwner,
		metadata: metadata,
	}
}

// ContainsInviteLink reports whether text carries a group invite link.
func ContainsInviteLink(text string) bool {
	return inviteLinkPattern.MatchString(text)
}

// matchesPolicy reports whether text trips the built-in invite-link
// detection or one of the group's extra blocked patterns.
func matchesPolicy(text string, patterns []string) bool {
	if ContainsInviteLink(text) {
		return true
	}
	lower := strings.ToLower(text)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Handle checks one group message against the chat's anti-link policy.
// It reports whether the message was removed, in which case the
// pipeline stops processing it.
func (a *AntiLink) Handle(ctx context.Context, sc *store.Scope, msg *message.Message) (bool, error) {
	if !msg.IsGroup || msg.FromMe {
		return false, nil
	}

	settings, err := sc.GetAntiLink(ctx, msg.Chat)
	if err != nil {
		return false, fmt.Errorf("loading anti-link settings: %w", err)
	}
	if !settings.Enabled {
		return false, nil
	}
	if !matchesPolicy(msg.Text, settings.Patterns) {
		return false, nil
	}

	// Owners, moderators, and group admins are exempt.
	if a.isOwner != nil && a.isOwner(msg.Sender) {
		return false, nil
	}
	if isMod, err := sc.HasRole(ctx, msg.Sender, store.RoleModerator); err != nil {
		a.log.Warn("Moderator lookup failed", zap.Error(err))
	} else if isMod {
		return false, nil
	}

	meta, err := a.metadata(ctx, msg.Chat)
	if err != nil {
		return false, fmt.Errorf("loading group metadata: %w", err)
	}
	if p, ok := meta.Find(msg.Sender); ok && p.IsAdmin() {
		return false, nil
	}

	if err := sc.IncrAntiLinkStat(ctx, msg.Chat, store.StatDetected); err != nil {
		a.log.Warn("Failed to count link detection", zap.Error(err))
	}

	bot, ok := meta.Find(message.NormalizeJID(a.client.BotJID()))
	botAdmin := ok && bot.IsAdmin()

	switch settings.Action {
	case store.ActionKick:
		if !botAdmin {
			a.alert(ctx, msg.Chat, "I need to be admin to kick users.")
			return false, nil
		}
		if err := a.deleteMessage(ctx, sc, msg); err != nil {
			return false, err
		}
		a.kick(ctx, sc, msg)
		return true, nil

	case store.ActionWarn:
		// The warning itself needs no rank; only the deletion does.
		deleted := false
		if botAdmin {
			if err := a.deleteMessage(ctx, sc, msg); err != nil {
				return false, err
			}
			deleted = true
		}

		if err := sc.IncrAntiLinkStat(ctx, msg.Chat, store.StatWarned); err != nil {
			a.log.Warn("Failed to count warning stat", zap.Error(err))
		}

		count, err := sc.IncrAntiLinkWarning(ctx, msg.Chat, msg.Sender)
		if err != nil {
			a.log.Error("Failed to count warning", zap.Error(err))
			count = 1
		}
		if botAdmin && count >= warnKickThreshold {
			if err := sc.ResetAntiLinkWarnings(ctx, msg.Chat, msg.Sender); err != nil {
				a.log.Warn("Failed to reset warnings", zap.Error(err))
			}
			a.kick(ctx, sc, msg)
			a.notify(ctx, msg, fmt.Sprintf(
				"@%s removed after %d link warnings.", msg.SenderNumber, warnKickThreshold))
		} else {
			a.notify(ctx, msg, fmt.Sprintf(
				"@%s please avoid sending links in this group. Warning %d/%d.",
				msg.SenderNumber, count, warnKickThreshold))
		}
		return deleted, nil

	default: // store.ActionDelete
		if !botAdmin {
			a.alert(ctx, msg.Chat, "I need to be admin to delete messages.")
			return false, nil
		}
		if err := a.deleteMessage(ctx, sc, msg); err != nil {
			return false, err
		}
		return true, nil
	}
}

// deleteMessage removes the offending message and counts it.
func (a *AntiLink) deleteMessage(ctx context.Context, sc *store.Scope, msg *message.Message) error {
	if err := a.client.DeleteMessage(ctx, msg.Chat, msg.Key); err != nil {
		return fmt.Errorf("deleting link message: %w", err)
	}
	if err := sc.IncrAntiLinkStat(ctx, msg.Chat, store.StatDeleted); err != nil {
		a.log.Warn("Failed to count link deletion", zap.Error(err))
	}
	return nil
}

// kick removes the sender from the group.
func (a *AntiLink) kick(ctx context.Context, sc *store.Scope, msg *message.Message) {
	err := a.client.UpdateParticipants(ctx, msg.Chat, []string{msg.Sender}, whatsapp.ActionRemove)
	if err != nil {
		a.log.Error("Failed to kick link sender",
			zap.String("chat", msg.Chat),
			zap.String("sender", msg.Sender),
			zap.Error(err))
		return
	}
	if err := sc.IncrAntiLinkStat(ctx, msg.Chat, store.StatKicked); err != nil {
		a.log.Warn("Failed to count kick", zap.Error(err))
	}
}

// alert tells the group the bot lacks the rank to enforce the policy.
func (a *AntiLink) alert(ctx context.Context, chat, text string) {
	if _, err := a.client.SendText(ctx, chat, text, nil); err != nil {
		a.log.Warn("Failed to send anti-link alert", zap.Error(err))
	}
}

// notify posts the enforcement notice, tagging the sender.
func (a *AntiLink) notify(ctx context.Context, msg *message.Message, text string) {
	_, err := a.client.SendText(ctx, msg.Chat, text, &whatsapp.SendOptions{
		Mentions: []string{msg.Sender},
	})
	if err != nil {
		a.log.Warn("Failed to send anti-link notice", zap.Error(err))
	}
}

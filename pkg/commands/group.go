package commands

import (
	"context"
	"fmt"
	"strings"

	"wabot/pkg/message"
	"wabot/pkg/store"
	"wabot/pkg/whatsapp"
)

// GroupSource supplies the group administration commands.
func GroupSource() Source {
	return Source{
		Name: "group",
		Load: func() ([]*Descriptor, error) {
			return []*Descriptor{
				promoteCommand(),
				demoteCommand(),
				kickCommand(),
				tagallCommand(),
				hidetagCommand(),
				antilinkCommand(),
				muteCommand(),
				unmuteCommand(),
			}, nil
		},
	}
}

func promoteCommand() *Descriptor {
	return participantCommand("promote", "Make a member a group admin",
		whatsapp.ActionPromote, "promoted")
}

func demoteCommand() *Descriptor {
	return participantCommand("demote", "Remove a member's group admin rank",
		whatsapp.ActionDemote, "demoted")
}

func kickCommand() *Descriptor {
	d := participantCommand("kick", "Remove a member from the group",
		whatsapp.ActionRemove, "removed")
	d.Aliases = []string{"remove"}
	return d
}

// participantCommand builds promote/demote/kick, which share target
// resolution and safety rules.
func participantCommand(name, description string, action whatsapp.ParticipantAction, past string) *Descriptor {
	return &Descriptor{
		Name:             name,
		Category:         CategoryGroup,
		Description:      description,
		Usage:            "<mention or number>",
		GroupOnly:        true,
		AdminOnly:        true,
		BotAdminRequired: true,
		Handler: func(ctx context.Context, req *Request) error {
			targets := req.Targets()
			if len(targets) == 0 {
				_, err := req.Responder.Reply(ctx, "Mention or name the member.")
				return err
			}

			meta, err := req.Group.Metadata(ctx)
			if err != nil {
				return err
			}

			allowed, refusal := filterTargets(req, meta, action, targets)
			if len(allowed) == 0 {
				_, err := req.Responder.Reply(ctx, refusal)
				return err
			}

			if err := req.Client.UpdateParticipants(ctx, req.Message.Chat, allowed, action); err != nil {
				return err
			}

			numbers := make([]string, 0, len(allowed))
			for _, jid := range allowed {
				numbers = append(numbers, jidNumber(jid))
			}
			_, err = req.Responder.Reply(ctx,
				fmt.Sprintf("%s %s.", capitalize(past), strings.Join(numbers, ", ")))
			return err
		},
	}
}

// filterTargets drops invalid jids from a participant mutation. The
// target must be a group member other than the sender, and the bot,
// configured owners, and the group owner are protected. Promote wants a
// non-admin, demote wants an admin, kick refuses admins. The refusal
// text explains the last rejection.
func filterTargets(req *Request, meta *whatsapp.GroupMetadata, action whatsapp.ParticipantAction, targets []string) ([]string, string) {
	botJID := message.NormalizeJID(req.Client.BotJID())
	refusal := "No valid targets."

	var allowed []string
	for _, jid := range targets {
		participant, inGroup := meta.Find(jid)
		switch {
		case jid == botJID:
			refusal = "I am not doing that to myself."
		case req.IsOwnerJID != nil && req.IsOwnerJID(jid):
			refusal = "Bot owners cannot be targeted."
		case !inGroup:
			refusal = "That user is not in this group."
		case jid == req.Message.Sender:
			refusal = "You cannot do that to yourself."
		case participant.IsSuperAdmin():
			refusal = "The group owner cannot be targeted."
		case action == whatsapp.ActionRemove && participant.IsAdmin():
			refusal = "You cannot kick an admin."
		case action == whatsapp.ActionPromote && participant.IsAdmin():
			refusal = "That user is already an admin."
		case action == whatsapp.ActionDemote && !participant.IsAdmin():
			refusal = "That user is not an admin."
		default:
			allowed = append(allowed, jid)
			continue
		}
	}
	return allowed, refusal
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func tagallCommand() *Descriptor {
	return &Descriptor{
		Name:        "tagall",
		Aliases:     []string{"everyone"},
		Category:    CategoryGroup,
		Description: "Tag every member of the group",
		Usage:       "[message]",
		GroupOnly:   true,
		AdminOnly:   true,
		Handler: func(ctx context.Context, req *Request) error {
			meta, err := req.Group.Metadata(ctx)
			if err != nil {
				return err
			}

			header := strings.TrimSpace(req.RawArgs)
			if header == "" {
				header = "Attention everyone!"
			}

			var b strings.Builder
			b.WriteString(header + "\n")
			mentions := make([]string, 0, len(meta.Participants))
			for _, p := range meta.Participants {
				mentions = append(mentions, p.JID)
				fmt.Fprintf(&b, "\n@%s", jidNumber(p.JID))
			}

			_, err = req.Responder.ReplyMentions(ctx, b.String(), mentions)
			return err
		},
	}
}

func hidetagCommand() *Descriptor {
	return &Descriptor{
		Name:        "hidetag",
		Aliases:     []string{"ht"},
		Category:    CategoryGroup,
		Description: "Notify every member without visible tags",
		Usage:       "<message>",
		GroupOnly:   true,
		AdminOnly:   true,
		Args:        []ArgSpec{{Name: "message", Required: true}},
		Handler: func(ctx context.Context, req *Request) error {
			meta, err := req.Group.Metadata(ctx)
			if err != nil {
				return err
			}

			mentions := make([]string, 0, len(meta.Participants))
			for _, p := range meta.Participants {
				mentions = append(mentions, p.JID)
			}

			_, err = req.Responder.ReplyMentions(ctx, strings.TrimSpace(req.RawArgs), mentions)
			return err
		},
	}
}

func antilinkCommand() *Descriptor {
	return &Descriptor{
		Name:        "antilink",
		Category:    CategoryGroup,
		Description: "Configure invite-link protection for this group",
		Usage:       "<on|off|delete|kick|warn|status|block|unblock> [pattern]",
		GroupOnly:   true,
		AdminOnly:   true,
		Args:        []ArgSpec{{Name: "setting", Required: true}},
		Handler: func(ctx context.Context, req *Request) error {
			chat := req.Message.Chat
			settings, err := req.Store.GetAntiLink(ctx, chat)
			if err != nil {
				return err
			}

			switch strings.ToLower(req.Args[0]) {
			case "on":
				settings.Enabled = true
			case "off":
				settings.Enabled = false
			case "delete", "kick", "warn":
				settings.Enabled = true
				settings.Action = store.AntiLinkAction(strings.ToLower(req.Args[0]))
			case "block", "unblock":
				return editPatterns(ctx, req, settings, strings.ToLower(req.Args[0]))
			case "status":
				stats, err := req.Store.GetAntiLinkStats(ctx, chat)
				if err != nil {
					return err
				}
				state := "off"
				if settings.Enabled {
					state = fmt.Sprintf("on (%s)", settings.Action)
				}
				reply := fmt.Sprintf(
					"*Anti-link*: %s\nDetected: %d\nDeleted: %d\nKicked: %d\nWarned: %d",
					state, stats.Detected, stats.Deleted, stats.Kicked, stats.Warned)
				if len(settings.Patterns) > 0 {
					reply += "\nExtra patterns: " + strings.Join(settings.Patterns, ", ")
				}
				_, err = req.Responder.Reply(ctx, reply)
				return err
			default:
				_, err := req.Responder.Reply(ctx,
					"Setting must be on, off, delete, kick, warn, status, block, or unblock.")
				return err
			}

			if err := req.Store.SetAntiLink(ctx, chat, settings); err != nil {
				return err
			}

			if !settings.Enabled {
				_, err = req.Responder.Reply(ctx, "Anti-link disabled.")
				return err
			}
			_, err = req.Responder.Reply(ctx,
				fmt.Sprintf("Anti-link enabled, action: %s.", settings.Action))
			return err
		},
	}
}

// editPatterns adds or removes an extra blocked substring for the chat.
func editPatterns(ctx context.Context, req *Request, settings store.AntiLinkSettings, action string) error {
	pattern := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(req.RawArgs, req.Args[0])))
	if pattern == "" {
		_, err := req.Responder.Reply(ctx, "Name the pattern to "+action+".")
		return err
	}

	switch action {
	case "block":
		for _, p := range settings.Patterns {
			if p == pattern {
				_, err := req.Responder.Reply(ctx, "Already blocked.")
				return err
			}
		}
		settings.Patterns = append(settings.Patterns, pattern)
	case "unblock":
		kept := settings.Patterns[:0]
		removed := false
		for _, p := range settings.Patterns {
			if p == pattern {
				removed = true
				continue
			}
			kept = append(kept, p)
		}
		if !removed {
			_, err := req.Responder.Reply(ctx, "That pattern is not blocked.")
			return err
		}
		settings.Patterns = kept
	}

	if err := req.Store.SetAntiLink(ctx, req.Message.Chat, settings); err != nil {
		return err
	}
	_, err := req.Responder.Reply(ctx,
		fmt.Sprintf("Pattern %q %sed.", pattern, action))
	return err
}

func muteCommand() *Descriptor {
	return &Descriptor{
		Name:        "mute",
		Category:    CategoryGroup,
		Description: "Silence the bot in this group",
		GroupOnly:   true,
		AdminOnly:   true,
		Handler: func(ctx context.Context, req *Request) error {
			if err := req.Store.MuteChat(ctx, req.Message.Chat, req.Message.Sender); err != nil {
				return err
			}
			_, err := req.Responder.Reply(ctx,
				fmt.Sprintf("Muted. An admin can bring me back with %sunmute.", req.Prefix))
			return err
		},
	}
}

func unmuteCommand() *Descriptor {
	return &Descriptor{
		Name:        "unmute",
		Category:    CategoryGroup,
		Description: "Let the bot speak in this group again",
		GroupOnly:   true,
		AdminOnly:   true,
		Handler: func(ctx context.Context, req *Request) error {
			unmuted, err := req.Store.UnmuteChat(ctx, req.Message.Chat)
			if err != nil {
				return err
			}
			if !unmuted {
				_, err := req.Responder.Reply(ctx, "I was not muted here.")
				return err
			}
			_, err = req.Responder.Reply(ctx, "Back online.")
			return err
		},
	}
}

package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"wabot/pkg/store"
)

// OwnerSource supplies the owner-only administration commands.
func OwnerSource() Source {
	return Source{
		Name: "owner",
		Load: func() ([]*Descriptor, error) {
			return []*Descriptor{
				botmodeCommand(),
				banCommand(),
				unbanCommand(),
				modCommand(),
				reloadCommand(),
				cooldownCommand(),
				statsCommand(),
			}, nil
		},
	}
}

func botmodeCommand() *Descriptor {
	return &Descriptor{
		Name:        "botmode",
		Aliases:     []string{"mode"},
		Category:    CategoryOwner,
		Description: "Set who the bot responds to",
		Usage:       "<public|private|restricted> [grouponly|everywhere]",
		OwnerOnly:   true,
		Args: []ArgSpec{
			{Name: "mode", Required: true},
			{Name: "scope"},
		},
		MaxArgs: 2,
		Handler: func(ctx context.Context, req *Request) error {
			mode := strings.ToLower(req.Args[0])
			if !store.ValidMode(mode) {
				_, err := req.Responder.Reply(ctx,
					"Mode must be public, private, or restricted.")
				return err
			}

			settings, err := req.Store.GetMode(ctx)
			if err != nil {
				return err
			}
			settings.Mode = store.BotMode(mode)

			if len(req.Args) > 1 {
				switch strings.ToLower(req.Args[1]) {
				case "grouponly", "groups":
					settings.GroupOnly = true
				case "everywhere", "all":
					settings.GroupOnly = false
				default:
					_, err := req.Responder.Reply(ctx,
						"Scope must be grouponly or everywhere.")
					return err
				}
			}

			if err := req.Store.SetMode(ctx, settings); err != nil {
				return err
			}

			reply := fmt.Sprintf("Bot mode set to *%s*.", settings.Mode)
			if settings.GroupOnly {
				reply += " Responding in groups only."
			}
			_, err = req.Responder.Reply(ctx, reply)
			return err
		},
	}
}

func banCommand() *Descriptor {
	return &Descriptor{
		Name:        "ban",
		Category:    CategoryOwner,
		Description: "Ban a user from using the bot",
		Usage:       "<number or mention> [duration] [reason]",
		OwnerOnly:   true,
		MinArgs:     0,
		Handler: func(ctx context.Context, req *Request) error {
			targets := req.Targets()
			if len(targets) == 0 {
				_, err := req.Responder.Reply(ctx,
					fmt.Sprintf("Usage: %s", req.Registry.mustUsage("ban", req.Prefix)))
				return err
			}
			target := targets[0]

			if req.IsOwnerJID != nil && req.IsOwnerJID(target) {
				_, err := req.Responder.Reply(ctx, "Owners cannot be banned.")
				return err
			}

			duration, reason := parseBanArgs(req.Args)
			if err := req.Store.SetBan(ctx, target, reason, req.Message.Sender, duration); err != nil {
				return err
			}

			reply := fmt.Sprintf("Banned %s", jidNumber(target))
			if duration > 0 {
				reply += fmt.Sprintf(" for %s", formatDuration(duration))
			}
			if reason != "" {
				reply += fmt.Sprintf(" (%s)", reason)
			}
			_, err := req.Responder.Reply(ctx, reply+".")
			return err
		},
	}
}

func unbanCommand() *Descriptor {
	return &Descriptor{
		Name:        "unban",
		Category:    CategoryOwner,
		Description: "Lift a user's ban",
		Usage:       "<number or mention>",
		OwnerOnly:   true,
		Handler: func(ctx context.Context, req *Request) error {
			targets := req.Targets()
			if len(targets) == 0 {
				_, err := req.Responder.Reply(ctx, "Mention or name the user to unban.")
				return err
			}
			target := targets[0]

			removed, err := req.Store.RemoveBan(ctx, target)
			if err != nil {
				return err
			}
			if !removed {
				_, err := req.Responder.Reply(ctx,
					fmt.Sprintf("%s is not banned.", jidNumber(target)))
				return err
			}

			_, err = req.Responder.Reply(ctx,
				fmt.Sprintf("Unbanned %s.", jidNumber(target)))
			return err
		},
	}
}

func modCommand() *Descriptor {
	return &Descriptor{
		Name:        "mod",
		Category:    CategoryOwner,
		Description: "Manage bot moderators",
		Usage:       "<add|remove|list> [number or mention]",
		OwnerOnly:   true,
		Args: []ArgSpec{
			{Name: "action", Required: true},
			{Name: "user"},
		},
		Handler: func(ctx context.Context, req *Request) error {
			action := strings.ToLower(req.Args[0])

			switch action {
			case "list":
				mods, err := req.Store.ListRoleHolders(ctx, store.RoleModerator)
				if err != nil {
					return err
				}
				if len(mods) == 0 {
					_, err := req.Responder.Reply(ctx, "No moderators configured.")
					return err
				}
				lines := make([]string, 0, len(mods))
				for _, jid := range mods {
					lines = append(lines, "• "+jidNumber(jid))
				}
				_, err = req.Responder.Reply(ctx,
					"*Moderators*\n"+strings.Join(lines, "\n"))
				return err

			case "add", "remove":
				targets := req.Targets()
				if len(targets) == 0 {
					_, err := req.Responder.Reply(ctx, "Mention or name the user.")
					return err
				}
				target := targets[0]

				if action == "add" {
					if err := req.Store.GrantRole(ctx, target, store.RoleModerator, req.Message.Sender); err != nil {
						return err
					}
					_, err := req.Responder.Reply(ctx,
						fmt.Sprintf("%s is now a moderator.", jidNumber(target)))
					return err
				}

				revoked, err := req.Store.RevokeRole(ctx, target, store.RoleModerator)
				if err != nil {
					return err
				}
				if !revoked {
					_, err := req.Responder.Reply(ctx,
						fmt.Sprintf("%s is not a moderator.", jidNumber(target)))
					return err
				}
				_, err = req.Responder.Reply(ctx,
					fmt.Sprintf("%s is no longer a moderator.", jidNumber(target)))
				return err

			default:
				_, err := req.Responder.Reply(ctx, "Action must be add, remove, or list.")
				return err
			}
		},
	}
}

func reloadCommand() *Descriptor {
	return &Descriptor{
		Name:        "reload",
		Category:    CategoryOwner,
		Description: "Rebuild the command registry",
		OwnerOnly:   true,
		Handler: func(ctx context.Context, req *Request) error {
			if err := req.Registry.Load(true); err != nil {
				return err
			}
			_, err := req.Responder.Reply(ctx,
				fmt.Sprintf("Reloaded %d commands.", req.Registry.Count()))
			return err
		},
	}
}

func cooldownCommand() *Descriptor {
	return &Descriptor{
		Name:        "cooldown",
		Category:    CategoryOwner,
		Description: "Override a command's cooldown",
		Usage:       "<command> <seconds>",
		OwnerOnly:   true,
		Args: []ArgSpec{
			{Name: "command", Required: true},
			{Name: "seconds", Required: true},
		},
		MaxArgs: 2,
		Handler: func(ctx context.Context, req *Request) error {
			seconds, err := strconv.Atoi(req.Args[1])
			if err != nil || seconds < 0 {
				_, err := req.Responder.Reply(ctx, "Seconds must be a non-negative number.")
				return err
			}

			name := strings.TrimPrefix(strings.ToLower(req.Args[0]), req.Prefix)
			if err := req.Registry.SetCooldown(name, time.Duration(seconds)*time.Second); err != nil {
				_, replyErr := req.Responder.Reply(ctx, err.Error())
				return replyErr
			}

			_, err = req.Responder.Reply(ctx,
				fmt.Sprintf("Cooldown for %s%s set to %ds.", req.Prefix, name, seconds))
			return err
		},
	}
}

func statsCommand() *Descriptor {
	return &Descriptor{
		Name:        "stats",
		Category:    CategoryOwner,
		Description: "Show pipeline counters",
		OwnerOnly:   true,
		Handler: func(ctx context.Context, req *Request) error {
			c := req.Runtime.Counters()

			var b strings.Builder
			b.WriteString("*Pipeline stats*\n")
			fmt.Fprintf(&b, "Messages seen: %d\n", c.MessagesSeen)
			fmt.Fprintf(&b, "Commands run: %d\n", c.CommandsRun)
			fmt.Fprintf(&b, "Command errors: %d\n", c.CommandErrors)
			fmt.Fprintf(&b, "Gate denials: %d\n", c.GateDenials)
			fmt.Fprintf(&b, "Unknown commands: %d\n", c.Unknown)
			fmt.Fprintf(&b, "Avg response: %dms\n", c.AverageTime().Milliseconds())
			fmt.Fprintf(&b, "Uptime: %s", formatDuration(req.Runtime.Uptime()))

			if top := topUsage(req.Runtime.Usage(), 5); len(top) > 0 {
				b.WriteString("\n\n*Top commands*")
				for _, u := range top {
					fmt.Fprintf(&b, "\n%s%s: %d run, %d failed",
						req.Prefix, u.name, u.usage.Count, u.usage.Errors)
				}
			}

			_, err := req.Responder.Reply(ctx, b.String())
			return err
		},
	}
}

type usageEntry struct {
	name  string
	usage CommandUsage
}

// topUsage returns the n most-used commands, busiest first.
func topUsage(usage map[string]CommandUsage, n int) []usageEntry {
	entries := make([]usageEntry, 0, len(usage))
	for name, u := range usage {
		entries = append(entries, usageEntry{name: name, usage: u})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].usage.Count != entries[j].usage.Count {
			return entries[i].usage.Count > entries[j].usage.Count
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// parseBanArgs extracts an optional leading duration and trailing reason
// from the ban arguments, skipping number-looking tokens.
func parseBanArgs(args []string) (time.Duration, string) {
	var duration time.Duration
	var reasonParts []string

	for _, arg := range args {
		if numberToJID(arg) != "" || strings.HasPrefix(arg, "@") {
			continue
		}
		if duration == 0 {
			if d, ok := parseSpan(arg); ok {
				duration = d
				continue
			}
		}
		reasonParts = append(reasonParts, arg)
	}
	return duration, strings.Join(reasonParts, " ")
}

// parseSpan parses durations like "30m", "2h", or "7d".
func parseSpan(s string) (time.Duration, bool) {
	s = strings.ToLower(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, false
		}
		return time.Duration(days) * 24 * time.Hour, true
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// jidNumber renders a jid as a bare number for replies.
func jidNumber(jid string) string {
	if at := strings.Index(jid, "@"); at >= 0 {
		return jid[:at]
	}
	return jid
}

// mustUsage renders a command's usage line, falling back to the bare
// name when the command is unknown.
func (r *Registry) mustUsage(name, prefix string) string {
	if d, ok := r.Resolve(name); ok {
		return d.UsageLine(prefix)
	}
	return prefix + name
}

package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"wabot/pkg/version"
)

// GeneralSource supplies the commands available to everyone.
func GeneralSource() Source {
	return Source{
		Name: "general",
		Load: func() ([]*Descriptor, error) {
			return []*Descriptor{
				pingCommand(),
				menuCommand(),
				helpCommand(),
				infoCommand(),
				uptimeCommand(),
				afkCommand(),
			}, nil
		},
	}
}

func pingCommand() *Descriptor {
	return &Descriptor{
		Name:        "ping",
		Aliases:     []string{"p"},
		Category:    CategoryGeneral,
		Description: "Measure the bot's response time",
		Handler: func(ctx context.Context, req *Request) error {
			start := time.Now()
			key, err := req.Responder.Reply(ctx, "🏓 Pong!")
			if err != nil {
				return err
			}
			elapsed := time.Since(start)
			return req.Responder.Edit(ctx, key,
				fmt.Sprintf("🏓 Pong! %dms", elapsed.Milliseconds()))
		},
	}
}

func menuCommand() *Descriptor {
	return &Descriptor{
		Name:        "menu",
		Aliases:     []string{"commands"},
		Category:    CategoryGeneral,
		Description: "List all available commands",
		Handler: func(ctx context.Context, req *Request) error {
			visible := req.Registry.Visible()

			byCategory := make(map[string][]*Descriptor)
			for _, d := range visible {
				byCategory[d.Category] = append(byCategory[d.Category], d)
			}

			categories := make([]string, 0, len(byCategory))
			for c := range byCategory {
				categories = append(categories, c)
			}
			sort.Strings(categories)

			var b strings.Builder
			fmt.Fprintf(&b, "*%s — command menu*\n", req.Client.BotName())
			for _, category := range categories {
				fmt.Fprintf(&b, "\n*%s*\n", strings.ToUpper(category))
				for _, d := range byCategory[category] {
					fmt.Fprintf(&b, "• %s%s — %s\n", req.Prefix, d.Name, d.Description)
				}
			}
			fmt.Fprintf(&b, "\nUse %shelp <command> for details.", req.Prefix)

			_, err := req.Responder.Reply(ctx, b.String())
			return err
		},
	}
}

func helpCommand() *Descriptor {
	return &Descriptor{
		Name:        "help",
		Aliases:     []string{"h"},
		Category:    CategoryGeneral,
		Description: "Show usage for a command",
		Args:        []ArgSpec{{Name: "command"}},
		MaxArgs:     1,
		Handler: func(ctx context.Context, req *Request) error {
			if len(req.Args) == 0 {
				_, err := req.Responder.Reply(ctx,
					fmt.Sprintf("Use %smenu to see every command, or %shelp <command> for one.",
						req.Prefix, req.Prefix))
				return err
			}

			name := strings.TrimPrefix(req.Args[0], req.Prefix)
			d, ok := req.Registry.Resolve(name)
			if !ok {
				_, err := req.Responder.Reply(ctx,
					fmt.Sprintf("Unknown command %q. Try %smenu.", name, req.Prefix))
				return err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "*%s*\n%s\n\nUsage: %s", d.Name, d.Description, d.UsageLine(req.Prefix))
			if len(d.Aliases) > 0 {
				fmt.Fprintf(&b, "\nAliases: %s", strings.Join(d.Aliases, ", "))
			}
			if d.Cooldown > 0 {
				fmt.Fprintf(&b, "\nCooldown: %s", d.Cooldown)
			}
			var notes []string
			if d.OwnerOnly {
				notes = append(notes, "owner only")
			}
			if d.AdminOnly {
				notes = append(notes, "admin only")
			}
			if d.GroupOnly {
				notes = append(notes, "groups only")
			}
			if d.PrivateOnly {
				notes = append(notes, "direct chat only")
			}
			if len(notes) > 0 {
				fmt.Fprintf(&b, "\nRestrictions: %s", strings.Join(notes, ", "))
			}

			_, err := req.Responder.Reply(ctx, b.String())
			return err
		},
	}
}

func infoCommand() *Descriptor {
	return &Descriptor{
		Name:        "info",
		Aliases:     []string{"about"},
		Category:    CategoryGeneral,
		Description: "Show bot version and status",
		Handler: func(ctx context.Context, req *Request) error {
			mode, err := req.Store.GetMode(ctx)
			if err != nil {
				return err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "*%s*\n", req.Client.BotName())
			fmt.Fprintf(&b, "Version: %s\n", version.GetVersion())
			fmt.Fprintf(&b, "Uptime: %s\n", formatDuration(req.Runtime.Uptime()))
			fmt.Fprintf(&b, "Mode: %s", mode.Mode)
			if mode.GroupOnly {
				b.WriteString(" (groups only)")
			}
			fmt.Fprintf(&b, "\nCommands: %d", req.Registry.Count())

			_, err = req.Responder.Reply(ctx, b.String())
			return err
		},
	}
}

func uptimeCommand() *Descriptor {
	return &Descriptor{
		Name:        "uptime",
		Category:    CategoryGeneral,
		Description: "Show how long the bot has been running",
		Handler: func(ctx context.Context, req *Request) error {
			_, err := req.Responder.Reply(ctx,
				fmt.Sprintf("⏱ Up for %s", formatDuration(req.Runtime.Uptime())))
			return err
		},
	}
}

func afkCommand() *Descriptor {
	return &Descriptor{
		Name:        "afk",
		Category:    CategoryGeneral,
		Description: "Mark yourself away; mentions are collected until you return",
		Usage:       "[silent] [reason]",
		Handler: func(ctx context.Context, req *Request) error {
			reason := strings.TrimSpace(req.RawArgs)

			// A leading "silent" suppresses the mention auto-reply;
			// mentions are still collected.
			silent := false
			if first, rest, _ := strings.Cut(reason, " "); strings.EqualFold(first, "silent") {
				silent = true
				reason = strings.TrimSpace(rest)
			}

			if err := req.Store.SetAFK(ctx, req.Message.Sender, reason); err != nil {
				return err
			}
			if silent {
				if err := req.Store.SetAFKNotify(ctx, req.Message.Sender, false, ""); err != nil {
					return err
				}
			}

			reply := "You are now AFK."
			if reason != "" {
				reply = fmt.Sprintf("You are now AFK: %s", reason)
			}
			if silent {
				reply += " Mentions will be collected quietly."
			}
			_, err := req.Responder.Reply(ctx, reply)
			return err
		},
	}
}

// formatDuration renders a duration as "2d 3h 4m 5s" with leading zero
// units dropped.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	seconds := d - minutes*time.Minute

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || len(parts) > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || len(parts) > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	parts = append(parts, fmt.Sprintf("%ds", seconds/time.Second))
	return strings.Join(parts, " ")
}

package gate

import (
	"context"
	"testing"
	"time"

	"wabot/pkg/commands"
	"wabot/pkg/config"
	"wabot/pkg/logger"
	"wabot/pkg/message"
	"wabot/pkg/store"
)

func newTestGate(t *testing.T) (*Gate, *store.Scope) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Bot.OwnerNumbers = []string{"4915100000000"}

	return New(logger.NewNop(), cfg), st.Scope("test")
}

func testRequest(sc *store.Scope, sender string, isGroup bool, perms commands.Perms, args ...string) *commands.Request {
	chat := sender
	if isGroup {
		chat = "12345@g.us"
	}
	return &commands.Request{
		Message: &message.Message{
			Chat:    chat,
			IsGroup: isGroup,
			Sender:  sender,
		},
		Args:   args,
		Prefix: ".",
		Perms:  perms,
		Store:  sc,
	}
}

func plainCommand() *commands.Descriptor {
	return &commands.Descriptor{Name: "ping", Cooldown: time.Second}
}

func TestBanDeniesSilently(t *testing.T) {
	g, sc := newTestGate(t)
	ctx := context.Background()

	sender := "4915222222@s.whatsapp.net"
	if err := sc.SetBan(ctx, sender, "spam", "owner", 0); err != nil {
		t.Fatalf("SetBan() error = %v", err)
	}

	dec := g.Check(ctx, testRequest(sc, sender, false, commands.Perms{}), plainCommand())
	if dec.Verdict != DenySilent {
		t.Fatalf("verdict = %v, want DenySilent", dec.Verdict)
	}
	if dec.Reply != "" {
		t.Errorf("banned sender got a reply: %q", dec.Reply)
	}
}

func TestOwnerBypassesBan(t *testing.T) {
	g, sc := newTestGate(t)
	ctx := context.Background()

	sender := "4915100000000@s.whatsapp.net"
	if err := sc.SetBan(ctx, sender, "", "", 0); err != nil {
		t.Fatalf("SetBan() error = %v", err)
	}

	dec := g.Check(ctx, testRequest(sc, sender, false, commands.Perms{IsOwner: true}), plainCommand())
	if dec.Verdict != Allow {
		t.Errorf("owner was denied at stage %q", dec.Stage)
	}
}

func TestRateLimitDeniesVisibly(t *testing.T) {
	g, sc := newTestGate(t)
	ctx := context.Background()

	sender := "4915233333@s.whatsapp.net"
	d := &commands.Descriptor{Name: "ping"} // no cooldown, isolate the limiter

	var dec Decision
	for i := 0; i < 11; i++ {
		dec = g.Check(ctx, testRequest(sc, sender, false, commands.Perms{}), d)
	}

	if dec.Verdict != Deny {
		t.Fatalf("verdict = %v, want visible Deny", dec.Verdict)
	}
	if dec.Stage != "ratelimit" {
		t.Errorf("stage = %q, want ratelimit", dec.Stage)
	}
	if dec.Reply == "" {
		t.Error("rate-limited sender must be told to slow down")
	}
}

func TestCooldownStage(t *testing.T) {
	g, sc := newTestGate(t)
	ctx := context.Background()

	sender := "4915244444@s.whatsapp.net"
	d := plainCommand()

	if dec := g.Check(ctx, testRequest(sc, sender, false, commands.Perms{}), d); dec.Verdict != Allow {
		t.Fatalf("first invocation denied at stage %q", dec.Stage)
	}

	dec := g.Check(ctx, testRequest(sc, sender, false, commands.Perms{}), d)
	if dec.Verdict != Deny || dec.Stage != "cooldown" {
		t.Errorf("second invocation: verdict = %v stage = %q, want cooldown Deny", dec.Verdict, dec.Stage)
	}
}

func TestPrivateModeSilentForStrangers(t *testing.T) {
	g, sc := newTestGate(t)
	ctx := context.Background()

	if err := sc.SetMode(ctx, store.ModeSettings{Mode: store.ModePrivate}); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	dec := g.Check(ctx, testRequest(sc, "4915255555@s.whatsapp.net", false, commands.Perms{}), plainCommand())
	if dec.Verdict != DenySilent {
		t.Errorf("verdict = %v, want DenySilent in private mode", dec.Verdict)
	}

	dec = g.Check(ctx, testRequest(sc, "4915100000000@s.whatsapp.net", false, commands.Perms{IsOwner: true}), plainCommand())
	if dec.Verdict != Allow {
		t.Errorf("owner denied in private mode at stage %q", dec.Stage)
	}
}

func TestRestrictedModeDeniesVisibly(t *testing.T) {
	g, sc := newTestGate(t)
	ctx := context.Background()

	if err := sc.SetMode(ctx, store.ModeSettings{Mode: store.ModeRestricted}); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	dec := g.Check(ctx, testRequest(sc, "4915266666@s.whatsapp.net", false, commands.Perms{}), plainCommand())
	if dec.Verdict != Deny || dec.Reply == "" {
		t.Errorf("restricted mode should deny with a reply, got verdict %v reply %q", dec.Verdict, dec.Reply)
	}

	// Group-admin rank alone does not clear restricted mode.
	dec = g.Check(ctx, testRequest(sc, "4915277777@s.whatsapp.net", true, commands.Perms{IsGroupAdmin: true}), plainCommand())
	if dec.Verdict != Deny {
		t.Errorf("group admin passed restricted mode at stage %q", dec.Stage)
	}

	dec = g.Check(ctx, testRequest(sc, "4915288888@s.whatsapp.net", true, commands.Perms{IsModerator: true}), plainCommand())
	if dec.Verdict != Allow {
		t.Errorf("moderator denied in restricted mode at stage %q", dec.Stage)
	}
}

func TestGroupOnlyModeDropsDirectChats(t *testing.T) {
	g, sc := newTestGate(t)
	ctx := context.Background()

	if err := sc.SetMode(ctx, store.ModeSettings{Mode: store.ModePublic, GroupOnly: true}); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	dec := g.Check(ctx, testRequest(sc, "4915288888@s.whatsapp.net", false, commands.Perms{}), plainCommand())
	if dec.Verdict != DenySilent {
		t.Errorf("verdict = %v, want DenySilent for direct chat", dec.Verdict)
	}

	dec = g.Check(ctx, testRequest(sc, "4915288888@s.whatsapp.net", true, commands.Perms{}), plainCommand())
	if dec.Verdict != Allow {
		t.Errorf("group message denied at stage %q", dec.Stage)
	}
}

func TestMutedChatIsSilent(t *testing.T) {
	g, sc := newTestGate(t)
	ctx := context.Background()

	if err := sc.MuteChat(ctx, "12345@g.us", "admin"); err != nil {
		t.Fatalf("MuteChat() error = %v", err)
	}

	dec := g.Check(ctx, testRequest(sc, "4915299999@s.whatsapp.net", true, commands.Perms{}), plainCommand())
	if dec.Verdict != DenySilent || dec.Stage != "mute" {
		t.Errorf("verdict = %v stage = %q, want silent mute denial", dec.Verdict, dec.Stage)
	}

	// unmute must get through, or the mute could never be lifted.
	unmute := &commands.Descriptor{Name: "unmute", GroupOnly: true, AdminOnly: true}
	dec = g.Check(ctx, testRequest(sc, "4915299999@s.whatsapp.net", true, commands.Perms{IsGroupAdmin: true}), unmute)
	if dec.Verdict != Allow {
		t.Errorf("unmute denied in muted chat at stage %q", dec.Stage)
	}
}

func TestArgBounds(t *testing.T) {
	g, sc := newTestGate(t)
	ctx := context.Background()

	d := &commands.Descriptor{
		Name:    "cooldown",
		Usage:   "<command> <seconds>",
		MinArgs: 2,
		MaxArgs: 2,
	}

	dec := g.Check(ctx, testRequest(sc, "4915211111@s.whatsapp.net", false, commands.Perms{}, "ping"), d)
	if dec.Verdict != Deny || dec.Stage != "args" {
		t.Errorf("one arg: verdict = %v stage = %q, want args Deny", dec.Verdict, dec.Stage)
	}
	if dec.Reply == "" {
		t.Error("argument denial must carry the usage line")
	}

	dec = g.Check(ctx, testRequest(sc, "4915212121@s.whatsapp.net", false, commands.Perms{}, "ping", "5", "x"), d)
	if dec.Verdict != Deny || dec.Stage != "args" {
		t.Errorf("three args: verdict = %v stage = %q, want args Deny", dec.Verdict, dec.Stage)
	}
}

func TestPermissionFlags(t *testing.T) {
	g, sc := newTestGate(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		d       *commands.Descriptor
		isGroup bool
		perms   commands.Perms
		want    Verdict
	}{
		{"owner only blocks others", &commands.Descriptor{Name: "x", OwnerOnly: true}, false, commands.Perms{}, Deny},
		{"owner only passes owner", &commands.Descriptor{Name: "x", OwnerOnly: true}, false, commands.Perms{IsOwner: true}, Allow},
		{"group only blocks direct", &commands.Descriptor{Name: "x", GroupOnly: true}, false, commands.Perms{}, Deny},
		{"private only blocks group", &commands.Descriptor{Name: "x", PrivateOnly: true}, true, commands.Perms{}, Deny},
		{"admin only blocks members", &commands.Descriptor{Name: "x", AdminOnly: true}, true, commands.Perms{}, Deny},
		{"admin only passes admins", &commands.Descriptor{Name: "x", AdminOnly: true}, true, commands.Perms{IsGroupAdmin: true}, Allow},
		{"admin only passes moderators", &commands.Descriptor{Name: "x", AdminOnly: true}, true, commands.Perms{IsModerator: true}, Allow},
		{"bot admin required", &commands.Descriptor{Name: "x", GroupOnly: true, BotAdminRequired: true}, true, commands.Perms{IsGroupAdmin: true}, Deny},
		{"bot admin satisfied", &commands.Descriptor{Name: "x", GroupOnly: true, BotAdminRequired: true}, true, commands.Perms{IsGroupAdmin: true, IsBotAdmin: true}, Allow},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := "491531" + string(rune('0'+i)) + "@s.whatsapp.net"
			dec := g.Check(ctx, testRequest(sc, sender, tt.isGroup, tt.perms), tt.d)
			if dec.Verdict != tt.want {
				t.Errorf("verdict = %v (stage %q), want %v", dec.Verdict, dec.Stage, tt.want)
			}
		})
	}
}

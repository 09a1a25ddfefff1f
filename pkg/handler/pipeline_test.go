package handler

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"wabot/pkg/commands"
	"wabot/pkg/config"
	"wabot/pkg/gate"
	"wabot/pkg/logger"
	"wabot/pkg/message"
	"wabot/pkg/state"
	"wabot/pkg/store"
	"wabot/pkg/whatsapp"
)

const (
	botJID    = "490000000000@s.whatsapp.net"
	ownerJID  = "4915100000000@s.whatsapp.net"
	memberJID = "4915211111@s.whatsapp.net"
	groupJID  = "12345@g.us"
)

type sentText struct {
	chat string
	text string
}

type fakeClient struct {
	mu      sync.Mutex
	sent    []sentText
	edits   []string
	deleted []message.Key
	removed []string
	meta    *whatsapp.GroupMetadata
}

func (f *fakeClient) BotJID() string  { return botJID }
func (f *fakeClient) BotName() string { return "testbot" }

func (f *fakeClient) SendText(ctx context.Context, chatID, text string, opts *whatsapp.SendOptions) (message.Key, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentText{chat: chatID, text: text})
	return message.Key{ID: "sent", RemoteJID: chatID, FromMe: true}, nil
}

func (f *fakeClient) SendReaction(ctx context.Context, chatID string, key message.Key, emoji string) error {
	return nil
}

func (f *fakeClient) EditMessage(ctx context.Context, chatID string, key message.Key, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeClient) DeleteMessage(ctx context.Context, chatID string, key message.Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeClient) GroupMetadata(ctx context.Context, chatID string) (*whatsapp.GroupMetadata, error) {
	return f.meta, nil
}

func (f *fakeClient) UpdateParticipants(ctx context.Context, chatID string, jids []string, action whatsapp.ParticipantAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, jids...)
	return nil
}

func (f *fakeClient) OnEvent(handler whatsapp.EventHandler) {}

func (f *fakeClient) lastSent(t *testing.T) sentText {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sent[len(f.sent)-1]
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeClient, *store.Store) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Bot.OwnerNumbers = []string{"4915100000000"}
	cfg.Bot.SessionID = "test"

	log := logger.NewNop()

	registry := commands.NewRegistry(log)
	registry.AddSource(commands.GeneralSource())
	registry.AddSource(commands.GroupSource())
	registry.AddSource(commands.OwnerSource())
	if err := registry.Load(true); err != nil {
		t.Fatalf("registry.Load() error = %v", err)
	}

	client := &fakeClient{
		meta: &whatsapp.GroupMetadata{
			ID: groupJID,
			Participants: []whatsapp.Participant{
				{JID: botJID, Admin: whatsapp.RankAdmin},
				{JID: memberJID},
				{JID: "4915222222@s.whatsapp.net", Admin: whatsapp.RankAdmin},
			},
		},
	}

	p := New(log, cfg, client, st, state.NewMemoryCache(time.Minute), registry,
		gate.New(log, cfg), NewStats())
	return p, client, st
}

func textEvent(sender, chat, text string) *message.RawEvent {
	body, _ := json.Marshal(text)
	ev := &message.RawEvent{
		Key: message.Key{ID: "ev-" + text, RemoteJID: chat},
		Payload: map[string]json.RawMessage{
			"conversation": body,
		},
	}
	if strings.HasSuffix(chat, "@g.us") {
		ev.Key.Participant = sender
	}
	return ev
}

func TestPingRepliesAndEdits(t *testing.T) {
	p, client, _ := newTestPipeline(t)

	p.HandleEvent(textEvent(memberJID, memberJID, ".ping"))

	if got := client.lastSent(t).text; !strings.Contains(got, "Pong") {
		t.Errorf("reply = %q, want a pong", got)
	}
	if len(client.edits) != 1 || !strings.Contains(client.edits[0], "ms") {
		t.Errorf("edits = %v, want one latency edit", client.edits)
	}
	if p.stats.Counters().CommandsRun != 1 {
		t.Errorf("commandsRun = %d, want 1", p.stats.Counters().CommandsRun)
	}
}

func TestUnknownCommandPointsAtMenu(t *testing.T) {
	p, client, _ := newTestPipeline(t)

	p.HandleEvent(textEvent(memberJID, memberJID, ".doesnotexist"))

	if got := client.lastSent(t).text; !strings.Contains(got, "menu") {
		t.Errorf("reply = %q, want a pointer at the menu", got)
	}
	if p.stats.Counters().Unknown != 1 {
		t.Errorf("unknown = %d, want 1", p.stats.Counters().Unknown)
	}
}

func TestBannedSenderIsSilent(t *testing.T) {
	p, client, st := newTestPipeline(t)

	sc := st.Scope("test")
	if err := sc.SetBan(context.Background(), memberJID, "", "", 0); err != nil {
		t.Fatalf("SetBan() error = %v", err)
	}

	p.HandleEvent(textEvent(memberJID, memberJID, ".ping"))
	p.HandleEvent(textEvent(memberJID, memberJID, ".doesnotexist"))

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.sent) != 0 {
		t.Errorf("banned sender got %d replies: %v", len(client.sent), client.sent)
	}
}

func TestPrivateModeOnlyAnswersOwner(t *testing.T) {
	p, client, st := newTestPipeline(t)

	sc := st.Scope("test")
	if err := sc.SetMode(context.Background(), store.ModeSettings{Mode: store.ModePrivate}); err != nil {
		t.Fatalf("SetMode() error = %v", err)
	}

	p.HandleEvent(textEvent(memberJID, memberJID, ".ping"))
	client.mu.Lock()
	strangerReplies := len(client.sent)
	client.mu.Unlock()
	if strangerReplies != 0 {
		t.Errorf("stranger got %d replies in private mode", strangerReplies)
	}

	p.HandleEvent(textEvent(ownerJID, ownerJID, ".ping"))
	if got := client.lastSent(t).text; !strings.Contains(got, "Pong") {
		t.Errorf("owner reply = %q, want a pong", got)
	}
}

func TestSelfSentCommandRunsAsOwner(t *testing.T) {
	p, client, st := newTestPipeline(t)

	// Commands typed on the bot's own account carry owner privileges.
	ev := textEvent(botJID, memberJID, ".botmode private")
	ev.Key.FromMe = true
	p.HandleEvent(ev)

	if got := client.lastSent(t).text; !strings.Contains(got, "private") {
		t.Errorf("reply = %q, want a mode confirmation", got)
	}

	settings, err := st.Scope("test").GetMode(context.Background())
	if err != nil {
		t.Fatalf("GetMode() error = %v", err)
	}
	if settings.Mode != store.ModePrivate {
		t.Errorf("mode = %q, want private set by the self-sent command", settings.Mode)
	}
}

func TestAntiLinkRemovesBeforeDispatch(t *testing.T) {
	p, client, st := newTestPipeline(t)
	ctx := context.Background()

	sc := st.Scope("test")
	if err := sc.SetAntiLink(ctx, groupJID, store.AntiLinkSettings{
		Enabled: true,
		Action:  store.ActionDelete,
	}); err != nil {
		t.Fatalf("SetAntiLink() error = %v", err)
	}

	p.HandleEvent(textEvent(memberJID, groupJID, "join https://chat.whatsapp.com/AbCdEfGh123"))

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.deleted) != 1 {
		t.Fatalf("deleted %d messages, want 1", len(client.deleted))
	}
	if len(client.sent) != 0 {
		t.Errorf("sent = %v, want silence in delete mode", client.sent)
	}
}

func TestAFKFlowThroughPipeline(t *testing.T) {
	p, client, st := newTestPipeline(t)

	// Setting AFK through the command must not immediately clear it.
	p.HandleEvent(textEvent(memberJID, memberJID, ".afk lunch"))

	sc := st.Scope("test")
	status, err := sc.GetAFK(context.Background(), memberJID)
	if err != nil {
		t.Fatalf("GetAFK() error = %v", err)
	}
	if status == nil || status.Reason != "lunch" {
		t.Fatalf("status = %+v, want afk with reason lunch", status)
	}

	// Any later message brings them back.
	p.HandleEvent(textEvent(memberJID, memberJID, "hello"))

	status, _ = sc.GetAFK(context.Background(), memberJID)
	if status != nil {
		t.Error("afk status survived a later message")
	}
	if got := client.lastSent(t).text; !strings.Contains(got, "Welcome back") {
		t.Errorf("reply = %q, want a welcome back", got)
	}
}

func TestAdminCommandFromMemberIsDenied(t *testing.T) {
	p, client, _ := newTestPipeline(t)

	p.HandleEvent(textEvent(memberJID, groupJID, ".mute"))

	if got := client.lastSent(t).text; !strings.Contains(got, "admin") {
		t.Errorf("reply = %q, want an admin-only denial", got)
	}
	if p.stats.Counters().GateDenials != 1 {
		t.Errorf("gateDenials = %d, want 1", p.stats.Counters().GateDenials)
	}
}

func TestAdminCommandFromAdminRuns(t *testing.T) {
	p, client, st := newTestPipeline(t)

	admin := "4915222222@s.whatsapp.net"
	p.HandleEvent(textEvent(admin, groupJID, ".mute"))

	if got := client.lastSent(t).text; !strings.Contains(got, "Muted") {
		t.Errorf("reply = %q, want a mute confirmation", got)
	}

	muted, err := st.Scope("test").IsChatMuted(context.Background(), groupJID)
	if err != nil {
		t.Fatalf("IsChatMuted() error = %v", err)
	}
	if !muted {
		t.Error("chat not muted after the command")
	}
}

func TestMalformedEventIsDropped(t *testing.T) {
	p, client, _ := newTestPipeline(t)

	p.HandleEvent(&message.RawEvent{})
	p.HandleEvent(nil)

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.sent) != 0 {
		t.Errorf("malformed events produced %d replies", len(client.sent))
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		text     string
		name     string
		rawArgs  string
		argCount int
		ok       bool
	}{
		{".ping", "ping", "", 0, true},
		{".BAN  @user  spam ", "ban", "@user  spam", 2, true},
		{"  .menu", "menu", "", 0, true},
		{"ping", "", "", 0, false},
		{".", "", "", 0, false},
		{"", "", "", 0, false},
	}

	for _, tt := range tests {
		name, rawArgs, args, ok := splitCommand(tt.text, ".")
		if ok != tt.ok || name != tt.name || rawArgs != tt.rawArgs || len(args) != tt.argCount {
			t.Errorf("splitCommand(%q) = (%q, %q, %d args, %v), want (%q, %q, %d args, %v)",
				tt.text, name, rawArgs, len(args), ok, tt.name, tt.rawArgs, tt.argCount, tt.ok)
		}
	}
}

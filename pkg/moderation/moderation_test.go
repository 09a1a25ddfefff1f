package moderation

import (
	"context"
	"strings"
	"testing"

	"wabot/pkg/logger"
	"wabot/pkg/message"
	"wabot/pkg/store"
	"wabot/pkg/whatsapp"
)

type sentText struct {
	chat string
	text string
}

// fakeClient records protocol calls for assertions.
type fakeClient struct {
	sent    []sentText
	deleted []message.Key
	removed []string
	meta    *whatsapp.GroupMetadata
}

func (f *fakeClient) BotJID() string  { return "490000000000@s.whatsapp.net" }
func (f *fakeClient) BotName() string { return "testbot" }

func (f *fakeClient) SendText(ctx context.Context, chatID, text string, opts *whatsapp.SendOptions) (message.Key, error) {
	f.sent = append(f.sent, sentText{chat: chatID, text: text})
	return message.Key{ID: "sent"}, nil
}

func (f *fakeClient) SendReaction(ctx context.Context, chatID string, key message.Key, emoji string) error {
	return nil
}

func (f *fakeClient) EditMessage(ctx context.Context, chatID string, key message.Key, text string) error {
	return nil
}

func (f *fakeClient) DeleteMessage(ctx context.Context, chatID string, key message.Key) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeClient) GroupMetadata(ctx context.Context, chatID string) (*whatsapp.GroupMetadata, error) {
	return f.meta, nil
}

func (f *fakeClient) UpdateParticipants(ctx context.Context, chatID string, jids []string, action whatsapp.ParticipantAction) error {
	f.removed = append(f.removed, jids...)
	return nil
}

func (f *fakeClient) OnEvent(handler whatsapp.EventHandler) {}

const (
	testChat   = "12345@g.us"
	testSender = "4915211111@s.whatsapp.net"
)

func newAntiLinkFixture(t *testing.T, botIsAdmin bool) (*AntiLink, *fakeClient, *store.Scope) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	botRank := whatsapp.RankMember
	if botIsAdmin {
		botRank = whatsapp.RankAdmin
	}
	client := &fakeClient{
		meta: &whatsapp.GroupMetadata{
			ID: testChat,
			Participants: []whatsapp.Participant{
				{JID: "490000000000@s.whatsapp.net", Admin: botRank},
				{JID: testSender},
				{JID: "4915222222@s.whatsapp.net", Admin: whatsapp.RankAdmin},
			},
		},
	}

	isOwner := func(jid string) bool { return jid == "4915299999@s.whatsapp.net" }
	policy := NewAntiLink(logger.NewNop(), client, isOwner, client.GroupMetadata)
	return policy, client, st.Scope("test")
}

func linkMessage(sender string) *message.Message {
	return &message.Message{
		ID:           "m1",
		Key:          message.Key{ID: "m1", RemoteJID: testChat},
		Chat:         testChat,
		IsGroup:      true,
		Sender:       sender,
		SenderNumber: strings.SplitN(sender, "@", 2)[0],
		Text:         "join us https://chat.whatsapp.com/AbCdEfGh123",
	}
}

func TestContainsInviteLink(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"https://chat.whatsapp.com/AbCdEfGh123", true},
		{"chat.whatsapp.com/invite/AbCdEfGh123", true},
		{"join WWW.CHAT.WHATSAPP.COM/AbCdEfGh123 now", true},
		{"hello there", false},
		{"https://example.com/chat", false},
		{"chat.whatsapp.com/", false},
	}
	for _, tt := range tests {
		if got := ContainsInviteLink(tt.text); got != tt.want {
			t.Errorf("ContainsInviteLink(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestAntiLinkDisabledDoesNothing(t *testing.T) {
	policy, client, sc := newAntiLinkFixture(t, true)

	acted, err := policy.Handle(context.Background(), sc, linkMessage(testSender))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if acted || len(client.deleted) != 0 {
		t.Error("disabled policy acted on a link")
	}
}

func TestAntiLinkDeleteAction(t *testing.T) {
	policy, client, sc := newAntiLinkFixture(t, true)
	ctx := context.Background()

	sc.SetAntiLink(ctx, testChat, store.AntiLinkSettings{Enabled: true, Action: store.ActionDelete})

	acted, err := policy.Handle(ctx, sc, linkMessage(testSender))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !acted {
		t.Fatal("Handle() did not act on an invite link")
	}
	if len(client.deleted) != 1 {
		t.Errorf("deleted %d messages, want 1", len(client.deleted))
	}
	if len(client.removed) != 0 {
		t.Error("delete action must not kick")
	}
	if len(client.sent) != 0 {
		t.Fatalf("sent %d notices, want none in delete mode", len(client.sent))
	}

	stats, _ := sc.GetAntiLinkStats(ctx, testChat)
	if stats.Detected != 1 || stats.Deleted != 1 {
		t.Errorf("stats = %+v, want detected=1 deleted=1", stats)
	}
}

func TestAntiLinkKickAction(t *testing.T) {
	policy, client, sc := newAntiLinkFixture(t, true)
	ctx := context.Background()

	sc.SetAntiLink(ctx, testChat, store.AntiLinkSettings{Enabled: true, Action: store.ActionKick})

	acted, err := policy.Handle(ctx, sc, linkMessage(testSender))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !acted {
		t.Fatal("Handle() did not act")
	}
	if len(client.removed) != 1 || client.removed[0] != testSender {
		t.Errorf("removed = %v, want the sender kicked", client.removed)
	}

	stats, _ := sc.GetAntiLinkStats(ctx, testChat)
	if stats.Kicked != 1 {
		t.Errorf("kicked stat = %d, want 1", stats.Kicked)
	}
}

func TestAntiLinkWarnEscalatesToKick(t *testing.T) {
	policy, client, sc := newAntiLinkFixture(t, true)
	ctx := context.Background()

	sc.SetAntiLink(ctx, testChat, store.AntiLinkSettings{Enabled: true, Action: store.ActionWarn})

	for i := 0; i < warnKickThreshold; i++ {
		if _, err := policy.Handle(ctx, sc, linkMessage(testSender)); err != nil {
			t.Fatalf("Handle() %d error = %v", i+1, err)
		}
	}

	if len(client.removed) != 1 {
		t.Errorf("removed = %v, want kick on warning %d", client.removed, warnKickThreshold)
	}

	stats, _ := sc.GetAntiLinkStats(ctx, testChat)
	if stats.Warned != int64(warnKickThreshold) || stats.Kicked != 1 {
		t.Errorf("stats = %+v, want warned=%d kicked=1", stats, warnKickThreshold)
	}
}

func TestAntiLinkWarnWithoutAdminStillWarns(t *testing.T) {
	policy, client, sc := newAntiLinkFixture(t, false)
	ctx := context.Background()

	sc.SetAntiLink(ctx, testChat, store.AntiLinkSettings{Enabled: true, Action: store.ActionWarn})

	acted, err := policy.Handle(ctx, sc, linkMessage(testSender))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if acted {
		t.Error("Handle() claimed removal without admin rights")
	}
	if len(client.deleted) != 0 {
		t.Error("message deleted without admin rights")
	}
	if len(client.sent) != 1 || !strings.Contains(client.sent[0].text, "Warning") {
		t.Errorf("sent = %v, want one warning despite missing rank", client.sent)
	}

	stats, _ := sc.GetAntiLinkStats(ctx, testChat)
	if stats.Warned != 1 || stats.Deleted != 0 {
		t.Errorf("stats = %+v, want warned=1 deleted=0", stats)
	}
}

func TestAntiLinkExemptions(t *testing.T) {
	policy, client, sc := newAntiLinkFixture(t, true)
	ctx := context.Background()

	sc.SetAntiLink(ctx, testChat, store.AntiLinkSettings{Enabled: true, Action: store.ActionDelete})

	// Group admins are exempt.
	acted, err := policy.Handle(ctx, sc, linkMessage("4915222222@s.whatsapp.net"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if acted || len(client.deleted) != 0 {
		t.Error("policy acted against a group admin")
	}

	// Bot owners are exempt.
	acted, err = policy.Handle(ctx, sc, linkMessage("4915299999@s.whatsapp.net"))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if acted || len(client.deleted) != 0 {
		t.Error("policy acted against a bot owner")
	}

	// Moderators are exempt too.
	if err := sc.GrantRole(ctx, testSender, store.RoleModerator, "owner"); err != nil {
		t.Fatalf("GrantRole() error = %v", err)
	}
	acted, err = policy.Handle(ctx, sc, linkMessage(testSender))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if acted || len(client.deleted) != 0 {
		t.Error("policy acted against a moderator")
	}
}

func TestAntiLinkNeedsBotAdmin(t *testing.T) {
	policy, client, sc := newAntiLinkFixture(t, false)
	ctx := context.Background()

	sc.SetAntiLink(ctx, testChat, store.AntiLinkSettings{Enabled: true, Action: store.ActionDelete})

	acted, err := policy.Handle(ctx, sc, linkMessage(testSender))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if acted || len(client.deleted) != 0 {
		t.Error("policy deleted without admin rights")
	}
	if len(client.sent) != 1 || !strings.Contains(client.sent[0].text, "admin") {
		t.Errorf("sent = %v, want a missing-rank alert", client.sent)
	}

	// Detection is still counted.
	stats, _ := sc.GetAntiLinkStats(ctx, testChat)
	if stats.Detected != 1 || stats.Deleted != 0 {
		t.Errorf("stats = %+v, want detected=1 deleted=0", stats)
	}
}

func TestAntiLinkCustomPattern(t *testing.T) {
	policy, client, sc := newAntiLinkFixture(t, true)
	ctx := context.Background()

	sc.SetAntiLink(ctx, testChat, store.AntiLinkSettings{
		Enabled:  true,
		Action:   store.ActionDelete,
		Patterns: []string{"discord.gg"},
	})

	msg := linkMessage(testSender)
	msg.Text = "come over to DISCORD.GG/abcdef"

	acted, err := policy.Handle(ctx, sc, msg)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if !acted || len(client.deleted) != 1 {
		t.Error("custom pattern did not trigger deletion")
	}

	msg.Text = "plain message"
	acted, err = policy.Handle(ctx, sc, msg)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if acted {
		t.Error("policy acted on text matching no pattern")
	}
}

func newAFKFixture(t *testing.T) (*AFK, *fakeClient, *store.Scope) {
	t.Helper()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	client := &fakeClient{}
	return NewAFK(logger.NewNop(), client), client, st.Scope("test")
}

func TestAFKMentionRecordedAndAnswered(t *testing.T) {
	policy, client, sc := newAFKFixture(t)
	ctx := context.Background()

	away := "4915233333@s.whatsapp.net"
	sc.SetAFK(ctx, away, "vacation")

	msg := &message.Message{
		Key:      message.Key{ID: "m1", RemoteJID: testChat},
		Chat:     testChat,
		IsGroup:  true,
		Sender:   testSender,
		PushName: "Alice",
		Text:     "hey @4915233333",
		Mentions: []string{away},
	}
	policy.Handle(ctx, sc, msg, false)

	if len(client.sent) != 1 {
		t.Fatalf("sent %d replies, want 1 auto-reply", len(client.sent))
	}
	if !strings.Contains(client.sent[0].text, "vacation") {
		t.Errorf("auto-reply %q missing the reason", client.sent[0].text)
	}

	mentions, err := sc.TakeAFKMentions(ctx, away)
	if err != nil {
		t.Fatalf("TakeAFKMentions() error = %v", err)
	}
	if len(mentions) != 1 || mentions[0].Sender != testSender {
		t.Errorf("mentions = %+v, want one record from the sender", mentions)
	}
}

func TestAFKReturnClearsAndSummarizes(t *testing.T) {
	policy, client, sc := newAFKFixture(t)
	ctx := context.Background()

	sc.SetAFK(ctx, testSender, "")
	sc.AddAFKMention(ctx, testSender, store.AFKMention{
		Chat: testChat, Sender: "4915244444@s.whatsapp.net", SenderName: "Bob", Text: "ping",
	})

	msg := &message.Message{
		Key:     message.Key{ID: "m2", RemoteJID: testChat},
		Chat:    testChat,
		IsGroup: true,
		Sender:  testSender,
		Text:    "back",
	}
	policy.Handle(ctx, sc, msg, false)

	if len(client.sent) != 1 {
		t.Fatalf("sent %d replies, want 1 welcome back", len(client.sent))
	}
	if !strings.Contains(client.sent[0].text, "Bob") {
		t.Errorf("welcome reply %q missing the mention summary", client.sent[0].text)
	}

	status, _ := sc.GetAFK(ctx, testSender)
	if status != nil {
		t.Error("afk status not cleared on return")
	}
}

func TestAFKSettingDoesNotSelfClear(t *testing.T) {
	policy, client, sc := newAFKFixture(t)
	ctx := context.Background()

	sc.SetAFK(ctx, testSender, "lunch")

	msg := &message.Message{
		Key:    message.Key{ID: "m3", RemoteJID: testSender},
		Chat:   testSender,
		Sender: testSender,
		Text:   ".afk lunch",
	}
	policy.Handle(ctx, sc, msg, true)

	status, _ := sc.GetAFK(ctx, testSender)
	if status == nil {
		t.Error("afk command message cleared its own status")
	}
	if len(client.sent) != 0 {
		t.Error("no reply expected when setting afk")
	}
}

func TestAFKSilentCollectsWithoutReplying(t *testing.T) {
	policy, client, sc := newAFKFixture(t)
	ctx := context.Background()

	away := "4915233333@s.whatsapp.net"
	sc.SetAFK(ctx, away, "heads down")
	sc.SetAFKNotify(ctx, away, false, "")

	msg := &message.Message{
		Key:      message.Key{ID: "m5", RemoteJID: testChat},
		Chat:     testChat,
		IsGroup:  true,
		Sender:   testSender,
		Text:     "ping @4915233333",
		Mentions: []string{away},
	}
	policy.Handle(ctx, sc, msg, false)

	if len(client.sent) != 0 {
		t.Errorf("sent %d replies with notifications off, want 0", len(client.sent))
	}

	mentions, err := sc.TakeAFKMentions(ctx, away)
	if err != nil {
		t.Fatalf("TakeAFKMentions() error = %v", err)
	}
	if len(mentions) != 1 {
		t.Errorf("recorded %d mentions, want 1 despite silence", len(mentions))
	}
}

func TestAFKNeverRepliesWithoutStatus(t *testing.T) {
	policy, client, sc := newAFKFixture(t)

	msg := &message.Message{
		Key:      message.Key{ID: "m4", RemoteJID: testChat},
		Chat:     testChat,
		IsGroup:  true,
		Sender:   testSender,
		Text:     "hello @4915255555",
		Mentions: []string{"4915255555@s.whatsapp.net"},
	}
	policy.Handle(context.Background(), sc, msg, false)

	if len(client.sent) != 0 {
		t.Errorf("sent %d replies for a non-afk mention, want 0", len(client.sent))
	}
}

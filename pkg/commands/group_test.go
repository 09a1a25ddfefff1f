package commands

import (
	"context"
	"reflect"
	"testing"

	"wabot/pkg/message"
	"wabot/pkg/whatsapp"
)

type stubClient struct{}

func (stubClient) BotJID() string  { return "490000000000:3@s.whatsapp.net" }
func (stubClient) BotName() string { return "testbot" }
func (stubClient) SendText(ctx context.Context, chatID, text string, opts *whatsapp.SendOptions) (message.Key, error) {
	return message.Key{}, nil
}
func (stubClient) SendReaction(ctx context.Context, chatID string, key message.Key, emoji string) error {
	return nil
}
func (stubClient) EditMessage(ctx context.Context, chatID string, key message.Key, text string) error {
	return nil
}
func (stubClient) DeleteMessage(ctx context.Context, chatID string, key message.Key) error {
	return nil
}
func (stubClient) GroupMetadata(ctx context.Context, chatID string) (*whatsapp.GroupMetadata, error) {
	return nil, nil
}
func (stubClient) UpdateParticipants(ctx context.Context, chatID string, jids []string, action whatsapp.ParticipantAction) error {
	return nil
}
func (stubClient) OnEvent(handler whatsapp.EventHandler) {}

func TestFilterTargets(t *testing.T) {
	const (
		sender     = "4915211111@s.whatsapp.net"
		member     = "4915222222@s.whatsapp.net"
		admin      = "4915233333@s.whatsapp.net"
		groupOwner = "4915244444@s.whatsapp.net"
		botOwner   = "4915255555@s.whatsapp.net"
		outsider   = "4915266666@s.whatsapp.net"
	)

	meta := &whatsapp.GroupMetadata{
		ID: "12345@g.us",
		Participants: []whatsapp.Participant{
			{JID: "490000000000@s.whatsapp.net", Admin: whatsapp.RankAdmin},
			{JID: sender, Admin: whatsapp.RankAdmin},
			{JID: member},
			{JID: admin, Admin: whatsapp.RankAdmin},
			{JID: groupOwner, Admin: whatsapp.RankSuperAdmin},
			{JID: botOwner},
		},
	}

	req := &Request{
		Message:    &message.Message{Chat: "12345@g.us", IsGroup: true, Sender: sender},
		Client:     stubClient{},
		IsOwnerJID: func(jid string) bool { return jid == botOwner },
	}

	tests := []struct {
		name        string
		action      whatsapp.ParticipantAction
		targets     []string
		wantAllowed []string
		wantRefusal string
	}{
		{"kick member", whatsapp.ActionRemove, []string{member}, []string{member}, ""},
		{"kick self", whatsapp.ActionRemove, []string{sender}, nil, "You cannot do that to yourself."},
		{"kick admin", whatsapp.ActionRemove, []string{admin}, nil, "You cannot kick an admin."},
		{"kick group owner", whatsapp.ActionRemove, []string{groupOwner}, nil, "The group owner cannot be targeted."},
		{"kick bot owner", whatsapp.ActionRemove, []string{botOwner}, nil, "Bot owners cannot be targeted."},
		{"kick the bot", whatsapp.ActionRemove, []string{"490000000000@s.whatsapp.net"}, nil, "I am not doing that to myself."},
		{"kick outsider", whatsapp.ActionRemove, []string{outsider}, nil, "That user is not in this group."},
		{"promote member", whatsapp.ActionPromote, []string{member}, []string{member}, ""},
		{"promote admin", whatsapp.ActionPromote, []string{admin}, nil, "That user is already an admin."},
		{"demote admin", whatsapp.ActionDemote, []string{admin}, []string{admin}, ""},
		{"demote member", whatsapp.ActionDemote, []string{member}, nil, "That user is not an admin."},
		{"mixed targets", whatsapp.ActionRemove, []string{admin, member}, []string{member}, "You cannot kick an admin."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, refusal := filterTargets(req, meta, tt.action, tt.targets)
			if !reflect.DeepEqual(allowed, tt.wantAllowed) {
				t.Errorf("allowed = %v, want %v", allowed, tt.wantAllowed)
			}
			if len(tt.wantAllowed) == 0 && refusal != tt.wantRefusal {
				t.Errorf("refusal = %q, want %q", refusal, tt.wantRefusal)
			}
		})
	}
}

package handler

import (
	"context"
	"time"

	"wabot/pkg/message"
	"wabot/pkg/state"
	"wabot/pkg/whatsapp"
)

// groupMetaTTL caps how stale cached group metadata may get. Admin
// changes take at most this long to be noticed.
const groupMetaTTL = 30 * time.Second

// responder implements commands.Responder for one invocation.
type responder struct {
	client whatsapp.Client
	msg    *message.Message
}

func (r *responder) Reply(ctx context.Context, text string) (message.Key, error) {
	return r.client.SendText(ctx, r.msg.Chat, text, &whatsapp.SendOptions{Quoted: &r.msg.Key})
}

func (r *responder) ReplyMentions(ctx context.Context, text string, mentions []string) (message.Key, error) {
	return r.client.SendText(ctx, r.msg.Chat, text, &whatsapp.SendOptions{
		Quoted:   &r.msg.Key,
		Mentions: mentions,
	})
}

func (r *responder) React(ctx context.Context, emoji string) error {
	return r.client.SendReaction(ctx, r.msg.Chat, r.msg.Key, emoji)
}

func (r *responder) Edit(ctx context.Context, key message.Key, text string) error {
	return r.client.EditMessage(ctx, r.msg.Chat, key, text)
}

func (r *responder) Delete(ctx context.Context, key message.Key) error {
	return r.client.DeleteMessage(ctx, r.msg.Chat, key)
}

func (r *responder) Send(ctx context.Context, chatID, text string) (message.Key, error) {
	return r.client.SendText(ctx, chatID, text, nil)
}

// groupInfo implements commands.Group with a cache in front of the
// protocol client.
type groupInfo struct {
	client whatsapp.Client
	cache  state.Cache
	chat   string
}

func (g *groupInfo) Metadata(ctx context.Context) (*whatsapp.GroupMetadata, error) {
	key := "groupmeta:" + g.chat

	var meta whatsapp.GroupMetadata
	if ok, err := state.GetJSON(ctx, g.cache, key, &meta); err == nil && ok {
		return &meta, nil
	}

	fresh, err := g.client.GroupMetadata(ctx, g.chat)
	if err != nil {
		return nil, err
	}

	// Cache write failures just mean a refetch next time.
	_ = state.SetJSON(ctx, g.cache, key, fresh, groupMetaTTL)
	return fresh, nil
}

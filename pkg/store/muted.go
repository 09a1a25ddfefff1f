package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// MuteChat silences the bot in a chat until UnmuteChat is called.
func (sc *Scope) MuteChat(ctx context.Context, chatJID, mutedBy string) error {
	_, err := sc.db().ExecContext(ctx, `
		INSERT OR REPLACE INTO muted_chats (session_id, chat_jid, muted_by, muted_at)
		VALUES (?, ?, ?, ?)
	`, sc.session, chatJID, mutedBy, sc.clock().Unix())
	if err != nil {
		return fmt.Errorf("muting chat: %w", err)
	}
	return nil
}

// UnmuteChat lifts a chat mute. It reports whether the chat was muted.
func (sc *Scope) UnmuteChat(ctx context.Context, chatJID string) (bool, error) {
	result, err := sc.db().ExecContext(ctx, `
		DELETE FROM muted_chats WHERE session_id = ? AND chat_jid = ?
	`, sc.session, chatJID)
	if err != nil {
		return false, fmt.Errorf("unmuting chat: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsChatMuted reports whether the bot is muted in a chat.
func (sc *Scope) IsChatMuted(ctx context.Context, chatJID string) (bool, error) {
	var one int
	err := sc.db().QueryRowContext(ctx, `
		SELECT 1 FROM muted_chats WHERE session_id = ? AND chat_jid = ?
	`, sc.session, chatJID).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("querying chat mute: %w", err)
}

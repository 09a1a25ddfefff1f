package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// afkMentionLimit caps the mention history per away user; the oldest
// records are dropped first.
const afkMentionLimit = 50

// AFKStatus marks a user as away. Notify controls whether mentioners
// get an auto-reply; Reply overrides the default auto-reply text.
type AFKStatus struct {
	JID    string
	Reason string
	Since  time.Time
	Notify bool
	Reply  string
}

// AFKMention records that an away user was mentioned.
type AFKMention struct {
	Chat       string
	Sender     string
	SenderName string
	Text       string
	At         time.Time
}

// SetAFK marks jid as away with an optional reason. Notification
// defaults to on; SetAFKNotify adjusts it afterwards.
func (sc *Scope) SetAFK(ctx context.Context, jid, reason string) error {
	_, err := sc.db().ExecContext(ctx, `
		INSERT OR REPLACE INTO afk (session_id, jid, reason, since, notify, reply)
		VALUES (?, ?, ?, ?, 1, '')
	`, sc.session, jid, reason, sc.clock().Unix())
	if err != nil {
		return fmt.Errorf("storing afk status: %w", err)
	}
	return nil
}

// SetAFKNotify updates the notification settings of an away user.
func (sc *Scope) SetAFKNotify(ctx context.Context, jid string, notify bool, reply string) error {
	n := 0
	if notify {
		n = 1
	}
	res, err := sc.db().ExecContext(ctx, `
		UPDATE afk SET notify = ?, reply = ?
		WHERE session_id = ? AND jid = ?
	`, n, reply, sc.session, jid)
	if err != nil {
		return fmt.Errorf("updating afk settings: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("no afk status for %s", jid)
	}
	return nil
}

// GetAFK returns jid's away status, or nil when not away.
func (sc *Scope) GetAFK(ctx context.Context, jid string) (*AFKStatus, error) {
	var status AFKStatus
	var since int64
	var notify int
	err := sc.db().QueryRowContext(ctx, `
		SELECT jid, reason, since, notify, reply FROM afk
		WHERE session_id = ? AND jid = ?
	`, sc.session, jid).Scan(&status.JID, &status.Reason, &since, &notify, &status.Reply)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying afk status: %w", err)
	}
	status.Since = time.Unix(since, 0)
	status.Notify = notify != 0
	return &status, nil
}

// ClearAFK removes jid's away status and returns the status that was
// cleared, or nil when the user was not away.
func (sc *Scope) ClearAFK(ctx context.Context, jid string) (*AFKStatus, error) {
	status, err := sc.GetAFK(ctx, jid)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, nil
	}

	_, err = sc.db().ExecContext(ctx, `
		DELETE FROM afk WHERE session_id = ? AND jid = ?
	`, sc.session, jid)
	if err != nil {
		return nil, fmt.Errorf("clearing afk status: %w", err)
	}
	return status, nil
}

// AddAFKMention records a mention of an away user.
func (sc *Scope) AddAFKMention(ctx context.Context, afkJID string, mention AFKMention) error {
	at := mention.At
	if at.IsZero() {
		at = sc.clock()
	}

	_, err := sc.db().ExecContext(ctx, `
		INSERT INTO afk_mentions (session_id, afk_jid, chat_jid, sender_jid, sender_name, text, mentioned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sc.session, afkJID, mention.Chat, mention.Sender, mention.SenderName, mention.Text, at.Unix())
	if err != nil {
		return fmt.Errorf("recording afk mention: %w", err)
	}

	// Keep only the newest records under the cap.
	_, err = sc.db().ExecContext(ctx, `
		DELETE FROM afk_mentions
		WHERE session_id = ? AND afk_jid = ? AND id NOT IN (
			SELECT id FROM afk_mentions
			WHERE session_id = ? AND afk_jid = ?
			ORDER BY id DESC LIMIT ?
		)
	`, sc.session, afkJID, sc.session, afkJID, afkMentionLimit)
	if err != nil {
		return fmt.Errorf("trimming afk mentions: %w", err)
	}
	return nil
}

// TakeAFKMentions returns and deletes every mention recorded while jid
// was away, oldest first.
func (sc *Scope) TakeAFKMentions(ctx context.Context, jid string) ([]AFKMention, error) {
	rows, err := sc.db().QueryContext(ctx, `
		SELECT chat_jid, sender_jid, sender_name, text, mentioned_at
		FROM afk_mentions
		WHERE session_id = ? AND afk_jid = ?
		ORDER BY id
	`, sc.session, jid)
	if err != nil {
		return nil, fmt.Errorf("listing afk mentions: %w", err)
	}
	defer rows.Close()

	var mentions []AFKMention
	for rows.Next() {
		var m AFKMention
		var at int64
		if err := rows.Scan(&m.Chat, &m.Sender, &m.SenderName, &m.Text, &at); err != nil {
			return nil, fmt.Errorf("scanning afk mention: %w", err)
		}
		m.At = time.Unix(at, 0)
		mentions = append(mentions, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	_, err = sc.db().ExecContext(ctx, `
		DELETE FROM afk_mentions WHERE session_id = ? AND afk_jid = ?
	`, sc.session, jid)
	if err != nil {
		return nil, fmt.Errorf("draining afk mentions: %w", err)
	}
	return mentions, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Ban is a user ban record. ExpiresAt is nil for permanent bans.
type Ban struct {
	JID       string
	Reason    string
	BannedBy  string
	BannedAt  time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the ban has lapsed at the given instant.
func (b *Ban) Expired(at time.Time) bool {
	return b.ExpiresAt != nil && !at.Before(*b.ExpiresAt)
}

// SetBan records or replaces a ban. A zero duration makes it permanent.
func (sc *Scope) SetBan(ctx context.Context, jid, reason, bannedBy string, duration time.Duration) error {
	now := sc.clock()

	var expiresAt interface{}
	if duration > 0 {
		expiresAt = now.Add(duration).Unix()
	}

	_, err := sc.db().ExecContext(ctx, `
		INSERT OR REPLACE INTO bans (session_id, jid, reason, banned_by, banned_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sc.session, jid, reason, bannedBy, now.Unix(), expiresAt)
	if err != nil {
		return fmt.Errorf("recording ban: %w", err)
	}
	return nil
}

// RemoveBan lifts a ban. It reports whether a ban existed.
func (sc *Scope) RemoveBan(ctx context.Context, jid string) (bool, error) {
	result, err := sc.db().ExecContext(ctx, `
		DELETE FROM bans WHERE session_id = ? AND jid = ?
	`, sc.session, jid)
	if err != nil {
		return false, fmt.Errorf("removing ban: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetBan returns the active ban for jid, or nil. Bans that have lapsed
// are treated as absent and removed on the way out.
func (sc *Scope) GetBan(ctx context.Context, jid string) (*Ban, error) {
	row := sc.db().QueryRowContext(ctx, `
		SELECT jid, reason, banned_by, banned_at, expires_at
		FROM bans WHERE session_id = ? AND jid = ?
	`, sc.session, jid)

	ban, err := scanBan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying ban: %w", err)
	}

	if ban.Expired(sc.clock()) {
		if _, err := sc.RemoveBan(ctx, jid); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return ban, nil
}

// ListBans returns every active ban in the session.
func (sc *Scope) ListBans(ctx context.Context) ([]*Ban, error) {
	rows, err := sc.db().QueryContext(ctx, `
		SELECT jid, reason, banned_by, banned_at, expires_at
		FROM bans WHERE session_id = ? ORDER BY banned_at
	`, sc.session)
	if err != nil {
		return nil, fmt.Errorf("listing bans: %w", err)
	}
	defer rows.Close()

	now := sc.clock()
	var bans []*Ban
	for rows.Next() {
		ban, err := scanBan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ban: %w", err)
		}
		if ban.Expired(now) {
			continue
		}
		bans = append(bans, ban)
	}
	return bans, rows.Err()
}

// CleanupExpiredBans deletes lapsed temporary bans and returns how many
// were removed.
func (sc *Scope) CleanupExpiredBans(ctx context.Context) (int64, error) {
	result, err := sc.db().ExecContext(ctx, `
		DELETE FROM bans
		WHERE session_id = ? AND expires_at IS NOT NULL AND expires_at <= ?
	`, sc.session, sc.clock().Unix())
	if err != nil {
		return 0, fmt.Errorf("cleaning up bans: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBan(row rowScanner) (*Ban, error) {
	var ban Ban
	var bannedAt int64
	var expiresAt sql.NullInt64
	if err := row.Scan(&ban.JID, &ban.Reason, &ban.BannedBy, &bannedAt, &expiresAt); err != nil {
		return nil, err
	}
	ban.BannedAt = time.Unix(bannedAt, 0)
	if expiresAt.Valid {
		t := time.Unix(expiresAt.Int64, 0)
		ban.ExpiresAt = &t
	}
	return &ban, nil
}

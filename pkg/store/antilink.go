package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// AntiLinkAction is what happens to a detected invite link.
type AntiLinkAction string

const (
	// ActionDelete removes the offending message.
	ActionDelete AntiLinkAction = "delete"
	// ActionKick removes the message and the sender.
	ActionKick AntiLinkAction = "kick"
	// ActionWarn removes the message and warns; repeat offenders get
	// kicked once they pass the warning threshold.
	ActionWarn AntiLinkAction = "warn"
)

// ValidAntiLinkAction reports whether s names a known action.
func ValidAntiLinkAction(s string) bool {
	switch AntiLinkAction(s) {
	case ActionDelete, ActionKick, ActionWarn:
		return true
	}
	return false
}

// AntiLinkSettings is the per-group anti-link configuration. Patterns
// are extra substrings blocked alongside the built-in invite-link
// detection.
type AntiLinkSettings struct {
	Enabled  bool
	Action   AntiLinkAction
	Patterns []string
}

// AntiLinkStat names one counter in the per-group stats row.
type AntiLinkStat string

const (
	StatDetected AntiLinkStat = "detected"
	StatDeleted  AntiLinkStat = "deleted"
	StatKicked   AntiLinkStat = "kicked"
	StatWarned   AntiLinkStat = "warned"
)

// AntiLinkStats are the per-group enforcement counters.
type AntiLinkStats struct {
	Detected int64
	Deleted  int64
	Kicked   int64
	Warned   int64
}

// GetAntiLink returns the anti-link settings for a group. Disabled with
// the delete action is the default.
func (sc *Scope) GetAntiLink(ctx context.Context, chatJID string) (AntiLinkSettings, error) {
	var enabled int
	var action, patterns string
	err := sc.db().QueryRowContext(ctx, `
		SELECT enabled, action, patterns FROM antilink
		WHERE session_id = ? AND chat_jid = ?
	`, sc.session, chatJID).Scan(&enabled, &action, &patterns)
	if errors.Is(err, sql.ErrNoRows) {
		return AntiLinkSettings{Action: ActionDelete}, nil
	}
	if err != nil {
		return AntiLinkSettings{}, fmt.Errorf("querying anti-link settings: %w", err)
	}

	settings := AntiLinkSettings{Enabled: enabled != 0, Action: AntiLinkAction(action)}
	if !ValidAntiLinkAction(action) {
		settings.Action = ActionDelete
	}
	if patterns != "" {
		if err := json.Unmarshal([]byte(patterns), &settings.Patterns); err != nil {
			return AntiLinkSettings{}, fmt.Errorf("decoding anti-link patterns: %w", err)
		}
	}
	return settings, nil
}

// SetAntiLink stores the anti-link settings for a group.
func (sc *Scope) SetAntiLink(ctx context.Context, chatJID string, settings AntiLinkSettings) error {
	if !ValidAntiLinkAction(string(settings.Action)) {
		return fmt.Errorf("unknown anti-link action %q", settings.Action)
	}

	enabled := 0
	if settings.Enabled {
		enabled = 1
	}

	if settings.Patterns == nil {
		settings.Patterns = []string{}
	}
	patterns, err := json.Marshal(settings.Patterns)
	if err != nil {
		return fmt.Errorf("encoding anti-link patterns: %w", err)
	}

	_, err = sc.db().ExecContext(ctx, `
		INSERT OR REPLACE INTO antilink (session_id, chat_jid, enabled, action, patterns, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sc.session, chatJID, enabled, string(settings.Action), string(patterns), sc.clock().Unix())
	if err != nil {
		return fmt.Errorf("storing anti-link settings: %w", err)
	}
	return nil
}

// IncrAntiLinkStat bumps one enforcement counter for a group.
func (sc *Scope) IncrAntiLinkStat(ctx context.Context, chatJID string, stat AntiLinkStat) error {
	var column string
	switch stat {
	case StatDetected, StatDeleted, StatKicked, StatWarned:
		column = string(stat)
	default:
		return fmt.Errorf("unknown anti-link stat %q", stat)
	}

	query := fmt.Sprintf(`
		INSERT INTO antilink_stats (session_id, chat_jid, %s)
		VALUES (?, ?, 1)
		ON CONFLICT (session_id, chat_jid)
		DO UPDATE SET %s = %s + 1
	`, column, column, column)

	if _, err := sc.db().ExecContext(ctx, query, sc.session, chatJID); err != nil {
		return fmt.Errorf("incrementing anti-link stat: %w", err)
	}
	return nil
}

// GetAntiLinkStats returns the enforcement counters for a group.
func (sc *Scope) GetAntiLinkStats(ctx context.Context, chatJID string) (AntiLinkStats, error) {
	var stats AntiLinkStats
	err := sc.db().QueryRowContext(ctx, `
		SELECT detected, deleted, kicked, warned FROM antilink_stats
		WHERE session_id = ? AND chat_jid = ?
	`, sc.session, chatJID).Scan(&stats.Detected, &stats.Deleted, &stats.Kicked, &stats.Warned)
	if errors.Is(err, sql.ErrNoRows) {
		return AntiLinkStats{}, nil
	}
	if err != nil {
		return AntiLinkStats{}, fmt.Errorf("querying anti-link stats: %w", err)
	}
	return stats, nil
}

// IncrAntiLinkWarning bumps the warning counter for a user in a group
// and returns the new count.
func (sc *Scope) IncrAntiLinkWarning(ctx context.Context, chatJID, jid string) (int, error) {
	_, err := sc.db().ExecContext(ctx, `
		INSERT INTO antilink_warnings (session_id, chat_jid, jid, count, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (session_id, chat_jid, jid)
		DO UPDATE SET count = count + 1, updated_at = excluded.updated_at
	`, sc.session, chatJID, jid, sc.clock().Unix())
	if err != nil {
		return 0, fmt.Errorf("incrementing warning: %w", err)
	}

	var count int
	err = sc.db().QueryRowContext(ctx, `
		SELECT count FROM antilink_warnings
		WHERE session_id = ? AND chat_jid = ? AND jid = ?
	`, sc.session, chatJID, jid).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("reading warning count: %w", err)
	}
	return count, nil
}

// ResetAntiLinkWarnings clears the warning counter for a user in a group.
func (sc *Scope) ResetAntiLinkWarnings(ctx context.Context, chatJID, jid string) error {
	_, err := sc.db().ExecContext(ctx, `
		DELETE FROM antilink_warnings
		WHERE session_id = ? AND chat_jid = ? AND jid = ?
	`, sc.session, chatJID, jid)
	if err != nil {
		return fmt.Errorf("resetting warnings: %w", err)
	}
	return nil
}

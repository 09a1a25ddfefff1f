package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// BotMode controls who the bot responds to.
type BotMode string

const (
	// ModePublic answers everyone.
	ModePublic BotMode = "public"
	// ModePrivate answers only the owners.
	ModePrivate BotMode = "private"
	// ModeRestricted answers owners, moderators, and group admins.
	ModeRestricted BotMode = "restricted"
)

// ValidMode reports whether s names a known mode.
func ValidMode(s string) bool {
	switch BotMode(s) {
	case ModePublic, ModePrivate, ModeRestricted:
		return true
	}
	return false
}

// ModeSettings is the session-wide operating mode.
type ModeSettings struct {
	Mode BotMode
	// GroupOnly drops all direct-chat commands when set.
	GroupOnly bool
}

// DefaultModeSettings is what a fresh session runs with.
func DefaultModeSettings() ModeSettings {
	return ModeSettings{Mode: ModePublic}
}

// GetMode returns the stored operating mode, or the default when none
// was ever set.
func (sc *Scope) GetMode(ctx context.Context) (ModeSettings, error) {
	var mode string
	var groupOnly int
	err := sc.db().QueryRowContext(ctx, `
		SELECT mode, group_only FROM bot_mode WHERE session_id = ?
	`, sc.session).Scan(&mode, &groupOnly)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultModeSettings(), nil
	}
	if err != nil {
		return DefaultModeSettings(), fmt.Errorf("querying bot mode: %w", err)
	}

	settings := ModeSettings{Mode: BotMode(mode), GroupOnly: groupOnly != 0}
	if !ValidMode(mode) {
		settings.Mode = ModePublic
	}
	return settings, nil
}

// SetMode stores the operating mode for the session.
func (sc *Scope) SetMode(ctx context.Context, settings ModeSettings) error {
	if !ValidMode(string(settings.Mode)) {
		return fmt.Errorf("unknown bot mode %q", settings.Mode)
	}

	groupOnly := 0
	if settings.GroupOnly {
		groupOnly = 1
	}

	_, err := sc.db().ExecContext(ctx, `
		INSERT OR REPLACE INTO bot_mode (session_id, mode, group_only, updated_at)
		VALUES (?, ?, ?, ?)
	`, sc.session, string(settings.Mode), groupOnly, sc.clock().Unix())
	if err != nil {
		return fmt.Errorf("storing bot mode: %w", err)
	}
	return nil
}

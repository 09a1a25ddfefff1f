package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Role is a session-level grant attached to a user.
type Role string

// RoleModerator marks users who clear admin-gated commands everywhere
// and get the reduced admin cooldown.
const RoleModerator Role = "moderator"

// GrantRole records a role for jid. Granting twice is a no-op.
func (sc *Scope) GrantRole(ctx context.Context, jid string, role Role, grantedBy string) error {
	_, err := sc.db().ExecContext(ctx, `
		INSERT OR REPLACE INTO roles (session_id, jid, role, granted_by, granted_at)
		VALUES (?, ?, ?, ?, ?)
	`, sc.session, jid, string(role), grantedBy, sc.clock().Unix())
	if err != nil {
		return fmt.Errorf("granting role: %w", err)
	}
	return nil
}

// RevokeRole removes a role from jid. It reports whether the grant existed.
func (sc *Scope) RevokeRole(ctx context.Context, jid string, role Role) (bool, error) {
	result, err := sc.db().ExecContext(ctx, `
		DELETE FROM roles WHERE session_id = ? AND jid = ? AND role = ?
	`, sc.session, jid, string(role))
	if err != nil {
		return false, fmt.Errorf("revoking role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasRole reports whether jid holds the given role.
func (sc *Scope) HasRole(ctx context.Context, jid string, role Role) (bool, error) {
	var one int
	err := sc.db().QueryRowContext(ctx, `
		SELECT 1 FROM roles WHERE session_id = ? AND jid = ? AND role = ?
	`, sc.session, jid, string(role)).Scan(&one)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("querying role: %w", err)
}

// ListRoleHolders returns every jid holding the given role.
func (sc *Scope) ListRoleHolders(ctx context.Context, role Role) ([]string, error) {
	rows, err := sc.db().QueryContext(ctx, `
		SELECT jid FROM roles WHERE session_id = ? AND role = ? ORDER BY granted_at
	`, sc.session, string(role))
	if err != nil {
		return nil, fmt.Errorf("listing role holders: %w", err)
	}
	defer rows.Close()

	var jids []string
	for rows.Next() {
		var jid string
		if err := rows.Scan(&jid); err != nil {
			return nil, fmt.Errorf("scanning role holder: %w", err)
		}
		jids = append(jids, jid)
	}
	return jids, rows.Err()
}

// Package gate decides whether a parsed command invocation may run. It
// chains the mode, ban, rate-limit, cooldown, argument, and permission
// checks; the first stage to object wins.
package gate

import (
	"sync"
	"time"
)

// Cooldown multipliers by privilege. Owners wait a tenth, admins and
// moderators half.
const (
	ownerCooldownFactor = 0.1
	adminCooldownFactor = 0.5
)

// CooldownTable tracks per-sender, per-command cooldown expiries in
// memory. Checking and arming the cooldown happens in one critical
// section so two racing invocations cannot both pass.
type CooldownTable struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	now    func() time.Time
}

// NewCooldownTable creates an empty cooldown table.
func NewCooldownTable() *CooldownTable {
	return &CooldownTable{
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Check passes and arms the cooldown, or returns the remaining wait.
// base is the command's configured cooldown before privilege scaling.
func (t *CooldownTable) Check(sender, command string, base time.Duration, isOwner, isAdmin bool) (time.Duration, bool) {
	scaled := base
	switch {
	case isOwner:
		scaled = time.Duration(float64(base) * ownerCooldownFactor)
	case isAdmin:
		scaled = time.Duration(float64(base) * adminCooldownFactor)
	}
	if scaled <= 0 {
		return 0, true
	}

	key := sender + "|" + command

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if until, ok := t.expiry[key]; ok && now.Before(until) {
		return until.Sub(now), false
	}

	t.expiry[key] = now.Add(scaled)
	return 0, true
}

// Prune drops entries whose cooldown lapsed more than keep ago and
// returns how many were removed.
func (t *CooldownTable) Prune(keep time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-keep)
	removed := 0
	for key, until := range t.expiry {
		if until.Before(cutoff) {
			delete(t.expiry, key)
			removed++
		}
	}
	return removed
}

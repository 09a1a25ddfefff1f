package handler

import (
	"sync"
	"sync/atomic"
	"time"

	"wabot/pkg/commands"
)

// Stats tracks pipeline totals and per-command usage. It backs the
// stats command and the status server.
type Stats struct {
	startedAt time.Time

	messagesSeen  atomic.Int64
	commandsRun   atomic.Int64
	commandErrors atomic.Int64
	gateDenials   atomic.Int64
	unknown       atomic.Int64

	mu        sync.Mutex
	totalTime time.Duration
	usage     map[string]*commands.CommandUsage
}

// NewStats creates a stats tracker anchored at now.
func NewStats() *Stats {
	return &Stats{
		startedAt: time.Now(),
		usage:     make(map[string]*commands.CommandUsage),
	}
}

// Uptime returns how long the pipeline has been running.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// Record registers one dispatch attempt for a command.
func (s *Stats) Record(name string, elapsed time.Duration, failed bool) {
	if failed {
		s.commandErrors.Add(1)
	} else {
		s.commandsRun.Add(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalTime += elapsed
	u := s.usage[name]
	if u == nil {
		u = &commands.CommandUsage{}
		s.usage[name] = u
	}
	u.Count++
	u.TotalTime += elapsed
	if failed {
		u.Errors++
	}
}

// Counters returns a snapshot of the totals.
func (s *Stats) Counters() commands.Counters {
	s.mu.Lock()
	totalTime := s.totalTime
	s.mu.Unlock()

	return commands.Counters{
		MessagesSeen:  s.messagesSeen.Load(),
		CommandsRun:   s.commandsRun.Load(),
		CommandErrors: s.commandErrors.Load(),
		GateDenials:   s.gateDenials.Load(),
		Unknown:       s.unknown.Load(),
		TotalTime:     totalTime,
	}
}

// Usage returns a snapshot of the per-command usage table.
func (s *Stats) Usage() map[string]commands.CommandUsage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]commands.CommandUsage, len(s.usage))
	for name, u := range s.usage {
		out[name] = *u
	}
	return out
}

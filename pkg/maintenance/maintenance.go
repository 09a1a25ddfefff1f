// Package maintenance runs the periodic cleanup jobs: expired bans in
// the database and stale in-memory gate tables.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"wabot/pkg/config"
	"wabot/pkg/gate"
	"wabot/pkg/logger"
	"wabot/pkg/state"
	"wabot/pkg/store"
	"wabot/pkg/whatsapp"
)

// Cleanup cadences and retention, tuned to how fast each table grows.
const (
	cooldownSchedule  = "*/30 * * * *" // every 30 minutes
	rateLimitSchedule = "*/5 * * * *"  // every 5 minutes
	banSchedule       = "0 * * * *"    // hourly

	cooldownRetention  = 24 * time.Hour
	rateLimitRetention = 10 * time.Minute
)

// Runner owns the cron scheduler and the cleanup jobs.
type Runner struct {
	log       *logger.Logger
	cfg       *config.Config
	client    whatsapp.Client
	store     *store.Store
	cache     state.Cache
	gate      *gate.Gate
	scheduler *cron.Cron
}

// New creates the maintenance runner.
func New(log *logger.Logger, cfg *config.Config, client whatsapp.Client, st *store.Store, cache state.Cache, g *gate.Gate) *Runner {
	return &Runner{
		log:       log,
		cfg:       cfg,
		client:    client,
		store:     st,
		cache:     cache,
		gate:      g,
		scheduler: cron.New(),
	}
}

// Start schedules the cleanup jobs and starts the scheduler.
func (r *Runner) Start() error {
	jobs := []struct {
		name     string
		schedule string
		run      func()
	}{
		{"cooldown-cleanup", cooldownSchedule, r.cleanupCooldowns},
		{"ratelimit-cleanup", rateLimitSchedule, r.cleanupRateLimits},
		{"ban-cleanup", banSchedule, r.cleanupBans},
	}

	for _, job := range jobs {
		if _, err := r.scheduler.AddFunc(job.schedule, job.run); err != nil {
			return err
		}
	}

	r.scheduler.Start()
	r.log.Info("Maintenance jobs scheduled", zap.Int("jobs", len(jobs)))
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (r *Runner) Stop() error {
	ctx := r.scheduler.Stop()
	<-ctx.Done()
	r.log.Info("Maintenance stopped")
	return nil
}

func (r *Runner) cleanupCooldowns() {
	removed := r.gate.Cooldowns.Prune(cooldownRetention)
	if removed > 0 {
		r.log.Debug("Pruned cooldown entries", zap.Int("removed", removed))
	}

	if mem, ok := r.cache.(*state.MemoryCache); ok {
		if removed := mem.Prune(); removed > 0 {
			r.log.Debug("Pruned cache entries", zap.Int("removed", removed))
		}
	}
}

func (r *Runner) cleanupRateLimits() {
	removed := r.gate.Limiter.Prune(rateLimitRetention)
	if removed > 0 {
		r.log.Debug("Pruned rate-limit windows", zap.Int("removed", removed))
	}
}

func (r *Runner) cleanupBans() {
	session := r.cfg.Bot.SessionID
	if session == "" {
		session = whatsapp.SessionID(r.client.BotJID())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := r.store.Scope(session).CleanupExpiredBans(ctx)
	if err != nil {
		r.log.Error("Ban cleanup failed", zap.Error(err))
		return
	}
	if removed > 0 {
		r.log.Info("Expired bans removed", zap.Int64("removed", removed))
	}
}

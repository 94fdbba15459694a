// internal/scheduler/tick_scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dattelon/field-service-sub000/internal/settings"

	"github.com/robfig/cron/v3"
)

// TickRunner is what the scheduler drives; in production it is the
// distribution service.
type TickRunner interface {
	RunTick(ctx context.Context) error
}

// TickScheduler triggers distribution ticks on a fixed interval. The
// interval is a runtime tunable: after every tick the scheduler compares it
// against the cached settings and re-registers the cron entry when it
// changed. Cluster-wide mutual exclusion is not this component's job; the
// runner's advisory lock does that, so every replica may keep its own
// scheduler running.
type TickScheduler struct {
	cron     *cron.Cron
	runner   TickRunner
	settings *settings.Cache
	logger   *slog.Logger

	mu       sync.Mutex
	entry    cron.EntryID
	interval time.Duration
	baseCtx  context.Context
}

// NewTickScheduler creates a scheduler for the given runner.
func NewTickScheduler(runner TickRunner, cache *settings.Cache, logger *slog.Logger) *TickScheduler {
	return &TickScheduler{
		cron:     cron.New(),
		runner:   runner,
		settings: cache,
		logger:   logger.With("component", "tick-scheduler"),
	}
}

// Start registers the tick entry and blocks until ctx is cancelled.
func (s *TickScheduler) Start(ctx context.Context) error {
	tun, err := s.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load initial tunables: %w", err)
	}

	s.baseCtx = ctx
	if err := s.reschedule(tun.TickInterval); err != nil {
		return err
	}

	s.logger.Info("tick scheduler started", "interval", tun.TickInterval)
	s.cron.Start()
	<-ctx.Done()

	s.logger.Info("tick scheduler stopping...")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("tick scheduler stopped")
	return ctx.Err()
}

// run executes one tick and picks up interval changes afterwards.
func (s *TickScheduler) run() {
	ctx := s.baseCtx
	if err := s.runner.RunTick(ctx); err != nil {
		s.logger.Error("tick failed", "error", err)
	}

	tun, err := s.settings.Get(ctx)
	if err != nil {
		return
	}
	s.mu.Lock()
	changed := tun.TickInterval != s.interval
	s.mu.Unlock()
	if changed {
		if err := s.reschedule(tun.TickInterval); err != nil {
			s.logger.Error("reschedule tick entry", "error", err)
		}
	}
}

// reschedule swaps the cron entry for one with the new interval.
func (s *TickScheduler) reschedule(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid tick interval %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	entry, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.run)
	if err != nil {
		return fmt.Errorf("register tick entry: %w", err)
	}
	s.entry = entry
	if s.interval != 0 && s.interval != interval {
		s.logger.Info("tick interval changed", "old", s.interval, "new", interval)
	}
	s.interval = interval
	return nil
}

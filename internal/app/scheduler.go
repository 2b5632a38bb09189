/**
 * @description
 * Cron scheduler for the recurring engine tick.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the recurring tick.
type Scheduler struct {
	cron     *cron.Cron
	engine   *Engine
	logger   *slog.Logger
	schedule string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(engine *Engine, logger *slog.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		engine:   engine,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the tick job and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.runTick); err != nil {
		s.logger.Error("failed to schedule engine tick", "schedule", s.schedule, "error", err)
	} else {
		s.logger.Info("scheduled engine tick", "schedule", s.schedule)
	}

	s.cron.Start()
}

// runTick executes one full pass over all enabled properties.
func (s *Scheduler) runTick() {
	s.logger.Info("starting upsell engine tick")
	ctx := context.Background()

	stats, err := s.engine.RunAll(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("engine tick failed", "error", err)
		return
	}

	s.logger.Info("upsell engine tick finished",
		"scheduled", stats.Scheduled,
		"sent", stats.Sent,
		"send_failures", stats.SendFailures,
		"expired", stats.Expired,
	)
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

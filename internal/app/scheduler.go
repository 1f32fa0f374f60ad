/**
 * @description
 * Cron scheduler setup for the daily settlement, billing and retry jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/shahzaibimran94/save-squad/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.SettlementJobSchedule, s.jobs.PodSettlement); err != nil {
		s.logger.Error("failed to schedule pod settlement job", "error", err)
	} else {
		s.logger.Info("scheduled pod settlement job", "schedule", s.config.SettlementJobSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.BillingJobSchedule, s.jobs.SubscriptionBilling); err != nil {
		s.logger.Error("failed to schedule subscription billing job", "error", err)
	} else {
		s.logger.Info("scheduled subscription billing job", "schedule", s.config.BillingJobSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.RetryJobSchedule, s.jobs.SubscriptionRetries); err != nil {
		s.logger.Error("failed to schedule subscription retry job", "error", err)
	} else {
		s.logger.Info("scheduled subscription retry job", "schedule", s.config.RetryJobSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

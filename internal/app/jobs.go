/**
 * @description
 * Scheduled job entry points. Each job is a thin wrapper that logs start and
 * finish and delegates to the engine; the scheduler owns the cadence and the
 * non-overlap guarantee between invocations of the same job.
 */
package app

import (
	"context"
	"log/slog"
)

// Jobs contains the daily scheduled tasks.
type Jobs struct {
	service *Service
	logger  *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(service *Service, logger *slog.Logger) *Jobs {
	return &Jobs{service: service, logger: logger}
}

// PodSettlement runs the daily pod settlement sweep.
func (j *Jobs) PodSettlement() {
	j.logger.Info("starting pod settlement job")
	if err := j.service.RunDailyPodSettlement(context.Background()); err != nil {
		j.logger.Error("pod settlement job failed", "error", err)
		return
	}
	j.logger.Info("pod settlement job finished")
}

// SubscriptionBilling runs the daily subscription charge sweep.
func (j *Jobs) SubscriptionBilling() {
	j.logger.Info("starting subscription billing job")
	if err := j.service.RunDailySubscriptionBilling(context.Background()); err != nil {
		j.logger.Error("subscription billing job failed", "error", err)
		return
	}
	j.logger.Info("subscription billing job finished")
}

// SubscriptionRetries runs the daily retry coordinator pass.
func (j *Jobs) SubscriptionRetries() {
	j.logger.Info("starting subscription retry job")
	if err := j.service.RunDailySubscriptionRetries(context.Background()); err != nil {
		j.logger.Error("subscription retry job failed", "error", err)
		return
	}
	j.logger.Info("subscription retry job finished")
}

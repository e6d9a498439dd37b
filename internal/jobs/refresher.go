// Package jobs holds background tasks that run alongside the HTTP API.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/valutatrade/hub/internal/rates"
)

// RatesRefresher is anything that can force a full cache refresh.
type RatesRefresher interface {
	RefreshRates(ctx context.Context) (*rates.RefreshSummary, error)
}

// RateRefreshJob keeps the rate cache warm by refreshing on a fixed
// interval, so interactive calls rarely pay the upstream latency.
type RateRefreshJob struct {
	logger   *zap.Logger
	svc      RatesRefresher
	interval time.Duration
}

func NewRateRefreshJob(logger *zap.Logger, svc RatesRefresher, interval time.Duration) *RateRefreshJob {
	return &RateRefreshJob{logger: logger, svc: svc, interval: interval}
}

// Start blocks until ctx is canceled, refreshing once per interval. Run it
// in its own goroutine.
func (j *RateRefreshJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("jobs.rate_refresh.started",
		zap.Duration("interval", j.interval))

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("jobs.rate_refresh.stopped")
			return
		case <-ticker.C:
			summary, err := j.svc.RefreshRates(ctx)
			if err != nil {
				j.logger.Warn("jobs.rate_refresh.failed", zap.Error(err))
				continue
			}
			j.logger.Info("jobs.rate_refresh.done",
				zap.Int("pairs_total", summary.PairsTotal),
				zap.Any("updated_by_source", summary.UpdatedBySource))
		}
	}
}

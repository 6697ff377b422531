package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/qbank-api/pkg/errors"
)

type staleJobStore interface {
	FailStale(ctx context.Context, cutoff time.Time, message string) ([]string, error)
}

// ReaperConfig governs the stalled-job sweep.
type ReaperConfig struct {
	Interval       time.Duration
	StaleThreshold time.Duration
}

// Reaper fails jobs that stopped making progress. It only touches job rows; a run
// still in flight notices on its next guarded write.
type Reaper struct {
	repo    staleJobStore
	cfg     ReaperConfig
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewReaper constructs a reaper.
func NewReaper(repo staleJobStore, cfg ReaperConfig, metrics *MetricsService, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 30 * time.Minute
	}
	return &Reaper{
		repo:    repo,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Reap fails every active job not updated within threshold and returns how many were touched.
func (r *Reaper) Reap(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "stale threshold must be positive")
	}
	cutoff := r.now().Add(-threshold)
	ids, err := r.repo.FailStale(ctx, cutoff, appErrors.ErrStaleJob.Message)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reap stale jobs")
	}
	r.metrics.RecordReaped(len(ids))
	if len(ids) > 0 {
		r.logger.Sugar().Warnw("reaped stale generation jobs", "count", len(ids), "job_ids", ids, "cutoff", cutoff)
	}
	return len(ids), nil
}

// Start sweeps once immediately and then on every interval until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		r.sweep(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep(ctx)
			}
		}
	}()
}

func (r *Reaper) sweep(ctx context.Context) {
	if _, err := r.Reap(ctx, r.cfg.StaleThreshold); err != nil && ctx.Err() == nil {
		r.logger.Sugar().Warnw("stale job sweep failed", "error", err)
	}
}

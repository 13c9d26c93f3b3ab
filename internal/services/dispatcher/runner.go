package dispatcher

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type RunnerConfig struct {
	Tick      time.Duration
	BatchSize int
}

// Runner owns the dispatch ticker. Run blocks until ctx is canceled; an
// in-flight tick finishes before Run returns.
type Runner struct {
	Log *zap.Logger
	UC  *Usecase
	Cfg RunnerConfig

	mClaimed  prometheus.Counter
	mSent     prometheus.Counter
	mRetried  prometheus.Counter
	mFailed   prometheus.Counter
	mSkipped  prometheus.Counter
	mDeferred prometheus.Counter
	mErr      prometheus.Counter
	mLoopDur  prometheus.Histogram
}

func NewRunner(log *zap.Logger, uc *Usecase, cfg RunnerConfig) *Runner {
	if cfg.Tick <= 0 {
		cfg.Tick = 30 * time.Second
	}
	return &Runner{
		Log: log,
		UC:  uc,
		Cfg: cfg,
		mClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_records_claimed_total", Help: "Due records claimed from the queue",
		}),
		mSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_records_sent_total", Help: "Records delivered successfully",
		}),
		mRetried: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_records_retried_total", Help: "Records rescheduled with backoff",
		}),
		mFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_records_failed_total", Help: "Records failed terminally",
		}),
		mSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_records_skipped_total", Help: "Records skipped (channel disabled)",
		}),
		mDeferred: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_records_deferred_total", Help: "Records deferred by rate limiting",
		}),
		mErr: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dispatcher_errors_total", Help: "Errors in the dispatch loop",
		}),
		mLoopDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "dispatcher_loop_duration_seconds", Help: "Dispatch tick duration",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	stats, err := r.UC.RunOnce(ctx, r.Cfg.BatchSize)
	if err != nil {
		r.mErr.Inc()
		r.Log.Warn("tick error", zap.Error(err))
	}
	if stats.Claimed > 0 {
		r.mClaimed.Add(float64(stats.Claimed))
		r.mSent.Add(float64(stats.Sent))
		r.mRetried.Add(float64(stats.Retried))
		r.mFailed.Add(float64(stats.Failed))
		r.mSkipped.Add(float64(stats.Skipped))
		r.mDeferred.Add(float64(stats.Deferred))
		r.Log.Debug("dispatched batch",
			zap.Int("claimed", stats.Claimed),
			zap.Int("sent", stats.Sent),
			zap.Int("retried", stats.Retried),
			zap.Int("failed", stats.Failed),
			zap.Int("skipped", stats.Skipped),
			zap.Int("deferred", stats.Deferred),
		)
	}
	r.mLoopDur.Observe(time.Since(start).Seconds())
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Cfg.Tick)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// Package maintenance runs the periodic housekeeping jobs around the queue:
// requeueing claims left behind by a crashed worker, enforcing history
// retention, and sweeping expired rate-limit windows.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/motorlog/notifier/internal/domain/notification"
	"github.com/motorlog/notifier/internal/pkg/ratelimit"
)

type Config struct {
	StaleClaimTTL    time.Duration // how long PROCESSING may sit before requeue
	HistoryRetention time.Duration
	RequeueSpec      string // cron specs; defaults below
	PurgeSpec        string
	SweepSpec        string
}

type Jobs struct {
	cfg     Config
	queue   notification.Queue
	history notification.History
	limiter *ratelimit.FixedWindow
	log     *zap.Logger
	cron    *cron.Cron
}

func New(cfg Config, queue notification.Queue, history notification.History, limiter *ratelimit.FixedWindow, log *zap.Logger) *Jobs {
	if cfg.StaleClaimTTL <= 0 {
		cfg.StaleClaimTTL = 10 * time.Minute
	}
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = 90 * 24 * time.Hour
	}
	if cfg.RequeueSpec == "" {
		cfg.RequeueSpec = "@every 1m"
	}
	if cfg.PurgeSpec == "" {
		cfg.PurgeSpec = "0 3 * * *"
	}
	if cfg.SweepSpec == "" {
		cfg.SweepSpec = "@every 10m"
	}
	return &Jobs{
		cfg:     cfg,
		queue:   queue,
		history: history,
		limiter: limiter,
		log:     log.With(zap.String("component", "maintenance")),
		cron:    cron.New(),
	}
}

func (j *Jobs) Start(ctx context.Context) error {
	if _, err := j.cron.AddFunc(j.cfg.RequeueSpec, func() { j.requeueStale(ctx) }); err != nil {
		return err
	}
	if _, err := j.cron.AddFunc(j.cfg.PurgeSpec, func() { j.purgeHistory(ctx) }); err != nil {
		return err
	}
	if _, err := j.cron.AddFunc(j.cfg.SweepSpec, func() { j.sweepLimiter() }); err != nil {
		return err
	}
	j.cron.Start()
	j.log.Info("maintenance jobs scheduled",
		zap.String("requeue", j.cfg.RequeueSpec),
		zap.String("purge", j.cfg.PurgeSpec),
		zap.String("sweep", j.cfg.SweepSpec),
	)
	return nil
}

// Stop waits for running jobs to finish.
func (j *Jobs) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Jobs) requeueStale(ctx context.Context) {
	n, err := j.queue.RequeueStale(ctx, j.cfg.StaleClaimTTL)
	if err != nil {
		j.log.Warn("requeue stale claims", zap.Error(err))
		return
	}
	if n > 0 {
		j.log.Info("requeued stale claims", zap.Int64("count", n))
	}
}

func (j *Jobs) purgeHistory(ctx context.Context) {
	n, err := j.history.Purge(ctx, j.cfg.HistoryRetention)
	if err != nil {
		j.log.Warn("purge history", zap.Error(err))
		return
	}
	j.log.Info("purged history", zap.Int64("count", n))
}

func (j *Jobs) sweepLimiter() {
	if n := j.limiter.Sweep(); n > 0 {
		j.log.Debug("swept rate windows", zap.Int("count", n))
	}
}

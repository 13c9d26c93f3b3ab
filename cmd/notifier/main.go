package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "github.com/motorlog/notifier/internal/config/notifier"
	"github.com/motorlog/notifier/internal/domain/notification"
	"github.com/motorlog/notifier/internal/obs"
	"github.com/motorlog/notifier/internal/pkg/ratelimit"
	kafkax "github.com/motorlog/notifier/internal/repository/kafka"
	pg "github.com/motorlog/notifier/internal/repository/postgres"
	"github.com/motorlog/notifier/internal/services/channels"
	"github.com/motorlog/notifier/internal/services/dispatcher"
	"github.com/motorlog/notifier/internal/services/ingest"
	"github.com/motorlog/notifier/internal/services/maintenance"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func buildRegistry(db *pg.DB, limiter *ratelimit.FixedWindow, clock notification.Clock, l *zap.Logger) *channels.Registry {
	st := pg.NewSettingsRepo(db)
	dests := pg.NewWebhookRepo(db)
	inapp := pg.NewInAppRepo(db)
	feed := pg.NewFeedRepo(db)

	handlers := map[notification.Channel]channels.Handler{
		notification.ChannelEmail:   channels.NewEmailHandler(st, 10*time.Second, l),
		notification.ChannelWebhook: channels.NewWebhookHandler(dests, st, limiter, clock, l),
		notification.ChannelSlack:   channels.NewSlackHandler(st, limiter, l),
		notification.ChannelDiscord: channels.NewDiscordHandler(st, limiter, l),
		notification.ChannelTeams:   channels.NewTeamsHandler(st, limiter, l),
		notification.ChannelSMS:     channels.NewSMSHandler(st, l),
		notification.ChannelInApp:   channels.NewInAppHandler(inapp, l),
		notification.ChannelRSS:     channels.NewRSSHandler(feed, st, l),
	}
	for _, ch := range []notification.Channel{
		notification.ChannelPushGeneric,
		notification.ChannelPushFCM,
		notification.ChannelPushAPNS,
		notification.ChannelPushWeb,
	} {
		handlers[ch] = channels.NewPushHandler(ch, st, l)
	}
	return channels.NewRegistry(handlers)
}

func main() {
	cfgPath := flag.String("config", "config/notifier.yaml", "path to config file")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	l.Info("starting notifier",
		zap.Any("kafka_in", cfg.In),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
		zap.Duration("dispatch_tick", cfg.Dispatcher.Tick),
	)

	otelCloser, err := obs.SetupOTel(rootCtx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	db, err := pg.New(rootCtx, cfg.DB.AsPoolConfig())
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	clock := systemClock{}
	limiter := ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.Limit)
	registry := buildRegistry(db, limiter, clock, l)

	queue := pg.NewQueueRepo(db)
	history := pg.NewHistoryRepo(db)

	runner := dispatcher.NewRunner(l, &dispatcher.Usecase{
		Queue:    queue,
		History:  history,
		Registry: registry,
		Clock:    clock,
		Log:      l,
		Workers:  cfg.Dispatcher.Workers,
	}, dispatcher.RunnerConfig{
		Tick:      cfg.Dispatcher.Tick,
		BatchSize: cfg.Dispatcher.BatchSize,
	})

	cons := kafkax.BootstrapConsumer(rootCtx, cfg.In.AsConsumerConfig(), l).WithLogger(l)
	defer func() { _ = cons.Close() }()

	ctrl := ingest.NewController(l, cons, &ingest.Handler{
		Queue:       queue,
		Templates:   pg.NewTemplateRepo(db),
		Webhooks:    pg.NewWebhookRepo(db),
		Clock:       clock,
		Log:         l,
		MaxAttempts: cfg.Dispatcher.MaxAttempts,
	})

	jobs := maintenance.New(maintenance.Config{
		StaleClaimTTL:    cfg.Maintenance.StaleClaimTTL,
		HistoryRetention: cfg.Maintenance.HistoryRetention,
	}, queue, history, limiter, l)
	if err := jobs.Start(rootCtx); err != nil {
		l.Fatal("maintenance jobs", zap.Error(err))
	}
	defer jobs.Stop()

	errCh := make(chan error, 2)
	go func() {
		l.Info("dispatcher starting")
		errCh <- runner.Run(rootCtx)
	}()
	go func() {
		l.Info("ingest controller starting")
		errCh <- ctrl.Run(rootCtx)
	}()

	var runErr error
	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case runErr = <-errCh:
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			l.Error("runner error", zap.Error(runErr))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}

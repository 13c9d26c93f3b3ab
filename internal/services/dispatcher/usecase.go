package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/motorlog/notifier/internal/domain/notification"
	"github.com/motorlog/notifier/internal/obs"
	"github.com/motorlog/notifier/internal/services/channels"
)

// Usecase drives one batch of the delivery queue to completion. Records are
// independent; a failure in one never aborts the rest of the batch, and only
// the dispatcher commits queue state.
type Usecase struct {
	Queue    notification.Queue
	History  notification.History
	Registry *channels.Registry
	Clock    notification.Clock
	Log      *zap.Logger
	Workers  int
}

// Stats summarizes one RunOnce invocation.
type Stats struct {
	Claimed  int
	Sent     int
	Retried  int
	Failed   int
	Skipped  int
	Deferred int // rate-limited, returned to PENDING untouched
}

// RunOnce claims up to limit due records and dispatches them on a bounded
// worker pool. Handler errors never propagate; they are committed onto the
// record and surfaced through history.
func (u *Usecase) RunOnce(ctx context.Context, limit int) (Stats, error) {
	if limit <= 0 {
		limit = 100
	}

	tr := otel.Tracer("dispatcher.uc")
	ctxTick, span := tr.Start(ctx, "dispatcher.tick",
		trace.WithAttributes(attribute.Int("batch.limit", limit)),
	)
	defer span.End()

	due, err := u.Queue.ClaimDue(ctxTick, u.Clock.Now().UTC(), limit)
	if err != nil {
		span.RecordError(err)
		return Stats{}, fmt.Errorf("claim due: %w", err)
	}
	span.SetAttributes(attribute.Int("batch.claimed", len(due)))
	if len(due) == 0 {
		return Stats{}, nil
	}

	var (
		mu    sync.Mutex
		stats = Stats{Claimed: len(due)}
	)

	workers := u.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctxTick)
	g.SetLimit(workers)

	for _, rec := range due {
		rec := rec
		g.Go(func() error {
			recCtx, recSpan := tr.Start(gctx, "dispatcher.dispatch",
				trace.WithAttributes(
					attribute.Int64("notification.id", rec.ID),
					attribute.String("notification.channel", string(rec.Channel)),
					attribute.String("notification.event", rec.EventType),
				),
			)
			outcome := u.process(recCtx, rec)
			recSpan.SetAttributes(attribute.String("dispatch.outcome", outcome))
			recSpan.End()

			mu.Lock()
			switch outcome {
			case outcomeSent:
				stats.Sent++
			case outcomeRetried:
				stats.Retried++
			case outcomeFailed:
				stats.Failed++
			case outcomeSkipped:
				stats.Skipped++
			case outcomeDeferred:
				stats.Deferred++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("batch.sent", stats.Sent),
		attribute.Int("batch.retried", stats.Retried),
		attribute.Int("batch.failed", stats.Failed),
	)
	return stats, nil
}

const (
	outcomeSent     = "sent"
	outcomeRetried  = "retried"
	outcomeFailed   = "failed"
	outcomeSkipped  = "skipped"
	outcomeDeferred = "deferred"
)

func (u *Usecase) process(ctx context.Context, rec *notification.Record) string {
	log := obs.WithTrace(ctx, u.Log).With(
		zap.Int64("id", rec.ID),
		zap.String("channel", string(rec.Channel)),
		zap.String("event", rec.EventType),
	)

	h, ok := u.Registry.Get(rec.Channel)
	if !ok {
		log.Error("no handler registered")
		u.failPermanently(ctx, rec, fmt.Sprintf("no handler registered for channel %s", rec.Channel), log)
		return outcomeFailed
	}

	// IN_APP is always deliverable; everything else asks its handler.
	if rec.Channel != notification.ChannelInApp && !h.IsEnabled(ctx) {
		msg := fmt.Sprintf("channel %s is disabled", rec.Channel)
		if err := u.Queue.UpdateStatus(ctx, rec.ID, notification.StatusUpdate{
			Status:       notification.StatusSkipped,
			ErrorMessage: &msg,
		}); err != nil {
			log.Error("commit skip", zap.Error(err))
		}
		log.Debug("skipped: channel disabled")
		return outcomeSkipped
	}

	res, err := h.Send(ctx, rec)
	switch {
	case err == nil:
		now := u.Clock.Now().UTC()
		if uerr := u.Queue.UpdateStatus(ctx, rec.ID, notification.StatusUpdate{
			Status: notification.StatusSent,
			SentAt: &now,
		}); uerr != nil {
			log.Error("commit sent", zap.Error(uerr))
		}
		u.appendHistory(ctx, rec, notification.StatusSent, res.Response, log)
		log.Info("delivered", zap.Int("attempts", rec.Attempts))
		return outcomeSent

	case errors.Is(err, channels.ErrRateLimited):
		// Not a failure: give the slot back and try again next cycle. The
		// attempt counter and schedule stay untouched.
		if uerr := u.Queue.UpdateStatus(ctx, rec.ID, notification.StatusUpdate{
			Status: notification.StatusPending,
		}); uerr != nil {
			log.Error("commit deferral", zap.Error(uerr))
		}
		log.Debug("deferred: rate limited", zap.Error(err))
		return outcomeDeferred

	case errors.Is(err, channels.ErrSkip):
		msg := err.Error()
		if uerr := u.Queue.UpdateStatus(ctx, rec.ID, notification.StatusUpdate{
			Status:       notification.StatusSkipped,
			ErrorMessage: &msg,
		}); uerr != nil {
			log.Error("commit skip", zap.Error(uerr))
		}
		log.Debug("skipped", zap.Error(err))
		return outcomeSkipped

	case errors.Is(err, channels.ErrConfig):
		// Retrying cannot succeed until an operator reconfigures.
		log.Error("configuration error", zap.Error(err))
		u.failPermanently(ctx, rec, err.Error(), log)
		return outcomeFailed

	default:
		attempts := rec.Attempts + 1
		if attempts >= rec.MaxAttempts {
			rec.Attempts = attempts
			log.Warn("delivery failed permanently", zap.Int("attempts", attempts), zap.Error(err))
			now := u.Clock.Now().UTC()
			msg := err.Error()
			if uerr := u.Queue.UpdateStatus(ctx, rec.ID, notification.StatusUpdate{
				Status:       notification.StatusFailed,
				Attempts:     &attempts,
				FailedAt:     &now,
				ErrorMessage: &msg,
			}); uerr != nil {
				log.Error("commit failure", zap.Error(uerr))
			}
			u.appendHistory(ctx, rec, notification.StatusFailed, msg, log)
			return outcomeFailed
		}

		next := u.Clock.Now().UTC().Add(Backoff(attempts))
		msg := err.Error()
		if uerr := u.Queue.UpdateStatus(ctx, rec.ID, notification.StatusUpdate{
			Status:       notification.StatusPending,
			Attempts:     &attempts,
			ScheduledAt:  &next,
			ErrorMessage: &msg,
		}); uerr != nil {
			log.Error("commit retry", zap.Error(uerr))
		}
		log.Warn("delivery failed, retry scheduled",
			zap.Int("attempt", attempts),
			zap.Time("next_try", next),
			zap.Error(err),
		)
		return outcomeRetried
	}
}

// failPermanently commits a terminal FAILED state. Attempts are pinned to the
// cap so a FAILED record always reads attempts == maxAttempts.
func (u *Usecase) failPermanently(ctx context.Context, rec *notification.Record, msg string, log *zap.Logger) {
	now := u.Clock.Now().UTC()
	attempts := rec.MaxAttempts
	if err := u.Queue.UpdateStatus(ctx, rec.ID, notification.StatusUpdate{
		Status:       notification.StatusFailed,
		Attempts:     &attempts,
		FailedAt:     &now,
		ErrorMessage: &msg,
	}); err != nil {
		log.Error("commit permanent failure", zap.Error(err))
	}
	u.appendHistory(ctx, rec, notification.StatusFailed, msg, log)
}

func (u *Usecase) appendHistory(ctx context.Context, rec *notification.Record, status notification.Status, response string, log *zap.Logger) {
	if err := u.History.Append(ctx, &notification.HistoryEntry{
		NotificationID: rec.ID,
		Channel:        rec.Channel,
		Recipient:      rec.Recipient,
		Status:         status,
		Response:       response,
	}); err != nil {
		log.Error("append history", zap.Error(err))
	}
}

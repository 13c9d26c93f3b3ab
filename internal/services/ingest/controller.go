package ingest

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	kafkax "github.com/motorlog/notifier/internal/repository/kafka"
)

// Controller consumes application events from kafka and feeds the ingest
// handler. Undecodable messages are counted and dropped.
type Controller struct {
	Log *zap.Logger
	Sub *kafkax.Consumer
	UC  *Handler

	mConsumed prometheus.Counter
	mEnqueued prometheus.Counter
	mBad      prometheus.Counter
	mErrors   prometheus.Counter
}

func NewController(log *zap.Logger, sub *kafkax.Consumer, uc *Handler) *Controller {
	return &Controller{
		Log: log,
		Sub: sub,
		UC:  uc,
		mConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingest_events_consumed_total", Help: "Application events consumed",
		}),
		mEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingest_records_enqueued_total", Help: "Notification records enqueued",
		}),
		mBad: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingest_events_undecodable_total", Help: "Events dropped as undecodable",
		}),
		mErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingest_errors_total", Help: "Errors in the ingest path",
		}),
	}
}

func (c *Controller) Run(ctx context.Context) error {
	handler := kafkax.JSONHandler(
		func(ctx context.Context, _ []byte, ev *Event) error {
			c.mConsumed.Inc()
			n, err := c.UC.HandleEvent(ctx, ev)
			c.mEnqueued.Add(float64(n))
			if err != nil {
				c.mErrors.Inc()
				c.Log.Warn("event handling incomplete", zap.String("event", ev.Type), zap.Error(err))
			}
			// The event was consumed either way; records that failed to
			// enqueue are lost to this event, not retried via kafka.
			return nil
		},
		func(err error) {
			c.mBad.Inc()
			c.Log.Warn("dropping undecodable event", zap.Error(err))
		},
	)
	return c.Sub.Consume(ctx, handler)
}

package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultEnqueuePolicy covers transient store errors while the ingest path
// writes records into the delivery queue.
func DefaultEnqueuePolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "enqueue",
		Attempts: 5,
		Backoff:  ExpoJitter{Base: 100 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("enqueue retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("enqueue retries exhausted", zap.Error(err))
			}
		},
	}
}

package notification

import (
	"context"
	"time"
)

// StatusUpdate is a partial update applied atomically to a queued record.
// Nil pointer fields are left untouched.
type StatusUpdate struct {
	Status       Status
	Attempts     *int
	ScheduledAt  *time.Time
	SentAt       *time.Time
	FailedAt     *time.Time
	ErrorMessage *string
}

// Queue is the durable delivery queue. Only the dispatcher commits state
// transitions; handlers never mutate queue state.
type Queue interface {
	Enqueue(ctx context.Context, rec *Record) error
	// ClaimDue atomically moves up to limit due PENDING records to
	// PROCESSING and returns them, oldest scheduled_at first. A record
	// claimed by one worker cannot be claimed by another.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*Record, error)
	UpdateStatus(ctx context.Context, id int64, upd StatusUpdate) error
	// RequeueStale returns records stuck in PROCESSING (crashed worker)
	// back to PENDING.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

type History interface {
	Append(ctx context.Context, e *HistoryEntry) error
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/motorlog/notifier/internal/domain/notification"
)

var _ notification.Queue = (*QueueRepo)(nil)

type QueueRepo struct{ db *DB }

func NewQueueRepo(db *DB) *QueueRepo { return &QueueRepo{db: db} }

const notifCols = `id, user_id, channel, event_type, recipient, subject, content, metadata,
status, attempts, max_attempts, scheduled_at, sent_at, failed_at, error_message, created_at, updated_at`

const (
	qEnqueue = `
INSERT INTO notifications (user_id, channel, event_type, recipient, subject, content, metadata,
                           status, attempts, max_attempts, scheduled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'PENDING', 0, $8, COALESCE($9, now()))
RETURNING id, status, attempts, scheduled_at, created_at, updated_at;
`

	// Claims due PENDING records oldest-first. The conditional update is what
	// keeps two overlapping dispatch loops from double-picking a record.
	qClaimDue = `
WITH cand AS (
    SELECT id
    FROM notifications
    WHERE status = 'PENDING' AND scheduled_at <= $1
    ORDER BY scheduled_at
    LIMIT $2
    FOR UPDATE SKIP LOCKED
), upd AS (
    UPDATE notifications n
    SET status = 'PROCESSING', updated_at = now()
    FROM cand
    WHERE n.id = cand.id
    RETURNING n.id, n.user_id, n.channel, n.event_type, n.recipient, n.subject, n.content, n.metadata,
              n.status, n.attempts, n.max_attempts, n.scheduled_at, n.sent_at, n.failed_at, n.error_message,
              n.created_at, n.updated_at
)
SELECT ` + notifCols + ` FROM upd ORDER BY scheduled_at;
`

	qUpdateStatus = `
UPDATE notifications
SET status        = $2,
    attempts      = COALESCE($3, attempts),
    scheduled_at  = COALESCE($4, scheduled_at),
    sent_at       = COALESCE($5, sent_at),
    failed_at     = COALESCE($6, failed_at),
    error_message = COALESCE($7, error_message),
    updated_at    = now()
WHERE id = $1;
`

	qRequeueStale = `
UPDATE notifications
SET status = 'PENDING', updated_at = now()
WHERE status = 'PROCESSING' AND updated_at < now() - $1::interval;
`
)

func (r *QueueRepo) Enqueue(ctx context.Context, rec *notification.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	meta, err := marshalMeta(rec.Metadata)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}

	if err := r.db.Pool.QueryRow(ctx, qEnqueue,
		rec.UserID,
		string(rec.Channel),
		rec.EventType,
		rec.Recipient,
		rec.Subject,
		rec.Content,
		meta,
		rec.MaxAttempts,
		nullTime(rec.ScheduledAt),
	).Scan(&rec.ID, &rec.Status, &rec.Attempts, &rec.ScheduledAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *QueueRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*notification.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qClaimDue, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due: %w", err)
	}
	defer rows.Close()

	var out []*notification.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *QueueRepo) UpdateStatus(ctx context.Context, id int64, upd notification.StatusUpdate) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	cmd, err := r.db.Pool.Exec(ctx, qUpdateStatus,
		id,
		string(upd.Status),
		upd.Attempts,
		upd.ScheduledAt,
		upd.SentAt,
		upd.FailedAt,
		upd.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *QueueRepo) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	ttl := fmt.Sprintf("%f seconds", olderThan.Seconds())
	cmd, err := r.db.Pool.Exec(ctx, qRequeueStale, ttl)
	if err != nil {
		return 0, fmt.Errorf("requeue stale: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*notification.Record, error) {
	var (
		rec     notification.Record
		channel string
		status  string
		meta    []byte
	)
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&channel,
		&rec.EventType,
		&rec.Recipient,
		&rec.Subject,
		&rec.Content,
		&meta,
		&status,
		&rec.Attempts,
		&rec.MaxAttempts,
		&rec.ScheduledAt,
		&rec.SentAt,
		&rec.FailedAt,
		&rec.ErrorMessage,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	rec.Channel = notification.Channel(channel)
	rec.Status = notification.Status(status)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &rec, nil
}

func marshalMeta(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return b, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/motorlog/notifier/internal/domain/notification"
)

var _ notification.History = (*HistoryRepo)(nil)

type HistoryRepo struct{ db *DB }

func NewHistoryRepo(db *DB) *HistoryRepo { return &HistoryRepo{db: db} }

const (
	qHistoryInsert = `
INSERT INTO notification_history (notification_id, channel, recipient, status, response)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at;
`

	qHistoryPurge = `
DELETE FROM notification_history
WHERE created_at < now() - $1::interval;
`
)

func (r *HistoryRepo) Append(ctx context.Context, e *notification.HistoryEntry) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.Pool.QueryRow(ctx, qHistoryInsert,
		e.NotificationID,
		string(e.Channel),
		e.Recipient,
		string(e.Status),
		e.Response,
	).Scan(&e.ID, &e.CreatedAt); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (r *HistoryRepo) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	ttl := fmt.Sprintf("%f seconds", olderThan.Seconds())
	cmd, err := r.db.Pool.Exec(ctx, qHistoryPurge, ttl)
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return cmd.RowsAffected(), nil
}

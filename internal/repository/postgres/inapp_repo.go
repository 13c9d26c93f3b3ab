package postgres

import (
	"context"
	"fmt"
	"time"
)

// InAppNotification is a row the web UI reads; the IN_APP handler only ever
// inserts.
type InAppNotification struct {
	ID        int64
	UserID    *int64 // nil means visible to everyone
	EventType string
	Subject   string
	Content   string
	Metadata  []byte
	ReadAt    *time.Time
	CreatedAt time.Time
}

type InAppRepo struct{ db *DB }

func NewInAppRepo(db *DB) *InAppRepo { return &InAppRepo{db: db} }

const (
	qInAppInsert = `
INSERT INTO inapp_notifications (user_id, event_type, subject, content, metadata)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at;
`

	qInAppByUser = `
SELECT id, user_id, event_type, subject, content, metadata, read_at, created_at
FROM inapp_notifications
WHERE user_id = $1 OR user_id IS NULL
ORDER BY created_at DESC
LIMIT $2;
`
)

func (r *InAppRepo) Insert(ctx context.Context, n *InAppNotification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	meta := n.Metadata
	if len(meta) == 0 {
		meta = []byte("{}")
	}
	if err := r.db.Pool.QueryRow(ctx, qInAppInsert,
		n.UserID, n.EventType, n.Subject, n.Content, meta,
	).Scan(&n.ID, &n.CreatedAt); err != nil {
		return fmt.Errorf("insert inapp notification: %w", err)
	}
	return nil
}

func (r *InAppRepo) ListByUser(ctx context.Context, userID int64, limit int) ([]*InAppNotification, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qInAppByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query inapp notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*InAppNotification, 0, limit)
	for rows.Next() {
		var n InAppNotification
		if err := rows.Scan(&n.ID, &n.UserID, &n.EventType, &n.Subject, &n.Content, &n.Metadata, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan inapp notification: %w", err)
		}
		nc := n
		out = append(out, &nc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

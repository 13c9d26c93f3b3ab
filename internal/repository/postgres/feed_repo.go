package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// FeedItem is one entry of the public RSS feed. The feed document itself is
// assembled by the web layer; the RSS handler only appends items.
type FeedItem struct {
	ID          int64
	GUID        string
	Title       string
	Description string
	Link        string
	PublishedAt time.Time
}

type FeedRepo struct{ db *DB }

func NewFeedRepo(db *DB) *FeedRepo { return &FeedRepo{db: db} }

const (
	qFeedInsert = `
INSERT INTO feed_items (guid, title, description, link)
VALUES ($1, $2, $3, $4)
ON CONFLICT (guid) DO NOTHING
RETURNING id, published_at;
`

	qFeedRecent = `
SELECT id, guid, title, description, link, published_at
FROM feed_items
ORDER BY published_at DESC
LIMIT $1;
`
)

func (r *FeedRepo) Insert(ctx context.Context, item *FeedItem) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	err := r.db.Pool.QueryRow(ctx, qFeedInsert,
		item.GUID, item.Title, item.Description, item.Link,
	).Scan(&item.ID, &item.PublishedAt)
	if err != nil {
		// Conflict on guid means the item already exists; RETURNING yields no
		// row in that case and the insert is a no-op.
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		return fmt.Errorf("insert feed item: %w", err)
	}
	return nil
}

func (r *FeedRepo) Recent(ctx context.Context, limit int) ([]*FeedItem, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qFeedRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query feed items: %w", err)
	}
	defer rows.Close()

	out := make([]*FeedItem, 0, limit)
	for rows.Next() {
		var it FeedItem
		if err := rows.Scan(&it.ID, &it.GUID, &it.Title, &it.Description, &it.Link, &it.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan feed item: %w", err)
		}
		ic := it
		out = append(out, &ic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

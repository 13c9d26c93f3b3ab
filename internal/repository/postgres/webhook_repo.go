package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/motorlog/notifier/internal/domain/webhook"
)

var _ webhook.Repo = (*WebhookRepo)(nil)

type WebhookRepo struct{ db *DB }

func NewWebhookRepo(db *DB) *WebhookRepo { return &WebhookRepo{db: db} }

const destCols = `id, name, url, method, content_type, auth_type, auth_token, auth_user, auth_pass,
api_key_header, secret, timeout_sec, max_per_minute, events, enabled, success_count, failure_count,
created_at, updated_at`

const (
	qDestByID = `SELECT ` + destCols + ` FROM webhook_destinations WHERE id = $1;`

	qDestSubscribed = `
SELECT ` + destCols + `
FROM webhook_destinations
WHERE enabled = TRUE AND (events @> ARRAY[$1]::text[] OR events @> ARRAY['*']::text[])
ORDER BY id;
`

	qDestRecordResult = `
UPDATE webhook_destinations
SET success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
    failure_count = failure_count + CASE WHEN $2 THEN 0 ELSE 1 END,
    updated_at    = now()
WHERE id = $1;
`
)

func (r *WebhookRepo) GetByID(ctx context.Context, id int64) (*webhook.Destination, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	d, err := scanDestination(r.db.Pool.QueryRow(ctx, qDestByID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (r *WebhookRepo) ListSubscribed(ctx context.Context, eventType string) ([]*webhook.Destination, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qDestSubscribed, eventType)
	if err != nil {
		return nil, fmt.Errorf("query destinations: %w", err)
	}
	defer rows.Close()

	var out []*webhook.Destination
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *WebhookRepo) RecordResult(ctx context.Context, id int64, ok bool) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qDestRecordResult, id, ok); err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

func scanDestination(row pgx.Row) (*webhook.Destination, error) {
	var (
		d          webhook.Destination
		authType   string
		timeoutSec int
	)
	if err := row.Scan(
		&d.ID,
		&d.Name,
		&d.URL,
		&d.Method,
		&d.ContentType,
		&authType,
		&d.AuthToken,
		&d.AuthUser,
		&d.AuthPass,
		&d.APIKeyHeader,
		&d.Secret,
		&timeoutSec,
		&d.MaxPerMinute,
		&d.Events,
		&d.Enabled,
		&d.SuccessCount,
		&d.FailureCount,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan destination: %w", err)
	}
	d.AuthType = webhook.AuthType(authType)
	d.Timeout = time.Duration(timeoutSec) * time.Second
	return &d, nil
}

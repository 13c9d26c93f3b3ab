package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/motorlog/notifier/internal/domain/notification"
)

// MessageTemplate is the raw (unrendered) subject/content pair selected by
// event type and channel.
type MessageTemplate struct {
	ID        int64
	EventType string
	Channel   notification.Channel
	Subject   string
	Content   string
}

type TemplateRepo struct{ db *DB }

func NewTemplateRepo(db *DB) *TemplateRepo { return &TemplateRepo{db: db} }

const qTemplateLookup = `
SELECT id, event_type, channel, subject, content
FROM message_templates
WHERE event_type = $1 AND channel = $2 AND enabled = TRUE;
`

// Lookup returns ErrNotFound when no enabled template exists for the pair.
func (r *TemplateRepo) Lookup(ctx context.Context, eventType string, channel notification.Channel) (*MessageTemplate, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		t  MessageTemplate
		ch string
	)
	err := r.db.Pool.QueryRow(ctx, qTemplateLookup, eventType, string(channel)).
		Scan(&t.ID, &t.EventType, &ch, &t.Subject, &t.Content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup template: %w", err)
	}
	t.Channel = notification.Channel(ch)
	return &t, nil
}

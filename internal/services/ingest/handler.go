package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorlog/notifier/internal/domain/notification"
	"github.com/motorlog/notifier/internal/domain/webhook"
	"github.com/motorlog/notifier/internal/obs/retry"
	"github.com/motorlog/notifier/internal/pkg/template"
	"github.com/motorlog/notifier/internal/repository/postgres"
)

// TemplateSource resolves the raw subject/content template for an
// event/channel pair; implemented by *postgres.TemplateRepo.
type TemplateSource interface {
	Lookup(ctx context.Context, eventType string, channel notification.Channel) (*postgres.MessageTemplate, error)
}

// Handler turns one application event into queued notification records.
// Rendering happens here, once, so handlers downstream only ever see final
// text.
type Handler struct {
	Queue       notification.Queue
	Templates   TemplateSource
	Webhooks    webhook.Repo
	Clock       notification.Clock
	Log         *zap.Logger
	MaxAttempts int
}

// HandleEvent enqueues one record per recipient plus one per subscribed
// webhook destination. Per-recipient failures are logged and counted but do
// not keep the rest of the fan-out from happening.
func (h *Handler) HandleEvent(ctx context.Context, ev *Event) (int, error) {
	if err := ev.Validate(); err != nil {
		return 0, fmt.Errorf("invalid event: %w", err)
	}

	data := ev.Data
	if data == nil {
		data = map[string]any{}
	}
	eventID := uuid.NewString()
	now := h.now()

	enqueued := 0
	var errs int

	for _, rcpt := range ev.Recipients {
		subject, content := h.renderFor(ctx, ev, rcpt.Channel, data)
		meta := template.RenderMap(data, data)
		meta["event_id"] = eventID

		userID := rcpt.UserID
		if userID == nil {
			userID = ev.UserID
		}
		rec := &notification.Record{
			UserID:      userID,
			Channel:     rcpt.Channel,
			EventType:   ev.Type,
			Recipient:   rcpt.Address,
			Subject:     subject,
			Content:     content,
			Metadata:    meta,
			MaxAttempts: h.maxAttempts(),
			ScheduledAt: now,
		}
		if err := h.enqueue(ctx, rec); err != nil {
			errs++
			h.Log.Error("enqueue recipient record",
				zap.String("channel", string(rcpt.Channel)), zap.Error(err))
			continue
		}
		enqueued++
	}

	n, werrs := h.fanOutWebhooks(ctx, ev, data, eventID, now)
	enqueued += n
	errs += werrs

	if errs > 0 {
		return enqueued, fmt.Errorf("event %s: %d of %d records not enqueued", ev.Type, errs, errs+enqueued)
	}
	return enqueued, nil
}

func (h *Handler) fanOutWebhooks(ctx context.Context, ev *Event, data map[string]any, eventID string, now time.Time) (int, int) {
	dests, err := h.Webhooks.ListSubscribed(ctx, ev.Type)
	if err != nil {
		h.Log.Error("list webhook destinations", zap.String("event", ev.Type), zap.Error(err))
		return 0, 1
	}

	enqueued, errs := 0, 0
	for _, d := range dests {
		subject, content := h.renderFor(ctx, ev, notification.ChannelWebhook, data)
		meta := template.RenderMap(data, data)
		meta["event_id"] = eventID
		meta["destination_id"] = d.ID

		rec := &notification.Record{
			UserID:      ev.UserID,
			Channel:     notification.ChannelWebhook,
			EventType:   ev.Type,
			Recipient:   d.URL,
			Subject:     subject,
			Content:     content,
			Metadata:    meta,
			MaxAttempts: h.maxAttempts(),
			ScheduledAt: now,
		}
		if err := h.enqueue(ctx, rec); err != nil {
			errs++
			h.Log.Error("enqueue webhook record",
				zap.String("destination", d.Name), zap.Error(err))
			continue
		}
		enqueued++
	}
	return enqueued, errs
}

// renderFor picks the message template for the channel (falling back to the
// event-provided text) and renders it against the event data context.
func (h *Handler) renderFor(ctx context.Context, ev *Event, ch notification.Channel, data map[string]any) (string, string) {
	subject, content := ev.Subject, ev.Content

	tpl, err := h.Templates.Lookup(ctx, ev.Type, ch)
	switch {
	case err == nil:
		subject, content = tpl.Subject, tpl.Content
	case errors.Is(err, postgres.ErrNotFound):
		// no template configured; event text stands
	default:
		h.Log.Warn("template lookup",
			zap.String("event", ev.Type), zap.String("channel", string(ch)), zap.Error(err))
	}

	return template.Render(subject, data), template.Render(content, data)
}

func (h *Handler) enqueue(ctx context.Context, rec *notification.Record) error {
	return retry.Do(ctx, func() error {
		return h.Queue.Enqueue(ctx, rec)
	}, retry.DefaultEnqueuePolicy(h.Log))
}

func (h *Handler) maxAttempts() int {
	if h.MaxAttempts > 0 {
		return h.MaxAttempts
	}
	return notification.DefaultMaxAttempts
}

// now stamps ScheduledAt so the fan-out of one event is due at one instant.
func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

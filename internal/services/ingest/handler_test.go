package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/motorlog/notifier/internal/domain/notification"
	"github.com/motorlog/notifier/internal/domain/webhook"
	"github.com/motorlog/notifier/internal/repository/postgres"
)

type stubClock struct{ t time.Time }

func (c stubClock) Now() time.Time { return c.t }

var handlerNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type captureQueue struct {
	mu   sync.Mutex
	recs []*notification.Record
	err  error
}

func (q *captureQueue) Enqueue(ctx context.Context, rec *notification.Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	rec.ID = int64(len(q.recs) + 1)
	q.recs = append(q.recs, rec)
	return nil
}

func (q *captureQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*notification.Record, error) {
	return nil, nil
}

func (q *captureQueue) UpdateStatus(ctx context.Context, id int64, upd notification.StatusUpdate) error {
	return nil
}

func (q *captureQueue) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (q *captureQueue) byChannel(ch notification.Channel) []*notification.Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*notification.Record
	for _, r := range q.recs {
		if r.Channel == ch {
			out = append(out, r)
		}
	}
	return out
}

// memTemplates keys templates by event/channel; everything else is ErrNotFound.
type memTemplates struct {
	byKey map[string]*postgres.MessageTemplate
}

func (m *memTemplates) Lookup(ctx context.Context, eventType string, ch notification.Channel) (*postgres.MessageTemplate, error) {
	if t, ok := m.byKey[eventType+"/"+string(ch)]; ok {
		return t, nil
	}
	return nil, postgres.ErrNotFound
}

type memWebhooks struct{ dests []*webhook.Destination }

func (m *memWebhooks) GetByID(ctx context.Context, id int64) (*webhook.Destination, error) {
	for _, d := range m.dests {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (m *memWebhooks) ListSubscribed(ctx context.Context, eventType string) ([]*webhook.Destination, error) {
	var out []*webhook.Destination
	for _, d := range m.dests {
		if d.Enabled && d.Subscribed(eventType) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memWebhooks) RecordResult(ctx context.Context, id int64, ok bool) error { return nil }

func newTestHandler(q *captureQueue, tpls *memTemplates, whs *memWebhooks) *Handler {
	if tpls == nil {
		tpls = &memTemplates{}
	}
	if whs == nil {
		whs = &memWebhooks{}
	}
	return &Handler{
		Queue:     q,
		Templates: tpls,
		Webhooks:  whs,
		Clock:     stubClock{t: handlerNow},
		Log:       zap.NewNop(),
	}
}

func TestHandleEvent_FanOutPerRecipient(t *testing.T) {
	q := &captureQueue{}
	h := newTestHandler(q, nil, nil)

	uid := int64(42)
	ev := &Event{
		Type:    "check.down",
		UserID:  &uid,
		Subject: "{{host}} is down",
		Content: "host {{host}} stopped responding at {{when}}",
		Data:    map[string]any{"host": "pg-1", "when": "12:00"},
		Recipients: []Recipient{
			{Channel: notification.ChannelEmail, Address: "ops@example.com"},
			{Channel: notification.ChannelSlack, Address: "https://hooks.slack.example/T1"},
		},
	}

	n, err := h.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, q.recs, 2)

	email := q.byChannel(notification.ChannelEmail)[0]
	require.Equal(t, "ops@example.com", email.Recipient)
	require.Equal(t, "pg-1 is down", email.Subject)
	require.Equal(t, "host pg-1 stopped responding at 12:00", email.Content)
	require.Equal(t, "check.down", email.EventType)
	require.Equal(t, &uid, email.UserID)
	require.Equal(t, notification.DefaultMaxAttempts, email.MaxAttempts)
	require.NotEmpty(t, email.Metadata["event_id"])
	require.Equal(t, handlerNow, email.ScheduledAt) // due immediately, stamped from the clock

	slack := q.byChannel(notification.ChannelSlack)[0]
	require.Equal(t, email.Metadata["event_id"], slack.Metadata["event_id"])
}

func TestHandleEvent_TemplateOverridesEventText(t *testing.T) {
	q := &captureQueue{}
	tpls := &memTemplates{byKey: map[string]*postgres.MessageTemplate{
		"check.down/EMAIL": {
			EventType: "check.down",
			Channel:   notification.ChannelEmail,
			Subject:   "[ALERT] {{host}}",
			Content:   "configured body for {{host}}",
		},
	}}
	h := newTestHandler(q, tpls, nil)

	ev := &Event{
		Type:    "check.down",
		Subject: "fallback subject",
		Content: "fallback body",
		Data:    map[string]any{"host": "pg-1"},
		Recipients: []Recipient{
			{Channel: notification.ChannelEmail, Address: "ops@example.com"},
			{Channel: notification.ChannelSlack, Address: "https://hooks.slack.example/T1"},
		},
	}

	_, err := h.HandleEvent(context.Background(), ev)
	require.NoError(t, err)

	email := q.byChannel(notification.ChannelEmail)[0]
	require.Equal(t, "[ALERT] pg-1", email.Subject)
	require.Equal(t, "configured body for pg-1", email.Content)

	// no slack template, so the event text stands
	slack := q.byChannel(notification.ChannelSlack)[0]
	require.Equal(t, "fallback subject", slack.Subject)
	require.Equal(t, "fallback body", slack.Content)
}

func TestHandleEvent_WebhookFanOut(t *testing.T) {
	q := &captureQueue{}
	whs := &memWebhooks{dests: []*webhook.Destination{
		{ID: 1, Name: "ops", URL: "https://a.example/hook", Events: []string{"check.down"}, Enabled: true},
		{ID: 2, Name: "all", URL: "https://b.example/hook", Events: []string{"*"}, Enabled: true},
		{ID: 3, Name: "other", URL: "https://c.example/hook", Events: []string{"check.up"}, Enabled: true},
		{ID: 4, Name: "off", URL: "https://d.example/hook", Events: []string{"*"}, Enabled: false},
	}}
	h := newTestHandler(q, nil, whs)

	ev := &Event{
		Type: "check.down",
		Data: map[string]any{"host": "pg-1"},
	}

	n, err := h.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	hooks := q.byChannel(notification.ChannelWebhook)
	require.Len(t, hooks, 2)

	ids := map[any]string{}
	for _, r := range hooks {
		ids[r.Metadata["destination_id"]] = r.Recipient
		require.Equal(t, handlerNow, r.ScheduledAt)
	}
	require.Equal(t, "https://a.example/hook", ids[int64(1)])
	require.Equal(t, "https://b.example/hook", ids[int64(2)])
}

func TestHandleEvent_MetadataRendered(t *testing.T) {
	q := &captureQueue{}
	h := newTestHandler(q, nil, nil)

	ev := &Event{
		Type: "check.down",
		Data: map[string]any{
			"host":  "pg-1",
			"label": "host={{host}}",
		},
		Recipients: []Recipient{{Channel: notification.ChannelEmail, Address: "ops@example.com"}},
	}

	_, err := h.HandleEvent(context.Background(), ev)
	require.NoError(t, err)

	meta := q.recs[0].Metadata
	require.Equal(t, "pg-1", meta["host"])
	require.Equal(t, "host=pg-1", meta["label"])
}

func TestHandleEvent_InvalidEvent(t *testing.T) {
	q := &captureQueue{}
	h := newTestHandler(q, nil, nil)

	_, err := h.HandleEvent(context.Background(), &Event{})
	require.Error(t, err)
	require.Empty(t, q.recs)

	_, err = h.HandleEvent(context.Background(), &Event{
		Type:       "check.down",
		Recipients: []Recipient{{Channel: "CARRIER_PIGEON", Address: "roof"}},
	})
	require.Error(t, err)
	require.Empty(t, q.recs)
}

func TestHandleEvent_RecipientUserIDWins(t *testing.T) {
	q := &captureQueue{}
	h := newTestHandler(q, nil, nil)

	evUID, rcptUID := int64(1), int64(2)
	ev := &Event{
		Type:   "check.down",
		UserID: &evUID,
		Recipients: []Recipient{
			{Channel: notification.ChannelEmail, Address: "a@example.com", UserID: &rcptUID},
			{Channel: notification.ChannelEmail, Address: "b@example.com"},
		},
	}

	_, err := h.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	require.Len(t, q.recs, 2)
	require.Equal(t, &rcptUID, q.recs[0].UserID)
	require.Equal(t, &evUID, q.recs[1].UserID)
}

func TestEventValidate(t *testing.T) {
	require.Error(t, (&Event{}).Validate())
	require.NoError(t, (&Event{Type: "x"}).Validate())
	require.Error(t, (&Event{
		Type:       "x",
		Recipients: []Recipient{{Channel: "NOPE"}},
	}).Validate())
}

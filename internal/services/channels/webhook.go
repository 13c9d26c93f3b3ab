package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/motorlog/notifier/internal/domain/notification"
	"github.com/motorlog/notifier/internal/domain/settings"
	"github.com/motorlog/notifier/internal/domain/webhook"
	"github.com/motorlog/notifier/internal/pkg/ratelimit"
	"github.com/motorlog/notifier/internal/pkg/signature"
)

const (
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderSignature = "X-Webhook-Signature"
)

var _ Handler = (*WebhookHandler)(nil)

// WebhookHandler posts signed payloads to configured destinations. The
// destination id travels in record metadata; the destination row holds URL,
// auth, secret, timeout and the per-minute cap.
type WebhookHandler struct {
	dests    webhook.Repo
	settings settings.Store
	limiter  *ratelimit.FixedWindow
	client   *http.Client
	clock    notification.Clock
	log      *zap.Logger
}

func NewWebhookHandler(
	dests webhook.Repo,
	st settings.Store,
	limiter *ratelimit.FixedWindow,
	clock notification.Clock,
	log *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		dests:    dests,
		settings: st,
		limiter:  limiter,
		client:   newHTTPClient(10 * time.Second),
		clock:    clock,
		log:      log.With(zap.String("component", "channels.webhook")),
	}
}

func (h *WebhookHandler) IsEnabled(ctx context.Context) bool {
	return settings.Bool(ctx, h.settings, "notifications", "webhook_enabled", true)
}

func (h *WebhookHandler) Send(ctx context.Context, rec *notification.Record) (*notification.SendResult, error) {
	destID, ok := metaInt64(rec.Metadata, "destination_id")
	if !ok {
		return nil, fmt.Errorf("%w: record %d has no destination_id", ErrConfig, rec.ID)
	}

	dest, err := h.dests.GetByID(ctx, destID)
	if err != nil {
		return nil, fmt.Errorf("%w: destination %d: %v", ErrConfig, destID, err)
	}
	if !dest.Enabled {
		return nil, fmt.Errorf("%w: destination %q disabled", ErrSkip, dest.Name)
	}
	// Subscriptions can change between enqueue and dispatch; re-check so an
	// unsubscribed destination is skipped, not delivered to.
	if !dest.Subscribed(rec.EventType) {
		return nil, fmt.Errorf("%w: destination %q not subscribed to %s", ErrSkip, dest.Name, rec.EventType)
	}

	key := "webhook:" + strconv.FormatInt(dest.ID, 10)
	if dest.MaxPerMinute > 0 {
		h.limiter.SetLimit(key, dest.MaxPerMinute)
	}
	if !h.limiter.CanSend(key) {
		return nil, fmt.Errorf("%w: destination %q", ErrRateLimited, dest.Name)
	}

	now := h.clock.Now().UTC()
	body, contentType, err := buildPayload(dest, rec, now)
	if err != nil {
		return nil, err
	}

	method := dest.Method
	if method == "" {
		method = http.MethodPost
	}
	timeout := dest.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, dest.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %q: %v", ErrConfig, dest.Name, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(now.Unix(), 10))
	if dest.Secret != "" {
		req.Header.Set(HeaderSignature, signature.Sign(dest.Secret, body))
	}
	applyAuth(req, dest)

	res, err := doRequest(h.client, req)
	if err != nil {
		if rerr := h.dests.RecordResult(ctx, dest.ID, false); rerr != nil {
			h.log.Warn("record failure counter", zap.Int64("destination", dest.ID), zap.Error(rerr))
		}
		return nil, fmt.Errorf("webhook %q: %w", dest.Name, err)
	}

	if rerr := h.dests.RecordResult(ctx, dest.ID, true); rerr != nil {
		h.log.Warn("record success counter", zap.Int64("destination", dest.ID), zap.Error(rerr))
	}
	h.log.Info("webhook delivered",
		zap.String("destination", dest.Name),
		zap.Int("status", res.StatusCode),
	)
	return res, nil
}

func buildPayload(dest *webhook.Destination, rec *notification.Record, now time.Time) ([]byte, string, error) {
	data := make(map[string]any, len(rec.Metadata)+2)
	for k, v := range rec.Metadata {
		if k == "destination_id" {
			continue
		}
		data[k] = v
	}
	if rec.Subject != "" {
		data["subject"] = rec.Subject
	}
	if rec.Content != "" {
		data["message"] = rec.Content
	}

	if dest.ContentType == webhook.ContentTypeForm {
		dataJSON, err := json.Marshal(data)
		if err != nil {
			return nil, "", fmt.Errorf("encode form data: %w", err)
		}
		form := url.Values{}
		form.Set("event", rec.EventType)
		form.Set("timestamp", strconv.FormatInt(now.Unix(), 10))
		form.Set("data", string(dataJSON))
		return []byte(form.Encode()), webhook.ContentTypeForm, nil
	}

	payload := map[string]any{
		"event":     rec.EventType,
		"timestamp": now.Unix(),
		"data":      data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("encode payload: %w", err)
	}
	ct := dest.ContentType
	if ct == "" {
		ct = webhook.ContentTypeJSON
	}
	return body, ct, nil
}

func applyAuth(req *http.Request, dest *webhook.Destination) {
	switch dest.AuthType {
	case webhook.AuthBearer:
		req.Header.Set("Authorization", "Bearer "+dest.AuthToken)
	case webhook.AuthBasic:
		req.SetBasicAuth(dest.AuthUser, dest.AuthPass)
	case webhook.AuthAPIKey:
		header := dest.APIKeyHeader
		if header == "" {
			header = "X-Api-Key"
		}
		req.Header.Set(header, dest.AuthToken)
	}
}

// metaInt64 digs a numeric id out of record metadata. Values arrive as
// float64 or json.Number after a JSON round-trip through the queue.
func metaInt64(meta map[string]any, key string) (int64, bool) {
	v, ok := meta[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case json.Number:
		n, err := t.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

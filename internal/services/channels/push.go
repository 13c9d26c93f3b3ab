package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/motorlog/notifier/internal/domain/notification"
	"github.com/motorlog/notifier/internal/domain/settings"
)

const fcmDefaultEndpoint = "https://fcm.googleapis.com/fcm/send"

// pushVariant wires one push flavor to its settings keys. All variants post
// JSON to an HTTP gateway; the provider wire format beyond that is the
// gateway's concern.
type pushVariant struct {
	channel     notification.Channel
	enabledKey  string
	endpointKey string
	tokenKey    string
	defaultURL  string
	authScheme  string // "Bearer" or "key"
	payload     func(rec *notification.Record) any
}

var pushVariants = map[notification.Channel]pushVariant{
	notification.ChannelPushGeneric: {
		channel:     notification.ChannelPushGeneric,
		enabledKey:  "push_generic_enabled",
		endpointKey: "generic_endpoint",
		tokenKey:    "generic_token",
		authScheme:  "Bearer",
		payload:     genericPushPayload,
	},
	notification.ChannelPushFCM: {
		channel:     notification.ChannelPushFCM,
		enabledKey:  "push_fcm_enabled",
		endpointKey: "fcm_endpoint",
		tokenKey:    "fcm_server_key",
		defaultURL:  fcmDefaultEndpoint,
		authScheme:  "key",
		payload:     fcmPayload,
	},
	notification.ChannelPushAPNS: {
		channel:     notification.ChannelPushAPNS,
		enabledKey:  "push_apns_enabled",
		endpointKey: "apns_gateway",
		tokenKey:    "apns_token",
		authScheme:  "Bearer",
		payload:     genericPushPayload,
	},
	notification.ChannelPushWeb: {
		channel:     notification.ChannelPushWeb,
		enabledKey:  "push_web_enabled",
		endpointKey: "webpush_gateway",
		tokenKey:    "webpush_token",
		authScheme:  "Bearer",
		payload:     genericPushPayload,
	},
}

var _ Handler = (*PushHandler)(nil)

type PushHandler struct {
	variant  pushVariant
	settings settings.Store
	client   *http.Client
	log      *zap.Logger
}

func NewPushHandler(channel notification.Channel, st settings.Store, log *zap.Logger) *PushHandler {
	v, ok := pushVariants[channel]
	if !ok {
		panic(fmt.Sprintf("not a push channel: %s", channel))
	}
	return &PushHandler{
		variant:  v,
		settings: st,
		client:   newHTTPClient(10 * time.Second),
		log:      log.With(zap.String("component", "channels.push"), zap.String("channel", string(channel))),
	}
}

func (h *PushHandler) endpoint(ctx context.Context) string {
	return settings.String(ctx, h.settings, "push", h.variant.endpointKey, h.variant.defaultURL)
}

func (h *PushHandler) IsEnabled(ctx context.Context) bool {
	if !settings.Bool(ctx, h.settings, "notifications", h.variant.enabledKey, false) {
		return false
	}
	return h.endpoint(ctx) != "" && settings.String(ctx, h.settings, "push", h.variant.tokenKey, "") != ""
}

func (h *PushHandler) Send(ctx context.Context, rec *notification.Record) (*notification.SendResult, error) {
	endpoint := h.endpoint(ctx)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: %s gateway not configured", ErrConfig, h.variant.channel)
	}
	token := settings.String(ctx, h.settings, "push", h.variant.tokenKey, "")
	if token == "" {
		return nil, fmt.Errorf("%w: %s credentials not configured", ErrConfig, h.variant.channel)
	}

	body, err := json.Marshal(h.variant.payload(rec))
	if err != nil {
		return nil, fmt.Errorf("encode push payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build push request: %v", ErrConfig, err)
	}
	req.Header.Set("Content-Type", "application/json")
	switch h.variant.authScheme {
	case "key":
		req.Header.Set("Authorization", "key="+token)
	default:
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := doRequest(h.client, req)
	if err != nil {
		return nil, fmt.Errorf("%s post: %w", h.variant.channel, err)
	}
	h.log.Info("push delivered", zap.Int("status", res.StatusCode))
	return res, nil
}

func genericPushPayload(rec *notification.Record) any {
	return map[string]any{
		"to":    rec.Recipient,
		"title": rec.Subject,
		"body":  rec.Content,
		"data":  rec.Metadata,
	}
}

func fcmPayload(rec *notification.Record) any {
	return map[string]any{
		"to": rec.Recipient,
		"notification": map[string]any{
			"title": rec.Subject,
			"body":  rec.Content,
		},
		"data": rec.Metadata,
	}
}

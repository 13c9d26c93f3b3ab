package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/motorlog/notifier/internal/domain/notification"
	"github.com/motorlog/notifier/internal/domain/settings"
)

const smsDefaultAPIBase = "https://api.twilio.com"

var _ Handler = (*SMSHandler)(nil)

// SMSHandler delivers through a Twilio-compatible REST API. Credentials live
// in the settings store (category "sms").
type SMSHandler struct {
	settings settings.Store
	client   *http.Client
	log      *zap.Logger
}

func NewSMSHandler(st settings.Store, log *zap.Logger) *SMSHandler {
	return &SMSHandler{
		settings: st,
		client:   newHTTPClient(10 * time.Second),
		log:      log.With(zap.String("component", "channels.sms")),
	}
}

func (h *SMSHandler) IsEnabled(ctx context.Context) bool {
	if !settings.Bool(ctx, h.settings, "notifications", "sms_enabled", false) {
		return false
	}
	return settings.String(ctx, h.settings, "sms", "account_sid", "") != "" &&
		settings.String(ctx, h.settings, "sms", "auth_token", "") != "" &&
		settings.String(ctx, h.settings, "sms", "from_number", "") != ""
}

func (h *SMSHandler) Send(ctx context.Context, rec *notification.Record) (*notification.SendResult, error) {
	sid := settings.String(ctx, h.settings, "sms", "account_sid", "")
	token := settings.String(ctx, h.settings, "sms", "auth_token", "")
	from := settings.String(ctx, h.settings, "sms", "from_number", "")
	if sid == "" || token == "" || from == "" {
		return nil, fmt.Errorf("%w: sms credentials not configured", ErrConfig)
	}
	apiBase := settings.String(ctx, h.settings, "sms", "api_base", smsDefaultAPIBase)

	// SMS has no subject line; prepend it when present.
	body := rec.Content
	if rec.Subject != "" {
		body = rec.Subject + "\n" + rec.Content
	}

	form := url.Values{}
	form.Set("To", rec.Recipient)
	form.Set("From", from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", strings.TrimRight(apiBase, "/"), sid)

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build sms request: %v", ErrConfig, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(sid, token)

	res, err := doRequest(h.client, req)
	if err != nil {
		return nil, fmt.Errorf("sms post: %w", err)
	}
	h.log.Info("sms delivered", zap.String("to", rec.Recipient), zap.Int("status", res.StatusCode))
	return res, nil
}

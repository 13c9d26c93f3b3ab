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
	"github.com/motorlog/notifier/internal/pkg/ratelimit"
)

// ChatHandler posts to incoming-webhook style chat integrations. The
// recipient is the room's webhook URL; only the payload shape differs per
// flavor.
type ChatHandler struct {
	channel    notification.Channel
	enabledKey string
	settings   settings.Store
	limiter    *ratelimit.FixedWindow
	client     *http.Client
	log        *zap.Logger
	payload    func(rec *notification.Record) any
}

var _ Handler = (*ChatHandler)(nil)

func NewSlackHandler(st settings.Store, limiter *ratelimit.FixedWindow, log *zap.Logger) *ChatHandler {
	return newChatHandler(notification.ChannelSlack, "slack_enabled", st, limiter, log, slackPayload)
}

func NewDiscordHandler(st settings.Store, limiter *ratelimit.FixedWindow, log *zap.Logger) *ChatHandler {
	return newChatHandler(notification.ChannelDiscord, "discord_enabled", st, limiter, log, discordPayload)
}

func NewTeamsHandler(st settings.Store, limiter *ratelimit.FixedWindow, log *zap.Logger) *ChatHandler {
	return newChatHandler(notification.ChannelTeams, "teams_enabled", st, limiter, log, teamsPayload)
}

func newChatHandler(
	channel notification.Channel,
	enabledKey string,
	st settings.Store,
	limiter *ratelimit.FixedWindow,
	log *zap.Logger,
	payload func(rec *notification.Record) any,
) *ChatHandler {
	return &ChatHandler{
		channel:    channel,
		enabledKey: enabledKey,
		settings:   st,
		limiter:    limiter,
		client:     newHTTPClient(10 * time.Second),
		log:        log.With(zap.String("component", "channels.chat"), zap.String("channel", string(channel))),
		payload:    payload,
	}
}

func (h *ChatHandler) IsEnabled(ctx context.Context) bool {
	return settings.Bool(ctx, h.settings, "notifications", h.enabledKey, false)
}

func (h *ChatHandler) Send(ctx context.Context, rec *notification.Record) (*notification.SendResult, error) {
	if rec.Recipient == "" {
		return nil, fmt.Errorf("%w: empty chat webhook URL", ErrConfig)
	}

	key := string(h.channel) + ":" + rec.Recipient
	if !h.limiter.CanSend(key) {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, rec.Recipient)
	}

	body, err := json.Marshal(h.payload(rec))
	if err != nil {
		return nil, fmt.Errorf("encode chat payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, rec.Recipient, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build chat request: %v", ErrConfig, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := doRequest(h.client, req)
	if err != nil {
		return nil, fmt.Errorf("%s post: %w", h.channel, err)
	}
	h.log.Info("chat message delivered", zap.Int("status", res.StatusCode))
	return res, nil
}

func slackPayload(rec *notification.Record) any {
	text := rec.Content
	if rec.Subject != "" {
		text = "*" + rec.Subject + "*\n" + rec.Content
	}
	return map[string]any{"text": text}
}

func discordPayload(rec *notification.Record) any {
	content := rec.Content
	if rec.Subject != "" {
		content = "**" + rec.Subject + "**\n" + rec.Content
	}
	return map[string]any{"content": content}
}

func teamsPayload(rec *notification.Record) any {
	return map[string]any{
		"@type":    "MessageCard",
		"@context": "https://schema.org/extensions",
		"summary":  rec.Subject,
		"title":    rec.Subject,
		"text":     rec.Content,
	}
}

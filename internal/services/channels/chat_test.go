package channels

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/motorlog/notifier/internal/domain/notification"
	"github.com/motorlog/notifier/internal/pkg/ratelimit"
)

func chatRecord(ch notification.Channel, url string) *notification.Record {
	return &notification.Record{
		ID:          3,
		Channel:     ch,
		EventType:   "check.down",
		Recipient:   url,
		Subject:     "Down",
		Content:     "pg-1 is down",
		MaxAttempts: 3,
	}
}

func TestChatSend_SlackPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewSlackHandler(newMemSettings(nil), ratelimit.New(time.Minute, 30), zap.NewNop())
	_, err := h.Send(context.Background(), chatRecord(notification.ChannelSlack, srv.URL))
	require.NoError(t, err)
	require.Equal(t, "*Down*\npg-1 is down", got["text"])
}

func TestChatSend_DiscordPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := NewDiscordHandler(newMemSettings(nil), ratelimit.New(time.Minute, 30), zap.NewNop())
	_, err := h.Send(context.Background(), chatRecord(notification.ChannelDiscord, srv.URL))
	require.NoError(t, err)
	require.Equal(t, "**Down**\npg-1 is down", got["content"])
}

func TestChatSend_TeamsPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewTeamsHandler(newMemSettings(nil), ratelimit.New(time.Minute, 30), zap.NewNop())
	_, err := h.Send(context.Background(), chatRecord(notification.ChannelTeams, srv.URL))
	require.NoError(t, err)
	require.Equal(t, "MessageCard", got["@type"])
	require.Equal(t, "Down", got["title"])
	require.Equal(t, "pg-1 is down", got["text"])
}

func TestChatSend_EmptyURLIsConfigError(t *testing.T) {
	h := NewSlackHandler(newMemSettings(nil), ratelimit.New(time.Minute, 30), zap.NewNop())
	_, err := h.Send(context.Background(), chatRecord(notification.ChannelSlack, ""))
	require.ErrorIs(t, err, ErrConfig)
}

func TestChatSend_RateLimitPerRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	limiter := ratelimit.New(time.Minute, 1)
	h := NewSlackHandler(newMemSettings(nil), limiter, zap.NewNop())

	_, err := h.Send(context.Background(), chatRecord(notification.ChannelSlack, srv.URL))
	require.NoError(t, err)
	_, err = h.Send(context.Background(), chatRecord(notification.ChannelSlack, srv.URL))
	require.ErrorIs(t, err, ErrRateLimited)

	// a different room has its own window
	_, err = h.Send(context.Background(), chatRecord(notification.ChannelSlack, srv.URL+"/other"))
	require.NoError(t, err)
}

func TestChatIsEnabled_DefaultsOff(t *testing.T) {
	ctx := context.Background()
	st := newMemSettings(nil)
	limiter := ratelimit.New(time.Minute, 30)

	require.False(t, NewSlackHandler(st, limiter, zap.NewNop()).IsEnabled(ctx))
	require.False(t, NewDiscordHandler(st, limiter, zap.NewNop()).IsEnabled(ctx))
	require.False(t, NewTeamsHandler(st, limiter, zap.NewNop()).IsEnabled(ctx))

	st.set("notifications", "slack_enabled", "true")
	require.True(t, NewSlackHandler(st, limiter, zap.NewNop()).IsEnabled(ctx))
	require.False(t, NewDiscordHandler(st, limiter, zap.NewNop()).IsEnabled(ctx))
}

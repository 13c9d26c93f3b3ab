package channels

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/motorlog/notifier/internal/domain/notification"
)

func TestPushSend_FCM(t *testing.T) {
	var (
		got     map[string]any
		gotAuth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := newMemSettings(map[string]string{
		"push/fcm_endpoint":   srv.URL,
		"push/fcm_server_key": "srvkey",
	})
	h := NewPushHandler(notification.ChannelPushFCM, st, zap.NewNop())

	rec := &notification.Record{
		Channel:   notification.ChannelPushFCM,
		EventType: "check.down",
		Recipient: "device-token-1",
		Subject:   "Down",
		Content:   "pg-1 is down",
		Metadata:  map[string]any{"host": "pg-1"},
	}
	_, err := h.Send(context.Background(), rec)
	require.NoError(t, err)

	require.Equal(t, "key=srvkey", gotAuth)
	require.Equal(t, "device-token-1", got["to"])
	notif := got["notification"].(map[string]any)
	require.Equal(t, "Down", notif["title"])
	require.Equal(t, "pg-1 is down", notif["body"])
}

func TestPushSend_GenericBearer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	st := newMemSettings(map[string]string{
		"push/generic_endpoint": srv.URL,
		"push/generic_token":    "tok",
	})
	h := NewPushHandler(notification.ChannelPushGeneric, st, zap.NewNop())

	_, err := h.Send(context.Background(), chatRecord(notification.ChannelPushGeneric, "device-1"))
	require.NoError(t, err)
	require.Equal(t, "Bearer tok", gotAuth)
}

func TestPushSend_MissingCredentials(t *testing.T) {
	st := newMemSettings(map[string]string{"push/generic_endpoint": "http://gw.internal"})
	h := NewPushHandler(notification.ChannelPushGeneric, st, zap.NewNop())

	_, err := h.Send(context.Background(), chatRecord(notification.ChannelPushGeneric, "device-1"))
	require.ErrorIs(t, err, ErrConfig)
}

func TestPushIsEnabled(t *testing.T) {
	ctx := context.Background()

	st := newMemSettings(nil)
	h := NewPushHandler(notification.ChannelPushFCM, st, zap.NewNop())
	require.False(t, h.IsEnabled(ctx)) // off by default

	st.set("notifications", "push_fcm_enabled", "true")
	require.False(t, h.IsEnabled(ctx)) // still no server key

	st.set("push", "fcm_server_key", "srvkey")
	require.True(t, h.IsEnabled(ctx)) // endpoint falls back to the FCM default
}

func TestNewPushHandler_PanicsOnNonPushChannel(t *testing.T) {
	require.Panics(t, func() {
		NewPushHandler(notification.ChannelEmail, newMemSettings(nil), zap.NewNop())
	})
}

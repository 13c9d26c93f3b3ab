package channels

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/motorlog/notifier/internal/domain/notification"
	"github.com/motorlog/notifier/internal/domain/settings"
)

// memSettings is a test double for the admin settings store.
type memSettings struct {
	mu     sync.Mutex
	values map[string]string // "category/key" -> value
}

func newMemSettings(kv map[string]string) *memSettings {
	if kv == nil {
		kv = map[string]string{}
	}
	return &memSettings{values: kv}
}

func (s *memSettings) Get(ctx context.Context, category, key string) (*settings.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[category+"/"+key]
	if !ok {
		return nil, nil
	}
	return &settings.Setting{Value: v}, nil
}

func (s *memSettings) set(category, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[category+"/"+key] = value
}

type staticHandler struct{ enabled bool }

func (h staticHandler) IsEnabled(context.Context) bool { return h.enabled }
func (h staticHandler) Send(context.Context, *notification.Record) (*notification.SendResult, error) {
	return &notification.SendResult{Response: "ok"}, nil
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(map[notification.Channel]Handler{
		notification.ChannelEmail: staticHandler{enabled: true},
	})

	h, ok := r.Get(notification.ChannelEmail)
	require.True(t, ok)
	require.NotNil(t, h)

	_, ok = r.Get(notification.ChannelSMS)
	require.False(t, ok)
}

func TestRegistry_Enabled(t *testing.T) {
	r := NewRegistry(map[notification.Channel]Handler{
		notification.ChannelEmail:   staticHandler{enabled: true},
		notification.ChannelSlack:   staticHandler{enabled: false},
		notification.ChannelWebhook: staticHandler{enabled: true},
		notification.ChannelInApp:   staticHandler{enabled: false},
	})

	got := r.Enabled(context.Background())
	require.Equal(t, []notification.Channel{
		notification.ChannelEmail,
		notification.ChannelInApp, // always deliverable
		notification.ChannelWebhook,
	}, got)
}

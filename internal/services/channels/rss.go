package channels

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/motorlog/notifier/internal/domain/notification"
	"github.com/motorlog/notifier/internal/domain/settings"
	"github.com/motorlog/notifier/internal/repository/postgres"
)

// FeedStore is what the RSS handler needs from storage; implemented by
// *postgres.FeedRepo.
type FeedStore interface {
	Insert(ctx context.Context, item *postgres.FeedItem) error
}

var _ Handler = (*RSSHandler)(nil)

// RSSHandler appends an item to the public feed. The feed XML is served by
// the web layer.
type RSSHandler struct {
	store    FeedStore
	settings settings.Store
	log      *zap.Logger
}

func NewRSSHandler(store FeedStore, st settings.Store, log *zap.Logger) *RSSHandler {
	return &RSSHandler{store: store, settings: st, log: log.With(zap.String("component", "channels.rss"))}
}

func (h *RSSHandler) IsEnabled(ctx context.Context) bool {
	return settings.Bool(ctx, h.settings, "notifications", "rss_enabled", true)
}

func (h *RSSHandler) Send(ctx context.Context, rec *notification.Record) (*notification.SendResult, error) {
	guid := metaString(rec.Metadata, "guid")
	if guid == "" {
		guid = uuid.NewString()
	}
	item := &postgres.FeedItem{
		GUID:        guid,
		Title:       rec.Subject,
		Description: rec.Content,
		Link:        metaString(rec.Metadata, "link"),
	}
	if err := h.store.Insert(ctx, item); err != nil {
		if errors.Is(err, postgres.ErrConflict) {
			// Same guid already published; delivery is effectively done.
			return &notification.SendResult{Response: "feed item already present: " + guid}, nil
		}
		return nil, fmt.Errorf("store feed item: %w", err)
	}
	return &notification.SendResult{Response: "feed item " + guid}, nil
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/motorlog/notifier/internal/domain/notification"
	"github.com/motorlog/notifier/internal/repository/postgres"
)

// InAppStore is what the IN_APP handler needs from storage; implemented by
// *postgres.InAppRepo.
type InAppStore interface {
	Insert(ctx context.Context, n *postgres.InAppNotification) error
}

var _ Handler = (*InAppHandler)(nil)

// InAppHandler writes the notification where the web UI picks it up. Always
// enabled; there is no external provider to be down.
type InAppHandler struct {
	store InAppStore
	log   *zap.Logger
}

func NewInAppHandler(store InAppStore, log *zap.Logger) *InAppHandler {
	return &InAppHandler{store: store, log: log.With(zap.String("component", "channels.inapp"))}
}

func (h *InAppHandler) IsEnabled(context.Context) bool { return true }

func (h *InAppHandler) Send(ctx context.Context, rec *notification.Record) (*notification.SendResult, error) {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	n := &postgres.InAppNotification{
		UserID:    rec.UserID,
		EventType: rec.EventType,
		Subject:   rec.Subject,
		Content:   rec.Content,
		Metadata:  meta,
	}
	if err := h.store.Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("store inapp notification: %w", err)
	}
	return &notification.SendResult{Response: "stored as inapp #" + strconv.FormatInt(n.ID, 10)}, nil
}

package ingest

import (
	"fmt"

	"github.com/motorlog/notifier/internal/domain/notification"
)

// Event is the inbound application event. Preference filtering happens
// upstream: the producer already resolved which recipients get which
// channels.
type Event struct {
	Type       string         `json:"event"`
	UserID     *int64         `json:"user_id,omitempty"`
	Subject    string         `json:"subject,omitempty"` // fallback when no template exists
	Content    string         `json:"content,omitempty"`
	Data       map[string]any `json:"data"`
	Recipients []Recipient    `json:"recipients"`
}

// Recipient pairs a channel with a channel-specific address (email address,
// chat webhook URL, device token, phone number...).
type Recipient struct {
	Channel notification.Channel `json:"channel"`
	Address string               `json:"address"`
	UserID  *int64               `json:"user_id,omitempty"`
}

func (e *Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("empty event type")
	}
	for i, r := range e.Recipients {
		if !r.Channel.Valid() {
			return fmt.Errorf("recipient %d: invalid channel %q", i, r.Channel)
		}
	}
	return nil
}

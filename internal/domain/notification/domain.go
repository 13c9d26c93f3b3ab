package notification

import (
	"fmt"
	"time"
)

// Channel identifies a delivery mechanism. Each channel has exactly one
// registered handler.
type Channel string

const (
	ChannelEmail       Channel = "EMAIL"
	ChannelWebhook     Channel = "WEBHOOK"
	ChannelTeams       Channel = "CHAT_TEAMS"
	ChannelSlack       Channel = "CHAT_SLACK"
	ChannelDiscord     Channel = "CHAT_DISCORD"
	ChannelPushGeneric Channel = "PUSH_GENERIC"
	ChannelPushFCM     Channel = "PUSH_FCM"
	ChannelPushAPNS    Channel = "PUSH_APNS"
	ChannelPushWeb     Channel = "PUSH_WEB"
	ChannelSMS         Channel = "SMS"
	ChannelInApp       Channel = "IN_APP"
	ChannelRSS         Channel = "RSS"
)

var allChannels = map[Channel]struct{}{
	ChannelEmail: {}, ChannelWebhook: {}, ChannelTeams: {}, ChannelSlack: {},
	ChannelDiscord: {}, ChannelPushGeneric: {}, ChannelPushFCM: {}, ChannelPushAPNS: {},
	ChannelPushWeb: {}, ChannelSMS: {}, ChannelInApp: {}, ChannelRSS: {},
}

func (c Channel) Valid() bool {
	_, ok := allChannels[c]
	return ok
}

// Status is the lifecycle state of a queued record.
//
//	PENDING -> PROCESSING -> SENT | FAILED | back to PENDING (retry)
//	PENDING -> SKIPPED (handler disabled)
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSent       Status = "SENT"
	StatusFailed     Status = "FAILED"
	StatusSkipped    Status = "SKIPPED"
)

const DefaultMaxAttempts = 3

// Record is the unit of work in the delivery queue. Subject and Content are
// rendered once, at enqueue time; handlers never touch templates.
type Record struct {
	ID           int64
	UserID       *int64 // nil for system-wide notifications
	Channel      Channel
	EventType    string
	Recipient    string // address/URL/token, channel-dependent
	Subject      string
	Content      string
	Metadata     map[string]any
	Status       Status
	Attempts     int
	MaxAttempts  int
	ScheduledAt  time.Time
	SentAt       *time.Time
	FailedAt     *time.Time
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *Record) Validate() error {
	if !r.Channel.Valid() {
		return fmt.Errorf("invalid channel %q", r.Channel)
	}
	if r.EventType == "" {
		return fmt.Errorf("empty event type")
	}
	if r.Recipient == "" && r.Channel != ChannelInApp && r.Channel != ChannelRSS {
		return fmt.Errorf("empty recipient for channel %q", r.Channel)
	}
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", r.MaxAttempts)
	}
	return nil
}

// SendResult is what a handler reports on a successful delivery. Response is
// the raw provider response (or a short summary) kept for the history log.
type SendResult struct {
	StatusCode int // 0 when the provider is not HTTP-based
	Response   string
}

// HistoryEntry is an immutable audit record, written once per terminal
// attempt (SENT or FAILED). Never updated, only dropped by retention purge.
type HistoryEntry struct {
	ID             int64
	NotificationID int64
	Channel        Channel
	Recipient      string
	Status         Status
	Response       string
	CreatedAt      time.Time
}

type Clock interface {
	Now() time.Time
}

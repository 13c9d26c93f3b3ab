package webhook

import "time"

type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthAPIKey AuthType = "api_key"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// Destination is a configured outbound webhook target. Created and edited
// out-of-band; the dispatcher consumes it read-only except for the
// success/failure counters.
type Destination struct {
	ID           int64
	Name         string
	URL          string
	Method       string // defaults to POST
	ContentType  string
	AuthType     AuthType
	AuthToken    string // bearer token or api-key value
	AuthUser     string
	AuthPass     string
	APIKeyHeader string
	Secret       string // HMAC secret; empty means unsigned
	Timeout      time.Duration
	MaxPerMinute int // rate cap override; 0 means the limiter default
	Events       []string
	Enabled      bool
	SuccessCount int64
	FailureCount int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Subscribed reports whether the destination wants deliveries for the given
// event type. A literal "*" subscribes to everything.
func (d *Destination) Subscribed(eventType string) bool {
	for _, e := range d.Events {
		if e == "*" || e == eventType {
			return true
		}
	}
	return false
}

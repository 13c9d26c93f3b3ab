package webhook

import "context"

type Repo interface {
	GetByID(ctx context.Context, id int64) (*Destination, error)
	// ListSubscribed returns enabled destinations subscribed to eventType
	// (including wildcard subscriptions).
	ListSubscribed(ctx context.Context, eventType string) ([]*Destination, error)
	// RecordResult bumps the destination's running success/failure counter.
	RecordResult(ctx context.Context, id int64, ok bool) error
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
)

// JSONHandler adapts a typed handler to the raw consumer Handler by decoding
// the message value as JSON. Undecodable messages are dropped (returned as
// nil) after surfacing the decode error to onBad, so a poison message cannot
// wedge the partition.
func JSONHandler[T any](onMsg func(ctx context.Context, key []byte, msg *T) error, onBad func(err error)) Handler {
	return func(ctx context.Context, key, value []byte) error {
		var msg T
		if err := json.Unmarshal(value, &msg); err != nil {
			if onBad != nil {
				onBad(fmt.Errorf("decode event: %w", err))
			}
			return nil
		}
		return onMsg(ctx, key, &msg)
	}
}

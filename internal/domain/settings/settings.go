package settings

import (
	"context"
	"strconv"
	"strings"
)

// Setting is a single admin-configured value. Encrypted values are decrypted
// by the owning application before they reach this store.
type Setting struct {
	Value     string
	Encrypted bool
}

// Store is the external settings collaborator. Get returns (nil, nil) when
// the key is not configured.
type Store interface {
	Get(ctx context.Context, category, key string) (*Setting, error)
}

// String looks up a setting and falls back to def when absent or on error.
func String(ctx context.Context, s Store, category, key, def string) string {
	v, err := s.Get(ctx, category, key)
	if err != nil || v == nil {
		return def
	}
	return v.Value
}

// Bool interprets a setting as a boolean ("true", "1", "yes", "on").
func Bool(ctx context.Context, s Store, category, key string, def bool) bool {
	v, err := s.Get(ctx, category, key)
	if err != nil || v == nil {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v.Value)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return def
}

func Int(ctx context.Context, s Store, category, key string, def int) int {
	v, err := s.Get(ctx, category, key)
	if err != nil || v == nil {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v.Value))
	if err != nil {
		return def
	}
	return n
}

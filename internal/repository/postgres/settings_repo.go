package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	gocache "github.com/patrickmn/go-cache"

	"github.com/motorlog/notifier/internal/domain/settings"
)

var _ settings.Store = (*SettingsRepo)(nil)

// SettingsRepo reads admin settings with a small TTL cache in front, since
// handlers consult IsEnabled on every dispatch cycle.
type SettingsRepo struct {
	db    *DB
	cache *gocache.Cache
}

const settingsCacheTTL = 30 * time.Second

func NewSettingsRepo(db *DB) *SettingsRepo {
	return &SettingsRepo{
		db:    db,
		cache: gocache.New(settingsCacheTTL, 2*settingsCacheTTL),
	}
}

const qSettingGet = `
SELECT value, is_encrypted FROM app_settings WHERE category = $1 AND key = $2;
`

// cached wraps a lookup result; found=false caches the absence of a key.
type cachedSetting struct {
	setting *settings.Setting
	found   bool
}

func (r *SettingsRepo) Get(ctx context.Context, category, key string) (*settings.Setting, error) {
	ck := category + "/" + key
	if v, ok := r.cache.Get(ck); ok {
		cs := v.(cachedSetting)
		if !cs.found {
			return nil, nil
		}
		return cs.setting, nil
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var s settings.Setting
	err := r.db.Pool.QueryRow(ctx, qSettingGet, category, key).Scan(&s.Value, &s.Encrypted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.cache.SetDefault(ck, cachedSetting{})
			return nil, nil
		}
		return nil, fmt.Errorf("get setting %s/%s: %w", category, key, err)
	}

	r.cache.SetDefault(ck, cachedSetting{setting: &s, found: true})
	return &s, nil
}

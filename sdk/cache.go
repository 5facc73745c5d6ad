package sdk

import (
	"context"

	"github.com/httye/fetchplayers/internal/cache"
)

// CacheStore is the response cache used by the client. Get reports
// absence with false; failures inside the store are logged, not returned.
// *cache.Store, built by OpenCacheStore, is the provided implementation.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, payload []byte) error
	Clear(ctx context.Context) error
	Close() error
}

// PrunableStore is a CacheStore that can drop stale entries in bulk
type PrunableStore interface {
	CacheStore
	Prune(ctx context.Context) (int, error)
}

var _ PrunableStore = (*cache.Store)(nil)

// OpenCacheStore builds the store described by the cache fields of config.
// Use it with Config.WithCacheStore to share one store between clients.
//
// Example:
//
//	store, err := sdk.OpenCacheStore(ctx, sdk.DefaultConfig().
//	    WithCacheLocation("redis://localhost:6379/0"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
func OpenCacheStore(ctx context.Context, config *Config) (CacheStore, error) {
	cfg := cache.DefaultConfig()
	cfg.Enabled = config.CacheEnabled
	cfg.TTL = config.CacheTTL
	cfg.Location = config.CacheLocation

	var opts []cache.Option
	if config.Logger != nil {
		opts = append(opts, cache.WithLogger(config.Logger.WithField("component", "cache")))
	}

	store, err := cache.Open(ctx, cfg, opts...)
	if err != nil {
		return nil, WrapError(err, ErrorTypeUnknown, "failed to open cache store")
	}
	return store, nil
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier persists records in Redis. Entries also carry a server-side
// expiry equal to the store TTL so abandoned keys do not accumulate.
type RedisTier struct {
	client *redis.Client
	prefix string
	expiry time.Duration
}

// NewRedisTier connects to the Redis server named by a redis:// or rediss://
// URL and verifies the connection.
func NewRedisTier(ctx context.Context, rawURL, prefix string, expiry time.Duration) (*RedisTier, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Connection settings tuned for a client that issues few, small commands
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 8 * time.Millisecond
	opts.MaxRetryBackoff = 512 * time.Millisecond
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolSize = 4
	opts.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opts)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisTierFromClient(client, prefix, expiry), nil
}

// NewRedisTierFromClient wraps an existing client
func NewRedisTierFromClient(client *redis.Client, prefix string, expiry time.Duration) *RedisTier {
	return &RedisTier{
		client: client,
		prefix: prefix,
		expiry: expiry,
	}
}

// Get retrieves and decodes the record for key
func (r *RedisTier) Get(ctx context.Context, key string) (*Entry, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, NewCacheError("failed to get key", true).WithError(err)
	}

	entry, err := decodeEntry(key, val)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Set stores the record for the entry key
func (r *RedisTier) Set(ctx context.Context, entry *Entry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return NewCacheError("failed to encode cache entry", false).WithError(err)
	}

	// A zero expiry means no server-side expiry; the store still treats the
	// record as stale on read.
	expiry := r.expiry
	if expiry < 0 {
		expiry = 0
	}

	if err := r.client.Set(ctx, r.prefix+entry.Key, data, expiry).Err(); err != nil {
		return NewCacheError("failed to set key", true).WithError(err)
	}
	return nil
}

// Delete removes the record for key
func (r *RedisTier) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return NewCacheError("failed to delete key", true).WithError(err)
	}
	return nil
}

// Clear removes every key under the tier prefix
func (r *RedisTier) Clear(ctx context.Context) error {
	const batch = 100

	iter := r.client.Scan(ctx, 0, r.prefix+"*", batch).Iterator()
	keys := make([]string, 0, batch)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == batch {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return NewCacheError("failed to clear keys", true).WithError(err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return NewCacheError("failed to scan keys", true).WithError(err)
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return NewCacheError("failed to clear keys", true).WithError(err)
		}
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisTier) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

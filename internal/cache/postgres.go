package cache

import (
	"context"
	"errors"
	"time"

	"github.com/httye/fetchplayers/internal/database"
)

// PostgresTier persists records in a PostgreSQL table
type PostgresTier struct {
	db   *database.DB
	repo *database.CacheRepository
}

// NewPostgresTier opens a connection pool for a postgres:// URL and ensures
// the cache table exists. The table name defaults to userinfo_cache and can
// be overridden with a cache_table query parameter.
func NewPostgresTier(ctx context.Context, rawURL string) (*PostgresTier, error) {
	cfg, err := database.NewConfig(rawURL)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &PostgresTier{
		db:   db,
		repo: database.NewCacheRepository(db),
	}, nil
}

// Get retrieves the record for key
func (p *PostgresTier) Get(ctx context.Context, key string) (*Entry, bool, error) {
	rec, err := p.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, NewCacheError("failed to get row", true).WithError(err)
	}

	return &Entry{
		Key:       rec.Key,
		Payload:   rec.Payload,
		CreatedAt: rec.CreatedAt,
	}, true, nil
}

// Set upserts the record for the entry key
func (p *PostgresTier) Set(ctx context.Context, entry *Entry) error {
	err := p.repo.Set(ctx, &database.CacheRecord{
		Key:       entry.Key,
		Payload:   entry.Payload,
		CreatedAt: entry.CreatedAt,
	})
	if err != nil {
		return NewCacheError("failed to set row", true).WithError(err)
	}
	return nil
}

// Delete removes the record for key
func (p *PostgresTier) Delete(ctx context.Context, key string) error {
	if err := p.repo.Delete(ctx, key); err != nil {
		return NewCacheError("failed to delete row", true).WithError(err)
	}
	return nil
}

// Clear removes every row of the cache table
func (p *PostgresTier) Clear(ctx context.Context) error {
	if _, err := p.repo.DeleteAll(ctx); err != nil {
		return NewCacheError("failed to clear rows", true).WithError(err)
	}
	return nil
}

// Prune deletes rows created at or before cutoff
func (p *PostgresTier) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := p.repo.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, NewCacheError("failed to prune rows", true).WithError(err)
	}
	return int(n), nil
}

// Close closes the connection pool
func (p *PostgresTier) Close() error {
	p.db.Close()
	return nil
}

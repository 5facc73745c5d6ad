package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when no row exists for a key
var ErrNotFound = errors.New("cache record not found")

// CacheRepository handles cache-related database operations
type CacheRepository struct {
	db *DB
}

// NewCacheRepository creates a new cache repository
func NewCacheRepository(db *DB) *CacheRepository {
	return &CacheRepository{db: db}
}

// Get retrieves a cache record by key
func (r *CacheRepository) Get(ctx context.Context, key string) (*CacheRecord, error) {
	query := fmt.Sprintf(`
		SELECT cache_key, payload, created_unix_nano
		FROM %s
		WHERE cache_key = $1
	`, r.db.Table())

	var (
		rec     CacheRecord
		created int64
	)
	err := r.db.QueryRow(ctx, query, key).Scan(&rec.Key, &rec.Payload, &created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cache record: %w", err)
	}

	rec.CreatedAt = time.Unix(0, created)
	return &rec, nil
}

// Set creates or overwrites a cache record
func (r *CacheRepository) Set(ctx context.Context, rec *CacheRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (cache_key, payload, created_unix_nano)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE SET
			payload = EXCLUDED.payload,
			created_unix_nano = EXCLUDED.created_unix_nano
	`, r.db.Table())

	payload := rec.Payload
	if payload == nil {
		payload = []byte{}
	}

	if _, err := r.db.Exec(ctx, query, rec.Key, payload, rec.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to set cache record: %w", err)
	}
	return nil
}

// Delete removes a cache record. A missing record is not an error.
func (r *CacheRepository) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE cache_key = $1`, r.db.Table())

	if _, err := r.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete cache record: %w", err)
	}
	return nil
}

// DeleteAll removes every cache record and returns how many were deleted
func (r *CacheRepository) DeleteAll(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s`, r.db.Table())

	result, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache records: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteCreatedBefore removes records written at or before cutoff
func (r *CacheRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE created_unix_nano <= $1`, r.db.Table())

	result, err := r.db.Exec(ctx, query, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache records: %w", err)
	}
	return result.RowsAffected(), nil
}

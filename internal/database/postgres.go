package database

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// DB represents a PostgreSQL database connection pool
type DB struct {
	pool *pgxpool.Pool
	cfg  *Config
}

// NewDB creates a new database connection pool and makes sure the cache
// table exists.
func NewDB(ctx context.Context, cfg *Config) (*DB, error) {
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid cache table name %q", cfg.Table)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Configure pool settings
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		pool: pool,
		cfg:  cfg,
	}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			cache_key         TEXT PRIMARY KEY,
			payload           BYTEA NOT NULL,
			created_unix_nano BIGINT NOT NULL
		)
	`, pgx.Identifier{db.cfg.Table}.Sanitize())

	if _, err := db.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create cache table: %w", err)
	}
	return nil
}

// Table returns the sanitized cache table identifier
func (db *DB) Table() string {
	return pgx.Identifier{db.cfg.Table}.Sanitize()
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Health checks the database health
func (db *DB) Health(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// QueryRow executes a query that returns at most one row
func (db *DB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

// Exec executes a query without returning rows
func (db *DB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

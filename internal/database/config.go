package database

import (
	"fmt"
	"net/url"
	"time"
)

// DefaultTable is the table the cache repository reads and writes
const DefaultTable = "userinfo_cache"

// Config holds database configuration
type Config struct {
	URL             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// NewConfig creates a Config for a postgres:// or postgresql:// URL with pool
// defaults sized for a client library rather than a server.
func NewConfig(rawURL string) (*Config, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}

	table := DefaultTable
	if t := u.Query().Get("cache_table"); t != "" {
		table = t
		q := u.Query()
		q.Del("cache_table")
		u.RawQuery = q.Encode()
	}

	return &Config{
		URL:             u.String(),
		Table:           table,
		MaxConns:        4,
		MinConns:        0,
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}, nil
}

// ConnectionString returns the PostgreSQL connection string
func (c *Config) ConnectionString() string {
	return c.URL
}

package database

import "time"

// CacheRecord is a row of the cache table
type CacheRecord struct {
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

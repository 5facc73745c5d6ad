// Package cache implements the two-tier response cache used by the client.
//
// A Store keeps an in-process map in front of an optional persisted tier
// (a directory, Redis or PostgreSQL, chosen by Config.Location). Entries
// are fresh while now - CreatedAt < TTL and are removed lazily when a read
// finds them stale.
//
// Writes are serialized inside one process only. Several processes sharing
// a persisted tier may overwrite each other's entries; there is no locking
// or invalidation across processes.
package cache

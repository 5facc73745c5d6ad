package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryTier is the in-process tier. It lives as long as the process and is
// only reset by Clear.
type MemoryTier struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryTier creates an empty in-process tier
func NewMemoryTier() *MemoryTier {
	return &MemoryTier{
		entries: make(map[string]*Entry),
	}
}

// Get retrieves an entry from the map
func (m *MemoryTier) Get(_ context.Context, key string) (*Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	return e, ok, nil
}

// Set stores an entry in the map
func (m *MemoryTier) Set(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entry.Key] = entry
	return nil
}

// Delete removes an entry from the map
func (m *MemoryTier) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Clear drops every entry
func (m *MemoryTier) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*Entry)
	return nil
}

// Prune drops entries created at or before cutoff
func (m *MemoryTier) Prune(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, e := range m.entries {
		if !e.CreatedAt.After(cutoff) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of entries currently held
func (m *MemoryTier) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op for the in-process tier
func (m *MemoryTier) Close() error {
	return nil
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/httye/fetchplayers/internal/telemetry"
)

// Store is the two-tier cache. Reads check the in-process tier first and
// fall back to the persisted tier; writes go to both tiers under one lock.
type Store struct {
	mu        sync.RWMutex
	enabled   bool
	ttl       time.Duration
	memory    *MemoryTier
	persisted Tier
	now       func() time.Time
	log       *logrus.Entry
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the time source used to stamp and age entries
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger used to report persisted tier failures
func WithLogger(entry *logrus.Entry) Option {
	return func(s *Store) {
		s.log = entry
	}
}

// New creates a store over an already opened persisted tier. A nil tier
// gives an in-process only store.
func New(persisted Tier, cfg Config, opts ...Option) (*Store, error) {
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("cache TTL must not be negative, got %s", cfg.TTL)
	}

	s := &Store{
		enabled:   cfg.Enabled,
		ttl:       cfg.TTL,
		memory:    NewMemoryTier(),
		persisted: persisted,
		now:       time.Now,
		log:       telemetry.L().WithField("component", "cache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open creates a store and the persisted tier selected by cfg.Location.
// A disabled store opens no persisted tier at all.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return New(nil, cfg, opts...)
	}

	backend, addr, _ := ParseLocation(cfg.Location)

	var tier Tier
	switch backend {
	case BackendFile:
		ft, err := NewFileTier(addr)
		if err != nil {
			return nil, fmt.Errorf("failed to open file cache: %w", err)
		}
		tier = ft
	case BackendRedis:
		prefix := cfg.KeyPrefix
		if prefix == "" {
			prefix = DefaultConfig().KeyPrefix
		}
		rt, err := NewRedisTier(ctx, addr, prefix, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis cache: %w", err)
		}
		tier = rt
	case BackendPostgres:
		pt, err := NewPostgresTier(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres cache: %w", err)
		}
		tier = pt
	}

	return New(tier, cfg, opts...)
}

// Enabled reports whether the store reads and writes at all
func (s *Store) Enabled() bool {
	return s.enabled
}

// TTL returns the freshness window of the store
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get returns the payload stored under key if it is still fresh. Stale and
// corrupt records are removed on the way. Persisted hits are copied into
// the in-process tier with their original timestamp.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if !s.enabled {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()

	if e, ok, _ := s.memory.Get(ctx, key); ok {
		if e.Fresh(now, s.ttl) {
			return e.Payload, true
		}
		_ = s.memory.Delete(ctx, key)
	}

	if s.persisted == nil {
		return nil, false
	}

	e, ok, err := s.persisted.Get(ctx, key)
	if err != nil {
		log := s.log.WithError(err).WithField("key", key)
		if errors.Is(err, ErrCorruptEntry) {
			log.Warn("Discarding corrupt cache entry")
			s.deletePersisted(ctx, key)
		} else {
			log.Warn("Failed to read persisted cache entry")
		}
		return nil, false
	}
	if !ok {
		return nil, false
	}

	if !e.Fresh(now, s.ttl) {
		s.deletePersisted(ctx, key)
		return nil, false
	}

	_ = s.memory.Set(ctx, e)
	return e.Payload, true
}

// Set stores payload under key in both tiers, replacing any previous entry.
// The in-process tier is always updated; a persisted tier failure is
// logged and returned.
func (s *Store) Set(ctx context.Context, key string, payload []byte) error {
	if !s.enabled {
		return nil
	}

	entry := &Entry{
		Key:       key,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.memory.Set(ctx, entry)

	if s.persisted != nil {
		if err := s.persisted.Set(ctx, entry); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("Failed to persist cache entry")
			return err
		}
	}
	return nil
}

// Clear empties both tiers
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.memory.Clear(ctx)

	if s.persisted != nil {
		if err := s.persisted.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Prune removes entries that are no longer fresh from both tiers and
// returns the number removed. Persisted tiers without bulk removal rely
// on their own expiry.
func (s *Store) Prune(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed, _ := s.memory.Prune(ctx, cutoff)

	p, ok := s.persisted.(Pruner)
	if !ok {
		return removed, nil
	}
	n, err := p.Prune(ctx, cutoff)
	return removed + n, err
}

// Close releases the persisted tier
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.persisted != nil {
		return s.persisted.Close()
	}
	return nil
}

func (s *Store) deletePersisted(ctx context.Context, key string) {
	if err := s.persisted.Delete(ctx, key); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("Failed to delete persisted cache entry")
	}
}

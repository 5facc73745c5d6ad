// Package cleanup runs periodic removal of stale cache entries
package cleanup

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/httye/fetchplayers/internal/telemetry"
)

// Pruner removes stale entries and reports how many were removed.
// sdk.Client satisfies it.
type Pruner interface {
	PruneCache(ctx context.Context) (int, error)
}

// Config contains configuration for the cleanup service
type Config struct {
	// Interval between sweeps. Default: 5m
	Interval time.Duration
}

// Result summarizes one sweep
type Result struct {
	Removed  int
	Duration time.Duration
	Err      error
}

// Service sweeps a cache on an interval
type Service struct {
	pruner Pruner
	config Config
	log    *logrus.Entry

	// onSweep is called after every sweep when set
	onSweep func(Result)
}

// NewService creates a new cleanup service
func NewService(pruner Pruner, config Config) *Service {
	// Set defaults
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}

	return &Service{
		pruner: pruner,
		config: config,
		log:    telemetry.L().WithField("component", "cleanup"),
	}
}

// Start sweeps immediately and then on every tick until ctx is done
func (s *Service) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.config.Interval.String()).Info("Cleanup service started")

	// Run immediately on start
	s.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			s.log.Info("Cleanup service stopped")
			return
		}
	}
}

// Sweep runs one pruning pass
func (s *Service) Sweep(ctx context.Context) Result {
	start := time.Now()
	removed, err := s.pruner.PruneCache(ctx)
	res := Result{Removed: removed, Duration: time.Since(start), Err: err}

	entry := s.log.WithFields(logrus.Fields{
		"removed":  removed,
		"duration": res.Duration.String(),
	})
	if err != nil {
		entry.WithError(err).Warn("Cache sweep failed")
	} else {
		entry.Debug("Cache sweep completed")
	}

	if s.onSweep != nil {
		s.onSweep(res)
	}
	return res
}

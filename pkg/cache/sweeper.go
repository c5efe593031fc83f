package cache

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/accessplane/pkg/observability"
)

// Sweepable is a cache that can drop its expired entries in bulk
type Sweepable interface {
	Sweep() int
}

// Sweeper periodically sweeps expired entries out of one or more caches
type Sweeper struct {
	cron    *cron.Cron
	targets []Sweepable
	logger  *observability.Logger
}

// NewSweeper schedules a sweep of every target on schedule, a robfig/cron
// spec such as "@every 1m"
func NewSweeper(schedule string, logger *observability.Logger, targets ...Sweepable) (*Sweeper, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	s := &Sweeper{
		cron:    cron.New(),
		targets: targets,
		logger:  logger,
	}

	if _, err := s.cron.AddFunc(schedule, func() {
		defer observability.RecoverPanic(s.logger, "cache sweep")
		s.SweepNow()
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Add registers another target. It must be called before Start.
func (s *Sweeper) Add(target Sweepable) {
	s.targets = append(s.targets, target)
}

// Start begins running scheduled sweeps in the background
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to end
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SweepNow sweeps every target once and returns the total removed
func (s *Sweeper) SweepNow() int {
	total := 0
	for _, target := range s.targets {
		total += target.Sweep()
	}
	if total > 0 {
		s.logger.WithField("removed", total).Debug("Swept expired cache entries")
	}
	return total
}

// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/finmatch/recommender/internal/recommend"
)

// Refresher is the service surface the scheduler drives.
type Refresher interface {
	RefreshModel(ctx context.Context) recommend.RefreshResult
	Ready() bool
}

// Config holds scheduler configuration.
type Config struct {
	// Interval between the end of one successful refresh and the next.
	Interval time.Duration `koanf:"interval"`

	// FailureCooldown is the wait after a failed refresh.
	FailureCooldown time.Duration `koanf:"failure_cooldown"`

	// StartupDelay is the wait before the initial refresh when no
	// persisted model is available at startup.
	StartupDelay time.Duration `koanf:"startup_delay"`

	// RefreshTimeout bounds a single refresh cycle.
	RefreshTimeout time.Duration `koanf:"refresh_timeout"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:        6 * time.Hour,
		FailureCooldown: 10 * time.Minute,
		StartupDelay:    10 * time.Second,
		RefreshTimeout:  30 * time.Minute,
	}
}

// Scheduler runs refresh cycles until stopped. Implements
// suture.Service.
type Scheduler struct {
	cfg       Config
	refresher Refresher
	logger    zerolog.Logger

	mu         sync.Mutex
	lastResult *recommend.RefreshResult
	refreshing bool
}

// New creates a scheduler for the given refresher.
func New(cfg Config, refresher Refresher, logger zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.FailureCooldown <= 0 {
		cfg.FailureCooldown = 10 * time.Minute
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 30 * time.Minute
	}

	return &Scheduler{
		cfg:       cfg,
		refresher: refresher,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Serve runs the refresh loop until the context is canceled. A cancel
// during the idle wait returns promptly; a refresh already in flight is
// allowed to finish first.
func (s *Scheduler) Serve(ctx context.Context) error {
	// Cold start: if nothing is servable yet, refresh soon after
	// startup instead of waiting a full interval.
	if !s.refresher.Ready() {
		if err := sleepCtx(ctx, s.cfg.StartupDelay); err != nil {
			return err
		}
		s.runRefresh(ctx)
	}

	for {
		wait := s.cfg.Interval
		if last := s.LastResult(); last != nil && !last.Success {
			wait = s.cfg.FailureCooldown
		}

		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
		s.runRefresh(ctx)
	}
}

// LastResult returns the most recent refresh outcome, or nil before
// the first cycle.
func (s *Scheduler) LastResult() *recommend.RefreshResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// Refreshing reports whether a cycle is currently in flight.
func (s *Scheduler) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing
}

func (s *Scheduler) runRefresh(ctx context.Context) {
	s.mu.Lock()
	s.refreshing = true
	s.mu.Unlock()

	// Shutdown cancels the idle wait, not a running cycle: the cycle
	// gets its own timeout detached from the serve context.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RefreshTimeout)
	defer cancel()

	result := s.refresher.RefreshModel(refreshCtx)

	s.mu.Lock()
	s.refreshing = false
	s.lastResult = &result
	s.mu.Unlock()

	if result.Success {
		s.logger.Info().
			Dur("duration", result.Duration).
			Int("users", result.Stats.UserCount).
			Int("items", result.Stats.ItemCount).
			Msg("scheduled refresh complete")
	} else {
		s.logger.Warn().
			Str("error", result.Error).
			Dur("cooldown", s.cfg.FailureCooldown).
			Msg("scheduled refresh failed, backing off")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package keepalive periodically probes the upstream session so that a dead
// connection is detected between requests.
package keepalive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("keepalive scheduler already started")

// Checker probes the upstream session. It must not reconnect.
type Checker interface {
	CheckHealth(ctx context.Context) bool
}

// Scheduler runs Checker.CheckHealth once per interval. The interval is
// measured from the end of one probe to the start of the next.
type Scheduler struct {
	interval time.Duration
	checker  Checker
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns a stopped scheduler.
func New(interval time.Duration, checker Checker, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		checker:  checker,
		logger:   logger.With().Str("component", "keepalive").Logger(),
	}
}

// Start launches the probe loop. It ends when ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)

	s.logger.Info().Dur("interval", s.interval).Msg("keepalive started")
	return nil
}

// Stop cancels the loop and waits for it to exit, or for ctx to expire. A
// probe in flight is cancelled. Stop on a scheduler that never started
// returns nil.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("keepalive did not stop in time")
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("keepalive stopped")
			return
		case <-timer.C:
		}

		if s.checker.CheckHealth(ctx) {
			s.logger.Debug().Msg("upstream healthy")
		} else if ctx.Err() == nil {
			s.logger.Warn().Msg("upstream health check failed")
		}
		timer.Reset(s.interval)
	}
}

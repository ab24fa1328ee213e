package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc runs one unit of work. A non-zero resumeAt later than the regular
// interval postpones the next tick until that instant.
type TickFunc func(ctx context.Context, at time.Time) (resumeAt time.Time, err error)

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
	// SkipInitial waits a full interval before the first tick.
	SkipInitial bool
	Now         func() time.Time
}

// Scheduler drives sequential execution of repricing cycles.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick sequentially until ctx is cancelled. Errors and
// panics raised by tick are logged and never stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	next := s.opts.Now()
	if s.opts.SkipInitial {
		next = next.Add(s.opts.Interval)
	}

	for {
		if delay := next.Sub(s.opts.Now()); delay > 0 {
			s.logger.Debug().Time("next_tick", next).Dur("delay", delay).Msg("waiting for next tick")
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		at := s.opts.Now()
		s.logger.Info().Time("at", at).Msg("executing scheduled tick")

		resumeAt, err := s.safeTick(ctx, tick, at)
		if err != nil {
			s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
		}

		next = s.opts.Now().Add(s.opts.Interval)
		if resumeAt.After(next) {
			s.logger.Info().Time("resume_at", resumeAt).Msg("tick requested a later resume")
			next = resumeAt
		}
	}
}

func (s *Scheduler) safeTick(ctx context.Context, tick TickFunc, at time.Time) (resumeAt time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	return tick(ctx, at)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

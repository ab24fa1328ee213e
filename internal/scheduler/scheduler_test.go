package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunTicksImmediatelyAndSurvivesFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	s := New(Options{Interval: 5 * time.Millisecond}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, at time.Time) (time.Time, error) {
			n := calls.Add(1)
			switch n {
			case 1:
				return time.Time{}, errors.New("listing failed")
			case 2:
				panic("boom")
			case 3:
				cancel()
			}
			return time.Time{}, nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 ticks, got %d", got)
	}
}

func TestRunHonoursResumeAt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stamps []time.Time
	s := New(Options{Interval: time.Millisecond}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, at time.Time) (time.Time, error) {
			stamps = append(stamps, at)
			if len(stamps) == 2 {
				cancel()
			}
			return at.Add(60 * time.Millisecond), nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if len(stamps) != 2 {
		t.Fatalf("expected 2 ticks, got %d", len(stamps))
	}
	if gap := stamps[1].Sub(stamps[0]); gap < 60*time.Millisecond {
		t.Fatalf("second tick came after %s, expected to wait for resume", gap)
	}
}

func TestRunStopsWhileSleeping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(Options{Interval: time.Hour, SkipInitial: true}, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) (time.Time, error) {
			t.Error("tick must not run")
			return time.Time{}, nil
		})
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancellation was not observed within a second")
	}
}

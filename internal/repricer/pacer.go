package repricer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

type pacer interface {
	Wait(ctx context.Context) error
}

type noPause struct{}

func (noPause) Wait(context.Context) error { return nil }

// newPacer lets the first update through immediately and spaces the rest by pause.
func newPacer(pause time.Duration) pacer {
	if pause <= 0 {
		return noPause{}
	}
	return rate.NewLimiter(rate.Every(pause), 1)
}

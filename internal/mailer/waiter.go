package mailer

import (
	"context"
	"time"
)

// Waiter suspends the run between two consecutive sends.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

// WaiterFunc adapts a function to Waiter.
type WaiterFunc func(ctx context.Context, d time.Duration) error

// Wait calls f(ctx, d).
func (f WaiterFunc) Wait(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// Sleeper waits on the wall clock. An interrupt cuts the wait short.
type Sleeper struct{}

// Wait blocks for d or until ctx is done.
func (Sleeper) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

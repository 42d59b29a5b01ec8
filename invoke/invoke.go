// Package invoke triggers step instances.
//
// An [Invoker] starts a new, independent instance of a named step with a
// payload. Invocations are fire-and-forget: success means the trigger was
// accepted, not that the step ran. Delayed invocations are at-least-once and
// a step may observe the same payload twice.
//
// How a step re-triggers itself after a delay is a [RepeatStrategy]:
// [DelayedTrigger] hands the delay to the invoker and returns at once,
// [SleepThenInvoke] waits inside the current instance first.
package invoke

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/stepchain/event"
)

// Invoker triggers a new instance of a step.
type Invoker interface {
	// InvokeAsync triggers step now and returns without waiting for it.
	InvokeAsync(ctx context.Context, step string, payload event.Event) error

	// InvokeDelayed triggers step no earlier than delay from now.
	InvokeDelayed(ctx context.Context, step string, payload event.Event, delay time.Duration) error
}

// RepeatStrategy re-triggers a step after a delay.
type RepeatStrategy interface {
	Repeat(ctx context.Context, inv Invoker, step string, payload event.Event, delay time.Duration) error
}

// DelayedTrigger schedules the repeat through Invoker.InvokeDelayed and
// returns immediately.
type DelayedTrigger struct{}

// Repeat calls inv.InvokeDelayed.
func (DelayedTrigger) Repeat(ctx context.Context, inv Invoker, step string, payload event.Event, delay time.Duration) error {
	return inv.InvokeDelayed(ctx, step, payload, delay)
}

// SleepThenInvoke blocks the current instance for the delay and then calls
// Invoker.InvokeAsync. It fails without sleeping when the context deadline
// leaves less time than the delay.
type SleepThenInvoke struct{}

// Repeat waits for delay, then calls inv.InvokeAsync.
func (SleepThenInvoke) Repeat(ctx context.Context, inv Invoker, step string, payload event.Event, delay time.Duration) error {
	if delay > 0 {
		if dl, ok := ctx.Deadline(); ok {
			if remaining := time.Until(dl); remaining < delay {
				return fmt.Errorf("sleep %s exceeds remaining %s: %w", delay, remaining.Round(time.Millisecond), context.DeadlineExceeded)
			}
		}
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return inv.InvokeAsync(ctx, step, payload)
}

// DefaultRepeatStrategy returns the strategy used when none is configured.
func DefaultRepeatStrategy() RepeatStrategy {
	return DelayedTrigger{}
}

// Split routes immediate invocations to one invoker and delayed ones to
// another, e.g. Lambda async invoke for Next and an SQS queue for Repeat.
type Split struct {
	Immediate Invoker
	Delayed   Invoker
}

// InvokeAsync calls s.Immediate.
func (s Split) InvokeAsync(ctx context.Context, step string, payload event.Event) error {
	return s.Immediate.InvokeAsync(ctx, step, payload)
}

// InvokeDelayed calls s.Delayed, or s.Immediate when delay is zero.
func (s Split) InvokeDelayed(ctx context.Context, step string, payload event.Event, delay time.Duration) error {
	if delay <= 0 {
		return s.Immediate.InvokeAsync(ctx, step, payload)
	}
	return s.Delayed.InvokeDelayed(ctx, step, payload, delay)
}

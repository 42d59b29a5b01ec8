// Package worker provides the self-hosted delivery engine: an Executor that
// runs one claimed delivery through its step runner, and a Pool that manages
// concurrent worker goroutines polling the store for due deliveries.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/backoff"
	"github.com/xraph/stepchain/ext"
	"github.com/xraph/stepchain/runner"
	"github.com/xraph/stepchain/step"
)

// Runners resolves the runner for a step name.
type Runners interface {
	Runner(name string) (*runner.Runner, bool)
}

// RunnerMap is a fixed set of runners keyed by step name.
type RunnerMap map[string]*runner.Runner

// Runner returns the runner for name.
func (m RunnerMap) Runner(name string) (*runner.Runner, bool) {
	r, ok := m[name]
	return r, ok
}

// Executor runs a single delivery through its step runner, then
// acknowledges it, schedules a redelivery, or drops it.
type Executor struct {
	runners         Runners
	store           step.Store
	extensions      *ext.Registry
	backoff         backoff.Strategy
	maxRedeliveries int
	logger          *slog.Logger
}

// NewExecutor creates an Executor. maxRedeliveries bounds how often a
// delivery that failed with a non-permanent error is scheduled again.
func NewExecutor(
	runners Runners,
	store step.Store,
	extensions *ext.Registry,
	bo backoff.Strategy,
	maxRedeliveries int,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	if bo == nil {
		bo = backoff.NewExponential(time.Second, time.Minute)
	}
	return &Executor{
		runners:         runners,
		store:           store,
		extensions:      extensions,
		backoff:         bo,
		maxRedeliveries: maxRedeliveries,
		logger:          logger,
	}
}

// Execute runs d.
// On success: acks the delivery.
// On a permanent failure or when redeliveries are exhausted: acks and logs.
// On any other failure: reschedules with backoff and emits DeliveryRetrying.
// If ctx was cancelled the delivery is left leased so it becomes due again
// once the lease expires.
func (e *Executor) Execute(ctx context.Context, d *step.Delivery) error {
	return e.execute(ctx, d, nil)
}

// execute is Execute with a hook called after the run and before the
// delivery's store record is touched.
func (e *Executor) execute(ctx context.Context, d *step.Delivery, settle func()) error {
	runErr := e.run(ctx, d)
	if settle != nil {
		settle()
	}
	if runErr == nil {
		return e.ack(ctx, d)
	}
	if ctx.Err() != nil {
		e.logger.Warn("delivery interrupted, left for redelivery",
			slog.String("delivery_id", d.ID.String()),
			slog.String("step", d.Step),
		)
		return runErr
	}
	if stepchain.IsPermanent(runErr) || d.Attempt > e.maxRedeliveries {
		return e.drop(ctx, d, runErr)
	}
	return e.redeliver(ctx, d, runErr)
}

func (e *Executor) run(ctx context.Context, d *step.Delivery) error {
	r, ok := e.runners.Runner(d.Step)
	if !ok {
		err := stepchain.NewConfigError(d.Step, stepchain.ErrUnknownStep)
		e.extensions.EmitStepFailed(ctx, &step.Invocation{Step: d.Step, StartedAt: time.Now().UTC()}, err)
		return err
	}

	evt, err := d.Event()
	if err != nil {
		serr := &stepchain.SerializationError{Step: d.Step, Err: err}
		e.extensions.EmitStepFailed(ctx, &step.Invocation{Step: d.Step, StartedAt: time.Now().UTC()}, serr)
		return serr
	}

	// The runner emits its own lifecycle events.
	_, err = r.Execute(ctx, evt)
	return err
}

func (e *Executor) ack(ctx context.Context, d *step.Delivery) error {
	if err := e.store.Ack(ctx, d.ID); err != nil && !errors.Is(err, stepchain.ErrDeliveryNotFound) {
		e.logger.Error("failed to ack delivery",
			slog.String("delivery_id", d.ID.String()),
			slog.String("step", d.Step),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// drop acknowledges a delivery that will never be retried.
func (e *Executor) drop(ctx context.Context, d *step.Delivery, runErr error) error {
	if err := e.ack(ctx, d); err != nil {
		return err
	}
	e.logger.Warn("delivery dropped",
		slog.String("delivery_id", d.ID.String()),
		slog.String("step", d.Step),
		slog.Int("attempt", d.Attempt),
		slog.Bool("permanent", stepchain.IsPermanent(runErr)),
		slog.String("error", runErr.Error()),
	)
	return runErr
}

// redeliver makes the delivery due again after a backoff delay.
func (e *Executor) redeliver(ctx context.Context, d *step.Delivery, runErr error) error {
	delay := e.backoff.Delay(d.Attempt)
	nextRunAt := time.Now().UTC().Add(delay)

	if err := e.store.Reschedule(ctx, d.ID, nextRunAt); err != nil {
		e.logger.Error("failed to reschedule delivery",
			slog.String("delivery_id", d.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	e.extensions.EmitDeliveryRetrying(ctx, d, runErr, nextRunAt)

	e.logger.Info("delivery scheduled for redelivery",
		slog.String("delivery_id", d.ID.String()),
		slog.String("step", d.Step),
		slog.Int("attempt", d.Attempt),
		slog.Int("max_redeliveries", e.maxRedeliveries),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("step %s redelivery %d/%d: %w", d.Step, d.Attempt, e.maxRedeliveries, runErr)
}

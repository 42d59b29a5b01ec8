// Package ext defines the extension system for stepchain.
// Extensions are notified of step lifecycle events (started, terminated,
// chained, repeating, failed) and can react to them.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/stepchain/step"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// StepStarted is called before a step's handler runs.
type StepStarted interface {
	OnStepStarted(ctx context.Context, inv *step.Invocation) error
}

// StepTerminated is called after a handler returned Terminate.
type StepTerminated interface {
	OnStepTerminated(ctx context.Context, inv *step.Invocation, elapsed time.Duration) error
}

// StepChained is called after the successor step was invoked.
type StepChained interface {
	OnStepChained(ctx context.Context, inv *step.Invocation, next string, elapsed time.Duration) error
}

// StepRepeating is called after the step scheduled itself again. iteration
// is the iteration_count carried by the repeat.
type StepRepeating interface {
	OnStepRepeating(ctx context.Context, inv *step.Invocation, iteration int, delay time.Duration) error
}

// StepFailed is called when an execution ends in an error, including
// rejections before the handler runs.
type StepFailed interface {
	OnStepFailed(ctx context.Context, inv *step.Invocation, err error) error
}

// DeliveryRetrying is called when a worker reschedules a delivery whose
// execution failed.
type DeliveryRetrying interface {
	OnDeliveryRetrying(ctx context.Context, d *step.Delivery, err error, nextRunAt time.Time) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}

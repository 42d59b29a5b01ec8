package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/stepchain/step"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time.
type stepStartedEntry struct {
	name string
	hook StepStarted
}

type stepTerminatedEntry struct {
	name string
	hook StepTerminated
}

type stepChainedEntry struct {
	name string
	hook StepChained
}

type stepRepeatingEntry struct {
	name string
	hook StepRepeating
}

type stepFailedEntry struct {
	name string
	hook StepFailed
}

type deliveryRetryingEntry struct {
	name string
	hook DeliveryRetrying
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. Extensions are sorted into per-hook slices at registration time
// so emit calls iterate only over extensions that implement the hook.
//
// Register extensions before the registry is shared; emits are safe for
// concurrent use once registration is done.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	stepStarted      []stepStartedEntry
	stepTerminated   []stepTerminatedEntry
	stepChained      []stepChainedEntry
	stepRepeating    []stepRepeatingEntry
	stepFailed       []stepFailedEntry
	deliveryRetrying []deliveryRetryingEntry
	shutdown         []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and files it under every hook it implements.
// Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(StepStarted); ok {
		r.stepStarted = append(r.stepStarted, stepStartedEntry{name, h})
	}
	if h, ok := e.(StepTerminated); ok {
		r.stepTerminated = append(r.stepTerminated, stepTerminatedEntry{name, h})
	}
	if h, ok := e.(StepChained); ok {
		r.stepChained = append(r.stepChained, stepChainedEntry{name, h})
	}
	if h, ok := e.(StepRepeating); ok {
		r.stepRepeating = append(r.stepRepeating, stepRepeatingEntry{name, h})
	}
	if h, ok := e.(StepFailed); ok {
		r.stepFailed = append(r.stepFailed, stepFailedEntry{name, h})
	}
	if h, ok := e.(DeliveryRetrying); ok {
		r.deliveryRetrying = append(r.deliveryRetrying, deliveryRetryingEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitStepStarted notifies all extensions that implement StepStarted.
func (r *Registry) EmitStepStarted(ctx context.Context, inv *step.Invocation) {
	for _, e := range r.stepStarted {
		if err := e.hook.OnStepStarted(ctx, inv); err != nil {
			r.logHookError("OnStepStarted", e.name, err)
		}
	}
}

// EmitStepTerminated notifies all extensions that implement StepTerminated.
func (r *Registry) EmitStepTerminated(ctx context.Context, inv *step.Invocation, elapsed time.Duration) {
	for _, e := range r.stepTerminated {
		if err := e.hook.OnStepTerminated(ctx, inv, elapsed); err != nil {
			r.logHookError("OnStepTerminated", e.name, err)
		}
	}
}

// EmitStepChained notifies all extensions that implement StepChained.
func (r *Registry) EmitStepChained(ctx context.Context, inv *step.Invocation, next string, elapsed time.Duration) {
	for _, e := range r.stepChained {
		if err := e.hook.OnStepChained(ctx, inv, next, elapsed); err != nil {
			r.logHookError("OnStepChained", e.name, err)
		}
	}
}

// EmitStepRepeating notifies all extensions that implement StepRepeating.
func (r *Registry) EmitStepRepeating(ctx context.Context, inv *step.Invocation, iteration int, delay time.Duration) {
	for _, e := range r.stepRepeating {
		if err := e.hook.OnStepRepeating(ctx, inv, iteration, delay); err != nil {
			r.logHookError("OnStepRepeating", e.name, err)
		}
	}
}

// EmitStepFailed notifies all extensions that implement StepFailed.
func (r *Registry) EmitStepFailed(ctx context.Context, inv *step.Invocation, stepErr error) {
	for _, e := range r.stepFailed {
		if err := e.hook.OnStepFailed(ctx, inv, stepErr); err != nil {
			r.logHookError("OnStepFailed", e.name, err)
		}
	}
}

// EmitDeliveryRetrying notifies all extensions that implement DeliveryRetrying.
func (r *Registry) EmitDeliveryRetrying(ctx context.Context, d *step.Delivery, runErr error, nextRunAt time.Time) {
	for _, e := range r.deliveryRetrying {
		if err := e.hook.OnDeliveryRetrying(ctx, d, runErr, nextRunAt); err != nil {
			r.logHookError("OnDeliveryRetrying", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated to the step.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}

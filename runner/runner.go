package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/backoff"
	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/ext"
	"github.com/xraph/stepchain/id"
	"github.com/xraph/stepchain/invoke"
	"github.com/xraph/stepchain/middleware"
	"github.com/xraph/stepchain/step"
)

var errNoInvoker = errors.New("no invoker configured")

// Runner executes instances of one step.
// It is safe for concurrent use; instances share nothing but configuration.
type Runner struct {
	cfg        step.Config
	handler    step.Handler
	invoker    invoke.Invoker
	repeat     invoke.RepeatStrategy
	backoff    backoff.Strategy
	codec      event.Codec
	mws        []middleware.Middleware
	chain      middleware.Middleware
	extensions *ext.Registry
	logger     *slog.Logger
}

// New creates a Runner. The config is not validated here; Execute reports
// configuration problems as ConfigError on every call.
func New(cfg step.Config, h step.Handler, inv invoke.Invoker, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		handler: h,
		invoker: inv,
		repeat:  invoke.DefaultRepeatStrategy(),
		codec:   event.JSONCodec{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.backoff == nil {
		r.backoff = backoff.Default(cfg.RepeatDelay)
	}
	if r.extensions == nil {
		r.extensions = ext.NewRegistry(r.logger)
	}
	// Timeout is innermost so the deadline covers only the handler.
	r.chain = middleware.Chain(append(r.mws, middleware.Timeout())...)
	return r
}

// FromDefinition creates a Runner for def.
func FromDefinition(def *step.Definition, inv invoke.Invoker, opts ...Option) *Runner {
	return New(def.Config, def.Handler, inv, opts...)
}

// Name returns the step name.
func (r *Runner) Name() string { return r.cfg.Name }

// Config returns the step configuration.
func (r *Runner) Config() step.Config { return r.cfg }

// Execute runs one instance of the step with evt.
func (r *Runner) Execute(ctx context.Context, evt event.Event) (Outcome, error) {
	if evt == nil {
		evt = event.Event{}
	}
	out := Outcome{State: StatePending}
	inv := &step.Invocation{
		ID:        id.NewInvocationID(),
		Step:      r.cfg.Name,
		Event:     evt,
		StartedAt: time.Now().UTC(),
		Timeout:   r.cfg.Timeout,
	}

	if r.cfg.Name == "" {
		return r.fail(ctx, inv, out, stepchain.NewConfigError("", stepchain.ErrMissingStepName))
	}
	if r.handler == nil {
		return r.fail(ctx, inv, out, stepchain.NewConfigError(r.cfg.Name, errors.New("handler is nil")))
	}

	count, err := evt.IterationCount()
	if err != nil {
		return r.fail(ctx, inv, out, &stepchain.SerializationError{Step: r.cfg.Name, Err: err})
	}
	inv.Iteration = count
	out.Iteration = count

	if r.cfg.MaxIterations != step.Unbounded && count > r.cfg.MaxIterations {
		return r.fail(ctx, inv, out, &stepchain.IterationLimitError{
			Step:  r.cfg.Name,
			Count: count,
			Max:   r.cfg.MaxIterations,
		})
	}

	r.extensions.EmitStepStarted(ctx, inv)
	out.State = StateRunning

	res, err := r.chain(ctx, inv, func(ctx context.Context) (step.Result, error) {
		return r.handler.Handle(ctx, evt)
	})
	if err != nil {
		return r.fail(ctx, inv, out, err)
	}
	out.Action = res.Action

	switch res.Action {
	case step.Terminate:
		return r.terminate(ctx, inv, out)
	case step.Next:
		return r.next(ctx, inv, out, res.Payload)
	case step.Repeat:
		return r.repeatSelf(ctx, inv, out, res.Payload, count)
	default:
		return r.fail(ctx, inv, out, stepchain.NewConfigError(r.cfg.Name,
			fmt.Errorf("%w: %s", stepchain.ErrInvalidAction, res.Action)))
	}
}

func (r *Runner) terminate(ctx context.Context, inv *step.Invocation, out Outcome) (Outcome, error) {
	out.State = StateTerminated
	r.extensions.EmitStepTerminated(ctx, inv, time.Since(inv.StartedAt))
	r.logger.Debug("step terminated",
		slog.String("step", r.cfg.Name),
		slog.String("invocation_id", inv.ID.String()),
	)
	return out, nil
}

func (r *Runner) next(ctx context.Context, inv *step.Invocation, out Outcome, payload event.Event) (Outcome, error) {
	if r.cfg.Next == "" {
		return r.fail(ctx, inv, out, stepchain.NewConfigError(r.cfg.Name, stepchain.ErrMissingNext))
	}
	if payload == nil {
		return r.fail(ctx, inv, out, stepchain.NewConfigError(r.cfg.Name, stepchain.ErrMissingPayload))
	}
	if r.invoker == nil {
		return r.fail(ctx, inv, out, stepchain.NewConfigError(r.cfg.Name, errNoInvoker))
	}
	if _, err := r.codec.Encode(payload); err != nil {
		return r.fail(ctx, inv, out, &stepchain.SerializationError{Step: r.cfg.Name, Err: err})
	}

	out.Target = r.cfg.Next
	out.Payload = payload
	if err := r.invoker.InvokeAsync(ctx, r.cfg.Next, payload); err != nil {
		return r.fail(ctx, inv, out, &stepchain.InvocationError{
			Step:   r.cfg.Name,
			Target: r.cfg.Next,
			Err:    err,
		})
	}

	out.State = StateChained
	r.extensions.EmitStepChained(ctx, inv, r.cfg.Next, time.Since(inv.StartedAt))
	r.logger.Debug("step chained",
		slog.String("step", r.cfg.Name),
		slog.String("next", r.cfg.Next),
		slog.String("invocation_id", inv.ID.String()),
	)
	return out, nil
}

func (r *Runner) repeatSelf(ctx context.Context, inv *step.Invocation, out Outcome, payload event.Event, count int) (Outcome, error) {
	if r.cfg.RepeatDelay < 0 {
		return r.fail(ctx, inv, out, stepchain.NewConfigError(r.cfg.Name, stepchain.ErrNegativeDelay))
	}
	if r.invoker == nil {
		return r.fail(ctx, inv, out, stepchain.NewConfigError(r.cfg.Name, errNoInvoker))
	}
	if payload == nil {
		payload = inv.Event
	}
	next := count + 1
	payload = payload.WithIterationCount(next)

	if _, err := r.codec.Encode(payload); err != nil {
		return r.fail(ctx, inv, out, &stepchain.SerializationError{Step: r.cfg.Name, Err: err})
	}

	delay := r.backoff.Delay(next)
	if delay < 0 {
		return r.fail(ctx, inv, out, stepchain.NewConfigError(r.cfg.Name, stepchain.ErrNegativeDelay))
	}

	out.Target = r.cfg.Name
	out.Payload = payload
	out.Delay = delay
	if err := r.repeat.Repeat(ctx, r.invoker, r.cfg.Name, payload, delay); err != nil {
		return r.fail(ctx, inv, out, &stepchain.InvocationError{
			Step:   r.cfg.Name,
			Target: r.cfg.Name,
			Delay:  delay,
			Err:    err,
		})
	}

	out.State = StateRepeating
	r.extensions.EmitStepRepeating(ctx, inv, next, delay)
	r.logger.Info("step repeating",
		slog.String("step", r.cfg.Name),
		slog.String("invocation_id", inv.ID.String()),
		slog.Int("iteration_count", next),
		slog.Duration("delay", delay),
	)
	return out, nil
}

func (r *Runner) fail(ctx context.Context, inv *step.Invocation, out Outcome, err error) (Outcome, error) {
	out.State = StateFailed
	r.extensions.EmitStepFailed(ctx, inv, err)
	r.logger.Warn("step failed",
		slog.String("step", r.cfg.Name),
		slog.String("invocation_id", inv.ID.String()),
		slog.Int("iteration_count", inv.Iteration),
		slog.String("error", err.Error()),
	)
	return out, err
}

// Package engine wires the stepchain subsystems together. It creates the
// extension registry, step registry, middleware chain, runners, and the
// worker pool, and provides Register/Trigger operations.
//
// The engine package sits above all subsystem packages and below the
// application layer, so step, runner, and worker stay free of each other's
// wiring.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/backoff"
	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/ext"
	"github.com/xraph/stepchain/invoke"
	mw "github.com/xraph/stepchain/middleware"
	"github.com/xraph/stepchain/observability"
	"github.com/xraph/stepchain/queue"
	"github.com/xraph/stepchain/runner"
	"github.com/xraph/stepchain/step"
	"github.com/xraph/stepchain/worker"
)

const instrumentationName = "github.com/xraph/stepchain"

// Engine owns the steps of one pipeline and, when a store is configured,
// the worker pool that runs their deliveries.
type Engine struct {
	config     stepchain.Config
	store      step.Store
	invoker    invoke.Invoker
	scheduler  *invoke.StoreInvoker
	extensions *ext.Registry
	registry   *step.Registry
	codec      event.Codec
	repeat     invoke.RepeatStrategy
	redeliver  backoff.Strategy
	mws        []mw.Middleware
	chain      []mw.Middleware
	userExt    []ext.Extension
	logger     *slog.Logger

	mu      sync.RWMutex
	runners map[string]*runner.Runner

	// Per-step limits for the worker pool.
	limits  []queue.Config
	limiter *queue.Manager
	pool    *worker.Pool

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// New creates an Engine. At least one of WithStore or WithInvoker is
// required. With only a store, steps trigger each other through it and
// Start runs a worker pool. With only an invoker, the engine hosts runners
// for an external trigger such as AWS Lambda.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		config:   stepchain.DefaultConfig(),
		registry: step.NewRegistry(),
		codec:    event.JSONCodec{},
		repeat:   invoke.DefaultRepeatStrategy(),
		logger:   slog.Default(),
		runners:  make(map[string]*runner.Runner),
	}

	for _, opt := range opts {
		opt(eng)
	}
	eng.extensions = ext.NewRegistry(eng.logger)

	if eng.store == nil && eng.invoker == nil {
		return nil, stepchain.NewConfigError("", fmt.Errorf("engine needs a store or an invoker: %w", stepchain.ErrNoStore))
	}

	if eng.store != nil {
		eng.scheduler = invoke.NewStoreInvoker(eng.store,
			invoke.WithCodec(eng.codec),
			invoke.WithKnown(eng.registry.Has),
			invoke.WithLogger(eng.logger),
		)
		if eng.invoker == nil {
			eng.invoker = eng.scheduler
		}
	}

	eng.buildExtensions()
	eng.buildChain()

	if eng.store != nil {
		eng.buildPool()
	}

	return eng, nil
}

// buildExtensions registers the metrics extension, then user extensions in
// the order they were given.
func (eng *Engine) buildExtensions() {
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	for _, e := range eng.userExt {
		eng.extensions.Register(e)
	}
}

// buildChain assembles the default middleware stack:
// recover -> tracing -> metrics -> logging -> user middleware.
// The runner adds the per-step timeout innermost.
func (eng *Engine) buildChain() {
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	eng.chain = make([]mw.Middleware, 0, 4+len(eng.mws))
	eng.chain = append(eng.chain,
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
	)
	eng.chain = append(eng.chain, eng.mws...)
}

func (eng *Engine) buildPool() {
	executor := worker.NewExecutor(eng, eng.store, eng.extensions, eng.redeliver, eng.config.MaxRedeliveries, eng.logger)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(eng.config.Concurrency),
		worker.WithPollInterval(eng.config.PollInterval),
		worker.WithBatchSize(eng.config.BatchSize),
	}
	if eng.config.Lease > 0 {
		poolOpts = append(poolOpts, worker.WithLease(eng.config.Lease))
	}
	if eng.config.LeaseRenewal > 0 {
		poolOpts = append(poolOpts, worker.WithLeaseRenewal(eng.config.LeaseRenewal))
	}
	if len(eng.limits) > 0 {
		eng.limiter = queue.NewManager(eng.limits...)
		poolOpts = append(poolOpts, worker.WithStepLimiter(eng.limiter))
	}

	eng.pool = worker.NewPool(eng.store, executor, eng.logger, poolOpts...)
}

// Register validates def and adds a runner for it. Registering a name
// again replaces the earlier definition.
func (eng *Engine) Register(def *step.Definition) error {
	if err := eng.registry.Register(def); err != nil {
		return err
	}

	r := runner.FromDefinition(def, eng.invoker,
		runner.WithLogger(eng.logger),
		runner.WithCodec(eng.codec),
		runner.WithRepeatStrategy(eng.repeat),
		runner.WithMiddleware(eng.chain...),
		runner.WithExtensions(eng.extensions),
	)

	eng.mu.Lock()
	eng.runners[def.Name()] = r
	eng.mu.Unlock()

	eng.logger.Debug("step registered",
		slog.String("step", def.Name()),
		slog.String("next", def.Config.Next),
		slog.Int("max_iterations", def.Config.MaxIterations),
		slog.Duration("repeat_delay", def.Config.RepeatDelay),
	)
	return nil
}

// Runner returns the runner for a registered step.
func (eng *Engine) Runner(name string) (*runner.Runner, bool) {
	eng.mu.RLock()
	defer eng.mu.RUnlock()
	r, ok := eng.runners[name]
	return r, ok
}

// Check reports a ConfigError if any registered step names an unregistered
// successor.
func (eng *Engine) Check() error {
	return eng.registry.Check()
}

// Execute runs one instance of the named step with evt in the calling
// goroutine. Use it from hosts that deliver triggers themselves.
func (eng *Engine) Execute(ctx context.Context, name string, evt event.Event) (runner.Outcome, error) {
	r, ok := eng.Runner(name)
	if !ok {
		return runner.Outcome{State: runner.StateFailed}, stepchain.NewConfigError(name, stepchain.ErrUnknownStep)
	}
	return r.Execute(ctx, evt)
}

// Trigger starts a pipeline (or resumes one by hand) by invoking step with
// payload.
func (eng *Engine) Trigger(ctx context.Context, name string, payload event.Event) error {
	if err := eng.invoker.InvokeAsync(ctx, name, payload); err != nil {
		return &stepchain.InvocationError{Target: name, Err: err}
	}
	return nil
}

// Schedule stores a delivery of step due after delay and returns it.
// It requires a store.
func (eng *Engine) Schedule(ctx context.Context, name string, payload event.Event, delay time.Duration) (*step.Delivery, error) {
	if eng.scheduler == nil {
		return nil, stepchain.ErrNoStore
	}
	return eng.scheduler.Schedule(ctx, name, payload, delay)
}

// Pending lists deliveries waiting in the store.
func (eng *Engine) Pending(ctx context.Context, opts step.ListOpts) ([]*step.Delivery, error) {
	if eng.store == nil {
		return nil, stepchain.ErrNoStore
	}
	return eng.store.Pending(ctx, opts)
}

// Start checks the pipeline and starts the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	if eng.pool == nil {
		return stepchain.ErrNoStore
	}
	if err := eng.Check(); err != nil {
		return err
	}
	if err := eng.store.Ping(ctx); err != nil {
		return fmt.Errorf("stepchain: store ping: %w", err)
	}
	eng.logger.Info("stepchain engine starting", slog.Any("steps", eng.registry.Names()))
	return eng.pool.Start(ctx)
}

// Stop gracefully shuts down the worker pool, waiting up to
// Config.ShutdownTimeout for running steps, then notifies extensions.
func (eng *Engine) Stop(ctx context.Context) error {
	if eng.pool != nil {
		stopCtx := ctx
		if eng.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			stopCtx, cancel = context.WithTimeout(ctx, eng.config.ShutdownTimeout)
			defer cancel()
		}
		if err := eng.pool.Stop(stopCtx); err != nil {
			return err
		}
	}
	eng.extensions.EmitShutdown(ctx)
	return nil
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the step registry.
func (eng *Engine) Registry() *step.Registry { return eng.registry }

// Store returns the delivery store, or nil.
func (eng *Engine) Store() step.Store { return eng.store }

// Invoker returns the invoker runners use to trigger steps.
func (eng *Engine) Invoker() invoke.Invoker { return eng.invoker }

// Pool returns the worker pool, or nil without a store.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Limiter returns the step limiter, or nil if no step limits were
// provided.
func (eng *Engine) Limiter() *queue.Manager { return eng.limiter }

// Config returns the engine configuration.
func (eng *Engine) Config() stepchain.Config { return eng.config }

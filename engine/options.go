package engine

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/backoff"
	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/ext"
	"github.com/xraph/stepchain/invoke"
	mw "github.com/xraph/stepchain/middleware"
	"github.com/xraph/stepchain/queue"
	"github.com/xraph/stepchain/step"
)

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the engine configuration.
func WithConfig(cfg stepchain.Config) Option {
	return func(eng *Engine) { eng.config = cfg }
}

// WithStore sets the delivery store. Steps trigger each other through it
// unless WithInvoker is also given, and Start runs a worker pool on it.
func WithStore(s step.Store) Option {
	return func(eng *Engine) { eng.store = s }
}

// WithInvoker sets the invoker runners use to trigger steps, for example
// invoke/lambda or an invoke.Split of Lambda and SQS.
func WithInvoker(inv invoke.Invoker) Option {
	return func(eng *Engine) { eng.invoker = inv }
}

// WithConcurrency sets the number of worker goroutines.
func WithConcurrency(n int) Option {
	return func(eng *Engine) { eng.config.Concurrency = n }
}

// WithPollInterval sets how often idle workers poll the store.
func WithPollInterval(d time.Duration) Option {
	return func(eng *Engine) { eng.config.PollInterval = d }
}

// WithMaxRedeliveries sets how often a delivery that failed with a
// non-permanent error is scheduled again.
func WithMaxRedeliveries(n int) Option {
	return func(eng *Engine) { eng.config.MaxRedeliveries = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithCodec sets the payload codec for stored deliveries. Defaults to JSON.
func WithCodec(c event.Codec) Option {
	return func(eng *Engine) { eng.codec = c }
}

// WithRepeatStrategy sets how Repeat re-triggers a step for every runner.
// Defaults to invoke.DelayedTrigger.
func WithRepeatStrategy(s invoke.RepeatStrategy) Option {
	return func(eng *Engine) { eng.repeat = s }
}

// WithRedeliveryBackoff sets the delay strategy between redeliveries of a
// failed delivery. Defaults to exponential from 1s to 1m.
func WithRedeliveryBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.redeliver = b }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.userExt = append(eng.userExt, e) }
}

// WithMiddleware adds middleware to every runner's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithStepLimits registers per-step rate limiting and concurrency
// configurations for the worker pool. Steps not listed have no limits.
func WithStepLimits(configs ...queue.Config) Option {
	return func(eng *Engine) { eng.limits = append(eng.limits, configs...) }
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// Both the metrics middleware and the observability extension use it.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

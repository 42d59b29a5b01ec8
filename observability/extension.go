package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/ext"
	"github.com/xraph/stepchain/step"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*MetricsExtension)(nil)
	_ ext.StepStarted      = (*MetricsExtension)(nil)
	_ ext.StepTerminated   = (*MetricsExtension)(nil)
	_ ext.StepChained      = (*MetricsExtension)(nil)
	_ ext.StepRepeating    = (*MetricsExtension)(nil)
	_ ext.StepFailed       = (*MetricsExtension)(nil)
	_ ext.DeliveryRetrying = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/stepchain/observability"

// MetricsExtension records lifecycle counters through an OTel meter.
//
// Counters (all carry a step attribute):
//   - stepchain.step.started
//   - stepchain.step.terminated
//   - stepchain.step.chained (plus next)
//   - stepchain.step.repeated
//   - stepchain.step.failed (plus reason: config, iteration_limit,
//     invocation, serialization, or handler)
//   - stepchain.delivery.retried
type MetricsExtension struct {
	started    metric.Int64Counter
	terminated metric.Int64Counter
	chained    metric.Int64Counter
	repeated   metric.Int64Counter
	failed     metric.Int64Counter
	retried    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc)) //nolint:errcheck // noop fallback
		return c
	}
	return &MetricsExtension{
		started:    counter("stepchain.step.started", "Step handler calls started"),
		terminated: counter("stepchain.step.terminated", "Steps that returned Terminate"),
		chained:    counter("stepchain.step.chained", "Successor invocations"),
		repeated:   counter("stepchain.step.repeated", "Self-invocations scheduled"),
		failed:     counter("stepchain.step.failed", "Step executions ending in an error"),
		retried:    counter("stepchain.delivery.retried", "Deliveries rescheduled after a failure"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnStepStarted implements ext.StepStarted.
func (m *MetricsExtension) OnStepStarted(ctx context.Context, inv *step.Invocation) error {
	m.started.Add(ctx, 1, stepAttr(inv.Step))
	return nil
}

// OnStepTerminated implements ext.StepTerminated.
func (m *MetricsExtension) OnStepTerminated(ctx context.Context, inv *step.Invocation, _ time.Duration) error {
	m.terminated.Add(ctx, 1, stepAttr(inv.Step))
	return nil
}

// OnStepChained implements ext.StepChained.
func (m *MetricsExtension) OnStepChained(ctx context.Context, inv *step.Invocation, next string, _ time.Duration) error {
	m.chained.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", inv.Step),
		attribute.String("next", next),
	))
	return nil
}

// OnStepRepeating implements ext.StepRepeating.
func (m *MetricsExtension) OnStepRepeating(ctx context.Context, inv *step.Invocation, _ int, _ time.Duration) error {
	m.repeated.Add(ctx, 1, stepAttr(inv.Step))
	return nil
}

// OnStepFailed implements ext.StepFailed.
func (m *MetricsExtension) OnStepFailed(ctx context.Context, inv *step.Invocation, err error) error {
	m.failed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", inv.Step),
		attribute.String("reason", Reason(err)),
	))
	return nil
}

// OnDeliveryRetrying implements ext.DeliveryRetrying.
func (m *MetricsExtension) OnDeliveryRetrying(ctx context.Context, d *step.Delivery, _ error, _ time.Time) error {
	m.retried.Add(ctx, 1, stepAttr(d.Step))
	return nil
}

// Reason classifies err into the stepchain error taxonomy.
func Reason(err error) string {
	switch {
	case errors.Is(err, stepchain.ErrIterationLimitExceeded):
		return "iteration_limit"
	case errors.Is(err, stepchain.ErrInvocation):
		return "invocation"
	case errors.Is(err, stepchain.ErrSerialization):
		return "serialization"
	case errors.Is(err, stepchain.ErrConfig):
		return "config"
	default:
		return "handler"
	}
}

func stepAttr(name string) metric.AddOption {
	return metric.WithAttributes(attribute.String("step", name))
}

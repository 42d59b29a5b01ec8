package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/stepchain/step"
)

// meterName is the instrumentation scope name for stepchain metrics.
const meterName = "github.com/xraph/stepchain"

// Metrics returns middleware that records handler metrics using the global
// OTel MeterProvider.
//
// Instruments:
//   - stepchain.step.duration (Float64Histogram): handler time in seconds
//   - stepchain.step.executions (Int64Counter): handler calls
//
// Both carry step and outcome, where outcome is the returned action name or
// "error".
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram( //nolint:errcheck // noop fallback
		"stepchain.step.duration",
		metric.WithDescription("Duration of step handler calls in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter( //nolint:errcheck // noop fallback
		"stepchain.step.executions",
		metric.WithDescription("Total number of step handler calls"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, inv *step.Invocation, next Handler) (step.Result, error) {
		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		outcome := res.Action.String()
		if err != nil {
			outcome = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("step", inv.Step),
			attribute.String("outcome", outcome),
		)

		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return res, err
	}
}

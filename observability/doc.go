// Package observability provides an OpenTelemetry metrics extension for
// stepchain. MetricsExtension implements the lifecycle hooks to count
// started, terminated, chained, repeated, and failed steps, and retried
// deliveries.
//
// For per-call tracing and duration histograms, see the middleware
// package: middleware.Tracing() and middleware.Metrics().
package observability

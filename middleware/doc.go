// Package middleware provides composable middleware around step handlers.
//
// A [Middleware] wraps the call from the runner into a step's Handler. It
// sees the [step.Invocation] (step name, iteration count, payload) and the
// [step.Result] the handler returned. Middleware are composed with [Chain];
// the first middleware in the slice is the outermost wrapper.
//
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging]: logs step, iteration, action, and duration
//   - [Recover]: catches panics and converts them to errors
//   - [Timeout]: cancels the handler context after the step's Timeout
//   - [Tracing]: wraps the call in an OpenTelemetry span
//   - [Metrics]: records per-step duration and outcome counters
//
// Middleware wraps only the handler. The invoker call that follows a Next or
// Repeat result happens outside the chain.
package middleware

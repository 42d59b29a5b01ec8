// Package runner executes one instance of a step.
//
// A [Runner] owns a step's configuration, handler, and invoker. Each call
// to [Runner.Execute] is one stateless instance: it validates the config,
// reads iteration_count from the incoming event, enforces the iteration
// bound, runs the handler through middleware, and acts on the returned
// [step.NextAction]:
//
//	Terminate  nothing further happens
//	Next       the handler's payload is sent to the successor via InvokeAsync
//	Repeat     the payload (or a copy of the incoming event) gets
//	           iteration_count + 1 and is handed to the repeat strategy,
//	           targeting this same step
//
// Handler errors are returned unchanged and never retried here. Every other
// failure is one of the typed errors in the root package: ConfigError,
// IterationLimitError, SerializationError, or InvocationError.
//
// Per instance the runner moves through
//
//	pending → running → terminated | chained | repeating
//
// with failed reachable from any state; [Outcome.State] records where an
// execution ended.
package runner

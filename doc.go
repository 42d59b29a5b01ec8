// Package stepchain provides the building blocks for multi-stage workflows
// made of independently triggered, stateless steps.
//
// A step runs its domain logic once per trigger and then tells the runner
// what happens next: stop, hand the payload to a named successor, or
// reschedule itself for a later attempt. Every trigger starts from a fresh
// instance; the only state carried between instances is the event payload.
//
// # Quick Start
//
//	eng, err := engine.New(
//	    engine.WithStore(redisstore.New(client)),
//	    engine.WithConcurrency(4),
//	)
//	eng.Register(step.NewDefinition("wait_created", waitCreated,
//	    step.WithNext("attach_volume"),
//	    step.WithMaxIterations(10),
//	    step.WithRepeatDelay(30*time.Second),
//	))
//
// # Architecture
//
// The root package holds the error taxonomy and the engine configuration.
// Subpackages follow the flow of a single trigger: event (payload), step
// (handler contract and definitions), invoke (triggering the next step),
// runner (executing one step instance), and worker/store (a self-hosted
// delay channel for deployments without a cloud scheduler).
//
// Self-invocation is bounded by the iteration_count carried in the payload.
// Delivery is at-least-once: a handler reached through Repeat may run twice
// for the same logical iteration and must re-check remote state first.
package stepchain

package step

import (
	"context"
	"fmt"

	"github.com/xraph/stepchain/event"
)

// NextAction is the decision a handler returns after running its logic.
// The zero value is not a valid action.
type NextAction int

const (
	// Terminate stops this branch of the pipeline.
	Terminate NextAction = iota + 1
	// Next hands the result payload to the configured successor.
	Next
	// Repeat schedules this step again with iteration_count incremented.
	Repeat
)

// String returns the lowercase action name.
func (a NextAction) String() string {
	switch a {
	case Terminate:
		return "terminate"
	case Next:
		return "next"
	case Repeat:
		return "repeat"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Valid reports whether a is one of Terminate, Next, or Repeat.
func (a NextAction) Valid() bool {
	return a >= Terminate && a <= Repeat
}

// Result is what a handler returns on success.
type Result struct {
	Action NextAction

	// Payload is the outgoing event. Required for Next. For Repeat a nil
	// payload means "resend the incoming event".
	Payload event.Event
}

// Done returns a Terminate result.
func Done() Result { return Result{Action: Terminate} }

// Advance returns a Next result carrying payload to the successor.
func Advance(payload event.Event) Result {
	return Result{Action: Next, Payload: payload}
}

// Again returns a Repeat result. A nil payload resends the incoming event.
func Again(payload event.Event) Result {
	return Result{Action: Repeat, Payload: payload}
}

// Handler is a step's domain logic.
type Handler interface {
	Handle(ctx context.Context, evt event.Event) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt event.Event) (Result, error)

// Handle calls f(ctx, evt).
func (f HandlerFunc) Handle(ctx context.Context, evt event.Event) (Result, error) {
	return f(ctx, evt)
}

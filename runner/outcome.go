package runner

import (
	"time"

	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/step"
)

// State is where a step instance ended up.
type State string

const (
	// StatePending means validation rejected the event before the handler ran.
	StatePending State = "pending"
	// StateRunning means the handler was called.
	StateRunning State = "running"
	// StateTerminated means the handler returned Terminate.
	StateTerminated State = "terminated"
	// StateChained means the successor was invoked.
	StateChained State = "chained"
	// StateRepeating means the step scheduled itself again.
	StateRepeating State = "repeating"
	// StateFailed means the execution ended in an error.
	StateFailed State = "failed"
)

// Outcome describes what an execution did.
type Outcome struct {
	// Action is the handler's decision. Zero when the handler did not return.
	Action step.NextAction

	// Target is the step that was invoked: the successor for Next, the step
	// itself for Repeat.
	Target string

	// Payload is the event handed to Target.
	Payload event.Event

	// Delay is the repeat delay. Zero for Next.
	Delay time.Duration

	// Iteration is the iteration_count of the incoming event.
	Iteration int

	State State
}

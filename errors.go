package stepchain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Taxonomy roots. Every typed error below matches exactly one of these
	// through errors.Is.
	ErrConfig                 = errors.New("stepchain: invalid configuration")
	ErrIterationLimitExceeded = errors.New("stepchain: iteration limit exceeded")
	ErrInvocation             = errors.New("stepchain: invocation failed")
	ErrSerialization          = errors.New("stepchain: payload not serializable")

	// Configuration causes.
	ErrInvalidAction   = errors.New("stepchain: unrecognized next action")
	ErrMissingStepName = errors.New("stepchain: step name is empty")
	ErrMissingNext     = errors.New("stepchain: next step not configured")
	ErrMissingPayload  = errors.New("stepchain: outgoing payload not set")
	ErrNegativeDelay   = errors.New("stepchain: repeat delay is negative")

	// Invocation causes.
	ErrUnknownStep      = errors.New("stepchain: unknown step")
	ErrDelayUnsupported = errors.New("stepchain: delayed invocation not supported")

	// Store errors.
	ErrNoStore          = errors.New("stepchain: no store configured")
	ErrDeliveryNotFound = errors.New("stepchain: delivery not found")
	ErrDeliveryExists   = errors.New("stepchain: delivery already exists")
)

// ConfigError reports invalid or missing step configuration, or a handler
// result the runner cannot act on. It is always fatal.
type ConfigError struct {
	Step string
	Err  error
}

// NewConfigError returns a ConfigError for step caused by err.
func NewConfigError(step string, err error) *ConfigError {
	return &ConfigError{Step: step, Err: err}
}

func (e *ConfigError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("stepchain: config: %v", e.Err)
	}
	return fmt.Sprintf("stepchain: config for step %q: %v", e.Step, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// IterationLimitError is returned when an event arrives with an
// iteration_count above the step's bound. The handler is never called.
type IterationLimitError struct {
	Step  string
	Count int
	Max   int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("stepchain: step %q invoked %d times in a row (max %d), stopping a possible infinite loop",
		e.Step, e.Count, e.Max)
}

func (e *IterationLimitError) Is(target error) bool { return target == ErrIterationLimitExceeded }

// InvocationError reports a failed hand-off to the next or repeated step.
// Side effects of the handler that ran before the hand-off are not undone.
type InvocationError struct {
	Step   string
	Target string
	Delay  time.Duration
	Err    error
}

func (e *InvocationError) Error() string {
	if e.Delay > 0 {
		return fmt.Sprintf("stepchain: invoke %q after %s: %v", e.Target, e.Delay, e.Err)
	}
	return fmt.Sprintf("stepchain: invoke %q: %v", e.Target, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

func (e *InvocationError) Is(target error) bool { return target == ErrInvocation }

// SerializationError reports a payload that cannot be encoded for hand-off,
// or an incoming payload that violates the wire contract.
type SerializationError struct {
	Step string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("stepchain: payload for step %q: %v", e.Step, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

func (e *SerializationError) Is(target error) bool { return target == ErrSerialization }

// IsPermanent reports whether err can never succeed on redelivery of the
// same payload.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrConfig) ||
		errors.Is(err, ErrIterationLimitExceeded) ||
		errors.Is(err, ErrSerialization)
}

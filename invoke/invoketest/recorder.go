// Package invoketest provides a recording Invoker for tests.
package invoketest

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/stepchain/event"
)

// Call is one recorded invocation.
type Call struct {
	Step    string
	Payload event.Event
	Delay   time.Duration
	Delayed bool
}

// Recorder records every invocation. Set Err to make calls fail.
// It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	calls []Call

	// Err, when non-nil, is returned from every call. The call is still
	// recorded.
	Err error
}

// InvokeAsync records an immediate call.
func (r *Recorder) InvokeAsync(_ context.Context, step string, payload event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Step: step, Payload: payload.Clone()})
	return r.Err
}

// InvokeDelayed records a delayed call.
func (r *Recorder) InvokeDelayed(_ context.Context, step string, payload event.Event, delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Step: step, Payload: payload.Clone(), Delay: delay, Delayed: true})
	return r.Err
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Len returns the number of recorded calls.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Reset clears recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

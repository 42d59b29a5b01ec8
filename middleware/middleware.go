// Package middleware provides composable middleware around step handlers.
// Middleware wraps handler calls synchronously and can change how a step
// runs (recover from panics, enforce a deadline, log, trace, measure).
package middleware

import (
	"context"

	"github.com/xraph/stepchain/step"
)

// Handler is the terminal function that runs a step's logic.
type Handler func(ctx context.Context) (step.Result, error)

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the invocation being executed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, inv *step.Invocation, next Handler) (step.Result, error)

// Chain composes multiple middleware into a single Middleware.
// The first middleware in the list is the outermost wrapper.
//
//	Chain(logging, recover, timeout) runs as logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, inv *step.Invocation, next Handler) (step.Result, error) {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (step.Result, error) {
				return mw(ctx, inv, prev)
			}
		}
		return h(ctx)
	}
}

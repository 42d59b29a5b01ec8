package middleware

import (
	"context"

	"github.com/xraph/stepchain/step"
)

// Timeout returns middleware that bounds the handler call by the step's
// Timeout. A zero Timeout leaves the context untouched.
func Timeout() Middleware {
	return func(ctx context.Context, inv *step.Invocation, next Handler) (step.Result, error) {
		if inv.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}

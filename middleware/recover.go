package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/stepchain/step"
)

// Recover returns middleware that turns a handler panic into an error.
// The panic is logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *step.Invocation, next Handler) (res step.Result, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("step handler panicked",
					slog.String("step", inv.Step),
					slog.String("invocation_id", inv.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				res = step.Result{}
				retErr = fmt.Errorf("panic in step %s: %v", inv.Step, r)
			}
		}()
		return next(ctx)
	}
}

package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/stepchain/step"
)

// Logging returns middleware that logs handler start and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *step.Invocation, next Handler) (step.Result, error) {
		logger.Info("step started",
			slog.String("step", inv.Step),
			slog.String("invocation_id", inv.ID.String()),
			slog.Int("iteration_count", inv.Iteration),
		)

		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("step failed",
				slog.String("step", inv.Step),
				slog.String("invocation_id", inv.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("step returned",
				slog.String("step", inv.Step),
				slog.String("invocation_id", inv.ID.String()),
				slog.String("action", res.Action.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return res, err
	}
}

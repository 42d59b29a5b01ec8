package runner

import (
	"log/slog"

	"github.com/xraph/stepchain/backoff"
	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/ext"
	"github.com/xraph/stepchain/invoke"
	"github.com/xraph/stepchain/middleware"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithRepeatStrategy sets how Repeat re-triggers the step. Defaults to
// invoke.DelayedTrigger.
func WithRepeatStrategy(s invoke.RepeatStrategy) Option {
	return func(r *Runner) { r.repeat = s }
}

// WithBackoff sets the repeat delay strategy. Defaults to a constant
// RepeatDelay.
func WithBackoff(s backoff.Strategy) Option {
	return func(r *Runner) { r.backoff = s }
}

// WithCodec sets the codec outgoing payloads must encode with. Defaults to
// JSON.
func WithCodec(c event.Codec) Option {
	return func(r *Runner) { r.codec = c }
}

// WithMiddleware appends handler middleware. The first is outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(r *Runner) { r.mws = append(r.mws, mws...) }
}

// WithExtensions sets the lifecycle hook registry.
func WithExtensions(reg *ext.Registry) Option {
	return func(r *Runner) { r.extensions = reg }
}

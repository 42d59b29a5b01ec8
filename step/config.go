package step

import (
	"fmt"
	"time"

	"github.com/xraph/stepchain"
)

const (
	// DefaultMaxIterations is the repeat bound used when none is configured.
	DefaultMaxIterations = 3

	// Unbounded disables the iteration check.
	Unbounded = -1

	// DefaultRepeatDelay is the wait before a repeated step runs again.
	DefaultRepeatDelay = 15 * time.Second
)

// Config is the static configuration of one step.
type Config struct {
	// Name identifies the step. Required and unique within a pipeline.
	Name string `json:"name"`

	// Next is the successor step. Required iff the handler may return Next.
	Next string `json:"next,omitempty"`

	// MaxIterations bounds consecutive repeats. An event arriving with
	// iteration_count above it is rejected. Unbounded (-1) disables the check.
	MaxIterations int `json:"max_iterations"`

	// RepeatDelay is the wait before a repeated step runs again.
	RepeatDelay time.Duration `json:"repeat_delay"`

	// Timeout bounds a single handler call. Zero means none.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// DefaultConfig returns a Config for name with default bounds.
func DefaultConfig(name string) Config {
	return Config{
		Name:          name,
		MaxIterations: DefaultMaxIterations,
		RepeatDelay:   DefaultRepeatDelay,
	}
}

// Validate checks the invariants the runner relies on.
func (c Config) Validate() error {
	if c.Name == "" {
		return stepchain.NewConfigError("", stepchain.ErrMissingStepName)
	}
	if c.MaxIterations < Unbounded {
		return stepchain.NewConfigError(c.Name,
			fmt.Errorf("max iterations must be >= %d, got %d", Unbounded, c.MaxIterations))
	}
	if c.RepeatDelay < 0 {
		return stepchain.NewConfigError(c.Name, stepchain.ErrNegativeDelay)
	}
	if c.Timeout < 0 {
		return stepchain.NewConfigError(c.Name, fmt.Errorf("timeout must be >= 0, got %s", c.Timeout))
	}
	return nil
}

// Option is a functional option for configuring a step.
type Option func(*Config)

// WithNext sets the successor step.
func WithNext(name string) Option {
	return func(c *Config) {
		c.Next = name
	}
}

// WithMaxIterations sets the repeat bound. Pass Unbounded to disable it.
func WithMaxIterations(n int) Option {
	return func(c *Config) {
		c.MaxIterations = n
	}
}

// WithRepeatDelay sets the wait before a repeated step runs again.
func WithRepeatDelay(d time.Duration) Option {
	return func(c *Config) {
		c.RepeatDelay = d
	}
}

// WithTimeout bounds a single handler call.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithConfig replaces every field except Name with the values from cfg.
// Useful when settings come from a pipeline file.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		name := c.Name
		*c = cfg
		c.Name = name
	}
}

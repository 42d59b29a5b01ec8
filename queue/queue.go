package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-step limits on how fast a worker pool runs deliveries.
type Config struct {
	// Step is the step name the limits apply to.
	Step string `json:"step" yaml:"step"`

	// MaxConcurrency limits how many deliveries of this step may run
	// simultaneously across the local worker pool. Zero means no
	// step-specific limit (pool-wide concurrency still applies).
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency"`

	// RateLimit is the maximum sustained runs per second. Zero disables
	// rate limiting. Use it to keep polling steps within a remote API quota.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int `json:"rate_burst" yaml:"rate_burst"`
}

// stepState tracks runtime state for a single step.
type stepState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

// Manager controls per-step rate limiting and concurrency.
// It is safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	steps map[string]*stepState
}

// NewManager creates a Manager with the given step configurations.
// Steps not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		steps: make(map[string]*stepState, len(configs)),
	}
	for _, cfg := range configs {
		m.steps[cfg.Step] = newStepState(cfg)
	}
	return m
}

func newStepState(cfg Config) *stepState {
	ss := &stepState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ss.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ss
}

// Acquire checks the concurrency cap and rate limit for step. If the
// delivery may run it increments the active counter and returns true. The
// caller MUST call Release when the run completes.
func (m *Manager) Acquire(step string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ss := m.steps[step]
	if ss == nil {
		return true
	}
	// Concurrency first so a full step does not burn rate tokens.
	if ss.config.MaxConcurrency > 0 && ss.active >= ss.config.MaxConcurrency {
		return false
	}
	if ss.limiter != nil && !ss.limiter.Allow() {
		return false
	}
	ss.active++
	return true
}

// Release decrements the active count for step.
func (m *Manager) Release(step string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ss := m.steps[step]; ss != nil && ss.active > 0 {
		ss.active--
	}
}

// SetConfig dynamically updates (or creates) a step configuration.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.steps[cfg.Step]
	ss := newStepState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ss.active = existing.active
	}
	m.steps[cfg.Step] = ss
}

// ActiveCount returns the current number of active runs for step.
func (m *Manager) ActiveCount(step string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ss := m.steps[step]; ss != nil {
		return ss.active
	}
	return 0
}

package stepchain

import "time"

// Config holds configuration for the self-hosted delivery engine.
// Per-step settings live in step.Config.
type Config struct {
	// Concurrency is the number of worker goroutines claiming deliveries.
	Concurrency int

	// PollInterval is how often idle workers poll the store.
	PollInterval time.Duration

	// BatchSize is the maximum number of deliveries claimed per poll.
	BatchSize int

	// ShutdownTimeout is the maximum time to wait for in-flight steps
	// during graceful shutdown.
	ShutdownTimeout time.Duration

	// Lease is how long a claimed delivery stays hidden from other workers.
	// Zero uses the pool default.
	Lease time.Duration

	// LeaseRenewal is how often running deliveries have their lease
	// extended. Zero disables renewal.
	LeaseRenewal time.Duration

	// MaxRedeliveries is how many times a delivery that failed with a
	// non-permanent error is scheduled again. Zero leaves failures to the
	// operator.
	MaxRedeliveries int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     4,
		PollInterval:    time.Second,
		BatchSize:       1,
		ShutdownTimeout: 30 * time.Second,
		Lease:           5 * time.Minute,
		MaxRedeliveries: 0,
	}
}

// Package queue enforces per-step rate limits and concurrency caps for the
// self-hosted worker pool.
//
// Polling steps usually call a remote API on every run. [Config] keeps a
// step within that API's quota:
//
//	queue.Config{
//	    Step:           "wait_created",
//	    MaxConcurrency: 5,      // max 5 concurrent runs of wait_created
//	    RateLimit:      10,     // max 10 runs/s
//	    RateBurst:      20,     // allow bursts up to 20
//	}
//
// Pass configs when building the engine:
//
//	engine.New(
//	    engine.WithStepLimits(
//	        queue.Config{Step: "wait_created", RateLimit: 2},
//	        queue.Config{Step: "attach_volume", MaxConcurrency: 1},
//	    ),
//	)
//
// # Manager
//
// [Manager] enforces the limits at claim time. It uses a token-bucket rate
// limiter (golang.org/x/time/rate) and an active-count gate for concurrency
// limits. A throttled delivery is put back and claimed again later.
//
//	m := queue.NewManager(configs...)
//	if m.Acquire(stepName) {
//	    defer m.Release(stepName)
//	    // run the step
//	}
//
// Steps without a [Config] have no limits beyond the pool-wide concurrency.
package queue

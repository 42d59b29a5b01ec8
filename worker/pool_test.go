package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/stepchain/backoff"
	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/id"
	"github.com/xraph/stepchain/invoke"
	"github.com/xraph/stepchain/queue"
	"github.com/xraph/stepchain/runner"
	"github.com/xraph/stepchain/step"
	"github.com/xraph/stepchain/store/memory"
	"github.com/xraph/stepchain/worker"
)

func setupTestPool(t *testing.T, runners worker.RunnerMap, s *memory.Store, opts ...worker.PoolOption) *worker.Pool {
	t.Helper()
	logger := slog.Default()
	executor := worker.NewExecutor(runners, s, nil, nil, 0, logger)
	opts = append([]worker.PoolOption{
		worker.WithPoolConcurrency(2),
		worker.WithPollInterval(10 * time.Millisecond),
	}, opts...)
	return worker.NewPool(s, executor, logger, opts...)
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func stopPool(t *testing.T, pool *worker.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}
}

func TestPool_StartStop(t *testing.T) {
	pool := setupTestPool(t, worker.RunnerMap{}, memory.New())

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	// Double start should be no-op.
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("unexpected double-start error: %v", err)
	}

	stopPool(t, pool)
	// Double stop should be no-op.
	stopPool(t, pool)

	if pool.WorkerID().IsNil() {
		t.Error("expected a worker id")
	}
}

func TestPool_RunsChainToCompletion(t *testing.T) {
	s := memory.New()
	inv := invoke.NewStoreInvoker(s)

	var polls, attached atomic.Int32
	create := step.NewDefinition("create_volume", func(_ context.Context, _ event.Event) (step.Result, error) {
		return step.Advance(event.Event{"volume_id": "v-1"}), nil
	}, step.WithNext("wait_created"))
	wait := step.NewDefinition("wait_created", func(_ context.Context, evt event.Event) (step.Result, error) {
		if polls.Add(1) < 3 {
			return step.Again(nil), nil
		}
		return step.Advance(event.Event{"volume_id": evt.String("volume_id")}), nil
	}, step.WithNext("attach_volume"), step.WithRepeatDelay(0))
	attach := step.NewDefinition("attach_volume", func(_ context.Context, evt event.Event) (step.Result, error) {
		if evt.String("volume_id") == "v-1" {
			attached.Add(1)
		}
		return step.Done(), nil
	})

	runners := worker.RunnerMap{}
	for _, def := range []*step.Definition{create, wait, attach} {
		runners[def.Name()] = runner.FromDefinition(def, inv)
	}

	if err := inv.InvokeAsync(context.Background(), "create_volume", event.Event{}); err != nil {
		t.Fatal(err)
	}

	pool := setupTestPool(t, runners, s)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	waitFor(t, func() bool { return attached.Load() == 1 && s.Len() == 0 }, "chain to finish")
	stopPool(t, pool)

	if got := polls.Load(); got != 3 {
		t.Errorf("wait_created ran %d times, want 3", got)
	}
}

type denyAll struct{ asked atomic.Int32 }

func (d *denyAll) Acquire(string) bool {
	d.asked.Add(1)
	return false
}

func (d *denyAll) Release(string) {}

func TestPool_ThrottledDeliveryIsReleased(t *testing.T) {
	s := memory.New()
	var ran atomic.Bool
	def := step.NewDefinition("wait_created", func(_ context.Context, _ event.Event) (step.Result, error) {
		ran.Store(true)
		return step.Done(), nil
	})
	runners := worker.RunnerMap{"wait_created": runner.FromDefinition(def, nil)}

	if _, err := invoke.NewStoreInvoker(s).Schedule(context.Background(), "wait_created", event.Event{}, 0); err != nil {
		t.Fatal(err)
	}

	limiter := &denyAll{}
	pool := setupTestPool(t, runners, s, worker.WithStepLimiter(limiter), worker.WithPoolConcurrency(1))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return limiter.asked.Load() >= 2 }, "limiter to be consulted twice")
	stopPool(t, pool)

	if ran.Load() {
		t.Error("throttled delivery ran")
	}
	if s.Len() != 1 {
		t.Fatal("throttled delivery lost")
	}
	pending, _ := s.Pending(context.Background(), step.ListOpts{})
	if pending[0].Attempt != 0 {
		t.Errorf("Attempt = %d after throttled claims, want 0", pending[0].Attempt)
	}
}

// countingLimiter records how often the wrapped limiter turns a run away.
type countingLimiter struct {
	*queue.Manager
	denied atomic.Int32
}

func (c *countingLimiter) Acquire(step string) bool {
	if c.Manager.Acquire(step) {
		return true
	}
	c.denied.Add(1)
	return false
}

func TestPool_ThrottlingDoesNotSpendRedeliveries(t *testing.T) {
	s := memory.New()
	var runs atomic.Int32
	def := step.NewDefinition("wait_created", func(_ context.Context, _ event.Event) (step.Result, error) {
		runs.Add(1)
		return step.Result{}, errors.New("ec2 throttled")
	})
	runners := worker.RunnerMap{"wait_created": runner.FromDefinition(def, nil)}
	if _, err := invoke.NewStoreInvoker(s).Schedule(context.Background(), "wait_created", event.Event{}, 0); err != nil {
		t.Fatal(err)
	}

	const maxRedeliveries = 3
	logger := slog.Default()
	executor := worker.NewExecutor(runners, s, nil, backoff.NewConstant(0), maxRedeliveries, logger)
	limiter := &countingLimiter{Manager: queue.NewManager(queue.Config{Step: "wait_created", RateLimit: 8, RateBurst: 1})}
	pool := worker.NewPool(s, executor, logger,
		worker.WithPoolConcurrency(1),
		worker.WithPollInterval(5*time.Millisecond),
		worker.WithStepLimiter(limiter),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Len() == 0 }, "delivery to be dropped")
	stopPool(t, pool)

	if got := runs.Load(); got != maxRedeliveries+1 {
		t.Errorf("step ran %d times, want %d", got, maxRedeliveries+1)
	}
	if limiter.denied.Load() == 0 {
		t.Error("expected the limiter to turn some claims away")
	}
}

// holdingStore keeps a short redelivery Reschedule from returning for a
// while, so the pool still tracks the delivery as running after its new
// RunAt has been written.
type holdingStore struct {
	*memory.Store
	hold time.Duration
}

func (h *holdingStore) Reschedule(ctx context.Context, deliveryID id.DeliveryID, runAt time.Time) error {
	err := h.Store.Reschedule(ctx, deliveryID, runAt)
	if time.Until(runAt) < time.Minute {
		time.Sleep(h.hold)
	}
	return err
}

func TestPool_LeaseRenewalKeepsRedeliveryTime(t *testing.T) {
	s := &holdingStore{Store: memory.New(), hold: 100 * time.Millisecond}
	var runs atomic.Int32
	def := step.NewDefinition("wait_created", func(_ context.Context, _ event.Event) (step.Result, error) {
		if runs.Add(1) == 1 {
			return step.Result{}, errors.New("ec2 throttled")
		}
		return step.Done(), nil
	})
	runners := worker.RunnerMap{"wait_created": runner.FromDefinition(def, nil)}
	if _, err := invoke.NewStoreInvoker(s).Schedule(context.Background(), "wait_created", event.Event{}, 0); err != nil {
		t.Fatal(err)
	}

	logger := slog.Default()
	executor := worker.NewExecutor(runners, s, nil, backoff.NewConstant(0), 3, logger)
	pool := worker.NewPool(s, executor, logger,
		worker.WithPoolConcurrency(1),
		worker.WithPollInterval(10*time.Millisecond),
		worker.WithLease(time.Hour),
		worker.WithLeaseRenewal(5*time.Millisecond),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	// A renewal landing after the redelivery would push it an hour out.
	waitFor(t, func() bool { return s.Len() == 0 }, "redelivery to run")
	stopPool(t, pool)

	if got := runs.Load(); got != 2 {
		t.Errorf("step ran %d times, want 2", got)
	}
}

func TestPool_ShutdownCancelsRunningStep(t *testing.T) {
	s := memory.New()
	started := make(chan struct{})
	def := step.NewDefinition("wait_created", func(ctx context.Context, _ event.Event) (step.Result, error) {
		close(started)
		<-ctx.Done()
		return step.Result{}, ctx.Err()
	})
	runners := worker.RunnerMap{"wait_created": runner.FromDefinition(def, nil)}
	if _, err := invoke.NewStoreInvoker(s).Schedule(context.Background(), "wait_created", event.Event{}, 0); err != nil {
		t.Fatal(err)
	}

	pool := setupTestPool(t, runners, s, worker.WithPoolConcurrency(1))
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("stop error: %v", err)
	}
	if s.Len() != 1 {
		t.Error("cancelled delivery should remain for redelivery")
	}
	if pool.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after stop", pool.ActiveCount())
	}
}

func TestPool_LeaseRenewal(t *testing.T) {
	s := memory.New()
	release := make(chan struct{})
	def := step.NewDefinition("wait_created", func(_ context.Context, _ event.Event) (step.Result, error) {
		<-release
		return step.Done(), nil
	})
	runners := worker.RunnerMap{"wait_created": runner.FromDefinition(def, nil)}
	if _, err := invoke.NewStoreInvoker(s).Schedule(context.Background(), "wait_created", event.Event{}, 0); err != nil {
		t.Fatal(err)
	}

	pool := setupTestPool(t, runners, s,
		worker.WithPoolConcurrency(1),
		worker.WithLease(time.Hour),
		worker.WithLeaseRenewal(20*time.Millisecond),
	)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return pool.ActiveCount() == 1 }, "step to start")

	first, _ := s.Pending(context.Background(), step.ListOpts{})
	time.Sleep(60 * time.Millisecond)
	second, _ := s.Pending(context.Background(), step.ListOpts{})
	if len(first) != 1 || len(second) != 1 || !second[0].RunAt.After(first[0].RunAt) {
		t.Error("expected the lease to be extended")
	}

	close(release)
	waitFor(t, func() bool { return s.Len() == 0 }, "delivery ack")
	stopPool(t, pool)
}

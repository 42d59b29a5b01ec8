package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/stepchain/id"
	"github.com/xraph/stepchain/step"
)

// DefaultLease is how long a claimed delivery stays hidden from other
// workers before it becomes due again.
const DefaultLease = 5 * time.Minute

// StepLimiter controls per-step rate limiting and concurrency. The worker
// pool calls Acquire before running a claimed delivery and Release after
// the run completes.
type StepLimiter interface {
	// Acquire reports whether a delivery of step may run now.
	Acquire(step string) bool
	// Release frees the slot taken by Acquire.
	Release(step string)
}

// activeDelivery is a delivery currently being run by this pool. Once
// settled, the executor owns its store record and renewal leaves it alone.
type activeDelivery struct {
	id     id.DeliveryID
	cancel context.CancelFunc

	mu      sync.Mutex
	settled bool
}

func (a *activeDelivery) settle() {
	a.mu.Lock()
	a.settled = true
	a.mu.Unlock()
}

// Pool manages a set of concurrent worker goroutines that claim due
// deliveries and run them through the Executor.
type Pool struct {
	store        step.Store
	executor     *Executor
	concurrency  int
	batchSize    int
	pollInterval time.Duration
	lease        time.Duration
	workerID     id.WorkerID
	logger       *slog.Logger

	// leaseRenewal is how often leases of running deliveries are extended.
	leaseRenewal time.Duration

	// Step limiter (optional).
	limiter StepLimiter

	stopCh           chan struct{}
	wg               sync.WaitGroup
	mu               sync.Mutex
	running          bool
	activeDeliveries map[string]*activeDelivery
	activeMu         sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithBatchSize sets how many deliveries a worker claims per poll.
func WithBatchSize(n int) PoolOption {
	return func(p *Pool) { p.batchSize = n }
}

// WithPollInterval sets how often idle workers poll for due deliveries.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithLease sets how long a claimed delivery stays hidden from other
// workers. It must exceed the longest step run unless lease renewal is on.
func WithLease(d time.Duration) PoolOption {
	return func(p *Pool) { p.lease = d }
}

// WithLeaseRenewal sets how often the pool extends the lease of running
// deliveries. A zero value disables renewal.
func WithLeaseRenewal(d time.Duration) PoolOption {
	return func(p *Pool) { p.leaseRenewal = d }
}

// WithStepLimiter sets the limiter for per-step rate limiting and
// concurrency control.
func WithStepLimiter(l StepLimiter) PoolOption {
	return func(p *Pool) { p.limiter = l }
}

// NewPool creates a worker pool.
func NewPool(store step.Store, executor *Executor, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		store:            store,
		executor:         executor,
		concurrency:      4,
		batchSize:        1,
		pollInterval:     time.Second,
		lease:            DefaultLease,
		workerID:         id.NewWorkerID(),
		logger:           logger,
		stopCh:           make(chan struct{}),
		activeDeliveries: make(map[string]*activeDelivery),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	if p.batchSize < 1 {
		p.batchSize = 1
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Duration("lease", p.lease),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.claimLoop()
	}

	if p.leaseRenewal > 0 {
		p.wg.Add(1)
		go p.renewLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// If the context has a deadline, running steps are cancelled when time runs
// out; their deliveries become due again once the lease expires.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling running steps")
		p.cancelActive()
		p.wg.Wait()
	}

	return nil
}

// claimLoop is run by each worker goroutine.
func (p *Pool) claimLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		deliveries, err := p.store.ClaimDue(context.Background(), time.Now().UTC(), p.batchSize, p.lease)
		if err != nil {
			p.logger.Error("claim error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}

		if len(deliveries) == 0 {
			p.sleep()
			continue
		}

		for _, d := range deliveries {
			p.process(d)
		}
	}
}

func (p *Pool) process(d *step.Delivery) {
	if p.limiter != nil && !p.limiter.Acquire(d.Step) {
		// Throttled: hand it back one poll interval later without
		// spending a redelivery.
		if err := p.store.Release(context.Background(), d.ID, time.Now().UTC().Add(p.pollInterval)); err != nil {
			p.logger.Error("failed to release throttled delivery",
				slog.String("delivery_id", d.ID.String()),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if p.limiter != nil {
		defer p.limiter.Release(d.Step)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := p.track(d.ID, cancel)
	defer p.untrack(d.ID)

	if err := p.executor.execute(ctx, d, a.settle); err != nil {
		p.logger.Debug("delivery failed",
			slog.String("delivery_id", d.ID.String()),
			slog.String("step", d.Step),
			slog.String("error", err.Error()),
		)
	}
}

// renewLoop periodically extends the lease of running deliveries.
func (p *Pool) renewLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.leaseRenewal)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.renewLeases()
		}
	}
}

func (p *Pool) renewLeases() {
	p.activeMu.Lock()
	active := make([]*activeDelivery, 0, len(p.activeDeliveries))
	for _, a := range p.activeDeliveries {
		active = append(active, a)
	}
	p.activeMu.Unlock()

	until := time.Now().UTC().Add(p.lease)
	for _, a := range active {
		p.renew(a, until)
	}
}

// renew extends a's lease unless its run has already settled.
func (p *Pool) renew(a *activeDelivery, until time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.settled {
		return
	}
	if err := p.store.Reschedule(context.Background(), a.id, until); err != nil {
		p.logger.Warn("lease renewal failed",
			slog.String("delivery_id", a.id.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) track(dID id.DeliveryID, cancel context.CancelFunc) *activeDelivery {
	a := &activeDelivery{id: dID, cancel: cancel}
	p.activeMu.Lock()
	p.activeDeliveries[dID.String()] = a
	p.activeMu.Unlock()
	return a
}

func (p *Pool) untrack(dID id.DeliveryID) {
	p.activeMu.Lock()
	delete(p.activeDeliveries, dID.String())
	p.activeMu.Unlock()
}

// ActiveCount returns the number of deliveries currently running.
func (p *Pool) ActiveCount() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return len(p.activeDeliveries)
}

func (p *Pool) cancelActive() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for key, a := range p.activeDeliveries {
		p.logger.Warn("cancelling running step", slog.String("delivery_id", key))
		a.cancel()
	}
}

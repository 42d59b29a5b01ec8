// Package memory implements store.Store in process memory. Safe for
// concurrent access. Intended for unit testing, development, and single
// process deployments that can lose pending deliveries on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/id"
	"github.com/xraph/stepchain/step"
	"github.com/xraph/stepchain/store"
)

var _ store.Store = (*Store)(nil)

// Store is a fully in-memory delivery store.
type Store struct {
	mu         sync.RWMutex
	deliveries map[string]*step.Delivery
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		deliveries: make(map[string]*step.Delivery),
	}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// Schedule persists a new delivery.
func (m *Store) Schedule(_ context.Context, d *step.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := d.ID.String()
	if _, exists := m.deliveries[key]; exists {
		return stepchain.ErrDeliveryExists
	}
	m.deliveries[key] = copyDelivery(d)
	return nil
}

// ClaimDue leases up to limit due deliveries, earliest first.
func (m *Store) ClaimDue(_ context.Context, now time.Time, limit int, lease time.Duration) ([]*step.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]*step.Delivery, 0, len(m.deliveries))
	for _, d := range m.deliveries {
		if d.RunAt.After(now) {
			continue
		}
		candidates = append(candidates, d)
	}

	sortByRunAt(candidates)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*step.Delivery, len(candidates))
	for i, d := range candidates {
		d.Attempt++
		d.RunAt = now.Add(lease)
		// Return a copy so callers can mutate without racing with the store.
		result[i] = copyDelivery(d)
	}
	return result, nil
}

// Ack removes a processed delivery.
func (m *Store) Ack(_ context.Context, deliveryID id.DeliveryID) error {
	return m.remove(deliveryID)
}

// Reschedule sets a delivery's RunAt.
func (m *Store) Reschedule(_ context.Context, deliveryID id.DeliveryID, runAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[deliveryID.String()]
	if !ok {
		return stepchain.ErrDeliveryNotFound
	}
	d.RunAt = runAt
	return nil
}

// Release makes a claimed delivery due at runAt and uncounts its claim.
func (m *Store) Release(_ context.Context, deliveryID id.DeliveryID, runAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deliveries[deliveryID.String()]
	if !ok {
		return stepchain.ErrDeliveryNotFound
	}
	d.RunAt = runAt
	if d.Attempt > 0 {
		d.Attempt--
	}
	return nil
}

// Pending returns scheduled deliveries ordered by RunAt.
func (m *Store) Pending(_ context.Context, opts step.ListOpts) ([]*step.Delivery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*step.Delivery, 0, len(m.deliveries))
	for _, d := range m.deliveries {
		if opts.Step != "" && d.Step != opts.Step {
			continue
		}
		result = append(result, copyDelivery(d))
	}

	sortByRunAt(result)
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// Cancel removes a delivery.
func (m *Store) Cancel(_ context.Context, deliveryID id.DeliveryID) error {
	return m.remove(deliveryID)
}

// Len returns the number of stored deliveries.
func (m *Store) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.deliveries)
}

func (m *Store) remove(deliveryID id.DeliveryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := deliveryID.String()
	if _, ok := m.deliveries[key]; !ok {
		return stepchain.ErrDeliveryNotFound
	}
	delete(m.deliveries, key)
	return nil
}

func sortByRunAt(ds []*step.Delivery) {
	sort.Slice(ds, func(i, k int) bool {
		if ds[i].RunAt.Equal(ds[k].RunAt) {
			return ds[i].EnqueuedAt.Before(ds[k].EnqueuedAt)
		}
		return ds[i].RunAt.Before(ds[k].RunAt)
	})
}

func copyDelivery(d *step.Delivery) *step.Delivery {
	cp := *d
	cp.Payload = append([]byte(nil), d.Payload...)
	return &cp
}

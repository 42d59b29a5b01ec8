package step

import (
	"context"
	"time"

	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/id"
)

// Delivery is one scheduled trigger of a step.
type Delivery struct {
	ID         id.DeliveryID `json:"id"`
	Step       string        `json:"step"`
	Payload    []byte        `json:"payload"`
	Codec      string        `json:"codec"`
	RunAt      time.Time     `json:"run_at"`
	EnqueuedAt time.Time     `json:"enqueued_at"`

	// Attempt counts how many times the delivery has been claimed.
	Attempt int `json:"attempt"`
}

// NewDelivery encodes payload with codec and returns a delivery due at
// now+delay.
func NewDelivery(stepName string, payload event.Event, codec event.Codec, delay time.Duration) (*Delivery, error) {
	data, err := codec.Encode(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Delivery{
		ID:         id.NewDeliveryID(),
		Step:       stepName,
		Payload:    data,
		Codec:      codec.Name(),
		RunAt:      now.Add(delay),
		EnqueuedAt: now,
	}, nil
}

// Event decodes the delivery payload.
func (d *Delivery) Event() (event.Event, error) {
	return event.GetCodec(d.Codec).Decode(d.Payload)
}

// Invocation describes one handler call. Middleware and extensions receive it.
type Invocation struct {
	ID        id.InvocationID
	Step      string
	Iteration int
	Event     event.Event
	StartedAt time.Time

	// Timeout is the step's per-call deadline. Zero means none.
	Timeout time.Duration
}

// ListOpts controls filtering for pending delivery queries.
type ListOpts struct {
	// Step filters by step name. Empty means all steps.
	Step string
	// Limit is the maximum number of deliveries to return. Zero means no limit.
	Limit int
}

// Store holds deliveries until they are due.
type Store interface {
	// Schedule persists a new delivery.
	Schedule(ctx context.Context, d *Delivery) error

	// ClaimDue returns up to limit deliveries whose RunAt is not after now,
	// ordered by RunAt. Each claimed delivery has its Attempt incremented and
	// is hidden until now+lease; if it is not acknowledged by then it becomes
	// due again.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*Delivery, error)

	// Ack removes a claimed delivery after it has been processed.
	Ack(ctx context.Context, deliveryID id.DeliveryID) error

	// Reschedule makes a claimed delivery due again at runAt.
	Reschedule(ctx context.Context, deliveryID id.DeliveryID, runAt time.Time) error

	// Release returns a claimed delivery without running it. It becomes due
	// at runAt and the attempt counted by its claim is given back.
	Release(ctx context.Context, deliveryID id.DeliveryID, runAt time.Time) error

	// Pending returns scheduled deliveries ordered by RunAt.
	Pending(ctx context.Context, opts ListOpts) ([]*Delivery, error)

	// Cancel removes a delivery that has not been processed.
	Cancel(ctx context.Context, deliveryID id.DeliveryID) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources the store owns.
	Close() error
}

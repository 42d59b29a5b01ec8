package invoke

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/step"
)

// StoreOption configures a StoreInvoker.
type StoreOption func(*StoreInvoker)

// WithCodec sets the codec deliveries are encoded with. Defaults to JSON.
func WithCodec(c event.Codec) StoreOption {
	return func(s *StoreInvoker) { s.codec = c }
}

// WithKnown rejects targets for which known returns false.
func WithKnown(known func(step string) bool) StoreOption {
	return func(s *StoreInvoker) { s.known = known }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *StoreInvoker) { s.logger = l }
}

// StoreInvoker schedules invocations as deliveries in a step.Store. A
// worker pool claims them when due.
type StoreInvoker struct {
	store  step.Store
	codec  event.Codec
	known  func(string) bool
	logger *slog.Logger
}

// NewStoreInvoker returns an invoker backed by s.
func NewStoreInvoker(s step.Store, opts ...StoreOption) *StoreInvoker {
	inv := &StoreInvoker{
		store:  s,
		codec:  event.JSONCodec{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// InvokeAsync schedules a delivery due now.
func (s *StoreInvoker) InvokeAsync(ctx context.Context, stepName string, payload event.Event) error {
	_, err := s.Schedule(ctx, stepName, payload, 0)
	return err
}

// InvokeDelayed schedules a delivery due after delay.
func (s *StoreInvoker) InvokeDelayed(ctx context.Context, stepName string, payload event.Event, delay time.Duration) error {
	_, err := s.Schedule(ctx, stepName, payload, delay)
	return err
}

// Schedule is InvokeDelayed that also returns the stored delivery.
func (s *StoreInvoker) Schedule(ctx context.Context, stepName string, payload event.Event, delay time.Duration) (*step.Delivery, error) {
	if s.store == nil {
		return nil, stepchain.ErrNoStore
	}
	if s.known != nil && !s.known(stepName) {
		return nil, fmt.Errorf("%w: %q", stepchain.ErrUnknownStep, stepName)
	}
	if delay < 0 {
		delay = 0
	}

	d, err := step.NewDelivery(stepName, payload, s.codec, delay)
	if err != nil {
		return nil, &stepchain.SerializationError{Step: stepName, Err: err}
	}
	if err := s.store.Schedule(ctx, d); err != nil {
		return nil, fmt.Errorf("schedule delivery: %w", err)
	}

	s.logger.Debug("delivery scheduled",
		slog.String("delivery_id", d.ID.String()),
		slog.String("step", stepName),
		slog.Time("run_at", d.RunAt),
	)
	return d, nil
}

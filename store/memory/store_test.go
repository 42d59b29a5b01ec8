package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/id"
	"github.com/xraph/stepchain/step"
)

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

func newDelivery(stepName string, runAt time.Time) *step.Delivery {
	return &step.Delivery{
		ID:         id.NewDeliveryID(),
		Step:       stepName,
		Payload:    []byte(`{"volume_id":"v-1"}`),
		Codec:      "json",
		RunAt:      runAt,
		EnqueuedAt: time.Now().UTC(),
	}
}

func TestScheduleDuplicate(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	d := newDelivery("wait_created", time.Now())
	if err := s.Schedule(ctx, d); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Schedule(ctx, d); !errors.Is(err, stepchain.ErrDeliveryExists) {
		t.Fatalf("expected ErrDeliveryExists, got %v", err)
	}
}

func TestClaimDue(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	late := newDelivery("b", now.Add(-time.Second))
	early := newDelivery("a", now.Add(-time.Minute))
	future := newDelivery("c", now.Add(time.Hour))
	for _, d := range []*step.Delivery{late, early, future} {
		if err := s.Schedule(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ClaimDue(ctx, now, 10, 30*time.Second)
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 due deliveries, got %d", len(got))
	}
	if got[0].ID.String() != early.ID.String() || got[1].ID.String() != late.ID.String() {
		t.Errorf("wrong order: %s, %s", got[0].Step, got[1].Step)
	}
	if got[0].Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", got[0].Attempt)
	}

	// Leased deliveries are hidden until the lease runs out.
	again, _ := s.ClaimDue(ctx, now, 10, 30*time.Second)
	if len(again) != 0 {
		t.Errorf("expected leased deliveries to be hidden, got %d", len(again))
	}

	expired, _ := s.ClaimDue(ctx, now.Add(time.Minute), 10, 30*time.Second)
	if len(expired) != 2 {
		t.Fatalf("expected 2 redeliveries after lease expiry, got %d", len(expired))
	}
	if expired[0].Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", expired[0].Attempt)
	}
}

func TestClaimDueLimit(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	for range 5 {
		_ = s.Schedule(ctx, newDelivery("s", now.Add(-time.Second)))
	}

	got, _ := s.ClaimDue(ctx, now, 2, time.Minute)
	if len(got) != 2 {
		t.Errorf("expected 2, got %d", len(got))
	}
}

func TestAckRescheduleCancel(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	d := newDelivery("s", now.Add(-time.Second))
	_ = s.Schedule(ctx, d)

	if err := s.Reschedule(ctx, d.ID, now.Add(time.Hour)); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if got, _ := s.ClaimDue(ctx, now, 10, time.Minute); len(got) != 0 {
		t.Errorf("rescheduled delivery claimed early")
	}

	if err := s.Ack(ctx, d.ID); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d after ack", s.Len())
	}

	for name, fn := range map[string]func() error{
		"Ack":        func() error { return s.Ack(ctx, d.ID) },
		"Cancel":     func() error { return s.Cancel(ctx, d.ID) },
		"Reschedule": func() error { return s.Reschedule(ctx, d.ID, now) },
		"Release":    func() error { return s.Release(ctx, d.ID, now) },
	} {
		if err := fn(); !errors.Is(err, stepchain.ErrDeliveryNotFound) {
			t.Errorf("%s: expected ErrDeliveryNotFound, got %v", name, err)
		}
	}
}

func TestReleaseUncountsClaim(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	d := newDelivery("wait_created", now.Add(-time.Second))
	_ = s.Schedule(ctx, d)

	for range 3 {
		got, _ := s.ClaimDue(ctx, now, 1, time.Minute)
		if len(got) != 1 {
			t.Fatalf("expected a claim, got %d", len(got))
		}
		if got[0].Attempt != 1 {
			t.Fatalf("Attempt = %d, want 1", got[0].Attempt)
		}
		if err := s.Release(ctx, d.ID, now); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}
}

func TestPending(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = s.Schedule(ctx, newDelivery("wait_created", now.Add(2*time.Minute)))
	_ = s.Schedule(ctx, newDelivery("wait_created", now.Add(time.Minute)))
	_ = s.Schedule(ctx, newDelivery("attach_volume", now))

	all, _ := s.Pending(ctx, step.ListOpts{})
	if len(all) != 3 {
		t.Fatalf("expected 3, got %d", len(all))
	}
	if all[0].Step != "attach_volume" {
		t.Errorf("expected earliest first, got %s", all[0].Step)
	}

	filtered, _ := s.Pending(ctx, step.ListOpts{Step: "wait_created", Limit: 1})
	if len(filtered) != 1 || filtered[0].Step != "wait_created" {
		t.Errorf("filtered = %+v", filtered)
	}
	if !filtered[0].RunAt.Equal(now.Add(time.Minute)) {
		t.Errorf("expected earliest wait_created delivery")
	}
}

func TestCopyOnReturn(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	d := newDelivery("s", time.Now().Add(-time.Second))
	_ = s.Schedule(ctx, d)
	d.Payload[0] = 'X'

	got, _ := s.Pending(ctx, step.ListOpts{})
	if got[0].Payload[0] != '{' {
		t.Error("store shares payload with caller")
	}
	got[0].Step = "mutated"
	again, _ := s.Pending(ctx, step.ListOpts{})
	if again[0].Step != "s" {
		t.Error("store shares delivery with caller")
	}
}

package invoke_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/invoke"
	"github.com/xraph/stepchain/invoke/invoketest"
	"github.com/xraph/stepchain/step"
	"github.com/xraph/stepchain/store/memory"
)

func TestDelayedTrigger(t *testing.T) {
	t.Parallel()
	rec := &invoketest.Recorder{}

	err := invoke.DelayedTrigger{}.Repeat(context.Background(), rec, "wait_created",
		event.Event{"iteration_count": 1}, 30*time.Second)
	if err != nil {
		t.Fatalf("Repeat: %v", err)
	}

	calls := rec.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if !calls[0].Delayed || calls[0].Delay != 30*time.Second || calls[0].Step != "wait_created" {
		t.Errorf("call = %+v", calls[0])
	}
}

func TestSleepThenInvoke(t *testing.T) {
	t.Parallel()
	rec := &invoketest.Recorder{}

	start := time.Now()
	err := invoke.SleepThenInvoke{}.Repeat(context.Background(), rec, "s", event.Event{}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Repeat: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("returned after %s, expected to sleep", elapsed)
	}
	calls := rec.Calls()
	if len(calls) != 1 || calls[0].Delayed {
		t.Errorf("expected one immediate call, got %+v", calls)
	}
}

func TestSleepThenInvoke_DeadlineTooShort(t *testing.T) {
	t.Parallel()
	rec := &invoketest.Recorder{}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := invoke.SleepThenInvoke{}.Repeat(ctx, rec, "s", event.Event{}, time.Hour)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("expected to fail without sleeping")
	}
	if rec.Len() != 0 {
		t.Errorf("expected no invocation, got %d", rec.Len())
	}
}

func TestSleepThenInvoke_Cancelled(t *testing.T) {
	t.Parallel()
	rec := &invoketest.Recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := invoke.SleepThenInvoke{}.Repeat(ctx, rec, "s", event.Event{}, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}
	if rec.Len() != 0 {
		t.Errorf("expected no invocation, got %d", rec.Len())
	}
}

func TestDefaultRepeatStrategy(t *testing.T) {
	if _, ok := invoke.DefaultRepeatStrategy().(invoke.DelayedTrigger); !ok {
		t.Errorf("default strategy = %T, want DelayedTrigger", invoke.DefaultRepeatStrategy())
	}
}

func TestSplit(t *testing.T) {
	t.Parallel()
	now, later := &invoketest.Recorder{}, &invoketest.Recorder{}
	s := invoke.Split{Immediate: now, Delayed: later}
	ctx := context.Background()

	_ = s.InvokeAsync(ctx, "a", event.Event{})
	_ = s.InvokeDelayed(ctx, "b", event.Event{}, 0)
	_ = s.InvokeDelayed(ctx, "c", event.Event{}, time.Minute)

	if now.Len() != 2 {
		t.Errorf("immediate calls = %d, want 2", now.Len())
	}
	if later.Len() != 1 || later.Calls()[0].Step != "c" {
		t.Errorf("delayed calls = %+v", later.Calls())
	}
}

func TestStoreInvoker(t *testing.T) {
	t.Parallel()
	s := memory.New()
	known := map[string]bool{"wait_created": true}
	inv := invoke.NewStoreInvoker(s, invoke.WithKnown(func(n string) bool { return known[n] }))
	ctx := context.Background()

	if err := inv.InvokeDelayed(ctx, "wait_created", event.Event{"volume_id": "v-1"}, time.Minute); err != nil {
		t.Fatalf("InvokeDelayed: %v", err)
	}

	pending, _ := s.Pending(ctx, step.ListOpts{})
	if len(pending) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(pending))
	}
	d := pending[0]
	if d.Step != "wait_created" || d.Codec != "json" {
		t.Errorf("delivery = %+v", d)
	}
	if d.RunAt.Sub(d.EnqueuedAt) != time.Minute {
		t.Errorf("RunAt - EnqueuedAt = %s, want 1m", d.RunAt.Sub(d.EnqueuedAt))
	}
	evt, err := d.Event()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.String("volume_id") != "v-1" {
		t.Errorf("payload = %v", evt)
	}

	if err := inv.InvokeAsync(ctx, "nope", event.Event{}); !errors.Is(err, stepchain.ErrUnknownStep) {
		t.Errorf("expected ErrUnknownStep, got %v", err)
	}
	if err := inv.InvokeAsync(ctx, "wait_created", event.Event{"ch": make(chan int)}); !errors.Is(err, stepchain.ErrSerialization) {
		t.Errorf("expected ErrSerialization, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("failed invocations must not be stored, Len = %d", s.Len())
	}
}

func TestStoreInvoker_Msgpack(t *testing.T) {
	t.Parallel()
	s := memory.New()
	inv := invoke.NewStoreInvoker(s, invoke.WithCodec(event.MsgpackCodec{}))

	d, err := inv.Schedule(context.Background(), "s", event.Event{"iteration_count": 2}, 0)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if d.Codec != "msgpack" {
		t.Errorf("Codec = %q", d.Codec)
	}
	evt, err := d.Event()
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := evt.IterationCount(); n != 2 {
		t.Errorf("iteration_count = %d", n)
	}
}

func TestStoreInvoker_NoStore(t *testing.T) {
	inv := invoke.NewStoreInvoker(nil)
	if err := inv.InvokeAsync(context.Background(), "s", event.Event{}); !errors.Is(err, stepchain.ErrNoStore) {
		t.Errorf("expected ErrNoStore, got %v", err)
	}
}

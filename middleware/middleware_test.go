package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/id"
	"github.com/xraph/stepchain/middleware"
	"github.com/xraph/stepchain/step"
)

func newTestInvocation() *step.Invocation {
	return &step.Invocation{
		ID:        id.NewInvocationID(),
		Step:      "wait_created",
		Iteration: 2,
		Event:     event.Event{"volume_id": "v-1", "iteration_count": 2},
		StartedAt: time.Now(),
	}
}

func done(_ context.Context) (step.Result, error) { return step.Done(), nil }

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *step.Invocation, next middleware.Handler) (step.Result, error) {
		order = append(order, "mw1-before")
		res, err := next(ctx)
		order = append(order, "mw1-after")
		return res, err
	}
	mw2 := func(ctx context.Context, _ *step.Invocation, next middleware.Handler) (step.Result, error) {
		order = append(order, "mw2-before")
		res, err := next(ctx)
		order = append(order, "mw2-after")
		return res, err
	}

	chain := middleware.Chain(mw1, mw2)
	res, err := chain(context.Background(), newTestInvocation(), func(_ context.Context) (step.Result, error) {
		order = append(order, "handler")
		return step.Again(nil), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Action != step.Repeat {
		t.Errorf("Action = %s, want repeat", res.Action)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	called := false
	_, err := middleware.Chain()(context.Background(), newTestInvocation(), func(_ context.Context) (step.Result, error) {
		called = true
		return step.Done(), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	pass := func(ctx context.Context, _ *step.Invocation, next middleware.Handler) (step.Result, error) {
		return next(ctx)
	}
	want := errors.New("handler error")

	_, err := middleware.Chain(pass, pass)(context.Background(), newTestInvocation(), func(_ context.Context) (step.Result, error) {
		return step.Result{}, want
	})
	if err != want {
		t.Fatalf("expected the handler error unchanged, got %v", err)
	}
}

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	res, err := middleware.Recover(logger)(context.Background(), newTestInvocation(), func(_ context.Context) (step.Result, error) {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected panic error, got %v", err)
	}
	if res.Action.Valid() {
		t.Errorf("expected zero result after panic, got %s", res.Action)
	}
	if !strings.Contains(buf.String(), "step handler panicked") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestRecover_NoPanic(t *testing.T) {
	res, err := middleware.Recover(slog.Default())(context.Background(), newTestInvocation(), done)
	if err != nil || res.Action != step.Terminate {
		t.Fatalf("got %v, %v", res, err)
	}
}

func TestTimeout(t *testing.T) {
	inv := newTestInvocation()
	inv.Timeout = 10 * time.Millisecond

	_, err := middleware.Timeout()(context.Background(), inv, func(ctx context.Context) (step.Result, error) {
		<-ctx.Done()
		return step.Result{}, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTimeout_Zero(t *testing.T) {
	_, err := middleware.Timeout()(context.Background(), newTestInvocation(), func(ctx context.Context) (step.Result, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("expected no deadline for zero timeout")
		}
		return step.Done(), nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := middleware.Logging(logger)

	_, _ = m(context.Background(), newTestInvocation(), func(_ context.Context) (step.Result, error) {
		return step.Advance(event.Event{}), nil
	})
	out := buf.String()
	for _, want := range []string{"step started", "step returned", "action=next", "iteration_count=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	_, _ = m(context.Background(), newTestInvocation(), func(_ context.Context) (step.Result, error) {
		return step.Result{}, errors.New("describe volume: throttled")
	})
	if !strings.Contains(buf.String(), "step failed") {
		t.Errorf("failure not logged:\n%s", buf.String())
	}
}

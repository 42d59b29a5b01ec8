package awslambda_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/awslambda"
	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/invoke/invoketest"
	"github.com/xraph/stepchain/invoke/sqs"
	"github.com/xraph/stepchain/runner"
	"github.com/xraph/stepchain/step"
)

type recordingHandler struct {
	seen []event.Event
	res  step.Result
	err  error
}

func (h *recordingHandler) Handle(_ context.Context, evt event.Event) (step.Result, error) {
	h.seen = append(h.seen, evt)
	return h.res, h.err
}

func newRunner(name string, h step.Handler) (*runner.Runner, *invoketest.Recorder) {
	rec := &invoketest.Recorder{}
	cfg := step.DefaultConfig(name)
	return runner.New(cfg, h, rec), rec
}

func TestHandler_DirectEvent(t *testing.T) {
	h := &recordingHandler{res: step.Done()}
	r, _ := newRunner("create_backup", h)

	err := awslambda.Handler(r)(context.Background(), json.RawMessage(`{"volume_id":"vol-1"}`))
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if len(h.seen) != 1 {
		t.Fatalf("handler called %d times, want 1", len(h.seen))
	}
	if h.seen[0]["volume_id"] != "vol-1" {
		t.Errorf("volume_id = %v, want vol-1", h.seen[0]["volume_id"])
	}
}

func TestHandler_Envelope(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantCalled bool
	}{
		{"targeted envelope", `{"target_step":"wait_created","payload":{"iteration_count":1}}`, true},
		{"legacy shape", `{"target_lambda":"wait_created","iteration_count":1}`, true},
		{"other step", `{"target_step":"create_backup","payload":{}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := &recordingHandler{res: step.Done()}
			r, _ := newRunner("wait_created", h)

			if err := awslambda.Handler(r)(context.Background(), json.RawMessage(tt.body)); err != nil {
				t.Fatalf("Handler: %v", err)
			}
			if got := len(h.seen) == 1; got != tt.wantCalled {
				t.Fatalf("handler called = %v, want %v", got, tt.wantCalled)
			}
			if !tt.wantCalled {
				return
			}
			if _, ok := h.seen[0]["target_lambda"]; ok {
				t.Error("target_lambda leaked into the event")
			}
			n, err := h.seen[0].IterationCount()
			if err != nil || n != 1 {
				t.Errorf("IterationCount = %d, %v; want 1", n, err)
			}
		})
	}
}

func TestHandler_MalformedPayload(t *testing.T) {
	h := &recordingHandler{res: step.Done()}
	r, _ := newRunner("create_backup", h)

	err := awslambda.Handler(r)(context.Background(), json.RawMessage(`[1,2]`))
	if !errors.Is(err, stepchain.ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
	if len(h.seen) != 0 {
		t.Error("handler should not run")
	}
}

func TestHandler_LegacyWithoutIterationCount(t *testing.T) {
	h := &recordingHandler{res: step.Done()}
	r, _ := newRunner("wait_created", h)

	err := awslambda.Handler(r)(context.Background(), json.RawMessage(`{"target_lambda":"wait_created","volume_id":"vol-1"}`))
	if !errors.Is(err, stepchain.ErrSerialization) || !errors.Is(err, sqs.ErrMissingIterationCount) {
		t.Fatalf("expected SerializationError(ErrMissingIterationCount), got %v", err)
	}
	if len(h.seen) != 0 {
		t.Error("handler should not run")
	}
}

func TestHandler_RepeatChainsThroughInvoker(t *testing.T) {
	h := &recordingHandler{res: step.Again(nil)}
	r, rec := newRunner("wait_created", h)

	err := awslambda.Handler(r)(context.Background(), json.RawMessage(`{"iteration_count":0}`))
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	calls := rec.Calls()
	if len(calls) != 1 || !calls[0].Delayed || calls[0].Step != "wait_created" {
		t.Fatalf("calls = %+v, want one delayed self call", calls)
	}
}

func sqsEvent(bodies map[string]string) events.SQSEvent {
	var batch events.SQSEvent
	for id, body := range bodies {
		batch.Records = append(batch.Records, events.SQSMessage{MessageId: id, Body: body})
	}
	return batch
}

func failedIDs(resp events.SQSEventResponse) map[string]bool {
	out := make(map[string]bool, len(resp.BatchItemFailures))
	for _, f := range resp.BatchItemFailures {
		out[f.ItemIdentifier] = true
	}
	return out
}

func TestSQSHandler_Batch(t *testing.T) {
	h := &recordingHandler{res: step.Done()}
	r, _ := newRunner("wait_created", h)

	batch := sqsEvent(map[string]string{
		"ok":        `{"target_step":"wait_created","payload":{"iteration_count":0}}`,
		"other":     `{"target_step":"create_backup","payload":{}}`,
		"malformed": `not json`,
		"limit":     `{"target_step":"wait_created","payload":{"iteration_count":9}}`,
		"uncounted": `{"target_lambda":"wait_created"}`,
	})

	resp, err := awslambda.SQSHandler(r)(context.Background(), batch)
	if err != nil {
		t.Fatalf("SQSHandler: %v", err)
	}

	failed := failedIDs(resp)
	if len(failed) != 3 || !failed["malformed"] || !failed["limit"] || !failed["uncounted"] {
		t.Errorf("failures = %v, want malformed, limit, uncounted", failed)
	}
	if len(h.seen) != 1 {
		t.Errorf("handler called %d times, want 1", len(h.seen))
	}
}

func TestSQSHandler_DropPermanent(t *testing.T) {
	h := &recordingHandler{res: step.Done()}
	r, _ := newRunner("wait_created", h)

	batch := sqsEvent(map[string]string{
		"limit":  `{"target_step":"wait_created","payload":{"iteration_count":9}}`,
		"legacy": `{"target_lambda":"wait_created"}`,
	})

	resp, err := awslambda.SQSHandler(r, awslambda.WithDropPermanent())(context.Background(), batch)
	if err != nil {
		t.Fatalf("SQSHandler: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("failures = %v, want none", resp.BatchItemFailures)
	}
}

func TestSQSHandler_TransientFailureIsReported(t *testing.T) {
	h := &recordingHandler{res: step.Advance(event.Event{"snapshot_id": "snap-1"})}
	cfg := step.DefaultConfig("create_backup")
	cfg.Next = "wait_created"
	rec := &invoketest.Recorder{Err: errors.New("throttled")}
	r := runner.New(cfg, h, rec)

	batch := sqsEvent(map[string]string{
		"m1": `{"target_step":"create_backup","payload":{}}`,
	})

	resp, err := awslambda.SQSHandler(r, awslambda.WithDropPermanent())(context.Background(), batch)
	if err != nil {
		t.Fatalf("SQSHandler: %v", err)
	}
	if !failedIDs(resp)["m1"] {
		t.Errorf("failures = %v, want m1", resp.BatchItemFailures)
	}
}

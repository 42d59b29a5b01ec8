package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/ext"
	"github.com/xraph/stepchain/step"
)

// Compile-time interface checks.
var (
	_ ext.Extension        = (*Extension)(nil)
	_ ext.StepStarted      = (*Extension)(nil)
	_ ext.StepTerminated   = (*Extension)(nil)
	_ ext.StepChained      = (*Extension)(nil)
	_ ext.StepRepeating    = (*Extension)(nil)
	_ ext.StepFailed       = (*Extension)(nil)
	_ ext.DeliveryRetrying = (*Extension)(nil)
)

// Recorder is the interface audit backends implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension writes step lifecycle events to an audit trail through a
// [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Step lifecycle hooks ────────────────────────────

// OnStepStarted implements ext.StepStarted.
func (e *Extension) OnStepStarted(ctx context.Context, inv *step.Invocation) error {
	return e.record(ctx, ActionStepStarted, SeverityInfo, OutcomeSuccess,
		ResourceInvocation, inv.ID.String(), CategoryStep, nil,
		"step", inv.Step,
		"iteration_count", inv.Iteration,
	)
}

// OnStepTerminated implements ext.StepTerminated.
func (e *Extension) OnStepTerminated(ctx context.Context, inv *step.Invocation, elapsed time.Duration) error {
	return e.record(ctx, ActionStepTerminated, SeverityInfo, OutcomeSuccess,
		ResourceInvocation, inv.ID.String(), CategoryStep, nil,
		"step", inv.Step,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnStepChained implements ext.StepChained.
func (e *Extension) OnStepChained(ctx context.Context, inv *step.Invocation, next string, elapsed time.Duration) error {
	return e.record(ctx, ActionStepChained, SeverityInfo, OutcomeSuccess,
		ResourceInvocation, inv.ID.String(), CategoryStep, nil,
		"step", inv.Step,
		"next", next,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnStepRepeating implements ext.StepRepeating.
func (e *Extension) OnStepRepeating(ctx context.Context, inv *step.Invocation, iteration int, delay time.Duration) error {
	return e.record(ctx, ActionStepRepeating, SeverityInfo, OutcomeSuccess,
		ResourceInvocation, inv.ID.String(), CategoryStep, nil,
		"step", inv.Step,
		"iteration_count", iteration,
		"delay_ms", delay.Milliseconds(),
	)
}

// OnStepFailed implements ext.StepFailed. Permanent failures are critical.
func (e *Extension) OnStepFailed(ctx context.Context, inv *step.Invocation, stepErr error) error {
	severity := SeverityWarning
	if stepchain.IsPermanent(stepErr) {
		severity = SeverityCritical
	}
	return e.record(ctx, ActionStepFailed, severity, OutcomeFailure,
		ResourceInvocation, inv.ID.String(), CategoryStep, stepErr,
		"step", inv.Step,
		"iteration_count", inv.Iteration,
	)
}

// ── Delivery hooks ──────────────────────────────────

// OnDeliveryRetrying implements ext.DeliveryRetrying.
func (e *Extension) OnDeliveryRetrying(ctx context.Context, d *step.Delivery, runErr error, nextRunAt time.Time) error {
	return e.record(ctx, ActionDeliveryRetrying, SeverityWarning, OutcomeFailure,
		ResourceDelivery, d.ID.String(), CategoryDelivery, runErr,
		"step", d.Step,
		"attempt", d.Attempt,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}

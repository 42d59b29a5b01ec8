// Package audithook is a stepchain extension that writes step lifecycle
// events to an audit trail.
//
// Every step and delivery hook emits a structured audit event through the
// [Recorder] interface. Normal progress is recorded at info severity,
// redeliveries and transient failures at warning, and failures that no
// retry can fix (configuration, iteration limit, malformed payload) at
// critical.
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    logger.InfoContext(ctx, evt.Action, slog.String("step", evt.ResourceID))
//	    return nil
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionStepFailed,
//	        audithook.ActionDeliveryRetrying,
//	    ),
//	)
package audithook

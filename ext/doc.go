// Package ext defines the extension system for stepchain.
//
// Extensions are notified of step lifecycle events and can react to them:
// recording metrics, writing audit logs, paging an operator when a wait
// step gives up. Each lifecycle hook is a separate interface so extensions
// opt in only to the events they care about.
//
// # Implementing an Extension
//
//	type Pager struct{ client *pager.Client }
//
//	func (p *Pager) Name() string { return "pager" }
//
//	func (p *Pager) OnStepFailed(ctx context.Context, inv *step.Invocation, err error) error {
//	    if errors.Is(err, stepchain.ErrIterationLimitExceeded) {
//	        return p.client.Page(ctx, inv.Step+" gave up: "+err.Error())
//	    }
//	    return nil
//	}
//
// # Hooks
//
//   - [StepStarted]: the handler is about to run
//   - [StepTerminated]: the handler returned Terminate
//   - [StepChained]: the successor step was invoked
//   - [StepRepeating]: the step scheduled itself again
//   - [StepFailed]: the execution ended in an error
//   - [DeliveryRetrying]: a worker rescheduled a failed delivery
//   - [Shutdown]: the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never change the outcome of a step.
package ext

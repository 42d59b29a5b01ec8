// Package step defines the contract between a step's domain logic and the
// runner that executes it.
//
// # Handlers
//
// A [Handler] receives the incoming [event.Event] and returns a [Result]
// naming one of three [NextAction] values:
//
//	Terminate  the pipeline (or this branch of it) is finished
//	Next       hand the result payload to the configured successor step
//	Repeat     run this step again later, with iteration_count + 1
//
// "Not done yet" is expressed as Repeat, never as an error. Errors are for
// failures and are returned by the runner unchanged.
//
// # Definitions
//
// A [Definition] pairs a handler with its [Config]:
//
//	var WaitCreated = step.NewDefinition("wait_created",
//	    func(ctx context.Context, evt event.Event) (step.Result, error) {
//	        vol, err := api.Describe(ctx, evt.String("volume_id"))
//	        if err != nil {
//	            return step.Result{}, err
//	        }
//	        if vol.State != "available" {
//	            return step.Again(nil), nil
//	        }
//	        return step.Advance(evt), nil
//	    },
//	    step.WithNext("attach_volume"),
//	    step.WithMaxIterations(10),
//	)
//
// # Pipeline files
//
// [LoadConfigs] reads step configuration from YAML so operators can tune
// iteration bounds and delays without a rebuild.
//
// # Deliveries
//
// A [Delivery] is one scheduled trigger held by a [Store] until it is due.
// Stores are at-least-once: a claimed delivery that is not acknowledged
// before its lease expires becomes due again.
package step

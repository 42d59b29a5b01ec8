package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionStepStarted      = "step.started"
	ActionStepTerminated   = "step.terminated"
	ActionStepChained      = "step.chained"
	ActionStepRepeating    = "step.repeating"
	ActionStepFailed       = "step.failed"
	ActionDeliveryRetrying = "delivery.retrying"
)

// Audit event categories group related actions.
const (
	CategoryStep     = "stepchain.step"
	CategoryDelivery = "stepchain.delivery"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceInvocation = "invocation"
	ResourceDelivery   = "delivery"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionStepStarted,
		ActionStepTerminated,
		ActionStepChained,
		ActionStepRepeating,
		ActionStepFailed,
		ActionDeliveryRetrying,
	}
}

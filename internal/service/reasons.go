package service

// Failure reason vocabulary shared across the batch result types. These are
// statuses recorded on slots and surfaced in responses, never panics.
const (
	ReasonValidation       = "VALIDATION"
	ReasonNotFound         = "NOT_FOUND"
	ReasonEmptySlot        = "EMPTY_SLOT"
	ReasonConflict         = "CONFLICT"
	ReasonTransient        = "TRANSIENT"
	ReasonUpstreamDegraded = "UPSTREAM_DEGRADED"
)

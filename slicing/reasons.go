package slicing

// RejectReason names why a handover candidate or a quantum adjustment was
// turned down. Rejections never abort a cycle; they are recorded in the
// decision trace and counted in metrics.
type RejectReason string

const (
	// ReasonInsufficientSamples marks a station with too few attempts to judge.
	ReasonInsufficientSamples RejectReason = "insufficient-samples"
	// ReasonBoundExceeded marks an adjustment that would leave [QuantumMin, QuantumMax].
	ReasonBoundExceeded RejectReason = "bound-exceeded"
	// ReasonAlreadyActed marks a (slice, AP) pair already adjusted this cycle.
	ReasonAlreadyActed RejectReason = "already-acted"
	// ReasonBudgetExhausted marks a destination AP out of handovers this cycle.
	ReasonBudgetExhausted RejectReason = "budget-exhausted"
	// ReasonOscillation marks a candidate that would repeat a ping-pong pattern.
	ReasonOscillation RejectReason = "oscillation"
)

// Rejection is one turned-down candidate or adjustment.
type Rejection struct {
	Block  RadioBlock // handover candidate, zero for quantum rejections
	Slice  SliceID    // slice whose quantum was not adjusted
	Reason RejectReason
	Value  float64 // occupancy, slack or quantum that was tested
}

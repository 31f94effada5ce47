// Package trace provides decision-trace recording for control-cycle analysis.
// This package has no dependencies on slicing/; it stores pure data types.
package trace

import "time"

// Action is the outcome of a station decision.
type Action string

const (
	ActionNone     Action = "none"      // idle, within or over promise
	ActionHandover Action = "handover"  // station moved to another radio
	ActionQuantum  Action = "quantum"   // slice quantum raised at the station's AP
	ActionTooBusy  Action = "too-busy"  // under promise, nothing could be done
	ActionNoData   Action = "no-data"   // slice without rate or stations
	ActionDegraded Action = "degraded"  // station telemetry unavailable
	ActionFailed   Action = "failed"    // a collaborator rejected the mutation
)

// CandidateRejection captures a handover candidate filtered out of selection.
type CandidateRejection struct {
	Candidate string
	Reason    string
	Value     float64 // occupancy or slack that failed the test, when relevant
}

// DecisionRecord captures one station decision and its numeric basis.
type DecisionRecord struct {
	CycleID      string
	At           time.Time
	Station      string
	Slice        string
	Radio        string // radio block the station was on when evaluated
	Class        string
	Action       Action
	Achieved     float64
	Promised     float64
	Attempts     float64
	SuccessRatio float64
	Target       string  // destination radio block for handovers
	Basis        string  // "occupancy" or "slack" for handovers
	BasisValue   float64 // the occupancy or slack that won
	Rejections   []CandidateRejection
	Error        string
}

// QuantumRecord captures one committed quantum change.
type QuantumRecord struct {
	CycleID     string
	At          time.Time
	Slice       string
	AP          string
	Direction   string // "increase" or "decrease"
	Before      float64
	After       float64
	TriggeredBy string // station whose under-performance caused the change
}

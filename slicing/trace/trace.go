package trace

import "time"

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelActions records only decisions that changed something or failed.
	TraceLevelActions TraceLevel = "actions"
	// TraceLevelDecisions records every station decision.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelActions:   true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to decisions
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// CycleTrace collects the decision records of one control cycle.
type CycleTrace struct {
	Level       TraceLevel
	CycleID     string
	Started     time.Time
	NoData      bool
	Decisions   []DecisionRecord
	Adjustments []QuantumRecord
}

// NewCycleTrace creates a CycleTrace ready for recording.
func NewCycleTrace(level TraceLevel, cycleID string, started time.Time) *CycleTrace {
	if level == "" {
		level = TraceLevelDecisions
	}
	return &CycleTrace{
		Level:       level,
		CycleID:     cycleID,
		Started:     started,
		Decisions:   make([]DecisionRecord, 0),
		Adjustments: make([]QuantumRecord, 0),
	}
}

// RecordDecision appends a decision record, subject to the trace level.
func (ct *CycleTrace) RecordDecision(record DecisionRecord) {
	switch ct.Level {
	case TraceLevelNone:
		return
	case TraceLevelActions:
		if record.Action == ActionNone || record.Action == ActionNoData {
			return
		}
	}
	ct.Decisions = append(ct.Decisions, record)
}

// RecordAdjustment appends a quantum change. Adjustments are mutations and
// are kept at every level except none.
func (ct *CycleTrace) RecordAdjustment(record QuantumRecord) {
	if ct.Level == TraceLevelNone {
		return
	}
	ct.Adjustments = append(ct.Adjustments, record)
}

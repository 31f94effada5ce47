package trace

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSummarize_EmptyAndNil(t *testing.T) {
	// GIVEN no traces at all
	s := Summarize()

	// THEN the summary is zero-valued but usable
	if s.Cycles != 0 || s.TotalDecisions != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
	if s.ByClass == nil || s.ByAction == nil || s.Rejections == nil || s.TargetDistribution == nil {
		t.Error("expected allocated maps")
	}

	// AND nil traces are skipped
	if got := Summarize(nil, nil).Cycles; got != 0 {
		t.Errorf("expected nil traces to be skipped, got %d cycles", got)
	}
}

func TestSummarize_AggregatesAcrossCycles(t *testing.T) {
	// GIVEN two cycles: one with a handover and a raise, one without data
	first := NewCycleTrace(TraceLevelDecisions, "c1", t0)
	first.RecordDecision(DecisionRecord{Class: "under-promise", Action: ActionHandover, Target: "B/0",
		Rejections: []CandidateRejection{{Candidate: "C/0", Reason: "oscillation"}}})
	first.RecordDecision(DecisionRecord{Class: "under-promise", Action: ActionQuantum,
		Rejections: []CandidateRejection{{Candidate: "B/0", Reason: "budget-exhausted"}}})
	first.RecordDecision(DecisionRecord{Class: "idle", Action: ActionNone})
	first.RecordAdjustment(QuantumRecord{Direction: "increase"})
	first.RecordAdjustment(QuantumRecord{Direction: "decrease"})

	second := NewCycleTrace(TraceLevelDecisions, "c2", t0)
	second.NoData = true

	// WHEN summarized
	s := Summarize(first, second)

	// THEN counts are aggregated
	want := &TraceSummary{
		Cycles:             2,
		NoDataCycles:       1,
		TotalDecisions:     3,
		ByClass:            map[string]int{"under-promise": 2, "idle": 1},
		ByAction:           map[Action]int{ActionHandover: 1, ActionQuantum: 1, ActionNone: 1},
		Increases:          1,
		Decreases:          1,
		Rejections:         map[string]int{"oscillation": 1, "budget-exhausted": 1},
		TargetDistribution: map[string]int{"B/0": 1},
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

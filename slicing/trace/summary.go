package trace

// TraceSummary aggregates statistics over one or more cycle traces.
type TraceSummary struct {
	Cycles             int
	NoDataCycles       int
	TotalDecisions     int
	ByClass            map[string]int
	ByAction           map[Action]int
	Increases          int
	Decreases          int
	Rejections         map[string]int // candidate rejection reason → count
	TargetDistribution map[string]int // destination radio → handovers
}

// Summarize computes aggregate statistics from cycle traces.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(traces ...*CycleTrace) *TraceSummary {
	summary := &TraceSummary{
		ByClass:            make(map[string]int),
		ByAction:           make(map[Action]int),
		Rejections:         make(map[string]int),
		TargetDistribution: make(map[string]int),
	}
	for _, ct := range traces {
		if ct == nil {
			continue
		}
		summary.Cycles++
		if ct.NoData {
			summary.NoDataCycles++
		}
		summary.TotalDecisions += len(ct.Decisions)
		for _, d := range ct.Decisions {
			if d.Class != "" {
				summary.ByClass[d.Class]++
			}
			summary.ByAction[d.Action]++
			if d.Action == ActionHandover {
				summary.TargetDistribution[d.Target]++
			}
			for _, r := range d.Rejections {
				summary.Rejections[r.Reason]++
			}
		}
		for _, a := range ct.Adjustments {
			switch a.Direction {
			case "increase":
				summary.Increases++
			case "decrease":
				summary.Decreases++
			}
		}
	}
	return summary
}

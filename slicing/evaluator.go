package slicing

import "fmt"

// Classification is the evaluator's verdict for one station.
type Classification int

const (
	// Idle: attempts below the activity floor; the rate is noise.
	Idle Classification = iota
	// WithinPromise: achieved rate inside the tolerance band of the promise.
	WithinPromise
	// OverPromise: achieved rate above the band.
	OverPromise
	// UnderPromise: shortfall larger than the band; triggers handover or quantum action.
	UnderPromise
)

// String returns the classification's label.
func (c Classification) String() string {
	switch c {
	case Idle:
		return "idle"
	case WithinPromise:
		return "within-promise"
	case OverPromise:
		return "over-promise"
	case UnderPromise:
		return "under-promise"
	default:
		return fmt.Sprintf("classification(%d)", int(c))
	}
}

// Evaluation is a classification plus the numbers it was derived from.
type Evaluation struct {
	Class        Classification
	Achieved     float64 // Mbit/s
	Promised     float64 // Mbit/s
	Attempts     float64
	SuccessRatio float64
	Shortfall    float64 // promised - achieved, 0 when not below promise
}

// Evaluate classifies a station against its slice's promised rate. The
// shortfall must exceed tolerance×promised to count as under-performance.
func Evaluate(tel StationTelemetry, promised float64, cfg Config) Evaluation {
	ev := Evaluation{
		Achieved:     tel.Throughput,
		Promised:     promised,
		Attempts:     tel.Attempts,
		SuccessRatio: tel.SuccessRatio(),
	}
	if tel.Attempts < cfg.MinAttempts || tel.Attempts <= 0 {
		ev.Class = Idle
		return ev
	}
	if tel.Throughput >= promised {
		if tel.Throughput > promised*(1+cfg.RateTolerance) {
			ev.Class = OverPromise
		} else {
			ev.Class = WithinPromise
		}
		return ev
	}
	ev.Shortfall = promised - tel.Throughput
	if ev.Shortfall > cfg.RateTolerance*promised {
		ev.Class = UnderPromise
	} else {
		ev.Class = WithinPromise
	}
	return ev
}

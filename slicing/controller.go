package slicing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/wifi-slicing/slicectl/slicing/trace"
)

// ControllerState is the cycle controller's lifecycle state.
type ControllerState int32

const (
	StateIdle ControllerState = iota
	StateEvaluating
)

func (s ControllerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEvaluating:
		return "evaluating"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Cycle outcome labels reported to the MetricsRecorder.
const (
	OutcomeCompleted = "completed"
	OutcomeNoData    = "no-data"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// MetricsRecorder receives counters from the controller. The metrics
// package provides a Prometheus implementation.
type MetricsRecorder interface {
	ObserveCycle(outcome string, elapsed time.Duration)
	ObserveClassification(class string)
	ObserveHandover(basis string)
	ObserveQuantumAdjustment(direction string)
	ObserveRejection(reason string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveCycle(string, time.Duration) {}
func (noopMetrics) ObserveClassification(string)       {}
func (noopMetrics) ObserveHandover(string)             {}
func (noopMetrics) ObserveQuantumAdjustment(string)    {}
func (noopMetrics) ObserveRejection(string)            {}

// Dependencies are the collaborators of a Controller. Source, Registry and
// History are required.
type Dependencies struct {
	Source     TelemetrySource
	Registry   Registry
	History    HandoverHistory
	Metrics    MetricsRecorder  // optional
	TraceLevel trace.TraceLevel // defaults to decisions
	Clock      func() time.Time // defaults to time.Now
}

// StationOutcome is the decision taken for one station.
type StationOutcome struct {
	Station    StationID
	Slice      SliceID
	Radio      RadioBlock
	Evaluation Evaluation
	Action     trace.Action
	Handover   *HandoverResult
	Quantum    *QuantumResult
	Err        error
}

// CycleReport summarizes one control cycle.
type CycleReport struct {
	CycleID  string
	Started  time.Time
	Duration time.Duration
	// NoData is set when slice rates or membership were absent; nothing was evaluated.
	NoData bool
	// NoDataSlices lists slices without stations or without a promised rate.
	NoDataSlices []SliceID
	Outcomes     []StationOutcome
	Degraded     map[StationID]string
	Skipped      []string
	Trace        *trace.CycleTrace
}

// Count returns how many stations ended with action a.
func (r *CycleReport) Count(a trace.Action) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Action == a {
			n++
		}
	}
	return n
}

// Controller runs control cycles: collect, evaluate every station, and act
// on under-served ones through the Selector and the QuantumEngine. Only one
// cycle runs at a time.
type Controller struct {
	cfg        Config
	collector  *Collector
	selector   *Selector
	quantum    *QuantumEngine
	registry   Registry
	metrics    MetricsRecorder
	traceLevel trace.TraceLevel
	now        func() time.Time

	state atomic.Int32
}

// NewController validates cfg and wires a Controller.
func NewController(cfg Config, deps Dependencies) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Source == nil || deps.Registry == nil || deps.History == nil {
		return nil, errors.New("controller requires a telemetry source, a registry and a handover history")
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if !trace.IsValidTraceLevel(string(deps.TraceLevel)) {
		return nil, fmt.Errorf("unknown trace level %q", deps.TraceLevel)
	}
	return &Controller{
		cfg:        cfg,
		collector:  NewCollector(deps.Source, deps.Registry, cfg, deps.Clock),
		selector:   NewSelector(deps.Registry, deps.History, cfg),
		quantum:    NewQuantumEngine(deps.Registry, cfg),
		registry:   deps.Registry,
		metrics:    deps.Metrics,
		traceLevel: deps.TraceLevel,
		now:        deps.Clock,
	}, nil
}

// State returns the controller's current state.
func (c *Controller) State() ControllerState {
	return ControllerState(c.state.Load())
}

// RunCycle executes one control cycle. It returns ErrCycleInProgress when
// another cycle is evaluating. Missing slice telemetry yields a report with
// NoData set and no error. Collaborator failures do not stop the cycle; they
// are joined and returned with the complete report.
func (c *Controller) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateEvaluating)) {
		c.metrics.ObserveCycle(OutcomeSkipped, 0)
		return nil, ErrCycleInProgress
	}
	defer c.state.Store(int32(StateIdle))

	started := c.now()
	report := &CycleReport{CycleID: uuid.NewString(), Started: started}
	report.Trace = trace.NewCycleTrace(c.traceLevel, report.CycleID, started)
	log := logrus.WithField("cycle", report.CycleID)
	finish := func(outcome string) {
		report.Duration = c.now().Sub(started)
		c.metrics.ObserveCycle(outcome, report.Duration)
	}

	snap, err := c.collector.Collect(ctx)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			log.Infof("no data: %v", err)
			report.NoData = true
			report.Trace.NoData = true
			finish(OutcomeNoData)
			return report, nil
		}
		log.Errorf("telemetry collection failed: %v", err)
		finish(OutcomeFailed)
		return report, fmt.Errorf("collect telemetry: %w", err)
	}
	report.Degraded = snap.Degraded
	report.Skipped = snap.Skipped

	cs := NewCycleState(c.cfg.MaxHandoversPerCycle)
	slices := NewSliceCache(c.registry)
	var errs []error

	for _, id := range sortedSliceIDs(snap.PromisedRates) {
		if len(snap.Members[id]) == 0 {
			c.reportNoData(report, log, id, "no stations")
		}
	}
	for _, id := range sortedSliceIDs(snap.Members) {
		promised, ok := snap.PromisedRates[id]
		if !ok {
			c.reportNoData(report, log, id, "no promised rate")
			continue
		}
		for _, sta := range snap.Members[id] {
			out := c.decide(ctx, cs, snap, slices, sta, id, promised, report)
			if out.Err != nil {
				errs = append(errs, out.Err)
			}
			report.Outcomes = append(report.Outcomes, out)
		}
	}

	log.WithFields(logrus.Fields{
		"stations":  len(report.Outcomes),
		"handovers": report.Count(trace.ActionHandover),
		"quantum":   report.Count(trace.ActionQuantum),
		"too_busy":  report.Count(trace.ActionTooBusy),
		"degraded":  len(report.Degraded),
	}).Info("cycle complete")

	if len(errs) > 0 {
		finish(OutcomeFailed)
		return report, errors.Join(errs...)
	}
	finish(OutcomeCompleted)
	return report, nil
}

func (c *Controller) reportNoData(report *CycleReport, log *logrus.Entry, id SliceID, why string) {
	log.WithField("slice", id).Infof("no data: %s", why)
	report.NoDataSlices = append(report.NoDataSlices, id)
	report.Trace.RecordDecision(trace.DecisionRecord{
		CycleID: report.CycleID,
		At:      report.Started,
		Slice:   string(id),
		Action:  trace.ActionNoData,
		Error:   why,
	})
}

// decide evaluates one station and, when it is under-served, tries a
// handover and then a quantum raise.
func (c *Controller) decide(ctx context.Context, cs *CycleState, snap *Snapshot, slices *SliceCache, sta StationID, slice SliceID, promised float64, report *CycleReport) StationOutcome {
	out := StationOutcome{Station: sta, Slice: slice, Radio: snap.Associations[sta]}
	rec := trace.DecisionRecord{
		CycleID:  report.CycleID,
		At:       snap.Taken,
		Station:  string(sta),
		Slice:    string(slice),
		Radio:    out.Radio.String(),
		Promised: promised,
	}
	defer func() {
		rec.Action = out.Action
		if out.Err != nil {
			rec.Error = out.Err.Error()
		}
		report.Trace.RecordDecision(rec)
	}()

	if why, degraded := snap.Degraded[sta]; degraded {
		out.Action = trace.ActionDegraded
		rec.Radio = ""
		rec.Error = why
		return out
	}

	ev := Evaluate(snap.Telemetry[sta], promised, c.cfg)
	out.Evaluation = ev
	rec.Class = ev.Class.String()
	rec.Achieved = ev.Achieved
	rec.Attempts = ev.Attempts
	rec.SuccessRatio = ev.SuccessRatio
	c.metrics.ObserveClassification(ev.Class.String())

	fields := logrus.Fields{
		"cycle":         report.CycleID,
		"station":       sta,
		"slice":         slice,
		"radio":         out.Radio.String(),
		"class":         ev.Class.String(),
		"achieved":      ev.Achieved,
		"promised":      ev.Promised,
		"attempts":      ev.Attempts,
		"success_ratio": ev.SuccessRatio,
		"shortfall":     ev.Shortfall,
	}

	switch ev.Class {
	case Idle:
		logrus.WithFields(fields).Debug("station idle")
		c.metrics.ObserveRejection(string(ReasonInsufficientSamples))
		out.Action = trace.ActionNone
		return out
	case WithinPromise, OverPromise:
		logrus.WithFields(fields).Debug("station evaluated")
		out.Action = trace.ActionNone
		return out
	case UnderPromise:
		logrus.WithFields(fields).Info("station under promise")
	default:
		out.Action = trace.ActionNone
		return out
	}

	hres, err := c.selector.TryHandover(ctx, cs, snap, sta)
	out.Handover = &hres
	c.recordRejections(&rec, hres.Rejections)
	if hres.Committed {
		out.Action = trace.ActionHandover
		out.Err = err
		rec.Target = hres.To.String()
		rec.Basis = hres.Basis
		rec.BasisValue = hres.Value
		c.metrics.ObserveHandover(hres.Basis)
		return out
	}
	if err != nil {
		logrus.WithFields(fields).Errorf("handover failed: %v", err)
		out.Action = trace.ActionFailed
		out.Err = err
		return out
	}

	qres, err := c.quantum.TryRaise(ctx, cs, snap, slices, sta)
	out.Quantum = &qres
	c.recordRejections(&rec, qres.Rejections)
	for _, ch := range qres.Changes {
		c.metrics.ObserveQuantumAdjustment(ch.Direction)
		report.Trace.RecordAdjustment(trace.QuantumRecord{
			CycleID:     report.CycleID,
			At:          snap.Taken,
			Slice:       string(ch.Slice),
			AP:          string(ch.AP),
			Direction:   ch.Direction,
			Before:      ch.Before,
			After:       ch.After,
			TriggeredBy: string(sta),
		})
	}
	out.Err = err
	switch {
	case qres.Raised:
		out.Action = trace.ActionQuantum
	case err != nil:
		logrus.WithFields(fields).Errorf("quantum adjustment failed: %v", err)
		out.Action = trace.ActionFailed
	default:
		logrus.WithFields(fields).Warn("network too busy")
		out.Action = trace.ActionTooBusy
	}
	return out
}

func (c *Controller) recordRejections(rec *trace.DecisionRecord, rejections []Rejection) {
	for _, r := range rejections {
		c.metrics.ObserveRejection(string(r.Reason))
		candidate := string(r.Slice)
		if !r.Block.IsZero() {
			candidate = r.Block.String()
		}
		rec.Rejections = append(rec.Rejections, trace.CandidateRejection{
			Candidate: candidate,
			Reason:    string(r.Reason),
			Value:     r.Value,
		})
	}
}

package slicing

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Handover basis labels.
const (
	BasisOccupancy = "occupancy"
	BasisSlack     = "slack"
)

// HandoverResult describes the outcome of one handover attempt.
type HandoverResult struct {
	Committed  bool
	From       RadioBlock
	To         RadioBlock
	Basis      string  // BasisOccupancy or BasisSlack
	Value      float64 // occupancy of the destination or slack of its AP
	Rejections []Rejection
}

// Selector searches a better radio for an under-served station.
//
// Phase 1 prefers a less occupied radio; phase 2 falls back to the access
// point with the largest positive slack able to absorb the station's promise.
// Both phases respect the per-AP handover budget and the oscillation guard.
type Selector struct {
	registry Registry
	history  HandoverHistory
	cfg      Config
}

// NewSelector creates a Selector.
func NewSelector(registry Registry, history HandoverHistory, cfg Config) *Selector {
	return &Selector{registry: registry, history: history, cfg: cfg}
}

// TryHandover looks for a destination for sta and commits it. The returned
// error reports collaborator failures; Committed may be true together with a
// non-nil error when the handover went through but could not be logged to
// the history.
func (s *Selector) TryHandover(ctx context.Context, cs *CycleState, snap *Snapshot, sta StationID) (HandoverResult, error) {
	current, ok := snap.Associations[sta]
	if !ok {
		return HandoverResult{}, nil
	}
	res := HandoverResult{From: current}

	candidates := s.filter(snap, sta, current)
	if len(candidates) == 0 {
		return res, nil
	}

	guard := &oscillationCheck{history: s.history, sta: sta, since: snap.Taken.Add(-s.cfg.HistoryWindow())}
	// Budget and guard verdicts do not change within one search, so a block
	// rejected in phase 1 is not checked or reported again in phase 2.
	rejected := make(map[RadioBlock]bool)

	// Phase 1: lower channel occupancy than the current radio.
	if curOcc, ok := snap.Occupancy[current]; ok {
		bestIdx := -1
		var bestOcc float64
		for i, c := range candidates {
			occ, ok := snap.Occupancy[c.Block]
			if !ok || occ >= curOcc {
				continue
			}
			allowed, reason, err := s.admissible(ctx, cs, guard, c.Block)
			if err != nil {
				return res, err
			}
			if !allowed {
				rejected[c.Block] = true
				res.Rejections = append(res.Rejections, Rejection{Block: c.Block, Reason: reason, Value: occ})
				continue
			}
			if bestIdx < 0 || occ < bestOcc {
				bestIdx, bestOcc = i, occ
			}
		}
		if bestIdx >= 0 {
			return s.commit(ctx, cs, snap, sta, res, candidates[bestIdx].Block, BasisOccupancy, bestOcc)
		}
	}

	// Phase 2: spare capacity on the candidate access point.
	promised := s.promisedOf(snap, sta)
	slackOf := make(map[AccessPointID]float64)
	bestIdx := -1
	var bestSlack float64
	for i, c := range candidates {
		slack, seen := slackOf[c.Block.AP]
		if !seen {
			slack = Slack(snap, c.Block.AP)
			slackOf[c.Block.AP] = slack
		}
		if slack <= 0 || slack < promised || rejected[c.Block] {
			continue
		}
		allowed, reason, err := s.admissible(ctx, cs, guard, c.Block)
		if err != nil {
			return res, err
		}
		if !allowed {
			res.Rejections = append(res.Rejections, Rejection{Block: c.Block, Reason: reason, Value: slack})
			continue
		}
		if bestIdx < 0 || slack > bestSlack {
			bestIdx, bestSlack = i, slack
		}
	}
	if bestIdx >= 0 {
		return s.commit(ctx, cs, snap, sta, res, candidates[bestIdx].Block, BasisSlack, bestSlack)
	}
	return res, nil
}

// Slack returns the spare capacity of ap: the signed sum, over the stations
// currently associated with it, of achieved minus own slice promised rate.
// Stations without telemetry contribute nothing.
func Slack(snap *Snapshot, ap AccessPointID) float64 {
	var slack float64
	for _, other := range snap.StationsOn(ap) {
		tel, ok := snap.Telemetry[other]
		if !ok {
			continue
		}
		slice, _ := snap.SliceOf(other)
		slack += tel.Throughput - snap.PromisedRates[slice]
	}
	return slack
}

// filter keeps candidates above the link-quality floor, excluding the
// current radio. Quality order is preserved.
func (s *Selector) filter(snap *Snapshot, sta StationID, current RadioBlock) []LinkSample {
	var out []LinkSample
	for _, c := range snap.Candidates(sta) {
		if c.Block == current || c.Quality <= s.cfg.MinLinkQuality {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Selector) promisedOf(snap *Snapshot, sta StationID) float64 {
	slice, _ := snap.SliceOf(sta)
	return snap.PromisedRates[slice]
}

// admissible applies the budget and oscillation checks to a candidate.
func (s *Selector) admissible(ctx context.Context, cs *CycleState, guard *oscillationCheck, dst RadioBlock) (bool, RejectReason, error) {
	if !cs.HasBudget(dst.AP) {
		return false, ReasonBudgetExhausted, nil
	}
	pingPong, err := guard.rejects(ctx, dst.AP)
	if err != nil {
		return false, "", err
	}
	if pingPong {
		return false, ReasonOscillation, nil
	}
	return true, "", nil
}

func (s *Selector) commit(ctx context.Context, cs *CycleState, snap *Snapshot, sta StationID, res HandoverResult, dst RadioBlock, basis string, value float64) (HandoverResult, error) {
	if err := s.registry.Handover(ctx, sta, dst); err != nil {
		return res, fmt.Errorf("handover %s to %s: %w", sta, dst, err)
	}
	snap.Reassign(sta, dst)
	cs.ConsumeBudget(dst.AP)

	res.Committed = true
	res.To = dst
	res.Basis = basis
	res.Value = value

	logrus.WithFields(logrus.Fields{
		"station": sta,
		"from":    res.From.String(),
		"to":      dst.String(),
		"basis":   basis,
		"value":   value,
	}).Info("handover committed")

	rec := HandoverRecord{Station: sta, AP: dst.AP, Block: dst.Block, At: snap.Taken}
	if err := s.history.Append(ctx, rec); err != nil {
		return res, fmt.Errorf("record handover of %s: %w", sta, err)
	}
	return res, nil
}

// oscillationCheck loads the station's recent history once and memoizes the
// verdict per destination AP.
type oscillationCheck struct {
	history HandoverHistory
	sta     StationID
	since   time.Time

	loaded  bool
	dests   []AccessPointID
	verdict map[AccessPointID]bool
}

func (g *oscillationCheck) rejects(ctx context.Context, ap AccessPointID) (bool, error) {
	if !g.loaded {
		recs, err := g.history.Recent(ctx, g.sta, g.since)
		if err != nil {
			return false, fmt.Errorf("read handover history of %s: %w", g.sta, err)
		}
		g.dests = destinations(recs)
		g.verdict = make(map[AccessPointID]bool)
		g.loaded = true
	}
	if v, ok := g.verdict[ap]; ok {
		return v, nil
	}
	v := IsPingPong(g.dests, ap)
	g.verdict[ap] = v
	return v, nil
}

package slicing

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Quantum change directions.
const (
	DirectionIncrease = "increase"
	DirectionDecrease = "decrease"
)

// QuantumChange is one committed quantum override.
type QuantumChange struct {
	Slice     SliceID
	AP        AccessPointID
	Direction string
	Before    float64
	After     float64
}

// QuantumResult describes the outcome of one raise attempt.
type QuantumResult struct {
	Raised     bool
	Changes    []QuantumChange // committed: raise first, then claw-backs in station order
	Rejections []Rejection
}

// SliceCache is the per-cycle working set of registry slices. Slices are
// loaded on first use and replaced after every successful upsert, so later
// decisions in the cycle compound on the committed values.
type SliceCache struct {
	registry Registry
	slices   map[SliceID]*Slice
}

// NewSliceCache returns an empty cache reading from registry.
func NewSliceCache(registry Registry) *SliceCache {
	return &SliceCache{registry: registry, slices: make(map[SliceID]*Slice)}
}

// Get returns the cycle's current view of slice id.
func (c *SliceCache) Get(ctx context.Context, id SliceID) (*Slice, error) {
	if s, ok := c.slices[id]; ok {
		return s, nil
	}
	s, err := c.registry.Slice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load slice %s: %w", id, err)
	}
	c.slices[id] = s.Clone()
	return c.slices[id], nil
}

func (c *SliceCache) put(s *Slice) {
	c.slices[s.ID] = s
}

// QuantumEngine raises the quantum of under-served slices and claws back
// quantum from over-served slices sharing the access point.
type QuantumEngine struct {
	registry Registry
	cfg      Config
}

// NewQuantumEngine creates a QuantumEngine.
func NewQuantumEngine(registry Registry, cfg Config) *QuantumEngine {
	return &QuantumEngine{registry: registry, cfg: cfg}
}

// TryRaise raises the quantum of sta's slice at sta's access point by
// QuantumIncrease, then decreases by QuantumDecrease the quantum of every
// other over-served slice on that AP. A raise whose result would fall outside
// [QuantumMin, QuantumMax] is rejected. Raised is false when the raise was
// rejected; the caller then reports the network as too busy.
func (q *QuantumEngine) TryRaise(ctx context.Context, cs *CycleState, snap *Snapshot, slices *SliceCache, sta StationID) (QuantumResult, error) {
	var res QuantumResult
	sliceID, ok := snap.SliceOf(sta)
	if !ok {
		return res, nil
	}
	blk, ok := snap.Associations[sta]
	if !ok {
		return res, nil
	}
	ap := blk.AP

	if cs.Adjusted(sliceID, ap) {
		res.Rejections = append(res.Rejections, Rejection{Slice: sliceID, Reason: ReasonAlreadyActed})
		return res, nil
	}
	current, err := slices.Get(ctx, sliceID)
	if err != nil {
		return res, err
	}
	before := EffectiveQuantum(current, ap)
	after := before * (1 + q.cfg.QuantumIncrease)
	if before >= q.cfg.QuantumMax || after > q.cfg.QuantumMax || after < q.cfg.QuantumMin {
		res.Rejections = append(res.Rejections, Rejection{Slice: sliceID, Reason: ReasonBoundExceeded, Value: after})
		return res, nil
	}

	raised := current.Clone()
	raised.setAPQuantum(ap, after)
	cs.MarkAdjusted(sliceID, ap)
	if err := q.upsert(ctx, slices, raised, QuantumChange{Slice: sliceID, AP: ap, Direction: DirectionIncrease, Before: before, After: after}, sta, &res); err != nil {
		return res, err
	}
	res.Raised = true

	clawed, rejections, err := q.clawBack(ctx, cs, snap, slices, sta, ap)
	res.Rejections = append(res.Rejections, rejections...)
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	for _, c := range clawed {
		if err := q.upsert(ctx, slices, c.slice, c.change, sta, &res); err != nil {
			errs = append(errs, err)
		}
	}
	return res, errors.Join(errs...)
}

// upsert sends the complete slice to the registry and, on success, installs
// it in the cycle's working set and records the change.
func (q *QuantumEngine) upsert(ctx context.Context, slices *SliceCache, s *Slice, change QuantumChange, trigger StationID, res *QuantumResult) error {
	if err := q.registry.UpsertSlice(ctx, s.Clone()); err != nil {
		return fmt.Errorf("upsert slice %s: %w", s.ID, err)
	}
	slices.put(s)
	res.Changes = append(res.Changes, change)
	logrus.WithFields(logrus.Fields{
		"slice":     s.ID,
		"ap":        change.AP,
		"direction": change.Direction,
		"before":    change.Before,
		"after":     change.After,
		"station":   trigger,
	}).Info("quantum adjusted")
	return nil
}

type clawedSlice struct {
	slice  *Slice
	change QuantumChange
}

// clawBack computes the decreases triggered by raising sta's slice at ap.
func (q *QuantumEngine) clawBack(ctx context.Context, cs *CycleState, snap *Snapshot, slices *SliceCache, sta StationID, ap AccessPointID) ([]clawedSlice, []Rejection, error) {
	var (
		out        []clawedSlice
		rejections []Rejection
		errs       []error
		decided    = make(map[SliceID]bool)
	)
	for _, other := range snap.StationsOn(ap) {
		if other == sta {
			continue
		}
		sliceID, ok := snap.SliceOf(other)
		if !ok || decided[sliceID] || cs.Adjusted(sliceID, ap) {
			continue
		}
		if !overServed(snap, sliceID, ap, other) {
			continue
		}
		current, err := slices.Get(ctx, sliceID)
		if err != nil {
			errs = append(errs, err)
			decided[sliceID] = true
			continue
		}
		before := EffectiveQuantum(current, ap)
		if before <= q.cfg.QuantumMin {
			decided[sliceID] = true
			continue
		}
		after := before * (1 - q.cfg.QuantumDecrease)
		decided[sliceID] = true
		if after < q.cfg.QuantumMin {
			rejections = append(rejections, Rejection{Slice: sliceID, Reason: ReasonBoundExceeded, Value: after})
			continue
		}
		lowered := current.Clone()
		lowered.setAPQuantum(ap, after)
		cs.MarkAdjusted(sliceID, ap)
		out = append(out, clawedSlice{
			slice:  lowered,
			change: QuantumChange{Slice: sliceID, AP: ap, Direction: DirectionDecrease, Before: before, After: after},
		})
	}
	return out, rejections, errors.Join(errs...)
}

// overServed reports whether slice may fund a raise at ap: the station must
// achieve more than the slice's promise and, when the per-(AP, slice)
// throughput is known, the slice as a whole must exceed the promise of every
// one of its stations on ap.
func overServed(snap *Snapshot, slice SliceID, ap AccessPointID, sta StationID) bool {
	promised := snap.PromisedRates[slice]
	tel, ok := snap.Telemetry[sta]
	if !ok || !(tel.Throughput > promised) {
		return false
	}
	total, ok := snap.APSliceThroughput[APSlice{AP: ap, Slice: slice}]
	if !ok {
		return true
	}
	members := 0
	for _, other := range snap.StationsOn(ap) {
		if s, ok := snap.SliceOf(other); ok && s == slice {
			members++
		}
	}
	return total > promised*float64(members)
}

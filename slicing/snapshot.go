package slicing

import (
	"sort"
	"time"
)

// StationTelemetry holds one station's counters over the last interval.
type StationTelemetry struct {
	Attempts   float64
	Successes  float64
	Throughput float64 // achieved Mbit/s
}

// SuccessRatio returns successes/attempts, or 0 without attempts.
func (t StationTelemetry) SuccessRatio() float64 {
	if t.Attempts <= 0 {
		return 0
	}
	return t.Successes / t.Attempts
}

// LinkSample is the signal strength (dBm) of a station as heard by a block.
type LinkSample struct {
	Block   RadioBlock
	Quality float64
}

// APSlice keys per-(access point, slice) values.
type APSlice struct {
	AP    AccessPointID
	Slice SliceID
}

// Snapshot is the complete telemetry working set of one control cycle.
// Decisions read it; committed handovers update Associations so later
// decisions in the same cycle see the new placement.
type Snapshot struct {
	Taken             time.Time
	PromisedRates     map[SliceID]float64
	Members           map[SliceID][]StationID
	Telemetry         map[StationID]StationTelemetry
	Associations      map[StationID]RadioBlock
	LinkQuality       map[StationID][]LinkSample // best quality first
	Occupancy         map[RadioBlock]float64
	APSliceThroughput map[APSlice]float64

	// Degraded lists stations whose telemetry could not be fetched, with the reason.
	Degraded map[StationID]string
	// Skipped holds membership keys that were not station addresses.
	Skipped []string

	sliceOf map[StationID]SliceID
}

// NewSnapshot returns an empty snapshot with all maps allocated.
func NewSnapshot(taken time.Time) *Snapshot {
	return &Snapshot{
		Taken:             taken,
		PromisedRates:     make(map[SliceID]float64),
		Members:           make(map[SliceID][]StationID),
		Telemetry:         make(map[StationID]StationTelemetry),
		Associations:      make(map[StationID]RadioBlock),
		LinkQuality:       make(map[StationID][]LinkSample),
		Occupancy:         make(map[RadioBlock]float64),
		APSliceThroughput: make(map[APSlice]float64),
		Degraded:          make(map[StationID]string),
		sliceOf:           make(map[StationID]SliceID),
	}
}

// AddMember registers sta as a member of slice. A station listed under
// several slices keeps the first one.
func (s *Snapshot) AddMember(slice SliceID, sta StationID) {
	if _, dup := s.sliceOf[sta]; dup {
		return
	}
	s.sliceOf[sta] = slice
	s.Members[slice] = append(s.Members[slice], sta)
}

// SliceOf returns the slice a station belongs to.
func (s *Snapshot) SliceOf(sta StationID) (SliceID, bool) {
	id, ok := s.sliceOf[sta]
	return id, ok
}

// Stations returns every member station in slice order, then membership order.
func (s *Snapshot) Stations() []StationID {
	var out []StationID
	for _, slice := range sortedSliceIDs(s.Members) {
		out = append(out, s.Members[slice]...)
	}
	return out
}

// StationsOn returns the stations currently associated with any block of ap.
func (s *Snapshot) StationsOn(ap AccessPointID) []StationID {
	var out []StationID
	for _, sta := range s.Stations() {
		if blk, ok := s.Associations[sta]; ok && blk.AP == ap {
			out = append(out, sta)
		}
	}
	return out
}

// Candidates returns the station's link samples ranked by quality, best first.
func (s *Snapshot) Candidates(sta StationID) []LinkSample {
	return s.LinkQuality[sta]
}

// Reassign moves a station to dst within the working set.
func (s *Snapshot) Reassign(sta StationID, dst RadioBlock) {
	s.Associations[sta] = dst
}

// rankLinkSamples sorts samples best quality first; equal qualities keep
// their reported order.
func rankLinkSamples(samples []LinkSample) []LinkSample {
	out := make([]LinkSample, len(samples))
	copy(out, samples)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quality > out[j].Quality })
	return out
}

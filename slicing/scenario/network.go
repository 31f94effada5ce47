package scenario

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wifi-slicing/slicectl/slicing"
	"github.com/wifi-slicing/slicectl/slicing/telemetry"
)

// HandoverCommand is a handover accepted by the Network.
type HandoverCommand struct {
	Frame   int
	Station slicing.StationID
	From    slicing.RadioBlock
	To      slicing.RadioBlock
}

// Network replays a Scenario. It serves as both the controller's
// TelemetrySource and its Registry: telemetry comes from the current frame,
// while associations and slices start from the scenario declaration and
// follow the commands the controller issues.
type Network struct {
	mu sync.Mutex

	interval time.Duration
	start    time.Time
	frames   []frame
	frame    int

	members  map[slicing.SliceID][]slicing.StationID
	metadata []string
	blocks   map[slicing.RadioBlock]bool
	slices   map[slicing.SliceID]*slicing.Slice
	assoc    map[slicing.StationID]slicing.RadioBlock

	rates     *telemetry.RateTracker
	derived   map[slicing.StationID]derivedRate
	handovers []HandoverCommand
	upserts   int
}

// derivedRate memoizes a counter-derived throughput for one frame, so repeated
// queries within a frame see the same value.
type derivedRate struct {
	frame int
	rate  float64
	ok    bool
}

type stationFrame struct {
	attempts   float64
	successes  float64
	throughput *float64
	txBytes    *uint64
	rssi       []slicing.LinkSample
}

type frame struct {
	stations  map[slicing.StationID]stationFrame
	occupancy map[slicing.RadioBlock]float64
	apSlice   map[slicing.APSlice]float64
}

// NewNetwork validates sc and prepares it for replay at frame 0.
func NewNetwork(sc *Scenario) (*Network, error) {
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	start := sc.Start
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	n := &Network{
		interval: sc.Interval,
		start:    start,
		members:  make(map[slicing.SliceID][]slicing.StationID),
		metadata: append([]string(nil), sc.MembershipMetadata...),
		blocks:   make(map[slicing.RadioBlock]bool),
		slices:   make(map[slicing.SliceID]*slicing.Slice),
		assoc:    make(map[slicing.StationID]slicing.RadioBlock),
		rates:    telemetry.NewRateTracker(),
		derived:  make(map[slicing.StationID]derivedRate),
	}

	for _, ap := range sc.AccessPoints {
		id, _ := parseAP(ap.ID)
		for _, b := range ap.Blocks {
			n.blocks[slicing.RadioBlock{AP: id, Block: b}] = true
		}
	}
	for _, s := range sc.Slices {
		sl := &slicing.Slice{
			ID:           slicing.SliceID(s.ID),
			PromisedRate: s.PromisedRate,
			Quantum:      s.Quantum,
			APQuantum:    make(map[slicing.AccessPointID]float64, len(s.APQuantum)),
		}
		for ap, q := range s.APQuantum {
			id, _ := parseAP(ap)
			sl.APQuantum[id] = q
		}
		n.slices[sl.ID] = sl
	}
	for _, st := range sc.Stations {
		id, _ := slicing.ParseStationID(st.Address)
		blk, _ := slicing.ParseRadioBlock(st.Radio)
		n.members[slicing.SliceID(st.Slice)] = append(n.members[slicing.SliceID(st.Slice)], id)
		n.assoc[id] = blk
	}
	for _, f := range sc.Frames {
		n.frames = append(n.frames, compileFrame(f))
	}
	return n, nil
}

func compileFrame(f Frame) frame {
	out := frame{
		stations:  make(map[slicing.StationID]stationFrame, len(f.Stations)),
		occupancy: make(map[slicing.RadioBlock]float64, len(f.Occupancy)),
		apSlice:   make(map[slicing.APSlice]float64),
	}
	for addr, sf := range f.Stations {
		id, _ := slicing.ParseStationID(addr)
		cf := stationFrame{attempts: sf.Attempts, successes: sf.Successes, throughput: sf.Throughput, txBytes: sf.TxBytes}
		if cf.txBytes == nil && len(sf.TxBins) > 0 {
			total := telemetry.SumBytes(sf.TxBins)
			cf.txBytes = &total
		}
		radios := make([]string, 0, len(sf.RSSI))
		for radio := range sf.RSSI {
			radios = append(radios, radio)
		}
		sort.Strings(radios)
		for _, radio := range radios {
			blk, _ := slicing.ParseRadioBlock(radio)
			cf.rssi = append(cf.rssi, slicing.LinkSample{Block: blk, Quality: sf.RSSI[radio]})
		}
		out.stations[id] = cf
	}
	for radio, occ := range f.Occupancy {
		blk, _ := slicing.ParseRadioBlock(radio)
		out.occupancy[blk] = occ
	}
	for ap, perSlice := range f.APSliceThroughput {
		id, _ := parseAP(ap)
		for s, tp := range perSlice {
			out.apSlice[slicing.APSlice{AP: id, Slice: slicing.SliceID(s)}] = tp
		}
	}
	return out
}

// Frames returns the number of frames in the scenario.
func (n *Network) Frames() int {
	return len(n.frames)
}

// Frame returns the index of the current frame.
func (n *Network) Frame() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frame
}

// Advance moves to the next frame. It returns false, staying on the last
// frame, once the scenario is exhausted.
func (n *Network) Advance() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.frame+1 >= len(n.frames) {
		return false
	}
	n.frame++
	return true
}

// Now returns the virtual time of the current frame.
func (n *Network) Now() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.start.Add(time.Duration(n.frame) * n.interval)
}

// Handovers returns the handovers accepted so far.
func (n *Network) Handovers() []HandoverCommand {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]HandoverCommand(nil), n.handovers...)
}

// Upserts returns the number of slice upserts accepted so far.
func (n *Network) Upserts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.upserts
}

func (n *Network) current() frame {
	return n.frames[n.frame]
}

// SliceRates returns the promised rate of every declared slice.
func (n *Network) SliceRates(_ context.Context) (map[slicing.SliceID]float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.slices) == 0 {
		return nil, slicing.ErrNoData
	}
	out := make(map[slicing.SliceID]float64, len(n.slices))
	for id, s := range n.slices {
		out[id] = s.PromisedRate
	}
	return out, nil
}

// SliceMembers returns station addresses per slice, followed by the
// scenario's metadata keys.
func (n *Network) SliceMembers(_ context.Context) (map[slicing.SliceID][]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.members) == 0 {
		return nil, slicing.ErrNoData
	}
	out := make(map[slicing.SliceID][]string, len(n.members))
	for id, stations := range n.members {
		keys := make([]string, 0, len(stations)+len(n.metadata))
		for _, sta := range stations {
			keys = append(keys, string(sta))
		}
		keys = append(keys, n.metadata...)
		out[id] = keys
	}
	return out, nil
}

// StationCounters returns the station's counters for the current frame.
// Stations reporting only cumulative bytes have no throughput on their first
// frame and after a counter reset; ErrNoData is returned then.
func (n *Network) StationCounters(_ context.Context, sta slicing.StationID) (slicing.StationTelemetry, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	sf, ok := n.current().stations[sta]
	if !ok {
		return slicing.StationTelemetry{}, slicing.ErrNoData
	}
	tel := slicing.StationTelemetry{Attempts: sf.attempts, Successes: sf.successes}
	switch {
	case sf.throughput != nil:
		tel.Throughput = *sf.throughput
	case sf.txBytes != nil:
		d, seen := n.derived[sta]
		if !seen || d.frame != n.frame {
			at := n.start.Add(time.Duration(n.frame) * n.interval)
			d.rate, d.ok = n.rates.Observe(string(sta), *sf.txBytes, at)
			d.frame = n.frame
			n.derived[sta] = d
		}
		if !d.ok {
			return slicing.StationTelemetry{}, fmt.Errorf("station %s has no rate baseline: %w", sta, slicing.ErrNoData)
		}
		tel.Throughput = d.rate
	}
	return tel, nil
}

// LinkQuality returns the RSSI samples of the current frame.
func (n *Network) LinkQuality(_ context.Context, sta slicing.StationID) ([]slicing.LinkSample, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	sf, ok := n.current().stations[sta]
	if !ok || len(sf.rssi) == 0 {
		return nil, slicing.ErrNoData
	}
	return append([]slicing.LinkSample(nil), sf.rssi...), nil
}

// ChannelOccupancy returns the block's occupancy in the current frame. A
// frame already covers one control interval, so window is not applied.
func (n *Network) ChannelOccupancy(_ context.Context, block slicing.RadioBlock, _ time.Duration) (float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	occ, ok := n.current().occupancy[block]
	if !ok {
		return 0, slicing.ErrNoData
	}
	return occ, nil
}

// APSliceThroughput returns the declared throughput of slice at ap, or the
// sum of the explicit throughput of the slice's stations on ap.
func (n *Network) APSliceThroughput(_ context.Context, ap slicing.AccessPointID, slice slicing.SliceID) (float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	f := n.current()
	if tp, ok := f.apSlice[slicing.APSlice{AP: ap, Slice: slice}]; ok {
		return tp, nil
	}
	var (
		total float64
		found bool
	)
	for _, sta := range n.members[slice] {
		sf, ok := f.stations[sta]
		if !ok || sf.throughput == nil || n.assoc[sta].AP != ap {
			continue
		}
		total += *sf.throughput
		found = true
	}
	if !found {
		return 0, slicing.ErrNoData
	}
	return total, nil
}

// Slice returns a copy of the slice.
func (n *Network) Slice(_ context.Context, id slicing.SliceID) (*slicing.Slice, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.slices[id]
	if !ok {
		return nil, fmt.Errorf("slice %s: %w", id, slicing.ErrNotFound)
	}
	return s.Clone(), nil
}

// UpsertSlice replaces the slice with a copy of s.
func (n *Network) UpsertSlice(_ context.Context, s *slicing.Slice) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("upsert requires a complete slice")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.slices[s.ID] = s.Clone()
	n.upserts++
	return nil
}

// Association returns the station's current radio.
func (n *Network) Association(_ context.Context, sta slicing.StationID) (slicing.RadioBlock, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	blk, ok := n.assoc[sta]
	if !ok {
		return slicing.RadioBlock{}, fmt.Errorf("station %s: %w", sta, slicing.ErrNotFound)
	}
	return blk, nil
}

// Handover moves the station to dst.
func (n *Network) Handover(_ context.Context, sta slicing.StationID, dst slicing.RadioBlock) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	from, ok := n.assoc[sta]
	if !ok {
		return fmt.Errorf("station %s: %w", sta, slicing.ErrNotFound)
	}
	if !n.blocks[dst] {
		return fmt.Errorf("radio %s: %w", dst, slicing.ErrNotFound)
	}
	n.assoc[sta] = dst
	n.handovers = append(n.handovers, HandoverCommand{Frame: n.frame, Station: sta, From: from, To: dst})
	return nil
}

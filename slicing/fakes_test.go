package slicing

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// captureLogOutput runs fn with logrus writing to a buffer at level and
// returns what was logged.
func captureLogOutput(level logrus.Level, fn func()) string {
	var buf bytes.Buffer
	origOutput := logrus.StandardLogger().Out
	origLevel := logrus.GetLevel()
	logrus.SetOutput(&buf)
	logrus.SetLevel(level)
	defer func() {
		if origOutput != nil {
			logrus.SetOutput(origOutput)
		} else {
			logrus.SetOutput(os.Stderr)
		}
		logrus.SetLevel(origLevel)
	}()
	fn()
	return buf.String()
}

const (
	apA AccessPointID = "00:0D:B9:2F:56:64"
	apB AccessPointID = "00:0D:B9:2F:56:65"
	apC AccessPointID = "00:0D:B9:2F:56:66"

	sta1 StationID = "D8:CE:3A:8F:0B:4D"
	sta2 StationID = "D8:CE:3A:8F:0B:4E"
	sta3 StationID = "D8:CE:3A:8F:0B:4F"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func blk(ap AccessPointID, block int) RadioBlock {
	return RadioBlock{AP: ap, Block: block}
}

// testConfig returns the reference parameters with a generous query timeout.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.QueryTimeout = 5 * time.Second
	return cfg
}

// fakeSource is an in-memory TelemetrySource. Missing entries yield ErrNoData.
type fakeSource struct {
	mu sync.Mutex

	rates     map[SliceID]float64
	members   map[SliceID][]string
	counters  map[StationID]StationTelemetry
	links     map[StationID][]LinkSample
	occupancy map[RadioBlock]float64
	apSlice   map[APSlice]float64

	ratesErr    error
	counterErrs map[StationID]error
	occWindows  []time.Duration
	counterHits int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		rates:       make(map[SliceID]float64),
		members:     make(map[SliceID][]string),
		counters:    make(map[StationID]StationTelemetry),
		links:       make(map[StationID][]LinkSample),
		occupancy:   make(map[RadioBlock]float64),
		apSlice:     make(map[APSlice]float64),
		counterErrs: make(map[StationID]error),
	}
}

func (f *fakeSource) SliceRates(context.Context) (map[SliceID]float64, error) {
	if f.ratesErr != nil {
		return nil, f.ratesErr
	}
	if len(f.rates) == 0 {
		return nil, ErrNoData
	}
	out := make(map[SliceID]float64, len(f.rates))
	for k, v := range f.rates {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSource) SliceMembers(context.Context) (map[SliceID][]string, error) {
	if len(f.members) == 0 {
		return nil, ErrNoData
	}
	out := make(map[SliceID][]string, len(f.members))
	for k, v := range f.members {
		out[k] = append([]string(nil), v...)
	}
	return out, nil
}

func (f *fakeSource) StationCounters(_ context.Context, sta StationID) (StationTelemetry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counterHits++
	if err := f.counterErrs[sta]; err != nil {
		return StationTelemetry{}, err
	}
	tel, ok := f.counters[sta]
	if !ok {
		return StationTelemetry{}, ErrNoData
	}
	return tel, nil
}

func (f *fakeSource) LinkQuality(_ context.Context, sta StationID) ([]LinkSample, error) {
	samples, ok := f.links[sta]
	if !ok {
		return nil, ErrNoData
	}
	return append([]LinkSample(nil), samples...), nil
}

func (f *fakeSource) ChannelOccupancy(_ context.Context, block RadioBlock, window time.Duration) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.occWindows = append(f.occWindows, window)
	occ, ok := f.occupancy[block]
	if !ok {
		return 0, ErrNoData
	}
	return occ, nil
}

func (f *fakeSource) APSliceThroughput(_ context.Context, ap AccessPointID, slice SliceID) (float64, error) {
	tp, ok := f.apSlice[APSlice{AP: ap, Slice: slice}]
	if !ok {
		return 0, ErrNoData
	}
	return tp, nil
}

// fakeRegistry is an in-memory Registry recording every mutation.
type fakeRegistry struct {
	mu sync.Mutex

	slices       map[SliceID]*Slice
	associations map[StationID]RadioBlock

	handovers []handoverCall
	upserts   []*Slice

	handoverErr error
	upsertErr   map[SliceID]error
	sliceReads  int
}

type handoverCall struct {
	Station StationID
	To      RadioBlock
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		slices:       make(map[SliceID]*Slice),
		associations: make(map[StationID]RadioBlock),
		upsertErr:    make(map[SliceID]error),
	}
}

func (r *fakeRegistry) Slice(_ context.Context, id SliceID) (*Slice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sliceReads++
	s, ok := r.slices[id]
	if !ok {
		return nil, fmt.Errorf("slice %s: %w", id, ErrNotFound)
	}
	return s.Clone(), nil
}

func (r *fakeRegistry) UpsertSlice(_ context.Context, s *Slice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.upsertErr[s.ID]; err != nil {
		return err
	}
	r.slices[s.ID] = s.Clone()
	r.upserts = append(r.upserts, s.Clone())
	return nil
}

func (r *fakeRegistry) Association(_ context.Context, sta StationID) (RadioBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.associations[sta]
	if !ok {
		return RadioBlock{}, fmt.Errorf("station %s: %w", sta, ErrNotFound)
	}
	return b, nil
}

func (r *fakeRegistry) Handover(_ context.Context, sta StationID, dst RadioBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handoverErr != nil {
		return r.handoverErr
	}
	r.associations[sta] = dst
	r.handovers = append(r.handovers, handoverCall{Station: sta, To: dst})
	return nil
}

// fakeHistory is an in-memory HandoverHistory.
type fakeHistory struct {
	mu        sync.Mutex
	records   []HandoverRecord
	recentErr error
	appendErr error
	queries   []time.Time
}

func (h *fakeHistory) Recent(_ context.Context, sta StationID, since time.Time) ([]HandoverRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queries = append(h.queries, since)
	if h.recentErr != nil {
		return nil, h.recentErr
	}
	var out []HandoverRecord
	for _, r := range h.records {
		if r.Station == sta && !r.At.Before(since) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (h *fakeHistory) Append(_ context.Context, rec HandoverRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.appendErr != nil {
		return h.appendErr
	}
	h.records = append(h.records, rec)
	return nil
}

// visits seeds the history with handovers of sta to aps, one period apart,
// ending just before now.
func (h *fakeHistory) visits(sta StationID, now time.Time, period time.Duration, aps ...AccessPointID) {
	for i, ap := range aps {
		at := now.Add(-time.Duration(len(aps)-i) * period)
		h.records = append(h.records, HandoverRecord{Station: sta, AP: ap, At: at})
	}
}

// countingMetrics is a MetricsRecorder keeping plain counters.
type countingMetrics struct {
	mu         sync.Mutex
	cycles     map[string]int
	classes    map[string]int
	handovers  map[string]int
	quantum    map[string]int
	rejections map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		cycles:     make(map[string]int),
		classes:    make(map[string]int),
		handovers:  make(map[string]int),
		quantum:    make(map[string]int),
		rejections: make(map[string]int),
	}
}

func (m *countingMetrics) ObserveCycle(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles[outcome]++
}

func (m *countingMetrics) ObserveClassification(class string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[class]++
}

func (m *countingMetrics) ObserveHandover(basis string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handovers[basis]++
}

func (m *countingMetrics) ObserveQuantumAdjustment(direction string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quantum[direction]++
}

func (m *countingMetrics) ObserveRejection(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[reason]++
}

// snapshotBuilder assembles Snapshots for selector and quantum tests.
type snapshotBuilder struct {
	snap *Snapshot
}

func newSnapshotBuilder() *snapshotBuilder {
	return &snapshotBuilder{snap: NewSnapshot(testEpoch)}
}

func (b *snapshotBuilder) slice(id SliceID, promised float64) *snapshotBuilder {
	b.snap.PromisedRates[id] = promised
	return b
}

func (b *snapshotBuilder) station(sta StationID, slice SliceID, at RadioBlock, throughput float64) *snapshotBuilder {
	b.snap.AddMember(slice, sta)
	b.snap.Associations[sta] = at
	b.snap.Telemetry[sta] = StationTelemetry{Attempts: 100, Successes: 90, Throughput: throughput}
	return b
}

func (b *snapshotBuilder) links(sta StationID, samples ...LinkSample) *snapshotBuilder {
	b.snap.LinkQuality[sta] = rankLinkSamples(samples)
	return b
}

func (b *snapshotBuilder) occupancy(block RadioBlock, occ float64) *snapshotBuilder {
	b.snap.Occupancy[block] = occ
	return b
}

func (b *snapshotBuilder) build() *Snapshot {
	return b.snap
}

// Package telemetry turns raw device counters into the per-interval values
// the controller consumes.
package telemetry

import (
	"sort"
	"sync"
	"time"
)

// Bin is one entry of a packet-size histogram: Count packets of Size bytes
// (Ethernet header included).
type Bin struct {
	Size  uint32 `yaml:"size"`
	Count uint32 `yaml:"count"`
}

// SumBytes returns the bytes accounted by a size histogram.
func SumBytes(bins []Bin) uint64 {
	var total uint64
	for _, b := range sorted(bins) {
		total += uint64(b.Size) * uint64(b.Count)
	}
	return total
}

// SumPackets returns the packets accounted by a size histogram.
func SumPackets(bins []Bin) uint64 {
	var total uint64
	for _, b := range bins {
		total += uint64(b.Count)
	}
	return total
}

func sorted(bins []Bin) []Bin {
	out := make([]Bin, len(bins))
	copy(out, bins)
	sort.Slice(out, func(i, j int) bool { return out[i].Size < out[j].Size })
	return out
}

// Mbps converts a byte delta over elapsed into megabits per second.
func Mbps(bytes uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) * 8 / 1e6 / elapsed.Seconds()
}

type sample struct {
	bytes uint64
	at    time.Time
}

// RateTracker derives throughput from cumulative byte counters sampled at
// irregular times. It is safe for concurrent use.
type RateTracker struct {
	mu   sync.Mutex
	last map[string]sample
}

// NewRateTracker returns an empty tracker.
func NewRateTracker() *RateTracker {
	return &RateTracker{last: make(map[string]sample)}
}

// Observe records the cumulative counter of key at time at and returns the
// rate in Mbit/s since the previous observation. ok is false for the first
// observation of a key, when time did not advance, or when the counter went
// backwards (device reset); the new value becomes the baseline in every case.
func (t *RateTracker) Observe(key string, bytes uint64, at time.Time) (rate float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, seen := t.last[key]
	t.last[key] = sample{bytes: bytes, at: at}
	if !seen || !at.After(prev.at) || bytes < prev.bytes {
		return 0, false
	}
	return Mbps(bytes-prev.bytes, at.Sub(prev.at)), true
}

// Forget drops the baseline of key.
func (t *RateTracker) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, key)
}

// Package history provides HandoverHistory implementations: an in-process
// log and a Redis-backed log that survives controller restarts.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wifi-slicing/slicectl/slicing"
)

// DefaultMaxPerStation bounds the records kept per station by Memory.
const DefaultMaxPerStation = 64

// Memory is an in-process, append-only handover log. Records older than
// retention (relative to the newest record of the station) are pruned on
// append, and at most maxPerStation records are kept per station.
type Memory struct {
	mu            sync.Mutex
	retention     time.Duration
	maxPerStation int
	records       map[slicing.StationID][]slicing.HandoverRecord
}

// NewMemory returns an empty log. retention <= 0 disables time-based pruning.
func NewMemory(retention time.Duration) *Memory {
	return &Memory{
		retention:     retention,
		maxPerStation: DefaultMaxPerStation,
		records:       make(map[slicing.StationID][]slicing.HandoverRecord),
	}
}

// Append adds a record, keeping the station's log ordered by time.
func (m *Memory) Append(_ context.Context, rec slicing.HandoverRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := append(m.records[rec.Station], rec)
	sort.SliceStable(log, func(i, j int) bool { return log[i].At.Before(log[j].At) })

	if m.retention > 0 {
		cutoff := log[len(log)-1].At.Add(-m.retention)
		first := sort.Search(len(log), func(i int) bool { return !log[i].At.Before(cutoff) })
		log = log[first:]
	}
	if len(log) > m.maxPerStation {
		log = log[len(log)-m.maxPerStation:]
	}
	m.records[rec.Station] = append([]slicing.HandoverRecord(nil), log...)
	return nil
}

// Recent returns the station's records with At >= since, oldest first.
func (m *Memory) Recent(_ context.Context, sta slicing.StationID, since time.Time) ([]slicing.HandoverRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []slicing.HandoverRecord
	for _, rec := range m.records[sta] {
		if !rec.At.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Len returns the number of records kept for sta.
func (m *Memory) Len(sta slicing.StationID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records[sta])
}

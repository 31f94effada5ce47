package slicing

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// StationID is a station's hardware address in canonical upper-case form
// ("D8:CE:3A:8F:0B:4D").
type StationID string

// ParseStationID validates a hardware address and returns its canonical form.
// Slice membership telemetry carries metadata keys next to station addresses;
// those fail here and are skipped by the controller.
func ParseStationID(s string) (StationID, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid station address %q: %w", s, err)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("invalid station address %q: expected 6 octets, got %d", s, len(hw))
	}
	return StationID(strings.ToUpper(hw.String())), nil
}

// AccessPointID identifies an access point by its hardware address.
type AccessPointID string

// SliceID identifies a slice ("0", "1", ...).
type SliceID string

// RadioBlock is one radio interface of an access point.
type RadioBlock struct {
	AP    AccessPointID
	Block int
}

// String renders the block as "AP/block".
func (b RadioBlock) String() string {
	return fmt.Sprintf("%s/%d", b.AP, b.Block)
}

// IsZero reports whether the block is unset.
func (b RadioBlock) IsZero() bool {
	return b.AP == "" && b.Block == 0
}

// ParseRadioBlock parses the "AP/block" form produced by RadioBlock.String.
func ParseRadioBlock(s string) (RadioBlock, error) {
	idx := strings.LastIndex(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return RadioBlock{}, fmt.Errorf("invalid radio block %q (expected ap/block)", s)
	}
	block, err := strconv.Atoi(s[idx+1:])
	if err != nil || block < 0 {
		return RadioBlock{}, fmt.Errorf("invalid block id in %q", s)
	}
	ap := strings.ToUpper(strings.TrimSpace(s[:idx]))
	return RadioBlock{AP: AccessPointID(ap), Block: block}, nil
}

// Slice is the registry view of a slice: its promised rate, the base
// scheduling quantum, and per-AP quantum overrides.
type Slice struct {
	ID           SliceID
	PromisedRate float64                   // Mbit/s
	Quantum      float64                   // base quantum
	APQuantum    map[AccessPointID]float64 // per-AP overrides
}

// Clone returns a deep copy so upserts always carry a complete, unshared object.
func (s *Slice) Clone() *Slice {
	if s == nil {
		return nil
	}
	out := *s
	out.APQuantum = make(map[AccessPointID]float64, len(s.APQuantum))
	for ap, q := range s.APQuantum {
		out.APQuantum[ap] = q
	}
	return &out
}

// EffectiveQuantum returns the quantum that applies to slice s at ap:
// the AP override when present, the base quantum otherwise.
func EffectiveQuantum(s *Slice, ap AccessPointID) float64 {
	if s == nil {
		return 0
	}
	if q, ok := s.APQuantum[ap]; ok {
		return q
	}
	return s.Quantum
}

// setAPQuantum installs an AP override, creating the map on first use.
func (s *Slice) setAPQuantum(ap AccessPointID, q float64) {
	if s.APQuantum == nil {
		s.APQuantum = make(map[AccessPointID]float64)
	}
	s.APQuantum[ap] = q
}

// sortedSliceIDs returns map keys in ascending order for deterministic iteration.
func sortedSliceIDs[V any](m map[SliceID]V) []SliceID {
	ids := make([]SliceID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

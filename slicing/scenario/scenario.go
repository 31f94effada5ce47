// Package scenario replays a recorded or hand-written network trace so the
// controller can run without devices or a time-series store.
package scenario

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wifi-slicing/slicectl/slicing"
	"github.com/wifi-slicing/slicectl/slicing/telemetry"
)

// DefaultInterval is the frame spacing used when a scenario omits it.
const DefaultInterval = 2 * time.Second

// Scenario is the YAML description of a network and its telemetry over time.
type Scenario struct {
	Name     string        `yaml:"name"`
	Start    time.Time     `yaml:"start"`    // virtual time of frame 0; zero means the Unix epoch
	Interval time.Duration `yaml:"interval"` // virtual time between frames

	Slices       []SliceSpec       `yaml:"slices"`
	AccessPoints []AccessPointSpec `yaml:"access_points"`
	Stations     []StationSpec     `yaml:"stations"`

	// MembershipMetadata lists extra keys reported with slice membership,
	// the way the time-series store returns its own columns next to stations.
	MembershipMetadata []string `yaml:"membership_metadata"`

	Frames []Frame `yaml:"frames"`
}

// SliceSpec declares a slice and its initial quanta.
type SliceSpec struct {
	ID           string             `yaml:"id"`
	PromisedRate float64            `yaml:"promised_rate"` // Mbit/s
	Quantum      float64            `yaml:"quantum"`
	APQuantum    map[string]float64 `yaml:"ap_quantum"`
}

// AccessPointSpec declares an access point and its radio blocks.
type AccessPointSpec struct {
	ID     string `yaml:"id"`
	Blocks []int  `yaml:"blocks"`
}

// StationSpec declares a station, its slice and its initial radio ("AP/block").
type StationSpec struct {
	Address string `yaml:"address"`
	Slice   string `yaml:"slice"`
	Radio   string `yaml:"radio"`
}

// Frame is the telemetry of one control interval.
type Frame struct {
	Stations map[string]StationFrame `yaml:"stations"`
	// Occupancy per radio block ("AP/block"), as a busy fraction.
	Occupancy map[string]float64 `yaml:"occupancy"`
	// APSliceThroughput per AP then slice. When absent it is derived from
	// the stations' throughput.
	APSliceThroughput map[string]map[string]float64 `yaml:"ap_slice_throughput"`
}

// StationFrame is one station's counters for a frame. Throughput is taken
// from Throughput when set, otherwise from the cumulative TxBytes counter or
// the TxBins histogram.
type StationFrame struct {
	Attempts   float64            `yaml:"attempts"`
	Successes  float64            `yaml:"successes"`
	Throughput *float64           `yaml:"throughput"`
	TxBytes    *uint64            `yaml:"tx_bytes"`
	TxBins     []telemetry.Bin    `yaml:"tx_bins"`
	RSSI       map[string]float64 `yaml:"rssi"` // dBm per radio block "AP/block"
}

// Load reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scenario document strictly.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if sc.Interval == 0 {
		sc.Interval = DefaultInterval
	}
	return &sc, nil
}

// Validate checks identifiers and cross references.
func (sc *Scenario) Validate() error {
	if sc.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", sc.Interval)
	}
	if len(sc.Frames) == 0 {
		return fmt.Errorf("at least one frame required")
	}

	aps := make(map[slicing.AccessPointID]bool)
	blocks := make(map[slicing.RadioBlock]bool)
	for i, ap := range sc.AccessPoints {
		id, err := parseAP(ap.ID)
		if err != nil {
			return fmt.Errorf("access_points[%d]: %w", i, err)
		}
		if aps[id] {
			return fmt.Errorf("access_points[%d]: duplicate id %s", i, id)
		}
		aps[id] = true
		if len(ap.Blocks) == 0 {
			return fmt.Errorf("access_points[%d]: at least one block required", i)
		}
		for _, b := range ap.Blocks {
			blk := slicing.RadioBlock{AP: id, Block: b}
			if b < 0 || blocks[blk] {
				return fmt.Errorf("access_points[%d]: invalid or duplicate block %d", i, b)
			}
			blocks[blk] = true
		}
	}

	slices := make(map[string]bool)
	for i, s := range sc.Slices {
		prefix := fmt.Sprintf("slices[%d]", i)
		if s.ID == "" || slices[s.ID] {
			return fmt.Errorf("%s: missing or duplicate id %q", prefix, s.ID)
		}
		slices[s.ID] = true
		if err := validateNonNegative(prefix+".promised_rate", s.PromisedRate); err != nil {
			return err
		}
		if err := validateNonNegative(prefix+".quantum", s.Quantum); err != nil {
			return err
		}
		for ap, q := range s.APQuantum {
			id, err := parseAP(ap)
			if err != nil || !aps[id] {
				return fmt.Errorf("%s.ap_quantum: unknown access point %q", prefix, ap)
			}
			if err := validateNonNegative(prefix+".ap_quantum", q); err != nil {
				return err
			}
		}
	}

	stations := make(map[slicing.StationID]bool)
	for i, st := range sc.Stations {
		prefix := fmt.Sprintf("stations[%d]", i)
		id, err := slicing.ParseStationID(st.Address)
		if err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		if stations[id] {
			return fmt.Errorf("%s: duplicate station %s", prefix, id)
		}
		stations[id] = true
		if !slices[st.Slice] {
			return fmt.Errorf("%s: unknown slice %q", prefix, st.Slice)
		}
		blk, err := slicing.ParseRadioBlock(st.Radio)
		if err != nil {
			return fmt.Errorf("%s: %w", prefix, err)
		}
		if !blocks[blk] {
			return fmt.Errorf("%s: unknown radio %s", prefix, blk)
		}
	}

	for i, f := range sc.Frames {
		prefix := fmt.Sprintf("frames[%d]", i)
		for addr, sf := range f.Stations {
			id, err := slicing.ParseStationID(addr)
			if err != nil || !stations[id] {
				return fmt.Errorf("%s: unknown station %q", prefix, addr)
			}
			if sf.Attempts < 0 || sf.Successes < 0 || sf.Successes > sf.Attempts {
				return fmt.Errorf("%s.stations[%s]: successes must be in [0, attempts]", prefix, addr)
			}
			if sf.Throughput != nil {
				if err := validateNonNegative(prefix+".throughput", *sf.Throughput); err != nil {
					return err
				}
			}
			for radio := range sf.RSSI {
				blk, err := slicing.ParseRadioBlock(radio)
				if err != nil || !blocks[blk] {
					return fmt.Errorf("%s.stations[%s].rssi: unknown radio %q", prefix, addr, radio)
				}
			}
		}
		for radio, occ := range f.Occupancy {
			blk, err := slicing.ParseRadioBlock(radio)
			if err != nil || !blocks[blk] {
				return fmt.Errorf("%s.occupancy: unknown radio %q", prefix, radio)
			}
			if err := validateNonNegative(prefix+".occupancy", occ); err != nil {
				return err
			}
		}
		for ap, perSlice := range f.APSliceThroughput {
			id, err := parseAP(ap)
			if err != nil || !aps[id] {
				return fmt.Errorf("%s.ap_slice_throughput: unknown access point %q", prefix, ap)
			}
			for s := range perSlice {
				if !slices[s] {
					return fmt.Errorf("%s.ap_slice_throughput: unknown slice %q", prefix, s)
				}
			}
		}
	}
	return nil
}

func parseAP(s string) (slicing.AccessPointID, error) {
	id, err := slicing.ParseStationID(s)
	if err != nil {
		return "", fmt.Errorf("invalid access point address %q", s)
	}
	return slicing.AccessPointID(id), nil
}

func validateNonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%s must be a finite non-negative number, got %f", name, v)
	}
	return nil
}

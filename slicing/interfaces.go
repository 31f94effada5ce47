package slicing

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoData marks a query that succeeded but returned nothing. It is
	// reported and logged, never escalated.
	ErrNoData = errors.New("no data")

	// ErrNotFound is returned by registries for unknown stations or slices.
	ErrNotFound = errors.New("not found")

	// ErrCycleInProgress is returned when a cycle is requested while another
	// one is still evaluating.
	ErrCycleInProgress = errors.New("control cycle already in progress")
)

// TelemetrySource supplies per-cycle telemetry. Implementations wrap the
// time-series store; each call is expected to finish within the query timeout.
type TelemetrySource interface {
	// SliceRates returns the promised rate (Mbit/s) of every slice.
	SliceRates(ctx context.Context) (map[SliceID]float64, error)
	// SliceMembers returns the raw membership keys per slice. Keys that are
	// not hardware addresses are metadata and are ignored by the collector.
	SliceMembers(ctx context.Context) (map[SliceID][]string, error)
	// StationCounters returns attempts, successes and achieved throughput over
	// the last interval.
	StationCounters(ctx context.Context, sta StationID) (StationTelemetry, error)
	// LinkQuality returns the station's signal strength as seen by every
	// candidate radio block, in any order.
	LinkQuality(ctx context.Context, sta StationID) ([]LinkSample, error)
	// ChannelOccupancy returns the block's channel occupancy averaged over window.
	ChannelOccupancy(ctx context.Context, block RadioBlock, window time.Duration) (float64, error)
	// APSliceThroughput returns the slice's achieved throughput at an access point.
	APSliceThroughput(ctx context.Context, ap AccessPointID, slice SliceID) (float64, error)
}

// Registry is the station/slice registry. UpsertSlice only accepts complete
// slice objects; partial updates are not supported.
type Registry interface {
	Slice(ctx context.Context, id SliceID) (*Slice, error)
	UpsertSlice(ctx context.Context, s *Slice) error
	Association(ctx context.Context, sta StationID) (RadioBlock, error)
	Handover(ctx context.Context, sta StationID, dst RadioBlock) error
}

// HandoverRecord is one committed handover.
type HandoverRecord struct {
	Station StationID
	AP      AccessPointID
	Block   int
	At      time.Time
}

// HandoverHistory is the bounded handover log used for oscillation detection.
type HandoverHistory interface {
	// Recent returns the station's records with At >= since, oldest first.
	Recent(ctx context.Context, sta StationID, since time.Time) ([]HandoverRecord, error)
	Append(ctx context.Context, rec HandoverRecord) error
}

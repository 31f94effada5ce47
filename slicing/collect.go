package slicing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Collector assembles a Snapshot from a TelemetrySource and the Registry's
// association view. Queries run concurrently, bounded by FetchConcurrency,
// each under QueryTimeout. A failed per-station query degrades that station
// only.
type Collector struct {
	source   TelemetrySource
	registry Registry
	cfg      Config
	now      func() time.Time
}

// NewCollector creates a Collector. now defaults to time.Now.
func NewCollector(source TelemetrySource, registry Registry, cfg Config, now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{source: source, registry: registry, cfg: cfg, now: now}
}

// Collect fetches one cycle's telemetry. It returns an error wrapping
// ErrNoData when slice rates or membership are absent, and any other
// slice-level query failure as-is.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := NewSnapshot(c.now())

	var (
		rates   map[SliceID]float64
		members map[SliceID][]string
	)
	var top errgroup.Group
	top.Go(func() error {
		qctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
		defer cancel()
		r, err := c.source.SliceRates(qctx)
		if err != nil {
			return fmt.Errorf("slice rates: %w", err)
		}
		rates = r
		return nil
	})
	top.Go(func() error {
		qctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
		defer cancel()
		m, err := c.source.SliceMembers(qctx)
		if err != nil {
			return fmt.Errorf("slice members: %w", err)
		}
		members = m
		return nil
	})
	if err := top.Wait(); err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("slice rates: %w", ErrNoData)
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("slice members: %w", ErrNoData)
	}
	for id, rate := range rates {
		snap.PromisedRates[id] = rate
	}

	for _, slice := range sortedSliceIDs(members) {
		for _, key := range members[slice] {
			sta, err := ParseStationID(key)
			if err != nil {
				logrus.Debugf("slice %s: skipping membership key %q", slice, key)
				snap.Skipped = append(snap.Skipped, key)
				continue
			}
			snap.AddMember(slice, sta)
		}
	}

	c.collectStations(ctx, snap)
	c.collectOccupancy(ctx, snap)
	c.collectAPSlices(ctx, snap)
	return snap, nil
}

func (c *Collector) collectStations(ctx context.Context, snap *Snapshot) {
	var mu sync.Mutex
	degrade := func(sta StationID, what string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if _, seen := snap.Degraded[sta]; !seen {
			snap.Degraded[sta] = fmt.Sprintf("%s: %v", what, err)
		}
		if errors.Is(err, ErrNoData) {
			logrus.Debugf("station %s: no %s", sta, what)
			return
		}
		logrus.Warnf("station %s: %s query failed: %v", sta, what, err)
	}

	var g errgroup.Group
	g.SetLimit(c.cfg.FetchConcurrency)
	for _, sta := range snap.Stations() {
		sta := sta
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
			defer cancel()

			tel, err := c.source.StationCounters(qctx, sta)
			if err != nil {
				degrade(sta, "counters", err)
				return nil
			}
			blk, err := c.registry.Association(qctx, sta)
			if err != nil {
				degrade(sta, "association", err)
				return nil
			}
			// Missing link quality only rules out handover candidates.
			links, err := c.source.LinkQuality(qctx, sta)
			if err != nil && !errors.Is(err, ErrNoData) {
				logrus.Warnf("station %s: link quality query failed: %v", sta, err)
			}

			mu.Lock()
			defer mu.Unlock()
			snap.Telemetry[sta] = tel
			snap.Associations[sta] = blk
			if len(links) > 0 {
				snap.LinkQuality[sta] = rankLinkSamples(links)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Collector) collectOccupancy(ctx context.Context, snap *Snapshot) {
	blocks := make(map[RadioBlock]bool)
	for _, blk := range snap.Associations {
		blocks[blk] = true
	}
	for _, samples := range snap.LinkQuality {
		for _, s := range samples {
			blocks[s.Block] = true
		}
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(c.cfg.FetchConcurrency)
	window := c.cfg.Period
	for blk := range blocks {
		blk := blk
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
			defer cancel()
			occ, err := c.source.ChannelOccupancy(qctx, blk, window)
			if err != nil {
				if !errors.Is(err, ErrNoData) {
					logrus.Warnf("block %s: occupancy query failed: %v", blk, err)
				}
				return nil
			}
			mu.Lock()
			snap.Occupancy[blk] = occ
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Collector) collectAPSlices(ctx context.Context, snap *Snapshot) {
	pairs := make(map[APSlice]bool)
	for sta, blk := range snap.Associations {
		if slice, ok := snap.SliceOf(sta); ok {
			pairs[APSlice{AP: blk.AP, Slice: slice}] = true
		}
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(c.cfg.FetchConcurrency)
	for pair := range pairs {
		pair := pair
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
			defer cancel()
			tp, err := c.source.APSliceThroughput(qctx, pair.AP, pair.Slice)
			if err != nil {
				if !errors.Is(err, ErrNoData) {
					logrus.Warnf("ap %s slice %s: throughput query failed: %v", pair.AP, pair.Slice, err)
				}
				return nil
			}
			mu.Lock()
			snap.APSliceThroughput[pair] = tp
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

package scenario

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifi-slicing/slicectl/slicing"
	"github.com/wifi-slicing/slicectl/slicing/history"
	"github.com/wifi-slicing/slicectl/slicing/trace"
)

const (
	apA  = slicing.AccessPointID("00:0D:B9:2F:56:64")
	apB  = slicing.AccessPointID("00:0D:B9:2F:56:65")
	sta1 = slicing.StationID("D8:CE:3A:8F:0B:4D")
	sta2 = slicing.StationID("D8:CE:3A:8F:0B:4E")
)

func loadNetwork(t *testing.T, path string) *Network {
	t.Helper()
	sc, err := Load(path)
	require.NoError(t, err)
	n, err := NewNetwork(sc)
	require.NoError(t, err)
	return n
}

func TestNetwork_ServesCurrentFrame(t *testing.T) {
	n := loadNetwork(t, "testdata/two-aps.yaml")
	ctx := context.Background()

	rates, err := n.SliceRates(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[slicing.SliceID]float64{"0": 5, "1": 2}, rates)

	members, err := n.SliceMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{string(sta1), "time"}, members["0"])

	tel, err := n.StationCounters(ctx, sta1)
	require.NoError(t, err)
	assert.Equal(t, slicing.StationTelemetry{Attempts: 40, Successes: 36, Throughput: 3}, tel)

	links, err := n.LinkQuality(ctx, sta1)
	require.NoError(t, err)
	assert.Equal(t, []slicing.LinkSample{
		{Block: slicing.RadioBlock{AP: apA}, Quality: -45},
		{Block: slicing.RadioBlock{AP: apB}, Quality: -60},
	}, links)

	occ, err := n.ChannelOccupancy(ctx, slicing.RadioBlock{AP: apB}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0.2, occ)

	// derived from the stations on the AP
	tp, err := n.APSliceThroughput(ctx, apA, "1")
	require.NoError(t, err)
	assert.Equal(t, 4.0, tp)
	_, err = n.APSliceThroughput(ctx, apB, "1")
	assert.ErrorIs(t, err, slicing.ErrNoData)
}

func TestNetwork_AdvanceAndClock(t *testing.T) {
	n := loadNetwork(t, "testdata/two-aps.yaml")
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, n.Now().Equal(start))
	assert.Equal(t, 2, n.Frames())

	require.True(t, n.Advance())
	assert.Equal(t, 1, n.Frame())
	assert.True(t, n.Now().Equal(start.Add(2*time.Second)))

	// exhausted: stays on the last frame
	assert.False(t, n.Advance())
	assert.Equal(t, 1, n.Frame())

	tel, err := n.StationCounters(context.Background(), sta2)
	require.NoError(t, err)
	assert.Equal(t, 1.5, tel.Throughput)
}

func TestNetwork_MissingTelemetryIsNoData(t *testing.T) {
	n := loadNetwork(t, "testdata/two-aps.yaml")
	ctx := context.Background()
	unknown := slicing.StationID("D8:CE:3A:8F:0B:4F")

	_, err := n.StationCounters(ctx, unknown)
	assert.ErrorIs(t, err, slicing.ErrNoData)
	_, err = n.LinkQuality(ctx, unknown)
	assert.ErrorIs(t, err, slicing.ErrNoData)
	_, err = n.ChannelOccupancy(ctx, slicing.RadioBlock{AP: apA, Block: 3}, time.Second)
	assert.ErrorIs(t, err, slicing.ErrNoData)
}

func TestNetwork_DerivesThroughputFromCounters(t *testing.T) {
	n := loadNetwork(t, "testdata/counters.yaml")
	ctx := context.Background()

	// GIVEN the first frame only sets the baseline
	_, err := n.StationCounters(ctx, sta1)
	assert.ErrorIs(t, err, slicing.ErrNoData)

	// WHEN 250000 bytes arrive over one second
	require.True(t, n.Advance())
	tel, err := n.StationCounters(ctx, sta1)

	// THEN the station ran at 2 Mbit/s, and asking again in the frame agrees
	require.NoError(t, err)
	assert.InDelta(t, 2.0, tel.Throughput, 1e-9)
	again, err := n.StationCounters(ctx, sta1)
	require.NoError(t, err)
	assert.Equal(t, tel, again)

	// AND a histogram total below the previous counter reads as a reset
	require.True(t, n.Advance())
	_, err = n.StationCounters(ctx, sta1)
	assert.ErrorIs(t, err, slicing.ErrNoData)
}

func TestNetwork_RegistryFollowsCommands(t *testing.T) {
	n := loadNetwork(t, "testdata/two-aps.yaml")
	ctx := context.Background()

	// handover moves the association and is recorded
	require.NoError(t, n.Handover(ctx, sta1, slicing.RadioBlock{AP: apB}))
	blk, err := n.Association(ctx, sta1)
	require.NoError(t, err)
	assert.Equal(t, slicing.RadioBlock{AP: apB}, blk)
	require.Len(t, n.Handovers(), 1)
	assert.Equal(t, HandoverCommand{Frame: 0, Station: sta1, From: slicing.RadioBlock{AP: apA}, To: slicing.RadioBlock{AP: apB}}, n.Handovers()[0])

	// unknown radios and stations are refused
	assert.ErrorIs(t, n.Handover(ctx, sta1, slicing.RadioBlock{AP: apB, Block: 5}), slicing.ErrNotFound)
	assert.ErrorIs(t, n.Handover(ctx, "D8:CE:3A:8F:0B:4F", slicing.RadioBlock{AP: apB}), slicing.ErrNotFound)

	// slices are copied in and out
	s, err := n.Slice(ctx, "1")
	require.NoError(t, err)
	s.APQuantum[apA] = 13200
	stored, err := n.Slice(ctx, "1")
	require.NoError(t, err)
	assert.NotContains(t, stored.APQuantum, apA)

	require.NoError(t, n.UpsertSlice(ctx, s))
	stored, err = n.Slice(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 13200.0, stored.APQuantum[apA])
	assert.Equal(t, 1, n.Upserts())

	assert.Error(t, n.UpsertSlice(ctx, nil))
	_, err = n.Slice(ctx, "9")
	assert.ErrorIs(t, err, slicing.ErrNotFound)
}

func TestNetwork_DrivesController(t *testing.T) {
	// GIVEN the two-AP scenario replayed as the network
	n := loadNetwork(t, "testdata/two-aps.yaml")
	ctrl, err := slicing.NewController(slicing.DefaultConfig(), slicing.Dependencies{
		Source:   n,
		Registry: n,
		History:  history.NewMemory(time.Minute),
		Clock:    n.Now,
	})
	require.NoError(t, err)
	ctx := context.Background()

	// WHEN the first frame is evaluated
	report, err := ctrl.RunCycle(ctx)
	require.NoError(t, err)

	// THEN the under-served station leaves the busy AP
	assert.Equal(t, 1, report.Count(trace.ActionHandover))
	require.Len(t, n.Handovers(), 1)
	assert.Equal(t, slicing.RadioBlock{AP: apB}, n.Handovers()[0].To)

	// WHEN the second frame is evaluated
	require.True(t, n.Advance())
	report, err = ctrl.RunCycle(ctx)
	require.NoError(t, err)

	// THEN the voice slice gets more airtime on AP A
	assert.Equal(t, 1, report.Count(trace.ActionQuantum))
	s, err := n.Slice(ctx, "1")
	require.NoError(t, err)
	assert.InDelta(t, 13200, s.APQuantum[apA], 1e-6)
	assert.Equal(t, 1, n.Upserts())
}

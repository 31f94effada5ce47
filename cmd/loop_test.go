package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wifi-slicing/slicectl/slicing"
	"github.com/wifi-slicing/slicectl/slicing/history"
	"github.com/wifi-slicing/slicectl/slicing/scenario"
	"github.com/wifi-slicing/slicectl/slicing/trace"
)

// captureLogOutput redirects logrus output during fn and returns it.
func captureLogOutput(fn func()) string {
	var buf bytes.Buffer
	prevOut := logrus.StandardLogger().Out
	prevLevel := logrus.GetLevel()
	logrus.SetOutput(&buf)
	logrus.SetLevel(logrus.InfoLevel)
	defer func() {
		logrus.SetOutput(prevOut)
		logrus.SetLevel(prevLevel)
	}()
	fn()
	return buf.String()
}

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
}

func (f *fakeRunner) RunCycle(ctx context.Context) (*slicing.CycleReport, error) {
	f.mu.Lock()
	f.calls++
	id := f.calls
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	tr := trace.NewCycleTrace(trace.TraceLevelDecisions, strings.Repeat("c", id), time.Time{})
	return &slicing.CycleReport{Trace: tr}, f.err
}

func (f *fakeRunner) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFrames struct {
	remaining int
}

func (f *fakeFrames) Advance() bool {
	if f.remaining == 0 {
		return false
	}
	f.remaining--
	return true
}

func TestRunCycles_AcceleratedRunsRequestedCycles(t *testing.T) {
	runner := &fakeRunner{}

	traces := runCycles(context.Background(), runner, &fakeFrames{remaining: 10}, loopOptions{cycles: 3, accelerated: true})

	assert.Equal(t, 3, runner.Calls())
	assert.Len(t, traces, 3)
}

func TestRunCycles_StopsWhenScenarioExhausted(t *testing.T) {
	runner := &fakeRunner{}

	var traces []*trace.CycleTrace
	out := captureLogOutput(func() {
		traces = runCycles(context.Background(), runner, &fakeFrames{remaining: 1}, loopOptions{cycles: 5, accelerated: true})
	})

	assert.Equal(t, 2, runner.Calls())
	assert.Len(t, traces, 2)
	assert.Contains(t, out, "scenario exhausted after 2 cycles")
}

func TestRunCycles_LogsFailedCycles(t *testing.T) {
	runner := &fakeRunner{err: errors.New("registry down")}

	out := captureLogOutput(func() {
		runCycles(context.Background(), runner, &fakeFrames{remaining: 10}, loopOptions{cycles: 1, accelerated: true})
	})

	assert.Contains(t, out, "registry down")
}

func TestRunCycles_TickerMode(t *testing.T) {
	runner := &fakeRunner{}

	traces := runCycles(context.Background(), runner, &fakeFrames{remaining: 10}, loopOptions{cycles: 3, period: time.Millisecond})

	assert.Equal(t, 3, runner.Calls())
	assert.Len(t, traces, 3)
}

func TestRunCycles_TickerSkipsWhileCycleInFlight(t *testing.T) {
	// GIVEN cycles that outlast the period
	runner := &fakeRunner{delay: 20 * time.Millisecond}

	out := captureLogOutput(func() {
		runCycles(context.Background(), runner, &fakeFrames{remaining: 10}, loopOptions{cycles: 2, period: time.Millisecond})
	})

	// THEN overlapping ticks are skipped, never run concurrently
	assert.Equal(t, 2, runner.Calls())
	assert.Contains(t, out, "skipping tick")
}

func TestRunCycles_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &fakeRunner{}

	traces := runCycles(ctx, runner, &fakeFrames{remaining: 10}, loopOptions{cycles: 3, period: time.Hour})

	assert.Zero(t, runner.Calls())
	assert.Empty(t, traces)
}

func TestRunCycles_ReplaysExampleScenario(t *testing.T) {
	// GIVEN the example scenario driving a real controller
	sc, err := scenario.Load("../examples/two-aps.yaml")
	require.NoError(t, err)
	network, err := scenario.NewNetwork(sc)
	require.NoError(t, err)
	cfg := slicing.DefaultConfig()
	ctrl, err := slicing.NewController(cfg, slicing.Dependencies{
		Source:   network,
		Registry: network,
		History:  history.NewMemory(cfg.HistoryWindow()),
		Clock:    network.Now,
	})
	require.NoError(t, err)

	// WHEN every frame is evaluated
	traces := runCycles(context.Background(), ctrl, network, loopOptions{cycles: network.Frames(), accelerated: true})

	// THEN one handover and one quantum raise are taken
	summary := trace.Summarize(traces...)
	assert.Equal(t, 2, summary.Cycles)
	assert.Equal(t, 1, summary.ByAction[trace.ActionHandover])
	assert.Equal(t, 1, summary.ByAction[trace.ActionQuantum])
	assert.Equal(t, 1, summary.Increases)

	// AND the summary report lists them
	var buf bytes.Buffer
	printTraceSummary(&buf, summary, network)
	assert.Contains(t, buf.String(), "Handovers         : 1")
	assert.Contains(t, buf.String(), "Registry upserts  : 1")
	assert.Contains(t, buf.String(), "D8:CE:3A:8F:0B:4D 00:0D:B9:2F:56:64/0 -> 00:0D:B9:2F:56:65/0")
}

func TestValidateCmd_ExampleFiles(t *testing.T) {
	rootCmd.SetArgs([]string{"validate", "--config", "../examples/config.yaml", "--scenario", "../examples/two-aps.yaml"})
	defer rootCmd.SetArgs(nil)

	var err error
	out := captureLogOutput(func() { err = rootCmd.Execute() })

	require.NoError(t, err)
	assert.Contains(t, out, "config ok")
	assert.Contains(t, out, "scenario ok: 2 slices, 2 stations, 2 frames")
}

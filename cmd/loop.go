package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wifi-slicing/slicectl/slicing"
	"github.com/wifi-slicing/slicectl/slicing/trace"
)

// cycleRunner is the part of the controller the loop drives.
type cycleRunner interface {
	RunCycle(ctx context.Context) (*slicing.CycleReport, error)
}

// frameSource advances the replayed network between cycles.
type frameSource interface {
	Advance() bool
}

type loopOptions struct {
	cycles      int
	period      time.Duration
	accelerated bool
}

type cycleResult struct {
	report *slicing.CycleReport
	err    error
}

// runCycles drives up to opts.cycles control cycles and returns their traces.
// In accelerated mode cycles run back to back; otherwise one is started per
// tick and ticks arriving while a cycle is in flight are skipped.
func runCycles(ctx context.Context, ctrl cycleRunner, frames frameSource, opts loopOptions) []*trace.CycleTrace {
	var traces []*trace.CycleTrace
	record := func(res cycleResult) bool {
		if res.report != nil && res.report.Trace != nil {
			traces = append(traces, res.report.Trace)
		}
		if res.err != nil {
			logrus.Errorf("cycle failed: %v", res.err)
		}
		return frames.Advance()
	}

	if opts.accelerated {
		for i := 0; i < opts.cycles; i++ {
			if ctx.Err() != nil {
				break
			}
			report, err := ctrl.RunCycle(ctx)
			if !record(cycleResult{report: report, err: err}) && i+1 < opts.cycles {
				logrus.Infof("scenario exhausted after %d cycles", i+1)
				break
			}
		}
		return traces
	}

	ticker := time.NewTicker(opts.period)
	defer ticker.Stop()

	done := make(chan cycleResult, 1)
	running := false
	completed := 0
	for completed < opts.cycles {
		select {
		case <-ctx.Done():
			if running {
				record(<-done)
			}
			return traces
		case <-ticker.C:
			if running {
				logrus.Warnf("control cycle still in flight, skipping tick")
				continue
			}
			running = true
			go func() {
				report, err := ctrl.RunCycle(ctx)
				done <- cycleResult{report: report, err: err}
			}()
		case res := <-done:
			running = false
			if errors.Is(res.err, slicing.ErrCycleInProgress) {
				continue
			}
			completed++
			if !record(res) && completed < opts.cycles {
				logrus.Infof("scenario exhausted after %d cycles", completed)
				return traces
			}
		}
	}
	return traces
}

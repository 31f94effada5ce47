// Package slicing provides the control-loop decision engine for sliced WiFi
// networks.
//
// # Reading Guide
//
// Start with these files to understand one control cycle:
//   - controller.go: the Idle/Evaluating cycle and per-station decisions
//   - evaluator.go: classification of a station against its slice promise
//   - selector.go: two-phase handover search (occupancy, then slack)
//   - quantum.go: quantum raise and claw-back at an access point
//   - pingpong.go: the oscillation guard over recent handover history
//
// # Architecture
//
// The slicing package defines the engine and its collaborator interfaces;
// implementations and supporting code live in sub-packages:
//   - slicing/history/: handover history (in-memory, Redis sorted sets)
//   - slicing/metrics/: Prometheus counters for cycles and decisions
//   - slicing/trace/: decision trace recording
//   - slicing/telemetry/: byte-counter and histogram arithmetic
//   - slicing/scenario/: YAML-driven network backing TelemetrySource and Registry
//
// # Key Interfaces
//
//   - TelemetrySource: per-cycle rates, membership, counters, link quality, occupancy
//   - Registry: slice reads and full upserts, associations, handover commands
//   - HandoverHistory: append-only handover log with recency queries
//   - MetricsRecorder: counters emitted by the controller
package slicing

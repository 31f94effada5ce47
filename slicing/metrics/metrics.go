// Package metrics exposes Prometheus counters for control cycles and the
// decisions taken in them.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the controller's Prometheus metrics. All methods are
// safe on a nil receiver.
type Collector struct {
	gatherer prometheus.Gatherer

	Cycles            *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	Classifications   *prometheus.CounterVec
	Handovers         *prometheus.CounterVec
	QuantumAdjustment *prometheus.CounterVec
	Rejections        *prometheus.CounterVec
}

// NewCollector registers the metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slicectl_cycles_total",
		Help: "Control cycles by outcome (completed, no-data, failed, skipped).",
	}, []string{"outcome"}), "slicectl_cycles_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "slicectl_cycle_duration_seconds",
		Help:    "Wall time of one control cycle, telemetry collection included.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}), "slicectl_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	classes, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slicectl_classifications_total",
		Help: "Station evaluations by classification.",
	}, []string{"class"}), "slicectl_classifications_total")
	if err != nil {
		return nil, err
	}

	handovers, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slicectl_handovers_total",
		Help: "Committed handovers by selection basis (occupancy, slack).",
	}, []string{"basis"}), "slicectl_handovers_total")
	if err != nil {
		return nil, err
	}

	quantum, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slicectl_quantum_adjustments_total",
		Help: "Committed quantum changes by direction.",
	}, []string{"direction"}), "slicectl_quantum_adjustments_total")
	if err != nil {
		return nil, err
	}

	rejections, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "slicectl_rejections_total",
		Help: "Rejected handover candidates and quantum adjustments by reason.",
	}, []string{"reason"}), "slicectl_rejections_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		Cycles:            cycles,
		CycleDuration:     duration,
		Classifications:   classes,
		Handovers:         handovers,
		QuantumAdjustment: quantum,
		Rejections:        rejections,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	var gatherer prometheus.Gatherer
	if c != nil {
		gatherer = c.gatherer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveCycle counts a cycle and, unless it was skipped, its duration.
func (c *Collector) ObserveCycle(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.Cycles != nil {
		c.Cycles.WithLabelValues(outcome).Inc()
	}
	if c.CycleDuration != nil && elapsed > 0 {
		c.CycleDuration.Observe(elapsed.Seconds())
	}
}

// ObserveClassification counts a station evaluation.
func (c *Collector) ObserveClassification(class string) {
	if c == nil || c.Classifications == nil {
		return
	}
	c.Classifications.WithLabelValues(class).Inc()
}

// ObserveHandover counts a committed handover.
func (c *Collector) ObserveHandover(basis string) {
	if c == nil || c.Handovers == nil {
		return
	}
	c.Handovers.WithLabelValues(basis).Inc()
}

// ObserveQuantumAdjustment counts a committed quantum change.
func (c *Collector) ObserveQuantumAdjustment(direction string) {
	if c == nil || c.QuantumAdjustment == nil {
		return
	}
	c.QuantumAdjustment.WithLabelValues(direction).Inc()
}

// ObserveRejection counts a rejected candidate or adjustment.
func (c *Collector) ObserveRejection(reason string) {
	if c == nil || c.Rejections == nil {
		return
	}
	c.Rejections.WithLabelValues(reason).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

package slicing

import (
	"fmt"
	"math"
	"time"
)

// Config groups the control-loop parameters. Field tags serve both the
// viper-based CLI loader (mapstructure) and plain YAML files.
type Config struct {
	Period               time.Duration `mapstructure:"period" yaml:"period"`                                   // control cycle period
	MinAttempts          float64       `mapstructure:"min_attempts" yaml:"min_attempts"`                       // activity floor below which a station is Idle
	RateTolerance        float64       `mapstructure:"rate_tolerance" yaml:"rate_tolerance"`                   // relative band around the promised rate
	MinLinkQuality       float64       `mapstructure:"min_link_quality" yaml:"min_link_quality"`               // dBm; candidates must exceed this
	MaxHandoversPerCycle int           `mapstructure:"max_handovers_per_cycle" yaml:"max_handovers_per_cycle"` // per destination AP
	HistoryWindowCycles  int           `mapstructure:"history_window_cycles" yaml:"history_window_cycles"`     // ping-pong recency window, in periods
	QuantumMin           float64       `mapstructure:"quantum_min" yaml:"quantum_min"`
	QuantumMax           float64       `mapstructure:"quantum_max" yaml:"quantum_max"`
	QuantumIncrease      float64       `mapstructure:"quantum_increase" yaml:"quantum_increase"` // relative raise step (0.1 = +10%)
	QuantumDecrease      float64       `mapstructure:"quantum_decrease" yaml:"quantum_decrease"` // relative claw-back step
	FetchConcurrency     int           `mapstructure:"fetch_concurrency" yaml:"fetch_concurrency"`
	QueryTimeout         time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
}

// DefaultConfig returns the reference parameters. The 2s period matches the
// EmPOWER application default loop period.
func DefaultConfig() Config {
	return Config{
		Period:               2 * time.Second,
		MinAttempts:          10,
		RateTolerance:        0.1,
		MinLinkQuality:       -80,
		MaxHandoversPerCycle: 1,
		HistoryWindowCycles:  10,
		QuantumMin:           1000,
		QuantumMax:           60000,
		QuantumIncrease:      0.1,
		QuantumDecrease:      0.1,
		FetchConcurrency:     8,
		QueryTimeout:         time.Second,
	}
}

// HistoryWindow is the recency window consulted by the oscillation guard.
func (c Config) HistoryWindow() time.Duration {
	return time.Duration(c.HistoryWindowCycles) * c.Period
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("period must be positive, got %v", c.Period)
	}
	if c.MinAttempts < 0 || !isFinite(c.MinAttempts) {
		return fmt.Errorf("min_attempts must be a finite non-negative number, got %v", c.MinAttempts)
	}
	if c.RateTolerance < 0 || c.RateTolerance >= 1 || !isFinite(c.RateTolerance) {
		return fmt.Errorf("rate_tolerance must be in [0, 1), got %v", c.RateTolerance)
	}
	if !isFinite(c.MinLinkQuality) {
		return fmt.Errorf("min_link_quality must be finite, got %v", c.MinLinkQuality)
	}
	if c.MaxHandoversPerCycle < 0 {
		return fmt.Errorf("max_handovers_per_cycle must be non-negative, got %d", c.MaxHandoversPerCycle)
	}
	if c.HistoryWindowCycles < 1 {
		return fmt.Errorf("history_window_cycles must be >= 1, got %d", c.HistoryWindowCycles)
	}
	if c.QuantumMin < 0 || !isFinite(c.QuantumMin) {
		return fmt.Errorf("quantum_min must be a finite non-negative number, got %v", c.QuantumMin)
	}
	if c.QuantumMax <= c.QuantumMin || !isFinite(c.QuantumMax) {
		return fmt.Errorf("quantum_max (%v) must be finite and greater than quantum_min (%v)", c.QuantumMax, c.QuantumMin)
	}
	if c.QuantumIncrease <= 0 || !isFinite(c.QuantumIncrease) {
		return fmt.Errorf("quantum_increase must be a finite positive number, got %v", c.QuantumIncrease)
	}
	if c.QuantumDecrease <= 0 || c.QuantumDecrease >= 1 {
		return fmt.Errorf("quantum_decrease must be in (0, 1), got %v", c.QuantumDecrease)
	}
	if c.FetchConcurrency < 1 {
		return fmt.Errorf("fetch_concurrency must be >= 1, got %d", c.FetchConcurrency)
	}
	if c.QueryTimeout <= 0 {
		return fmt.Errorf("query_timeout must be positive, got %v", c.QueryTimeout)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

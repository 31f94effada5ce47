package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wifi-slicing/slicectl/slicing"
)

// envPrefix namespaces environment overrides (SLICECTL_PERIOD, ...).
const envPrefix = "SLICECTL"

// flagKeys maps CLI flags that override config keys.
var flagKeys = map[string]string{
	"period": "period",
}

// loadConfig layers the control-loop configuration: defaults, then the
// optional YAML file, then SLICECTL_* environment variables, then flags that
// were set explicitly. Unknown keys in the file are rejected.
func loadConfig(path string, cmd *cobra.Command) (slicing.Config, error) {
	v := viper.New()
	setDefaults(v, slicing.DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return slicing.Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if cmd != nil {
		for flag, key := range flagKeys {
			if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return slicing.Config{}, fmt.Errorf("binding flag --%s: %w", flag, err)
				}
			}
		}
	}

	var cfg slicing.Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return slicing.Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return slicing.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d slicing.Config) {
	v.SetDefault("period", d.Period)
	v.SetDefault("min_attempts", d.MinAttempts)
	v.SetDefault("rate_tolerance", d.RateTolerance)
	v.SetDefault("min_link_quality", d.MinLinkQuality)
	v.SetDefault("max_handovers_per_cycle", d.MaxHandoversPerCycle)
	v.SetDefault("history_window_cycles", d.HistoryWindowCycles)
	v.SetDefault("quantum_min", d.QuantumMin)
	v.SetDefault("quantum_max", d.QuantumMax)
	v.SetDefault("quantum_increase", d.QuantumIncrease)
	v.SetDefault("quantum_decrease", d.QuantumDecrease)
	v.SetDefault("fetch_concurrency", d.FetchConcurrency)
	v.SetDefault("query_timeout", d.QueryTimeout)
}

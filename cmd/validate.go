package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wifi-slicing/slicectl/slicing/scenario"
)

// validateCmd loads the configuration and, optionally, a scenario.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the control-loop configuration and a scenario file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath, cmd)
		if err != nil {
			return err
		}
		logrus.Infof("config ok: period=%v history window=%v quantum=[%v, %v]",
			cfg.Period, cfg.HistoryWindow(), cfg.QuantumMin, cfg.QuantumMax)

		path, _ := cmd.Flags().GetString("scenario")
		if path == "" {
			return nil
		}
		sc, err := scenario.Load(path)
		if err != nil {
			return err
		}
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("scenario %s: %w", path, err)
		}
		logrus.Infof("scenario ok: %d slices, %d stations, %d frames", len(sc.Slices), len(sc.Stations), len(sc.Frames))
		return nil
	},
}

func init() {
	validateCmd.Flags().String("scenario", "", "YAML scenario to validate")
}

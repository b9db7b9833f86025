// Package cli wires the cobra command tree: composite, daily, raw and
// batch, all driven by one YAML config file.
package cli

import (
	"github.com/spf13/cobra"

	"landcover-pipeline/internal/config"
	"landcover-pipeline/internal/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "landcover",
	Short: "Adaptive land-cover compositing from Dynamic World",
	Long: `Builds cloud-free land-cover composites from the Dynamic World
collection over an area of interest, widening the date window around the
target date until the composite's no-data share drops below the
configured threshold, then exports the result as multiband GeoTIFF.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yml", "path to the run config file")
}

// setup loads the config and builds the logger. Every subcommand
// starts here.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

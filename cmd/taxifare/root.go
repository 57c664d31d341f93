package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Noofbiz/taxiFare/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "taxifare",
	Short:         "NYC taxi fare regression",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json); empty uses defaults and TAXIFARE_ env")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

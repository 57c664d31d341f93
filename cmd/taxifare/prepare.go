package main

import (
	"github.com/spf13/cobra"

	"github.com/Noofbiz/taxiFare/config"
	"github.com/Noofbiz/taxiFare/features"
	"github.com/Noofbiz/taxiFare/logger"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Engineer features from the raw fares CSV into the prepared CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, err = runPrepare(cfg, logger.New("prepare"))
		return err
	},
}

func init() {
	rootCmd.AddCommand(prepareCmd)
}

func runPrepare(cfg *config.Config, log logger.Logger) (int, error) {
	return features.PrepareFile(cfg.Data.RawPath, cfg.Data.PreparedPath, log)
}

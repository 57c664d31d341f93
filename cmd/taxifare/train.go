package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Noofbiz/taxiFare/artifact"
	"github.com/Noofbiz/taxiFare/config"
	"github.com/Noofbiz/taxiFare/datasets"
	"github.com/Noofbiz/taxiFare/logger"
	"github.com/Noofbiz/taxiFare/metrics"
	"github.com/Noofbiz/taxiFare/nn"
	"github.com/Noofbiz/taxiFare/training"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the fare model and write its artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, err = runTrain(ctx, cfg, prometheus.NewRegistry(), logger.New("train"))
		return err
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

// loadPartitions reads the prepared CSV and returns the train and test views.
func loadPartitions(path string, splitPercent int, seed *int64) (*datasets.Partition, *datasets.Partition, error) {
	ds, err := datasets.LoadTaxiFareDataset(path, splitPercent, seed)
	if err != nil {
		return nil, nil, err
	}
	train, err := ds.Partition(datasets.Train)
	if err != nil {
		return nil, nil, err
	}
	test, err := ds.Partition(datasets.Test)
	if err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

func runTrain(ctx context.Context, cfg *config.Config, reg *prometheus.Registry, log logger.Logger) (*training.Result, error) {
	tc, err := training.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Data.Seed == nil {
		log.Warnf("data.seed is unset, the train/test split cannot be rebuilt by evaluate")
	}
	train, test, err := loadPartitions(cfg.Data.PreparedPath, cfg.Data.SplitPercent, cfg.Data.Seed)
	if err != nil {
		return nil, err
	}
	log.Infof("loaded %s: %d train / %d test records", cfg.Data.PreparedPath, train.Len(), test.Len())

	store, err := artifact.NewDirStore(cfg.Artifacts.Dir)
	if err != nil {
		return nil, err
	}

	sinks := []metrics.Sink{metrics.LogSink{Log: log}}
	if cfg.Metrics.PrometheusEnabled {
		ps, err := metrics.NewPromSink(reg)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, ps)
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.StartPromServer(srvCtx, cfg.Metrics.PrometheusAddr, reg, log); err != nil {
				log.Errorf("prom server: %v", err)
			}
		}()
	}
	var sink metrics.Sink = sinks[0]
	if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	trainer, err := training.NewTrainer(tc, store, nn.CPU(), sink, log)
	if err != nil {
		return nil, err
	}
	return trainer.Run(ctx, train, test)
}

// Package training runs the fare model's epoch loop and persists its
// artifacts.
package training

import (
	"fmt"

	"github.com/Noofbiz/taxiFare/config"
	"github.com/Noofbiz/taxiFare/features"
	"github.com/Noofbiz/taxiFare/model"
	"github.com/Noofbiz/taxiFare/nn"
)

// TrainingConfig is persisted as config.json before the first epoch and is
// never changed afterwards.
type TrainingConfig struct {
	RunID           string             `json:"run_id"`
	Epochs          int                `json:"epochs"`
	Workers         int                `json:"workers"`
	Seed            int64              `json:"seed"`
	BatchSize       int                `json:"batch_size"`
	LearningRate    float64            `json:"learning_rate"`
	Prefetch        int                `json:"prefetch"`
	CheckpointEvery int                `json:"checkpoint_every"`
	Model           model.ModelConfig  `json:"model"`
	Optimizer       nn.OptimizerConfig `json:"optimizer"`
	Data            DataInfo           `json:"data"`
}

// DataInfo records where the training data came from.
type DataInfo struct {
	Path         string `json:"path"`
	SplitPercent int    `json:"split_percent"`
	Seed         *int64 `json:"seed,omitempty"`
	TrainRecords int    `json:"train_records"`
	TestRecords  int    `json:"test_records"`
}

// DefaultTrainingConfig is one epoch, one worker, seed 42, batch 256,
// learning rate 1e-4 with Adam over the default architecture.
func DefaultTrainingConfig() TrainingConfig {
	opt := nn.OptimizerConfig{}
	opt.SetDefaults()
	return TrainingConfig{
		Epochs:          1,
		Workers:         1,
		Seed:            42,
		BatchSize:       256,
		LearningRate:    1e-4,
		Prefetch:        2,
		CheckpointEvery: 1,
		Model:           model.DefaultModelConfig(),
		Optimizer:       opt,
	}
}

// FromConfig builds a TrainingConfig from a loaded run configuration.
func FromConfig(cfg *config.Config) (TrainingConfig, error) {
	dropout := 0.4
	if cfg.Model.Dropout != nil {
		dropout = *cfg.Model.Dropout
	}
	mc, err := model.NewModelConfig(model.DefaultEmbeddingSpecs(), features.NumContinuous, cfg.Model.Hidden, dropout)
	if err != nil {
		return TrainingConfig{}, err
	}
	every := 1
	if cfg.Training.CheckpointEvery != nil {
		every = *cfg.Training.CheckpointEvery
	}
	tc := TrainingConfig{
		Epochs:          cfg.Training.Epochs,
		Workers:         cfg.Training.Workers,
		Seed:            cfg.Training.Seed,
		BatchSize:       cfg.Training.BatchSize,
		LearningRate:    cfg.Training.LearningRate,
		Prefetch:        cfg.Training.Prefetch,
		CheckpointEvery: every,
		Model:           mc,
		Optimizer:       cfg.Optimizer,
		Data: DataInfo{
			Path:         cfg.Data.PreparedPath,
			SplitPercent: cfg.Data.SplitPercent,
			Seed:         cfg.Data.Seed,
		},
	}
	return tc, tc.Validate()
}

func (c TrainingConfig) Validate() error {
	switch {
	case c.Epochs < 1:
		return fmt.Errorf("%w: epochs must be >= 1, got %d", model.ErrConfig, c.Epochs)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch size must be >= 1, got %d", model.ErrConfig, c.BatchSize)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate must be positive", model.ErrConfig)
	case c.CheckpointEvery < 0:
		return fmt.Errorf("%w: checkpoint interval must not be negative", model.ErrConfig)
	}
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := c.Optimizer.Validate(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrConfig, err)
	}
	return nil
}

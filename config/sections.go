package config

import "fmt"

// DataConfig locates the input files and controls the train/test split.
type DataConfig struct {
	RawPath      string `json:"raw_path"`
	PreparedPath string `json:"prepared_path"`
	SplitPercent int    `json:"split_percent"`
	// Seed fixes the shuffle. Leave it unset for a non-reproducible order.
	Seed *int64 `json:"seed"`
}

func (c *DataConfig) SetDefaults() {
	if c.RawPath == "" {
		c.RawPath = "NYCTaxiFares.csv"
	}
	if c.PreparedPath == "" {
		c.PreparedPath = "TaxiFaresPrepared.csv"
	}
	if c.SplitPercent == 0 {
		c.SplitPercent = 75
	}
}

func (c DataConfig) Validate() error {
	if c.SplitPercent <= 0 || c.SplitPercent >= 100 {
		return fmt.Errorf("%w: split_percent %d outside (0,100)", ErrConfig, c.SplitPercent)
	}
	return nil
}

// TrainingConfig holds the loop settings.
type TrainingConfig struct {
	Epochs       int     `json:"epochs"`
	Workers      int     `json:"workers"`
	Seed         int64   `json:"seed"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	Prefetch     int     `json:"prefetch"`
	// CheckpointEvery writes a checkpoint every n epochs; 0 disables them.
	CheckpointEvery *int `json:"checkpoint_every"`
}

func (c *TrainingConfig) SetDefaults() {
	if c.Epochs == 0 {
		c.Epochs = 1
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.BatchSize == 0 {
		c.BatchSize = 256
	}
	if c.LearningRate == 0 {
		c.LearningRate = 1e-4
	}
	if c.Prefetch == 0 {
		c.Prefetch = 2
	}
	if c.CheckpointEvery == nil {
		every := 1
		c.CheckpointEvery = &every
	}
}

func (c TrainingConfig) Validate() error {
	switch {
	case c.Epochs < 1:
		return fmt.Errorf("%w: epochs must be >= 1", ErrConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be >= 1", ErrConfig)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch_size must be >= 1", ErrConfig)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning_rate must be positive", ErrConfig)
	case c.Prefetch < 1:
		return fmt.Errorf("%w: prefetch must be >= 1", ErrConfig)
	case c.CheckpointEvery != nil && *c.CheckpointEvery < 0:
		return fmt.Errorf("%w: checkpoint_every must not be negative", ErrConfig)
	}
	return nil
}

// ModelConfig sizes the hidden layers. Embedding widths are derived from the
// categorical cardinalities and are not configurable.
type ModelConfig struct {
	Hidden  []int    `json:"hidden"`
	Dropout *float64 `json:"dropout"`
}

func (c *ModelConfig) SetDefaults() {
	if len(c.Hidden) == 0 {
		c.Hidden = []int{100, 50}
	}
	if c.Dropout == nil {
		d := 0.4
		c.Dropout = &d
	}
}

func (c ModelConfig) Validate() error {
	for i, h := range c.Hidden {
		if h < 1 {
			return fmt.Errorf("%w: hidden[%d] must be >= 1, got %d", ErrConfig, i, h)
		}
	}
	if c.Dropout != nil && (*c.Dropout < 0 || *c.Dropout >= 1) {
		return fmt.Errorf("%w: dropout %v outside [0,1)", ErrConfig, *c.Dropout)
	}
	return nil
}

// ArtifactsConfig points at the run output directory.
type ArtifactsConfig struct {
	Dir string `json:"dir"`
}

func (c *ArtifactsConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "artifacts"
	}
}

func (c ArtifactsConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("%w: dir is required", ErrConfig)
	}
	return nil
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":9101"
	}
}

// Package model holds the fare regression network: per-field categorical
// embeddings, a stack of linear blocks and a single-unit output head.
package model

import (
	"errors"
	"fmt"

	"github.com/Noofbiz/taxiFare/features"
)

var (
	// ErrConfig is returned when a model or layer configuration is incomplete
	// or inconsistent.
	ErrConfig = errors.New("invalid model config")
	// ErrIndexOutOfRange is returned when a categorical index is outside its
	// embedding table.
	ErrIndexOutOfRange = errors.New("categorical index out of range")
)

// MaxEmbeddingDim caps the width of any single embedding table.
const MaxEmbeddingDim = 50

// EmbeddingSpec describes one categorical field.
type EmbeddingSpec struct {
	Cardinality int `json:"cardinality"`
	Dim         int `json:"dim"`
}

// EmbeddingDimFor returns min(cardinality/2, 50), with a floor of 1 so a
// single-valued field still gets a usable table.
func EmbeddingDimFor(cardinality int) int {
	d := cardinality / 2
	if d > MaxEmbeddingDim {
		d = MaxEmbeddingDim
	}
	if d < 1 {
		d = 1
	}
	return d
}

// NewEmbeddingSpec derives the spec for a field with the given cardinality.
func NewEmbeddingSpec(cardinality int) (EmbeddingSpec, error) {
	if cardinality < 1 {
		return EmbeddingSpec{}, fmt.Errorf("%w: cardinality must be at least 1, got %d", ErrConfig, cardinality)
	}
	return EmbeddingSpec{Cardinality: cardinality, Dim: EmbeddingDimFor(cardinality)}, nil
}

// LinearConfig is the affine part of a block.
type LinearConfig struct {
	In  int `json:"in"`
	Out int `json:"out"`
}

// NormConfig is the batch-norm part of a block.
type NormConfig struct {
	Features int `json:"features"`
}

// LinearBlockConfig needs both parts; a block missing either is rejected.
type LinearBlockConfig struct {
	Linear  *LinearConfig `json:"linear"`
	Norm    *NormConfig   `json:"norm"`
	Dropout float64       `json:"dropout"`
}

func (c LinearBlockConfig) Validate() error {
	if c.Linear == nil || c.Norm == nil {
		return fmt.Errorf("%w: linear block needs both a linear and a norm config", ErrConfig)
	}
	if c.Linear.In < 1 || c.Linear.Out < 1 {
		return fmt.Errorf("%w: linear block sizes must be positive, got %dx%d", ErrConfig, c.Linear.In, c.Linear.Out)
	}
	if c.Norm.Features != c.Linear.Out {
		return fmt.Errorf("%w: norm width %d does not match linear output %d", ErrConfig, c.Norm.Features, c.Linear.Out)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: dropout %v outside [0,1)", ErrConfig, c.Dropout)
	}
	return nil
}

// ModelConfig is the validated description of a RegressionModel. Build it
// with NewModelConfig; the zero value is not usable.
type ModelConfig struct {
	Embeddings    []EmbeddingSpec     `json:"embeddings"`
	NumContinuous int                 `json:"num_continuous"`
	Blocks        []LinearBlockConfig `json:"blocks"`
	Dropout       float64             `json:"dropout"`
}

// NewModelConfig derives the block sizes from the input width
// (numContinuous plus every embedding dim) through hidden.
func NewModelConfig(specs []EmbeddingSpec, numContinuous int, hidden []int, dropout float64) (ModelConfig, error) {
	cfg := ModelConfig{
		Embeddings:    append([]EmbeddingSpec(nil), specs...),
		NumContinuous: numContinuous,
		Dropout:       dropout,
	}
	in := cfg.InputWidth()
	for _, h := range hidden {
		cfg.Blocks = append(cfg.Blocks, LinearBlockConfig{
			Linear:  &LinearConfig{In: in, Out: h},
			Norm:    &NormConfig{Features: h},
			Dropout: dropout,
		})
		in = h
	}
	if err := cfg.Validate(); err != nil {
		return ModelConfig{}, err
	}
	return cfg, nil
}

// DefaultModelConfig is the taxi fare architecture: weekday, hour and am/pm
// embeddings, six continuous fields, hidden layers of 100 and 50, dropout 0.4.
func DefaultModelConfig() ModelConfig {
	cfg, err := NewModelConfig(DefaultEmbeddingSpecs(), features.NumContinuous, []int{100, 50}, 0.4)
	if err != nil {
		panic(err)
	}
	return cfg
}

// DefaultEmbeddingSpecs returns the specs for weekday, hour and am/pm.
func DefaultEmbeddingSpecs() []EmbeddingSpec {
	cards := []int{features.WeekdayCardinality, features.HourCardinality, features.AmOrPmCardinality}
	specs := make([]EmbeddingSpec, len(cards))
	for i, c := range cards {
		specs[i] = EmbeddingSpec{Cardinality: c, Dim: EmbeddingDimFor(c)}
	}
	return specs
}

// EmbeddingWidth is the sum of every embedding dim.
func (c ModelConfig) EmbeddingWidth() int {
	w := 0
	for _, s := range c.Embeddings {
		w += s.Dim
	}
	return w
}

// InputWidth is the width of the vector entering the first block.
func (c ModelConfig) InputWidth() int { return c.NumContinuous + c.EmbeddingWidth() }

// OutputWidth is the width entering the output head.
func (c ModelConfig) OutputWidth() int {
	if len(c.Blocks) == 0 {
		return c.InputWidth()
	}
	return c.Blocks[len(c.Blocks)-1].Linear.Out
}

func (c ModelConfig) Validate() error {
	if c.NumContinuous < 1 {
		return fmt.Errorf("%w: need at least one continuous field", ErrConfig)
	}
	for i, s := range c.Embeddings {
		if s.Cardinality < 1 || s.Dim < 1 {
			return fmt.Errorf("%w: embedding %d has cardinality %d dim %d", ErrConfig, i, s.Cardinality, s.Dim)
		}
		if want := EmbeddingDimFor(s.Cardinality); s.Dim != want {
			return fmt.Errorf("%w: embedding %d has dim %d, cardinality %d needs %d", ErrConfig, i, s.Dim, s.Cardinality, want)
		}
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: dropout %v outside [0,1)", ErrConfig, c.Dropout)
	}
	in := c.InputWidth()
	for i, b := range c.Blocks {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		if b.Linear.In != in {
			return fmt.Errorf("%w: block %d expects %d inputs, previous layer gives %d", ErrConfig, i, b.Linear.In, in)
		}
		in = b.Linear.Out
	}
	return nil
}

package nn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/regularizers"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
)

// ErrOptimizer is returned for an unusable optimizer configuration.
var ErrOptimizer = errors.New("invalid optimizer config")

// OptimizerConfig selects and parameterizes the update rule.
//
// WeightDecay is decoupled (AdamW) for adam and an L2 penalty on dense
// kernels for sgd. ClipStep bounds every element of an update; 0 disables.
type OptimizerConfig struct {
	Name        string  `json:"name"`
	Beta1       float64 `json:"beta1"`
	Beta2       float64 `json:"beta2"`
	Epsilon     float64 `json:"epsilon"`
	WeightDecay float64 `json:"weight_decay"`
	ClipStep    float64 `json:"clip_step"`
}

// SetDefaults fills unset fields with the Adam defaults.
func (c *OptimizerConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "adam"
	}
	c.Name = strings.ToLower(c.Name)
	if c.Beta1 == 0 {
		c.Beta1 = 0.9
	}
	if c.Beta2 == 0 {
		c.Beta2 = 0.999
	}
	if c.Epsilon == 0 {
		c.Epsilon = 1e-5
	}
}

func (c OptimizerConfig) Validate() error {
	switch c.Name {
	case "adam", "sgd":
	default:
		return fmt.Errorf("%w: unknown optimizer %q", ErrOptimizer, c.Name)
	}
	if c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1 {
		return fmt.Errorf("%w: betas must be in [0,1), got %v/%v", ErrOptimizer, c.Beta1, c.Beta2)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("%w: epsilon must be positive", ErrOptimizer)
	}
	if c.WeightDecay < 0 || c.ClipStep < 0 {
		return fmt.Errorf("%w: weight_decay and clip_step must not be negative", ErrOptimizer)
	}
	return nil
}

// Build returns the optimizer described by c with learning rate lr. The
// clipping and sgd weight decay settings are written into ctx as
// hyperparameters, so ctx must be the context the optimizer will train.
func (c OptimizerConfig) Build(ctx *context.Context, lr float64) (optimizers.Interface, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if lr <= 0 {
		return nil, fmt.Errorf("%w: learning rate must be positive, got %v", ErrOptimizer, lr)
	}
	if c.ClipStep > 0 {
		ctx.SetParam(optimizers.ParamClipStepByValue, c.ClipStep)
	}
	if c.Name == "sgd" {
		if c.WeightDecay > 0 {
			ctx.SetParam(regularizers.ParamL2, c.WeightDecay)
		}
		return optimizers.StochasticGradientDescent().
			WithLearningRate(lr).
			WithDecay(false).
			Done(), nil
	}
	return optimizers.Adam().
		LearningRate(lr).
		Betas(c.Beta1, c.Beta2).
		Epsilon(c.Epsilon).
		WeightDecay(c.WeightDecay).
		Done(), nil
}

package model

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
	"github.com/gomlx/gopjrt/dtypes"
)

// Batch norm settings shared by the continuous input and every block. The
// momentum weighs the running average, so 0.9 keeps 10% of each batch.
const (
	normMomentum = 0.9
	normEpsilon  = 1e-5
)

// normalize applies batch normalization over every axis but featureAxis.
// The composite graph is used instead of the fused backend op, which the
// pure Go backend lacks.
func normalize(ctx *context.Context, x *graph.Node, featureAxis int) *graph.Node {
	return batchnorm.New(ctx, x, featureAxis).
		Momentum(normMomentum).
		Epsilon(normEpsilon).
		UseBackendInference(false).
		Done()
}

// EmbeddingLayer looks up each (N,1) index column in its own table,
// concatenates the vectors along the feature axis and applies dropout.
// Tables live under ctx in scopes embedding_0, embedding_1, ...
func EmbeddingLayer(ctx *context.Context, specs []EmbeddingSpec, dropout float64, categorical []*graph.Node) *graph.Node {
	if len(categorical) != len(specs) {
		panic(fmt.Errorf("%w: got %d categorical inputs, model has %d embeddings", ErrConfig, len(categorical), len(specs)))
	}
	vectors := make([]*graph.Node, len(specs))
	for f, s := range specs {
		vectors[f] = layers.Embedding(ctx.In(fmt.Sprintf("embedding_%d", f)), categorical[f], dtypes.Float32, s.Cardinality, s.Dim)
	}
	x := graph.Concatenate(vectors, -1)
	return layers.DropoutStatic(ctx, x, dropout)
}

// LinearBlock is dense -> relu -> batch norm -> dropout on an (N, In)
// input, giving (N, Out).
func LinearBlock(ctx *context.Context, cfg LinearBlockConfig, x *graph.Node) *graph.Node {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	if got := x.Shape().Dimensions[x.Rank()-1]; got != cfg.Linear.In {
		panic(fmt.Errorf("%w: linear block expects %d inputs, got %d", ErrConfig, cfg.Linear.In, got))
	}
	x = layers.DenseWithBias(ctx, x, cfg.Linear.Out)
	x = activations.Relu(x)
	x = normalize(ctx, x, -1)
	return layers.DropoutStatic(ctx, x, cfg.Dropout)
}

package model

import (
	"fmt"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"

	"github.com/Noofbiz/taxiFare/datasets"
	"github.com/Noofbiz/taxiFare/features"
	"github.com/Noofbiz/taxiFare/nn"
)

// RegressionModel predicts a fare from normalized continuous inputs and
// categorical embeddings.
//
// Every weight and running statistic is a variable in Ctx. Forward only
// builds the graph; the mode passed to it decides whether dropout fires and
// which batch-norm statistics are used, so the same model can be compiled
// for training and evaluation side by side.
type RegressionModel struct {
	Config ModelConfig
	Ctx    *context.Context

	device *nn.Device

	mu    sync.Mutex
	execs map[nn.Mode]*context.Exec
}

// New validates cfg and returns a model with an empty context seeded from
// seed. Variables are created the first time a graph is built.
func New(cfg ModelConfig, dev *nn.Device, seed int64) (*RegressionModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if dev == nil {
		dev = nn.CPU()
	}
	return &RegressionModel{
		Config: cfg,
		Ctx:    nn.NewContext(seed),
		device: dev,
		execs:  make(map[nn.Mode]*context.Exec),
	}, nil
}

func (m *RegressionModel) Device() *nn.Device { return m.device }

// Forward builds the prediction graph. inputs holds one (N,1) int32 index
// column per embedding followed by the (N, NumContinuous, 1) continuous
// tensor; the result is (N,1).
func (m *RegressionModel) Forward(ctx *context.Context, inputs []*graph.Node, mode nn.Mode) *graph.Node {
	nCat := len(m.Config.Embeddings)
	if len(inputs) != nCat+1 {
		panic(fmt.Errorf("%w: model takes %d inputs, got %d", datasets.ErrShape, nCat+1, len(inputs)))
	}
	cont := inputs[nCat]
	g := cont.Graph()
	ctx.SetTraining(g, mode == nn.Train)

	dims := cont.Shape().Dimensions
	if len(dims) != 3 || dims[1] != m.Config.NumContinuous || dims[2] != 1 {
		panic(fmt.Errorf("%w: continuous input is %v, want (N,%d,1)", datasets.ErrShape, dims, m.Config.NumContinuous))
	}
	x := normalize(ctx.In("continuous"), cont, 1)
	x = graph.Reshape(x, dims[0], m.Config.NumContinuous)
	if nCat > 0 {
		emb := EmbeddingLayer(ctx.In("embeddings"), m.Config.Embeddings, m.Config.Dropout, inputs[:nCat])
		x = graph.Concatenate([]*graph.Node{x, emb}, -1)
	}
	for i, b := range m.Config.Blocks {
		x = LinearBlock(ctx.In(fmt.Sprintf("block_%d", i)), b, x)
	}
	return layers.DenseWithBias(ctx.In("output"), x, 1)
}

// ModelFn is Forward in the shape train.Trainer expects. The dataset spec
// carries the mode; anything else falls back to the trainer's flag.
func (m *RegressionModel) ModelFn(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
	mode, ok := spec.(nn.Mode)
	if !ok {
		mode = nn.Eval
		if ctx.IsTraining(inputs[0].Graph()) {
			mode = nn.Train
		}
	}
	return []*graph.Node{m.Forward(ctx, inputs, mode)}
}

// CheckBatch rejects batches the graph cannot take: a categorical index
// outside its table or a field count that does not match the config.
func (m *RegressionModel) CheckBatch(b *datasets.Batch) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if m.Config.NumContinuous != features.NumContinuous {
		return fmt.Errorf("%w: model expects %d continuous fields, batches carry %d", datasets.ErrShape, m.Config.NumContinuous, features.NumContinuous)
	}
	if len(m.Config.Embeddings) != features.NumCategorical {
		return fmt.Errorf("%w: model has %d embeddings, batches carry %d categorical fields", datasets.ErrShape, len(m.Config.Embeddings), features.NumCategorical)
	}
	for f, s := range m.Config.Embeddings {
		for i, v := range b.Categorical[f] {
			if v < 0 || int(v) >= s.Cardinality {
				return fmt.Errorf("%w: %s index %d at row %d, table has %d rows",
					ErrIndexOutOfRange, features.CategoricalNames[f], v, i, s.Cardinality)
			}
		}
	}
	return nil
}

// Inputs checks b and converts it to the model's input and label tensors.
func (m *RegressionModel) Inputs(b *datasets.Batch) ([]*tensors.Tensor, *tensors.Tensor, error) {
	if err := m.CheckBatch(b); err != nil {
		return nil, nil, err
	}
	bt, err := b.ToGomlxTensors()
	if err != nil {
		return nil, nil, err
	}
	return bt.Inputs(), bt.Labels, nil
}

// RegressionOutput is the result of ForwardRegression.
type RegressionOutput struct {
	Loss        float64
	Predictions []float64
	Labels      []float64
}

func (m *RegressionModel) exec(mode nn.Mode) (*context.Exec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.execs[mode]; ok {
		return e, nil
	}
	e, err := context.NewExec(m.device.Backend(), m.Ctx.Checked(false),
		func(ctx *context.Context, inputs []*graph.Node) (*graph.Node, *graph.Node) {
			x, labels := inputs[:len(inputs)-1], inputs[len(inputs)-1]
			pred := m.Forward(ctx, x, mode)
			loss := losses.MeanSquaredError([]*graph.Node{labels}, []*graph.Node{pred})
			return pred, loss
		})
	if err != nil {
		return nil, err
	}
	m.execs[mode] = e
	return e, nil
}

// ForwardRegression runs Forward on a collated batch and scores it with mean
// squared error. Outside the trainer a Train forward still folds the batch
// statistics into the running averages and advances the dropout state.
func (m *RegressionModel) ForwardRegression(b *datasets.Batch, mode nn.Mode) (*RegressionOutput, error) {
	inputs, labels, err := m.Inputs(b)
	if err != nil {
		return nil, err
	}
	e, err := m.exec(mode)
	if err != nil {
		return nil, err
	}
	args := make([]any, 0, len(inputs)+1)
	for _, t := range inputs {
		args = append(args, t)
	}
	args = append(args, labels)
	out, err := e.Exec(args...)
	if err != nil {
		return nil, fmt.Errorf("forward %s: %w", mode, err)
	}
	res := &RegressionOutput{
		Loss:        float64(tensors.ToScalar[float32](out[1])),
		Predictions: toFloat64(tensors.CopyFlatData[float32](out[0])),
		Labels:      toFloat64(b.Labels),
	}
	for _, t := range out {
		t.FinalizeAll()
	}
	return res, nil
}

// Predict runs an Eval forward over a batch and returns one fare per sample.
func (m *RegressionModel) Predict(b *datasets.Batch) ([]float64, error) {
	out, err := m.ForwardRegression(b, nn.Eval)
	if err != nil {
		return nil, err
	}
	return out.Predictions, nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

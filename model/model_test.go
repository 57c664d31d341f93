package model

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"

	"github.com/Noofbiz/taxiFare/datasets"
	"github.com/Noofbiz/taxiFare/features"
	"github.com/Noofbiz/taxiFare/nn"
)

// syntheticBatch builds n records whose fare is a simple function of the
// distance and hour so a small model can fit it.
func syntheticBatch(t *testing.T, n int, seed int64) *datasets.Batch {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	recs := make([]features.EngineeredRecord, n)
	for i := range recs {
		dist := rng.Float64() * 5
		hour := rng.Intn(24)
		recs[i] = features.EngineeredRecord{
			FareAmount:       0.5*dist - 1 + 0.02*float64(hour),
			PickupLatitude:   40.7 + rng.Float64()*0.1,
			PickupLongitude:  -74 + rng.Float64()*0.1,
			DropoffLatitude:  40.7 + rng.Float64()*0.1,
			DropoffLongitude: -74 + rng.Float64()*0.1,
			PassengerCount:   float64(1 + rng.Intn(4)),
			Distance:         dist,
			PickupHour:       hour,
			PickupWeekday:    rng.Intn(7),
			AmOrPm:           rng.Intn(2),
		}
	}
	b, err := datasets.Collate(recs)
	if err != nil {
		t.Fatalf("Collate: %v", err)
	}
	return b
}

func smallModel(t *testing.T, dropout float64, seed int64) *RegressionModel {
	t.Helper()
	cfg, err := NewModelConfig(DefaultEmbeddingSpecs(), features.NumContinuous, []int{16, 8}, dropout)
	if err != nil {
		t.Fatalf("NewModelConfig: %v", err)
	}
	m, err := New(cfg, nn.CPU(), seed)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestEmbeddingDimFor(t *testing.T) {
	cases := map[int]int{7: 3, 24: 12, 2: 1, 150: 50, 100: 50, 1: 1}
	for c, want := range cases {
		if got := EmbeddingDimFor(c); got != want {
			t.Fatalf("EmbeddingDimFor(%d) = %d, want %d", c, got, want)
		}
	}
	if _, err := NewEmbeddingSpec(0); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for cardinality 0, got %v", err)
	}
}

func TestDefaultModelConfig(t *testing.T) {
	cfg := DefaultModelConfig()
	if cfg.InputWidth() != 6+3+12+1 {
		t.Fatalf("unexpected input width %d", cfg.InputWidth())
	}
	if len(cfg.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(cfg.Blocks))
	}
	if b := cfg.Blocks[0]; b.Linear.In != 22 || b.Linear.Out != 100 || b.Norm.Features != 100 {
		t.Fatalf("unexpected first block %+v %+v", *b.Linear, *b.Norm)
	}
	if b := cfg.Blocks[1]; b.Linear.In != 100 || b.Linear.Out != 50 {
		t.Fatalf("unexpected second block %+v", *b.Linear)
	}
	if cfg.OutputWidth() != 50 || cfg.Dropout != 0.4 {
		t.Fatalf("unexpected output width %d dropout %v", cfg.OutputWidth(), cfg.Dropout)
	}
}

func TestIncompleteBlockConfigIsRejected(t *testing.T) {
	bad := []LinearBlockConfig{
		{Linear: &LinearConfig{In: 4, Out: 3}},
		{Norm: &NormConfig{Features: 3}},
		{Linear: &LinearConfig{In: 4, Out: 3}, Norm: &NormConfig{Features: 2}},
		{Linear: &LinearConfig{In: 4, Out: 3}, Norm: &NormConfig{Features: 3}, Dropout: 1},
	}
	for i, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrConfig) {
			t.Fatalf("case %d: expected ErrConfig, got %v", i, err)
		}
	}

	cfg := DefaultModelConfig()
	cfg.Blocks[1].Linear.In = 7
	if _, err := New(cfg, nil, 1); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for mismatched chain, got %v", err)
	}
	if _, err := New(ModelConfig{}, nil, 1); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for zero config, got %v", err)
	}
}

func TestEmbeddingDimMustFollowCardinality(t *testing.T) {
	specs := DefaultEmbeddingSpecs()
	specs[0] = EmbeddingSpec{Cardinality: 7, Dim: 40}
	cfg := DefaultModelConfig()
	cfg.Embeddings = specs
	cfg.Blocks[0].Linear.In = cfg.InputWidth()
	if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for dim 40 on cardinality 7, got %v", err)
	}
	if _, err := New(cfg, nil, 1); !errors.Is(err, ErrConfig) {
		t.Fatalf("New accepted dim 40 on cardinality 7: %v", err)
	}

	specs[0] = EmbeddingSpec{Cardinality: 7, Dim: 3}
	cfg.Blocks[0].Linear.In = cfg.InputWidth()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("derived dim rejected: %v", err)
	}
}

func TestForwardShapeIndependentOfBatchSize(t *testing.T) {
	m, err := New(DefaultModelConfig(), nn.CPU(), 42)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, n := range []int{1, 5, 33} {
		for _, mode := range []nn.Mode{nn.Eval, nn.Train} {
			out, err := m.ForwardRegression(syntheticBatch(t, n, int64(n)), mode)
			if err != nil {
				t.Fatalf("n=%d mode=%s: %v", n, mode, err)
			}
			if len(out.Predictions) != n || len(out.Labels) != n {
				t.Fatalf("n=%d mode=%s: %d predictions, %d labels", n, mode, len(out.Predictions), len(out.Labels))
			}
		}
	}
}

func TestEvalForwardIsDeterministic(t *testing.T) {
	m, err := New(DefaultModelConfig(), nn.CPU(), 42)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b := syntheticBatch(t, 16, 1)
	a, err := m.ForwardRegression(b, nn.Eval)
	if err != nil {
		t.Fatal(err)
	}
	c, err := m.ForwardRegression(b, nn.Eval)
	if err != nil {
		t.Fatal(err)
	}
	if a.Loss != c.Loss {
		t.Fatalf("eval loss changed between calls: %v vs %v", a.Loss, c.Loss)
	}
}

func TestTrainForwardMovesRunningStats(t *testing.T) {
	m := smallModel(t, 0, 1)
	b := syntheticBatch(t, 8, 2)
	before, err := m.Predict(b)
	if err != nil {
		t.Fatal(err)
	}
	again, err := m.Predict(b)
	if err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if before[i] != again[i] {
			t.Fatalf("eval forward changed the model at %d", i)
		}
	}
	if _, err := m.ForwardRegression(b, nn.Train); err != nil {
		t.Fatal(err)
	}
	after, err := m.Predict(b)
	if err != nil {
		t.Fatal(err)
	}
	changed := false
	for i := range before {
		changed = changed || before[i] != after[i]
	}
	if !changed {
		t.Fatalf("train forward did not update the batch-norm averages")
	}
}

func TestOutOfRangeCategoryFails(t *testing.T) {
	m := smallModel(t, 0, 1)
	b := syntheticBatch(t, 4, 1)
	b.Categorical[1][2] = features.HourCardinality
	if _, err := m.ForwardRegression(b, nn.Eval); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	b.Categorical[1][2] = -1
	if _, _, err := m.Inputs(b); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange for negative index, got %v", err)
	}
}

func TestTrainingReducesLoss(t *testing.T) {
	m := smallModel(t, 0, 11)
	opt := optimizers.Adam().LearningRate(0.01).Done()
	// the eval forward below builds the variables first
	gt := train.NewTrainer(m.Device().Backend(), m.Ctx.Checked(false), m.ModelFn, losses.MeanSquaredError, opt, nil, nil)
	b := syntheticBatch(t, 64, 21)

	evalLoss := func() float64 {
		out, err := m.ForwardRegression(b, nn.Eval)
		if err != nil {
			t.Fatal(err)
		}
		return out.Loss
	}
	inputs, labels, err := m.Inputs(b)
	if err != nil {
		t.Fatal(err)
	}
	first := evalLoss()
	for step := 0; step < 300; step++ {
		gt.TrainStep(nn.Train, inputs, []*tensors.Tensor{labels})
	}
	if last := evalLoss(); last > first/2 {
		t.Fatalf("expected eval loss to at least halve, got %v -> %v", first, last)
	}
}

func TestCheckpointRestoresPredictions(t *testing.T) {
	dir := t.TempDir()
	m := smallModel(t, 0.4, 3)
	b := syntheticBatch(t, 10, 4)
	if _, err := m.ForwardRegression(b, nn.Train); err != nil {
		t.Fatal(err)
	}
	h, err := checkpoints.Build(m.Ctx).Dir(dir).Done()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := h.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := smallModel(t, 0.4, 99)
	if _, err := checkpoints.Load(restored.Ctx).Dir(dir).Done(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want, err := m.Predict(b)
	if err != nil {
		t.Fatal(err)
	}
	got, err := restored.Predict(b)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("prediction %d: %v vs %v", i, want[i], got[i])
		}
	}

	if _, err := checkpoints.Load(smallModel(t, 0.4, 1).Ctx).Dir(t.TempDir()).Done(); err == nil {
		t.Fatalf("expected an error loading from an empty dir")
	}
}

package datasets

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/taxiFare/features"
)

// Batch stores a collated batch in flat contiguous buffers.
//
//   - Continuous: row-major (Size, 6, 1), fields in features.ContinuousNames order.
//   - Categorical: one (Size, 1) index column per field, in
//     features.CategoricalNames order (weekday, hour, am_or_pm).
//   - Labels: (Size, 1) fare amounts.
//
// Row i of every buffer belongs to input record i.
type Batch struct {
	Size        int
	Continuous  []float32
	Categorical [features.NumCategorical][]int32
	Labels      []float32
}

// ContinuousShape is the logical shape of the continuous buffer.
func (b *Batch) ContinuousShape() []int { return []int{b.Size, features.NumContinuous, 1} }

// Validate checks every buffer agrees on the batch size.
func (b *Batch) Validate() error {
	if b.Size < 1 {
		return fmt.Errorf("%w: empty batch", ErrShape)
	}
	if got := len(b.Continuous); got != b.Size*features.NumContinuous {
		return fmt.Errorf("%w: continuous buffer has %d values, want %d", ErrShape, got, b.Size*features.NumContinuous)
	}
	for f, col := range b.Categorical {
		if len(col) != b.Size {
			return fmt.Errorf("%w: categorical field %s has %d rows, want %d", ErrShape, features.CategoricalNames[f], len(col), b.Size)
		}
	}
	if len(b.Labels) != b.Size {
		return fmt.Errorf("%w: labels have %d rows, want %d", ErrShape, len(b.Labels), b.Size)
	}
	return nil
}

// ContinuousRow returns the continuous values of sample i.
func (b *Batch) ContinuousRow(i int) []float32 {
	return b.Continuous[i*features.NumContinuous : (i+1)*features.NumContinuous]
}

// Collate stacks records into a Batch without reordering them.
func Collate(records []features.EngineeredRecord) (*Batch, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: cannot collate zero records", ErrShape)
	}
	n := len(records)
	b := &Batch{
		Size:       n,
		Continuous: make([]float32, n*features.NumContinuous),
		Labels:     make([]float32, n),
	}
	for f := range b.Categorical {
		b.Categorical[f] = make([]int32, n)
	}
	for i, r := range records {
		for j, v := range r.Continuous() {
			b.Continuous[i*features.NumContinuous+j] = float32(v)
		}
		for f, v := range r.Categorical() {
			b.Categorical[f][i] = int32(v)
		}
		b.Labels[i] = float32(r.Label())
	}
	return b, nil
}

// MakeBatch assembles a Batch from per-sample slices, checking that every
// sample has 6 continuous and 3 categorical values and that the three inputs
// agree on the sample count.
func MakeBatch(continuous [][]float32, categorical [][]int32, labels []float32) (*Batch, error) {
	n := len(continuous)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrShape)
	}
	if len(categorical) != n || len(labels) != n {
		return nil, fmt.Errorf("%w: continuous has %d samples, categorical %d, labels %d", ErrShape, n, len(categorical), len(labels))
	}
	b := &Batch{
		Size:       n,
		Continuous: make([]float32, 0, n*features.NumContinuous),
		Labels:     append([]float32(nil), labels...),
	}
	for f := range b.Categorical {
		b.Categorical[f] = make([]int32, n)
	}
	for i := range n {
		if len(continuous[i]) != features.NumContinuous {
			return nil, fmt.Errorf("%w: sample %d has %d continuous values, want %d", ErrShape, i, len(continuous[i]), features.NumContinuous)
		}
		if len(categorical[i]) != features.NumCategorical {
			return nil, fmt.Errorf("%w: sample %d has %d categorical values, want %d", ErrShape, i, len(categorical[i]), features.NumCategorical)
		}
		b.Continuous = append(b.Continuous, continuous[i]...)
		for f, v := range categorical[i] {
			b.Categorical[f][i] = v
		}
	}
	return b, nil
}

// BatchTensors is a Batch converted to gomlx tensors.
type BatchTensors struct {
	Continuous  *tensors.Tensor
	Categorical [features.NumCategorical]*tensors.Tensor
	Labels      *tensors.Tensor
}

// ToGomlxTensors converts the batch to a (Size,6,1) float32 tensor, three
// (Size,1) int32 tensors and a (Size,1) float32 label tensor.
func (b *Batch) ToGomlxTensors() (*BatchTensors, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	cont := make([][][]float32, b.Size)
	labels := make([][]float32, b.Size)
	for i := range b.Size {
		row := b.ContinuousRow(i)
		cont[i] = make([][]float32, features.NumContinuous)
		for j, v := range row {
			cont[i][j] = []float32{v}
		}
		labels[i] = b.Labels[i : i+1]
	}
	out := &BatchTensors{
		Continuous: tensors.FromAnyValue(cont),
		Labels:     tensors.FromAnyValue(labels),
	}
	for f, col := range b.Categorical {
		idx := make([][]int32, b.Size)
		for i := range b.Size {
			idx[i] = col[i : i+1]
		}
		out.Categorical[f] = tensors.FromAnyValue(idx)
	}
	return out, nil
}

// Inputs returns the model inputs in graph order: the categorical columns in
// features.CategoricalNames order followed by the continuous tensor.
func (bt *BatchTensors) Inputs() []*tensors.Tensor {
	out := make([]*tensors.Tensor, 0, features.NumCategorical+1)
	out = append(out, bt.Categorical[:]...)
	return append(out, bt.Continuous)
}

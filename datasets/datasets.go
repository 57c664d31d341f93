package datasets

import (
	"errors"
	"fmt"

	"github.com/Noofbiz/taxiFare/features"
)

// This package turns the prepared taxi fare CSV into model batches.
//
// TaxiFareDataset
//   - Loads every row of TaxiFaresPrepared.csv into memory.
//   - Shuffles once at build time (seeded or not) and splits the shuffled
//     order into a train prefix and a test suffix.
//   - Each partition hands out records by index and collates index lists
//     into Batch values.
//
// Loader walks a partition in order and prefetches upcoming batches on a
// small worker pool.

var (
	// ErrConfig marks an unusable dataset configuration.
	ErrConfig = errors.New("invalid dataset config")
	// ErrUnknownPartition is returned for a partition name other than
	// "train" or "test".
	ErrUnknownPartition = fmt.Errorf("%w: unknown partition", ErrConfig)
	// ErrShape is returned when batch buffers disagree on their sizes.
	ErrShape = errors.New("batch shape mismatch")
)

// Partition names.
const (
	Train = "train"
	Test  = "test"
)

// Valid labels the evaluation pass over the test partition in logs,
// metrics and history.
const Valid = "valid"

// Dataset is what the loader and the trainer need from a partition.
type Dataset interface {
	Name() string
	Len() int
	Example(i int) (features.EngineeredRecord, error)
	Batch(indices []int) (*Batch, error)
}

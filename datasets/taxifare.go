package datasets

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/Noofbiz/taxiFare/features"
)

// TaxiFareDataset holds the prepared records in a fixed shuffled order and
// the index at which that order splits into train and test.
type TaxiFareDataset struct {
	// Path of the prepared CSV, empty when built from memory.
	Path string

	// Seed used for the shuffle; nil when the order is not reproducible.
	Seed *int64

	// SplitPercent of records assigned to the train partition.
	SplitPercent int

	records  []features.EngineeredRecord
	splitIdx int
}

// LoadTaxiFareDataset reads TaxiFaresPrepared.csv and builds the dataset.
func LoadTaxiFareDataset(path string, splitPercent int, seed *int64) (*TaxiFareDataset, error) {
	records, err := features.ReadPrepared(path)
	if err != nil {
		return nil, err
	}
	ds, err := NewTaxiFareDataset(records, splitPercent, seed)
	if err != nil {
		return nil, err
	}
	ds.Path = path
	return ds, nil
}

// NewTaxiFareDataset shuffles a copy of records and splits it at
// floor(len*splitPercent/100). With a nil seed the permutation is drawn from
// the clock and is not reproducible.
func NewTaxiFareDataset(records []features.EngineeredRecord, splitPercent int, seed *int64) (*TaxiFareDataset, error) {
	if splitPercent <= 0 || splitPercent >= 100 {
		return nil, fmt.Errorf("%w: split percent %d outside (0,100)", ErrConfig, splitPercent)
	}
	ds := &TaxiFareDataset{
		SplitPercent: splitPercent,
		records:      append([]features.EngineeredRecord(nil), records...),
	}
	var src rand.Source
	if seed != nil {
		s := *seed
		ds.Seed = &s
		src = rand.NewSource(s)
	} else {
		src = rand.NewSource(time.Now().UnixNano())
	}
	rng := rand.New(src)
	rng.Shuffle(len(ds.records), func(i, j int) {
		ds.records[i], ds.records[j] = ds.records[j], ds.records[i]
	})
	ds.splitIdx = len(ds.records) * splitPercent / 100
	return ds, nil
}

// Len returns the total number of records across both partitions.
func (d *TaxiFareDataset) Len() int { return len(d.records) }

// SplitIndex is the first index of the test partition.
func (d *TaxiFareDataset) SplitIndex() int { return d.splitIdx }

// Partition returns the "train" prefix or the "test" suffix of the shuffled
// records.
func (d *TaxiFareDataset) Partition(name string) (*Partition, error) {
	switch name {
	case Train:
		return &Partition{name: name, records: d.records[:d.splitIdx]}, nil
	case Test:
		return &Partition{name: name, records: d.records[d.splitIdx:]}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownPartition, name)
	}
}

// Partition is a contiguous, read-only view of the shuffled records.
type Partition struct {
	name    string
	records []features.EngineeredRecord
}

func (p *Partition) Name() string { return p.name }

func (p *Partition) Len() int { return len(p.records) }

// Example returns a single record by partition index.
func (p *Partition) Example(i int) (features.EngineeredRecord, error) {
	if i < 0 || i >= len(p.records) {
		return features.EngineeredRecord{}, fmt.Errorf("index %d out of range [0, %d)", i, len(p.records))
	}
	return p.records[i], nil
}

// Batch collates the records at indices, in the order given.
func (p *Partition) Batch(indices []int) (*Batch, error) {
	recs := make([]features.EngineeredRecord, len(indices))
	for i, idx := range indices {
		r, err := p.Example(idx)
		if err != nil {
			return nil, err
		}
		recs[i] = r
	}
	return Collate(recs)
}

// Records returns a copy of the partition's records.
func (p *Partition) Records() []features.EngineeredRecord {
	return append([]features.EngineeredRecord(nil), p.records...)
}

package datasets

import (
	"context"
	"fmt"
	"sync"

	"github.com/Noofbiz/taxiFare/logger"
)

// Loader walks a Dataset in index order, batchSize records at a time; the
// last batch may be short. Batches are collated on Workers goroutines and at
// most Prefetch of them are queued ahead of the consumer. Delivery order is
// always batch order.
type Loader struct {
	DS        Dataset
	BatchSize int
	Workers   int
	Prefetch  int

	log logger.Logger
}

// NewLoader validates batchSize and clamps workers and prefetch to at least 1.
func NewLoader(ds Dataset, batchSize, workers, prefetch int, log logger.Logger) (*Loader, error) {
	if ds == nil {
		return nil, fmt.Errorf("%w: dataset cannot be nil", ErrConfig)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size must be >= 1, got %d", ErrConfig, batchSize)
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Loader{
		DS:        ds,
		BatchSize: batchSize,
		Workers:   max(workers, 1),
		Prefetch:  max(prefetch, 1),
		log:       log,
	}, nil
}

// NumBatches is ceil(Len/BatchSize).
func (l *Loader) NumBatches() int {
	return (l.DS.Len() + l.BatchSize - 1) / l.BatchSize
}

func (l *Loader) indices(step int) []int {
	start := step * l.BatchSize
	end := min(start+l.BatchSize, l.DS.Len())
	idx := make([]int, end-start)
	for i := range idx {
		idx[i] = start + i
	}
	return idx
}

type loaded struct {
	batch *Batch
	err   error
}

type loadJob struct {
	step int
	out  chan loaded
}

// Run calls fn for every batch in order. fn for batch k returns before batch
// k+1 is handed out. The first error from collation or from fn stops the
// walk and is returned.
func (l *Loader) Run(ctx context.Context, fn func(step int, b *Batch) error) error {
	n := l.NumBatches()
	if n == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	jobs := make(chan loadJob)
	queue := make(chan chan loaded, l.Prefetch)

	workers := min(l.Workers, n)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				b, err := l.DS.Batch(l.indices(j.step))
				if err != nil {
					err = fmt.Errorf("%s batch %d: %w", l.DS.Name(), j.step, err)
				}
				j.out <- loaded{batch: b, err: err}
			}
		}()
	}

	go func() {
		defer close(queue)
		defer close(jobs)
		for step := 0; step < n; step++ {
			out := make(chan loaded, 1)
			select {
			case queue <- out:
			case <-ctx.Done():
				return
			}
			select {
			case jobs <- loadJob{step: step, out: out}:
			case <-ctx.Done():
				return
			}
		}
	}()

	step := 0
	for out := range queue {
		var r loaded
		select {
		case r = <-out:
		case <-ctx.Done():
			return ctx.Err()
		}
		if r.err != nil {
			return r.err
		}
		if err := fn(step, r.batch); err != nil {
			return err
		}
		step++
	}
	if step < n {
		return ctx.Err()
	}
	l.log.Debugf("%s: delivered %d batches", l.DS.Name(), step)
	return nil
}

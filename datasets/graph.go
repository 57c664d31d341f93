package datasets

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
)

var _ train.Dataset = (*GraphDataset)(nil)

// GraphDataset exposes a Loader as a train.Dataset. Every Yield hands out
// the next batch of the underlying walk as tensors, io.EOF ends the epoch
// and Reset starts a fresh walk from batch 0.
//
// Spec is passed through to the model function unchanged. Check, when set,
// runs on every batch before conversion and its error is returned by Yield.
type GraphDataset struct {
	Loader *Loader
	Spec   any
	Check  func(*Batch) error

	base context.Context

	mu   sync.Mutex
	next chan loaded
	stop context.CancelFunc
	done chan struct{}
	last int
}

// NewGraphDataset wraps l. The walk runs under ctx; cancelling it makes the
// next Yield fail with the context error.
func NewGraphDataset(ctx context.Context, l *Loader, spec any, check func(*Batch) error) *GraphDataset {
	return &GraphDataset{Loader: l, Spec: spec, Check: check, base: ctx}
}

func (d *GraphDataset) Name() string { return d.Loader.DS.Name() }

// LastSize is the number of records in the batch most recently yielded.
func (d *GraphDataset) LastSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

func (d *GraphDataset) start() {
	ctx, cancel := context.WithCancel(d.base)
	next := make(chan loaded)
	done := make(chan struct{})
	d.next, d.stop, d.done = next, cancel, done
	go func() {
		defer close(done)
		defer close(next)
		err := d.Loader.Run(ctx, func(_ int, b *Batch) error {
			select {
			case next <- loaded{batch: b}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err == nil {
			return
		}
		// a Reset cancels the walk; anything else is for the consumer
		if errors.Is(err, context.Canceled) && d.base.Err() == nil {
			return
		}
		select {
		case next <- loaded{err: err}:
		case <-ctx.Done():
		}
	}()
}

// Yield returns the next batch as (spec, inputs, [labels]).
func (d *GraphDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	d.mu.Lock()
	if d.next == nil {
		d.start()
	}
	next := d.next
	d.mu.Unlock()

	r, ok := <-next
	if !ok {
		if err := d.base.Err(); err != nil {
			return nil, nil, nil, err
		}
		return nil, nil, nil, io.EOF
	}
	if r.err != nil {
		return nil, nil, nil, r.err
	}
	if d.Check != nil {
		if err := d.Check(r.batch); err != nil {
			return nil, nil, nil, err
		}
	}
	bt, err := r.batch.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	d.mu.Lock()
	d.last = r.batch.Size
	d.mu.Unlock()
	return d.Spec, bt.Inputs(), []*tensors.Tensor{bt.Labels}, nil
}

// Reset stops any walk in progress. The next Yield starts over.
func (d *GraphDataset) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop == nil {
		return
	}
	d.stop()
	<-d.done
	d.next, d.stop, d.done = nil, nil, nil
	d.last = 0
}

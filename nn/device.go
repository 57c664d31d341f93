// Package nn is the runtime the fare model is built on: a gomlx backend
// wrapped in a Device, the train/eval Mode handed to every forward pass and
// the optimizer configuration.
//
// Nothing in this package keeps global state. Randomness lives in the
// variable context returned by NewContext and train/eval behaviour comes
// from the Mode argument.
package nn

import (
	"fmt"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/backends/simplego"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Mode selects train or evaluation behaviour for a forward pass.
type Mode int

const (
	// Eval uses running statistics and disables dropout.
	Eval Mode = iota
	// Train uses batch statistics and applies dropout.
	Train
)

func (m Mode) String() string {
	if m == Train {
		return "train"
	}
	return "eval"
}

// Device is the backend graphs are compiled for and executed on.
type Device struct {
	name    string
	backend backends.Backend
}

// NewDevice wraps an existing backend.
func NewDevice(name string, backend backends.Backend) (*Device, error) {
	if backend == nil {
		return nil, fmt.Errorf("device %s: backend cannot be nil", name)
	}
	return &Device{name: name, backend: backend}, nil
}

// CPU returns the pure Go backend. It needs no native libraries.
func CPU() *Device {
	return &Device{name: "cpu", backend: simplego.GetBackend()}
}

func (d *Device) Name() string { return d.name }

func (d *Device) Backend() backends.Backend { return d.backend }

// NewContext returns an empty variable context whose initializers and
// random state derive from seed.
func NewContext(seed int64) *context.Context {
	ctx := context.New()
	Seed(ctx, seed)
	return ctx
}

// Seed resets the random state of ctx. Variables that already exist keep
// their values.
func Seed(ctx *context.Context, seed int64) {
	ctx.SetParam(context.ParamInitialSeed, seed)
	ctx.RngStateFromSeed(seed)
}

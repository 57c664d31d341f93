package training

import (
	"bytes"
	"fmt"
	"image/color"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/taxiFare/datasets"
)

// EpochStats is the outcome of one epoch. Losses are sample-weighted means
// of the per-batch MSE.
type EpochStats struct {
	Epoch        int           `json:"epoch"`
	TrainLoss    float64       `json:"train_loss"`
	ValidLoss    float64       `json:"valid_loss"`
	TrainBatches int           `json:"train_batches"`
	ValidBatches int           `json:"valid_batches"`
	Duration     time.Duration `json:"duration_ns"`
}

// History is the per-epoch record of a run.
type History struct {
	RunID  string       `json:"run_id"`
	Epochs []EpochStats `json:"epochs"`
}

// lossMeter accumulates a sample-weighted mean.
type lossMeter struct {
	sum     float64
	n       int
	batches int
}

func (m *lossMeter) add(loss float64, samples int) {
	m.sum += loss * float64(samples)
	m.n += samples
	m.batches++
}

func (m *lossMeter) mean() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

// PlotLossCurves renders train and valid loss per epoch as a PNG.
func PlotLossCurves(h History) ([]byte, error) {
	p := plot.New()
	p.Title.Text = "Loss per epoch"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "MSE"

	train := make(plotter.XYs, len(h.Epochs))
	valid := make(plotter.XYs, len(h.Epochs))
	for i, e := range h.Epochs {
		train[i] = plotter.XY{X: float64(e.Epoch), Y: e.TrainLoss}
		valid[i] = plotter.XY{X: float64(e.Epoch), Y: e.ValidLoss}
	}

	tl, tp, err := plotter.NewLinePoints(train)
	if err != nil {
		return nil, fmt.Errorf("train curve: %w", err)
	}
	tl.Color = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	tp.GlyphStyle.Color = tl.Color
	tp.GlyphStyle.Radius = vg.Points(2)
	p.Add(tl, tp)
	p.Legend.Add(datasets.Train, tl, tp)

	vl, vp, err := plotter.NewLinePoints(valid)
	if err != nil {
		return nil, fmt.Errorf("valid curve: %w", err)
	}
	vl.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	vp.GlyphStyle.Color = vl.Color
	vp.GlyphStyle.Radius = vg.Points(2)
	p.Add(vl, vp)
	p.Legend.Add(datasets.Valid, vl, vp)
	p.Add(plotter.NewGrid())

	w, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("render loss plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render loss plot: %w", err)
	}
	return buf.Bytes(), nil
}

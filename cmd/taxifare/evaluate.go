package main

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"math"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/taxiFare/artifact"
	"github.com/Noofbiz/taxiFare/baseline"
	"github.com/Noofbiz/taxiFare/config"
	"github.com/Noofbiz/taxiFare/datasets"
	"github.com/Noofbiz/taxiFare/logger"
	"github.com/Noofbiz/taxiFare/nn"
	"github.com/Noofbiz/taxiFare/training"
)

// Artifact names written by evaluate.
const (
	EvaluationArtifact     = "evaluation.json"
	EvaluationPlotArtifact = "evaluation.png"
)

var (
	baselineK   int
	baselineMax int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score a trained model and the KNN baseline on the test partition",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, err = runEvaluate(cmd.Context(), cfg, evalOptions{K: baselineK, BaselineMax: baselineMax}, logger.New("evaluate"))
		return err
	},
}

func init() {
	evaluateCmd.Flags().IntVar(&baselineK, "baseline-k", 8, "number of nearest neighbours used by the baseline")
	evaluateCmd.Flags().IntVar(&baselineMax, "baseline-max", 2000, "score the baseline on at most this many test records (0 = all)")
	rootCmd.AddCommand(evaluateCmd)
}

type evalOptions struct {
	K           int
	BaselineMax int
}

// Score is the error of one predictor on the test partition.
type Score struct {
	Records int     `json:"records"`
	MSE     float64 `json:"mse"`
	RMSE    float64 `json:"rmse"`
}

// Evaluation is persisted as evaluation.json next to the model.
type Evaluation struct {
	RunID    string `json:"run_id"`
	Model    Score  `json:"model"`
	Baseline Score  `json:"baseline"`
}

// score returns the mean squared error of pred against actual.
func score(pred, actual []float64) Score {
	n := min(len(pred), len(actual))
	if n == 0 {
		return Score{}
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := pred[i] - actual[i]
		sum += d * d
	}
	mse := sum / float64(n)
	return Score{Records: n, MSE: mse, RMSE: math.Sqrt(mse)}
}

// limited is a prefix view over a baseline.Dataset.
type limited struct {
	baseline.Dataset
	n int
}

func (l limited) Len() int { return l.n }

func runEvaluate(ctx context.Context, cfg *config.Config, opts evalOptions, log logger.Logger) (*Evaluation, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := artifact.NewDirStore(cfg.Artifacts.Dir)
	if err != nil {
		return nil, err
	}
	tc, err := training.LoadConfig(store)
	if err != nil {
		return nil, err
	}
	if tc.Data.Seed == nil {
		log.Warnf("run %s has no data seed, the test partition differs from the one used in training", tc.RunID)
	}
	m, err := training.LoadModel(store, nn.CPU())
	if err != nil {
		return nil, err
	}
	train, test, err := loadPartitions(tc.Data.Path, tc.Data.SplitPercent, tc.Data.Seed)
	if err != nil {
		return nil, err
	}
	if test.Len() == 0 {
		return nil, fmt.Errorf("%w: test partition is empty", datasets.ErrConfig)
	}
	log.Infof("evaluating run %s on %d test records", tc.RunID, test.Len())

	loader, err := datasets.NewLoader(test, tc.BatchSize, tc.Workers, tc.Prefetch, log)
	if err != nil {
		return nil, err
	}
	preds := make([]float64, 0, test.Len())
	actual := make([]float64, 0, test.Len())
	err = loader.Run(ctx, func(_ int, b *datasets.Batch) error {
		p, err := m.Predict(b)
		if err != nil {
			return err
		}
		preds = append(preds, p...)
		for _, l := range b.Labels {
			actual = append(actual, float64(l))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := &Evaluation{RunID: tc.RunID, Model: score(preds, actual)}
	log.Infof("model: mse=%.4f rmse=%.4f", ev.Model.MSE, ev.Model.RMSE)

	knn, err := baseline.NewKNN(train, opts.K)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	if tc.Workers > 0 {
		knn.Workers = tc.Workers
	}
	var subset baseline.Dataset = test
	if opts.BaselineMax > 0 && opts.BaselineMax < test.Len() {
		subset = limited{Dataset: test, n: opts.BaselineMax}
	}
	basePreds, err := knn.PredictAll(subset)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}
	ev.Baseline = score(basePreds, actual)
	log.Infof("baseline (k=%d): mse=%.4f rmse=%.4f over %d records", opts.K, ev.Baseline.MSE, ev.Baseline.RMSE, ev.Baseline.Records)

	if err := artifact.WriteJSON(store, EvaluationArtifact, ev); err != nil {
		return nil, err
	}
	png, err := plotPredictions(actual, preds, basePreds)
	if err != nil {
		log.Warnf("evaluation plot: %v", err)
	} else if err := store.Write(EvaluationPlotArtifact, png); err != nil {
		return nil, err
	}
	return ev, nil
}

// plotPredictions renders predicted against actual fares for the model
// (blue) and the baseline (red) with the identity line for reference.
func plotPredictions(actual, model, base []float64) ([]byte, error) {
	p := plot.New()
	p.Title.Text = "Predicted vs actual fare: model (blue), baseline (red)"
	p.X.Label.Text = "actual"
	p.Y.Label.Text = "predicted"

	mp, err := plotter.NewScatter(pairs(actual, model))
	if err != nil {
		return nil, err
	}
	mp.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 200}
	mp.GlyphStyle.Radius = vg.Points(1.8)
	p.Add(mp)
	p.Legend.Add("model", mp)

	all := pairs(actual, model)
	if len(base) > 0 {
		bp, err := plotter.NewScatter(pairs(actual, base))
		if err != nil {
			return nil, err
		}
		bp.GlyphStyle.Color = color.RGBA{R: 200, G: 30, B: 30, A: 160}
		bp.GlyphStyle.Radius = vg.Points(1.8)
		p.Add(bp)
		p.Legend.Add("baseline", bp)
		all = append(all, pairs(actual, base)...)
	}

	xmin, xmax, ymin, ymax := autoRange(all)
	lo, hi := math.Min(xmin, ymin), math.Max(xmax, ymax)
	ident, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return nil, err
	}
	ident.Color = color.RGBA{R: 120, G: 120, B: 120, A: 200}
	ident.Width = vg.Points(0.8)
	p.Add(ident, plotter.NewGrid())
	p.X.Min, p.X.Max = xmin, xmax
	p.Y.Min, p.Y.Max = ymin, ymax

	wt, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func pairs(xs, ys []float64) plotter.XYs {
	n := min(len(xs), len(ys))
	out := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		out[i].X = xs[i]
		out[i].Y = ys[i]
	}
	return out
}

// autoRange computes padded min/max for X and Y for a set of points.
func autoRange(xs plotter.XYs) (xmin, xmax, ymin, ymax float64) {
	if len(xs) == 0 {
		return -1, 1, -1, 1
	}
	xmin, xmax = math.Inf(1), math.Inf(-1)
	ymin, ymax = math.Inf(1), math.Inf(-1)
	for _, p := range xs {
		xmin = math.Min(xmin, p.X)
		xmax = math.Max(xmax, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	padx := (xmax - xmin) * 0.06
	pady := (ymax - ymin) * 0.06
	if padx == 0 {
		padx = 1.0
	}
	if pady == 0 {
		pady = 1.0
	}
	return xmin - padx, xmax + padx, ymin - pady, ymax + pady
}

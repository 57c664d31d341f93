package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mlctx "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	mlmetrics "github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/google/uuid"

	"github.com/Noofbiz/taxiFare/artifact"
	"github.com/Noofbiz/taxiFare/datasets"
	"github.com/Noofbiz/taxiFare/logger"
	"github.com/Noofbiz/taxiFare/metrics"
	"github.com/Noofbiz/taxiFare/model"
	"github.com/Noofbiz/taxiFare/nn"
)

// Artifact names inside the run directory.
const (
	ConfigArtifact   = "config.json"
	HistoryArtifact  = "history.json"
	LossPlotArtifact = "loss.png"
	// ModelDir holds the checkpoint of the final model.
	ModelDir = "model"
	// CheckpointDir holds one checkpoint per CheckpointEvery epochs.
	CheckpointDir = "checkpoints"
)

// EpochParam is the context hyperparameter a checkpoint records its epoch in.
const EpochParam = "taxifare_epoch"

// State is a step of the training state machine.
type State int

const (
	StateInit State = iota
	StateTrainEpoch
	StateValidateEpoch
	StateCheckpoint
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateTrainEpoch:
		return "train_epoch"
	case StateValidateEpoch:
		return "validate_epoch"
	case StateCheckpoint:
		return "checkpoint"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Trainer runs Init, then TrainEpoch, ValidateEpoch and Checkpoint once per
// epoch, then Done. Cancelling the context stops the run before the next
// epoch starts; an epoch in progress always finishes.
type Trainer struct {
	Config TrainingConfig
	Store  artifact.Store
	Device *nn.Device
	Sink   metrics.Sink

	// OnState, when set, is called on every state transition.
	OnState func(s State, epoch int)

	log logger.Logger
}

// Result is what a finished run hands back.
type Result struct {
	RunID   string
	Model   *model.RegressionModel
	History History
}

// NewTrainer validates cfg. A nil device means the CPU backend; a nil sink
// or logger is replaced by a no-op.
func NewTrainer(cfg TrainingConfig, store artifact.Store, dev *nn.Device, sink metrics.Sink, log logger.Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: trainer needs an artifact store", artifact.ErrIO)
	}
	if dev == nil {
		dev = nn.CPU()
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	return &Trainer{
		Config: cfg,
		Store:  store,
		Device: dev,
		Sink:   sink,
		log:    logger.WithField(log, "run_id", cfg.RunID),
	}, nil
}

func (t *Trainer) enter(s State, epoch int) {
	t.log.Debugw("training state", map[string]any{"state": s.String(), "epoch": epoch})
	if t.OnState != nil {
		t.OnState(s, epoch)
	}
}

// batchMSE reports the unregularized loss of the current batch only.
func batchMSE() mlmetrics.Interface {
	return mlmetrics.NewBaseMetric("Batch MSE", "mse", mlmetrics.LossMetricType,
		func(_ *mlctx.Context, labels, predictions []*graph.Node) *graph.Node {
			return losses.MeanSquaredError(labels, predictions)
		}, nil)
}

func scalar(t *tensors.Tensor) float64 {
	return shapes.ConvertTo[float64](t.Value())
}

// catch turns a panic raised while running a graph into an error.
func catch(fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			err = e
			return
		}
		err = fmt.Errorf("%v", r)
	}()
	fn()
	return nil
}

// Run trains on trainSet and validates on validSet every epoch.
func (t *Trainer) Run(ctx context.Context, trainSet, validSet datasets.Dataset) (*Result, error) {
	cfg := t.Config
	if trainSet == nil || trainSet.Len() == 0 {
		return nil, fmt.Errorf("%w: train partition is empty", datasets.ErrConfig)
	}

	t.enter(StateInit, 0)
	for _, dir := range []string{CheckpointDir, ModelDir} {
		if err := t.Store.RemoveDir(dir); err != nil {
			return nil, err
		}
	}
	cfg.Data.TrainRecords = trainSet.Len()
	if validSet != nil {
		cfg.Data.TestRecords = validSet.Len()
	}
	if err := artifact.WriteJSON(t.Store, ConfigArtifact, cfg); err != nil {
		return nil, err
	}
	m, err := model.New(cfg.Model, t.Device, cfg.Seed)
	if err != nil {
		return nil, err
	}
	opt, err := cfg.Optimizer.Build(m.Ctx, cfg.LearningRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrConfig, err)
	}
	gt := trainerFor(m, opt)
	trainIdx := len(gt.TrainMetrics()) - 1
	evalIdx := len(gt.EvalMetrics()) - 1

	var ckpt *checkpoints.Handler
	if cfg.CheckpointEvery > 0 {
		ckpt, err = checkpoints.Build(m.Ctx).Dir(t.Store.Path(CheckpointDir)).Keep(-1).Done()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", artifact.ErrIO, CheckpointDir, err)
		}
	}

	// Epochs run to completion once started.
	epochCtx := context.WithoutCancel(ctx)
	trainLoader, err := datasets.NewLoader(trainSet, cfg.BatchSize, cfg.Workers, cfg.Prefetch, t.log)
	if err != nil {
		return nil, err
	}
	trainDS := datasets.NewGraphDataset(epochCtx, trainLoader, nn.Train, m.CheckBatch)
	defer trainDS.Reset()
	var validDS *datasets.GraphDataset
	if validSet != nil && validSet.Len() > 0 {
		validLoader, err := datasets.NewLoader(validSet, cfg.BatchSize, cfg.Workers, cfg.Prefetch, t.log)
		if err != nil {
			return nil, err
		}
		validDS = datasets.NewGraphDataset(epochCtx, validLoader, nn.Eval, m.CheckBatch)
		defer validDS.Reset()
	} else {
		t.log.Warnf("validation partition is empty, valid loss will be reported as 0")
	}
	t.log.Infof("training %d epochs on %d records (%d batches of %d), validating on %d",
		cfg.Epochs, trainSet.Len(), trainLoader.NumBatches(), cfg.BatchSize, cfg.Data.TestRecords)

	var trainLoss lossMeter
	loop := train.NewLoop(gt)
	loop.OnStep("taxifare", 0, func(_ *train.Loop, ms []*tensors.Tensor) error {
		loss := scalar(ms[trainIdx])
		trainLoss.add(loss, trainDS.LastSize())
		return t.Sink.RecordBatch(datasets.Train, loss)
	})

	history := History{RunID: cfg.RunID}
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			t.log.Warnf("stopping before epoch %d: %v", epoch, err)
			return nil, err
		}
		start := time.Now()

		t.enter(StateTrainEpoch, epoch)
		trainLoss = lossMeter{}
		if _, err := loop.RunEpochs(trainDS, 1); err != nil {
			return nil, fmt.Errorf("epoch %d %s: %w", epoch, datasets.Train, err)
		}

		t.enter(StateValidateEpoch, epoch)
		var validLoss lossMeter
		if validDS != nil {
			if err := t.validate(gt, evalIdx, validDS, &validLoss); err != nil {
				return nil, fmt.Errorf("epoch %d %s: %w", epoch, datasets.Valid, err)
			}
		}

		stats := EpochStats{
			Epoch:        epoch,
			TrainLoss:    trainLoss.mean(),
			ValidLoss:    validLoss.mean(),
			TrainBatches: trainLoss.batches,
			ValidBatches: validLoss.batches,
			Duration:     time.Since(start),
		}
		history.Epochs = append(history.Epochs, stats)
		t.log.Infof("epoch %d/%d train_loss=%.4f valid_loss=%.4f (%s)",
			epoch, cfg.Epochs, stats.TrainLoss, stats.ValidLoss, stats.Duration.Round(time.Millisecond))
		if err := t.Sink.RecordEpoch(metrics.EpochMetrics{
			RunID:     cfg.RunID,
			Epoch:     epoch,
			TrainLoss: stats.TrainLoss,
			ValidLoss: stats.ValidLoss,
			Duration:  stats.Duration,
		}); err != nil {
			t.log.Warnf("record epoch metrics: %v", err)
		}

		if ckpt != nil && epoch%cfg.CheckpointEvery == 0 {
			t.enter(StateCheckpoint, epoch)
			if err := t.save(ckpt, m, epoch); err != nil {
				return nil, err
			}
		}
	}

	t.enter(StateDone, cfg.Epochs)
	final, err := checkpoints.Build(m.Ctx).Dir(t.Store.Path(ModelDir)).Done()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", artifact.ErrIO, ModelDir, err)
	}
	if err := t.save(final, m, cfg.Epochs); err != nil {
		return nil, err
	}
	if err := artifact.WriteJSON(t.Store, HistoryArtifact, history); err != nil {
		return nil, err
	}
	png, err := PlotLossCurves(history)
	if err != nil {
		t.log.Warnf("loss plot: %v", err)
	} else if err := t.Store.Write(LossPlotArtifact, png); err != nil {
		return nil, err
	}
	t.log.Infof("run complete, artifacts in %s", t.Store.Path(""))
	return &Result{RunID: cfg.RunID, Model: m, History: history}, nil
}

func trainerFor(m *model.RegressionModel, opt optimizers.Interface) *train.Trainer {
	return train.NewTrainer(m.Device().Backend(), m.Ctx, m.ModelFn, losses.MeanSquaredError, opt,
		[]mlmetrics.Interface{batchMSE()}, []mlmetrics.Interface{batchMSE()})
}

// validate runs one Eval pass over ds. Evaluation leaves every variable
// untouched.
func (t *Trainer) validate(gt *train.Trainer, idx int, ds *datasets.GraphDataset, meter *lossMeter) error {
	ds.Reset()
	defer ds.Reset()
	for {
		spec, inputs, labels, err := ds.Yield()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		var ms []*tensors.Tensor
		err = catch(func() { ms = gt.EvalStep(spec, inputs, labels) })
		for _, x := range append(inputs, labels...) {
			x.FinalizeAll()
		}
		if err != nil {
			return err
		}
		loss := scalar(ms[idx])
		for _, x := range ms {
			x.FinalizeAll()
		}
		meter.add(loss, ds.LastSize())
		if err := t.Sink.RecordBatch(datasets.Valid, loss); err != nil {
			return err
		}
	}
}

func (t *Trainer) save(h *checkpoints.Handler, m *model.RegressionModel, epoch int) error {
	m.Ctx.SetParam(EpochParam, epoch)
	if err := h.Save(); err != nil {
		return fmt.Errorf("%w: save %s: %v", artifact.ErrIO, h.Dir(), err)
	}
	t.log.Debugf("saved epoch %d to %s", epoch, h.Dir())
	return nil
}

// LoadModel rebuilds the model a previous run saved under ModelDir.
// Variables are read from the checkpoint as the first graph is built.
func LoadModel(store artifact.Store, dev *nn.Device) (*model.RegressionModel, error) {
	cfg, err := LoadConfig(store)
	if err != nil {
		return nil, err
	}
	m, err := model.New(cfg.Model, dev, cfg.Seed)
	if err != nil {
		return nil, err
	}
	if _, err := checkpoints.Load(m.Ctx).Dir(store.Path(ModelDir)).Done(); err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", artifact.ErrIO, ModelDir, err)
	}
	return m, nil
}

// SavedEpoch is the epoch recorded in the checkpoint m was loaded from, or 0.
func SavedEpoch(m *model.RegressionModel) int {
	return mlctx.GetParamOr(m.Ctx, EpochParam, 0)
}

// LoadConfig reads the config.json of a previous run.
func LoadConfig(store artifact.Store) (TrainingConfig, error) {
	var cfg TrainingConfig
	err := artifact.ReadJSON(store, ConfigArtifact, &cfg)
	return cfg, err
}

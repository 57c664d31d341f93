// Package metrics records training progress for observability.
package metrics

import (
	"time"

	"github.com/Noofbiz/taxiFare/logger"
)

// EpochMetrics summarizes one finished epoch.
type EpochMetrics struct {
	RunID     string
	Epoch     int
	TrainLoss float64
	ValidLoss float64
	Duration  time.Duration
}

// Sink receives batch and epoch measurements from the trainer.
type Sink interface {
	RecordBatch(partition string, loss float64) error
	RecordEpoch(m EpochMetrics) error
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordBatch(string, float64) error { return nil }
func (NopSink) RecordEpoch(EpochMetrics) error    { return nil }

// MultiSink fans measurements out to several sinks.
type MultiSink struct {
	Sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordBatch forwards to every sink, returning the first error encountered.
func (m *MultiSink) RecordBatch(partition string, loss float64) error {
	for _, s := range m.Sinks {
		if err := s.RecordBatch(partition, loss); err != nil {
			return err
		}
	}
	return nil
}

// RecordEpoch forwards to every sink, returning the first error encountered.
func (m *MultiSink) RecordEpoch(e EpochMetrics) error {
	for _, s := range m.Sinks {
		if err := s.RecordEpoch(e); err != nil {
			return err
		}
	}
	return nil
}

// LogSink writes every measurement to a logger at debug level.
type LogSink struct {
	Log logger.Logger
}

func (s LogSink) RecordBatch(partition string, loss float64) error {
	s.Log.Debugw("batch", map[string]any{"partition": partition, "loss": loss})
	return nil
}

func (s LogSink) RecordEpoch(m EpochMetrics) error {
	s.Log.Debugw("epoch", map[string]any{
		"run_id":     m.RunID,
		"epoch":      m.Epoch,
		"train_loss": m.TrainLoss,
		"valid_loss": m.ValidLoss,
		"duration":   m.Duration.String(),
	})
	return nil
}

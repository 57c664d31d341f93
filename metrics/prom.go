package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Noofbiz/taxiFare/datasets"
)

// PromSink records training progress in Prometheus metrics.
type PromSink struct {
	batches  *prometheus.CounterVec
	loss     *prometheus.GaugeVec
	epoch    prometheus.Gauge
	duration prometheus.Histogram
}

// NewPromSink registers training metrics on reg, or on the default
// registerer when reg is nil. Collectors that are already registered are
// reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taxifare_batches_total",
		Help: "Total number of batches processed",
	}, []string{"partition"})
	loss := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "taxifare_epoch_loss",
		Help: "Mean squared error of the last finished epoch",
	}, []string{"partition"})
	epoch := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taxifare_epoch",
		Help: "Index of the last finished epoch",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "taxifare_epoch_duration_seconds",
		Help:    "Wall time of a train plus validation epoch",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	if err := reg.Register(batches); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			batches = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(loss); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			loss = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(epoch); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			epoch = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			duration = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	return &PromSink{batches: batches, loss: loss, epoch: epoch, duration: duration}, nil
}

func (s *PromSink) RecordBatch(partition string, _ float64) error {
	s.batches.WithLabelValues(partition).Inc()
	return nil
}

func (s *PromSink) RecordEpoch(m EpochMetrics) error {
	s.loss.WithLabelValues(datasets.Train).Set(m.TrainLoss)
	s.loss.WithLabelValues(datasets.Valid).Set(m.ValidLoss)
	s.epoch.Set(float64(m.Epoch))
	s.duration.Observe(m.Duration.Seconds())
	return nil
}

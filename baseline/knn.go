// Package baseline predicts fares from the nearest training trips. The
// evaluate command reports it next to the model so a run can be judged
// against something that needs no training.
package baseline

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Noofbiz/taxiFare/features"
)

// Dataset is the minimal view the baseline needs over a partition.
type Dataset interface {
	Len() int
	Example(i int) (features.EngineeredRecord, error)
}

// KNN predicts the inverse-distance weighted mean fare of the K nearest
// reference records. Distances are Euclidean over the continuous fields
// after standardizing each field with the reference mean and deviation.
type KNN struct {
	K       int
	Workers int

	points [][features.NumContinuous]float64
	fares  []float64
	mean   [features.NumContinuous]float64
	std    [features.NumContinuous]float64
}

// NewKNN reads every reference record once. k must be >= 1.
func NewKNN(ref Dataset, k int) (*KNN, error) {
	if ref == nil {
		return nil, errors.New("reference dataset cannot be nil")
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}
	n := ref.Len()
	if n == 0 {
		return nil, errors.New("reference dataset is empty")
	}
	m := &KNN{
		K:       k,
		Workers: runtime.NumCPU(),
		points:  make([][features.NumContinuous]float64, n),
		fares:   make([]float64, n),
	}
	for i := 0; i < n; i++ {
		r, err := ref.Example(i)
		if err != nil {
			return nil, fmt.Errorf("reference record %d: %w", i, err)
		}
		m.points[i] = r.Continuous()
		m.fares[i] = r.Label()
	}
	col := make([]float64, n)
	for j := range m.mean {
		for i, p := range m.points {
			col[i] = p[j]
		}
		m.mean[j], m.std[j] = stat.PopMeanStdDev(col, nil)
		if m.std[j] == 0 {
			m.std[j] = 1
		}
	}
	for i := range m.points {
		m.points[i] = m.standardize(m.points[i])
	}
	return m, nil
}

func (m *KNN) standardize(p [features.NumContinuous]float64) [features.NumContinuous]float64 {
	for j := range p {
		p[j] = (p[j] - m.mean[j]) / m.std[j]
	}
	return p
}

// neighbor holds a reference candidate.
type neighbor struct {
	idx      int
	distance float64
}

// nearest does a linear scan keeping the k closest points, sorted by
// increasing distance.
func (m *KNN) nearest(q [features.NumContinuous]float64, k int) []neighbor {
	k = min(k, len(m.points))
	best := make([]neighbor, 0, k+1)
	for i, p := range m.points {
		d := floats.Distance(q[:], p[:], 2)
		if len(best) == k && d >= best[k-1].distance {
			continue
		}
		pos := len(best)
		for pos > 0 && best[pos-1].distance > d {
			pos--
		}
		best = append(best, neighbor{})
		copy(best[pos+1:], best[pos:])
		best[pos] = neighbor{idx: i, distance: d}
		if len(best) > k {
			best = best[:k]
		}
	}
	return best
}

// Predict returns the baseline fare for one record.
func (m *KNN) Predict(r features.EngineeredRecord) float64 {
	const eps = 1e-6
	var sum, total float64
	for _, nb := range m.nearest(m.standardize(r.Continuous()), m.K) {
		w := 1.0 / (nb.distance + eps)
		sum += w * m.fares[nb.idx]
		total += w
	}
	return sum / total
}

// PredictAll predicts every record of ds on a worker pool. Output order
// matches ds.
func (m *KNN) PredictAll(ds Dataset) ([]float64, error) {
	n := ds.Len()
	out := make([]float64, n)
	if n == 0 {
		return out, nil
	}
	workerCount := m.Workers
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > n {
		workerCount = n
	}

	jobs := make(chan int, n)
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				r, err := ds.Example(i)
				if err != nil {
					once.Do(func() { firstErr = fmt.Errorf("record %d: %w", i, err) })
					continue
				}
				out[i] = m.Predict(r)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

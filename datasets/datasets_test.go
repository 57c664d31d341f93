package datasets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/Noofbiz/taxiFare/features"
)

// writeCSV writes a CSV file with the given header and rows to path.
func writeCSV(t *testing.T, path, header string, rows []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create csv %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(header + "\n"); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}
	for _, r := range rows {
		if _, err := f.WriteString(r + "\n"); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}
}

// makeRecords returns n records whose fare equals their original position.
func makeRecords(n int) []features.EngineeredRecord {
	recs := make([]features.EngineeredRecord, n)
	for i := range recs {
		recs[i] = features.EngineeredRecord{
			FareAmount:       float64(i),
			PickupLatitude:   40.7 + float64(i)*0.001,
			PickupLongitude:  -73.9,
			DropoffLatitude:  40.75,
			DropoffLongitude: -73.95,
			PassengerCount:   float64(1 + i%4),
			Distance:         float64(i) / 10,
			PickupHour:       i % 24,
			PickupWeekday:    i % 7,
			AmOrPm:           i % 2,
		}
	}
	return recs
}

func fares(p *Partition) []int {
	out := make([]int, p.Len())
	for i := range out {
		r, _ := p.Example(i)
		out[i] = int(r.FareAmount)
	}
	return out
}

func TestSplitSizesAndDisjoint(t *testing.T) {
	seed := int64(42)
	ds, err := NewTaxiFareDataset(makeRecords(100), 75, &seed)
	if err != nil {
		t.Fatalf("NewTaxiFareDataset: %v", err)
	}
	train, err := ds.Partition(Train)
	if err != nil {
		t.Fatalf("train partition: %v", err)
	}
	test, err := ds.Partition(Test)
	if err != nil {
		t.Fatalf("test partition: %v", err)
	}
	if train.Len() != 75 || test.Len() != 25 {
		t.Fatalf("expected 75/25 split, got %d/%d", train.Len(), test.Len())
	}

	seen := make(map[int]bool)
	for _, f := range append(fares(train), fares(test)...) {
		if seen[f] {
			t.Fatalf("record %d appears in both partitions", f)
		}
		seen[f] = true
	}
	if len(seen) != 100 {
		t.Fatalf("expected every record once, got %d", len(seen))
	}
}

func TestSplitFloorsIndex(t *testing.T) {
	seed := int64(1)
	ds, err := NewTaxiFareDataset(makeRecords(7), 50, &seed)
	if err != nil {
		t.Fatalf("NewTaxiFareDataset: %v", err)
	}
	if ds.SplitIndex() != 3 {
		t.Fatalf("expected split index 3, got %d", ds.SplitIndex())
	}
}

func TestSeededShuffleIsReproducible(t *testing.T) {
	seed := int64(42)
	a, err := NewTaxiFareDataset(makeRecords(100), 75, &seed)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewTaxiFareDataset(makeRecords(100), 75, &seed)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{Train, Test} {
		pa, _ := a.Partition(name)
		pb, _ := b.Partition(name)
		fa, fb := fares(pa), fares(pb)
		for i := range fa {
			if fa[i] != fb[i] {
				t.Fatalf("%s partition differs at %d: %d vs %d", name, i, fa[i], fb[i])
			}
		}
	}

	// The input slice is not reordered.
	in := makeRecords(10)
	if _, err := NewTaxiFareDataset(in, 50, &seed); err != nil {
		t.Fatal(err)
	}
	for i, r := range in {
		if int(r.FareAmount) != i {
			t.Fatalf("input record %d was moved", i)
		}
	}
}

func TestUnknownPartition(t *testing.T) {
	seed := int64(42)
	ds, err := NewTaxiFareDataset(makeRecords(10), 75, &seed)
	if err != nil {
		t.Fatal(err)
	}
	_, err = ds.Partition("valid")
	if !errors.Is(err, ErrUnknownPartition) || !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrUnknownPartition, got %v", err)
	}
}

func TestSplitPercentBounds(t *testing.T) {
	for _, pct := range []int{0, 100, -5} {
		if _, err := NewTaxiFareDataset(makeRecords(10), pct, nil); !errors.Is(err, ErrConfig) {
			t.Fatalf("pct %d: expected ErrConfig, got %v", pct, err)
		}
	}
}

func TestCollatePreservesOrder(t *testing.T) {
	recs := makeRecords(5)
	b, err := Collate(recs)
	if err != nil {
		t.Fatalf("Collate: %v", err)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	shape := b.ContinuousShape()
	if shape[0] != 5 || shape[1] != 6 || shape[2] != 1 {
		t.Fatalf("unexpected continuous shape %v", shape)
	}
	for j, r := range recs {
		want := r.Continuous()
		row := b.ContinuousRow(j)
		for i := range want {
			if row[i] != float32(want[i]) {
				t.Fatalf("sample %d field %d: got %v want %v", j, i, row[i], want[i])
			}
		}
		cat := r.Categorical()
		for f := range cat {
			if int(b.Categorical[f][j]) != cat[f] {
				t.Fatalf("sample %d categorical %d: got %d want %d", j, f, b.Categorical[f][j], cat[f])
			}
		}
		if b.Labels[j] != float32(r.FareAmount) {
			t.Fatalf("sample %d label: got %v", j, b.Labels[j])
		}
	}

	if _, err := Collate(nil); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for empty collate, got %v", err)
	}
}

func TestMakeBatchShapeErrors(t *testing.T) {
	cont := [][]float32{{1, 2, 3, 4, 5, 6}, {1, 2, 3, 4, 5, 6}}
	cat := [][]int32{{0, 1, 0}, {1, 2, 1}}

	if _, err := MakeBatch(cont, cat, []float32{1, 2}); err != nil {
		t.Fatalf("MakeBatch: %v", err)
	}
	if _, err := MakeBatch(cont, cat[:1], []float32{1, 2}); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for categorical count, got %v", err)
	}
	if _, err := MakeBatch(cont, cat, []float32{1}); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for label count, got %v", err)
	}
	bad := [][]float32{{1, 2, 3}, {1, 2, 3, 4, 5, 6}}
	if _, err := MakeBatch(bad, cat, []float32{1, 2}); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape for short continuous row, got %v", err)
	}

	b, _ := Collate(makeRecords(3))
	b.Labels = b.Labels[:2]
	if err := b.Validate(); !errors.Is(err, ErrShape) {
		t.Fatalf("expected ErrShape from Validate, got %v", err)
	}
}

func TestToGomlxTensorsShapes(t *testing.T) {
	b, err := Collate(makeRecords(4))
	if err != nil {
		t.Fatal(err)
	}
	bt, err := b.ToGomlxTensors()
	if err != nil {
		t.Fatalf("ToGomlxTensors: %v", err)
	}
	check := func(name string, got, want []int) {
		t.Helper()
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("%s shape %v, want %v", name, got, want)
		}
	}
	check("continuous", bt.Continuous.Shape().Dimensions, []int{4, 6, 1})
	check("labels", bt.Labels.Shape().Dimensions, []int{4, 1})
	for f, c := range bt.Categorical {
		check(features.CategoricalNames[f], c.Shape().Dimensions, []int{4, 1})
	}
	in := bt.Inputs()
	if len(in) != features.NumCategorical+1 || in[0] != bt.Categorical[0] || in[len(in)-1] != bt.Continuous {
		t.Fatalf("inputs are not categorical columns followed by continuous")
	}
}

func TestLoadTaxiFareDatasetFromCSV(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "prepared.csv")
	rows := make([]string, 0, 8)
	for i := range 8 {
		rows = append(rows, fmt.Sprintf("%d,40.7,-73.9,40.75,-73.95,1,2.5,%d,%d,%d", i+3, i, i%7, 0))
	}
	writeCSV(t, path, strings.Join(features.PreparedColumns, ","), rows)

	seed := int64(42)
	ds, err := LoadTaxiFareDataset(path, 75, &seed)
	if err != nil {
		t.Fatalf("LoadTaxiFareDataset: %v", err)
	}
	if ds.Len() != 8 || ds.SplitIndex() != 6 {
		t.Fatalf("unexpected sizes len=%d split=%d", ds.Len(), ds.SplitIndex())
	}

	_, err = LoadTaxiFareDataset(filepath.Join(tmp, "missing.csv"), 75, &seed)
	if !errors.Is(err, features.ErrData) {
		t.Fatalf("expected ErrData for missing file, got %v", err)
	}
}

func TestLoaderDeliversBatchesInOrder(t *testing.T) {
	seed := int64(3)
	ds, err := NewTaxiFareDataset(makeRecords(103), 50, &seed)
	if err != nil {
		t.Fatal(err)
	}
	train, _ := ds.Partition(Train)
	want := fares(train)

	l, err := NewLoader(train, 10, 4, 3, nil)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if l.NumBatches() != 6 {
		t.Fatalf("expected 6 batches for 51 records, got %d", l.NumBatches())
	}

	var got []int
	var sizes []int
	err = l.Run(context.Background(), func(step int, b *Batch) error {
		if step != len(sizes) {
			t.Fatalf("step %d delivered out of order", step)
		}
		sizes = append(sizes, b.Size)
		for _, v := range b.Labels {
			got = append(got, int(v))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sizes[len(sizes)-1] != 1 {
		t.Fatalf("expected short last batch of 1, got %d", sizes[len(sizes)-1])
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d: got fare %d want %d", i, got[i], want[i])
		}
	}
}

func TestLoaderStopsOnCallbackError(t *testing.T) {
	ds, err := NewTaxiFareDataset(makeRecords(100), 90, nil)
	if err != nil {
		t.Fatal(err)
	}
	train, _ := ds.Partition(Train)
	l, err := NewLoader(train, 5, 2, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	stop := errors.New("stop")
	var calls atomic.Int32
	err = l.Run(context.Background(), func(step int, _ *Batch) error {
		calls.Add(1)
		if step == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected stop error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestNewLoaderRejectsBadBatchSize(t *testing.T) {
	ds, _ := NewTaxiFareDataset(makeRecords(4), 50, nil)
	train, _ := ds.Partition(Train)
	if _, err := NewLoader(train, 0, 1, 1, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func yieldAll(t *testing.T, d *GraphDataset) ([]int, error) {
	t.Helper()
	var got []int
	for {
		spec, inputs, labels, err := d.Yield()
		if err != nil {
			return got, err
		}
		if spec != "train-spec" {
			t.Fatalf("spec %v was not passed through", spec)
		}
		if len(inputs) != features.NumCategorical+1 || len(labels) != 1 {
			t.Fatalf("yielded %d inputs and %d labels", len(inputs), len(labels))
		}
		if n := labels[0].Shape().Dimensions[0]; n != d.LastSize() {
			t.Fatalf("label rows %d, last size %d", n, d.LastSize())
		}
		for _, v := range tensors.CopyFlatData[float32](labels[0]) {
			got = append(got, int(v))
		}
	}
}

func TestGraphDatasetYieldsEpochsInOrder(t *testing.T) {
	seed := int64(5)
	ds, err := NewTaxiFareDataset(makeRecords(60), 50, &seed)
	if err != nil {
		t.Fatal(err)
	}
	train, _ := ds.Partition(Train)
	want := fares(train)
	l, err := NewLoader(train, 7, 3, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	d := NewGraphDataset(context.Background(), l, "train-spec", nil)
	if d.Name() != Train {
		t.Fatalf("name %q", d.Name())
	}

	for epoch := 0; epoch < 2; epoch++ {
		got, err := yieldAll(t, d)
		if !errors.Is(err, io.EOF) {
			t.Fatalf("epoch %d: expected io.EOF, got %v", epoch, err)
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("epoch %d: got %v want %v", epoch, got, want)
		}
		if d.LastSize() != 30%7 {
			t.Fatalf("epoch %d: last batch has %d records", epoch, d.LastSize())
		}
		d.Reset()
	}

	// a reset in the middle of a walk restarts it
	if _, _, _, err := d.Yield(); err != nil {
		t.Fatal(err)
	}
	d.Reset()
	got, _ := yieldAll(t, d)
	if len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("walk did not restart: %v", got)
	}
	d.Reset()
}

func TestGraphDatasetCheckAndCancel(t *testing.T) {
	ds, err := NewTaxiFareDataset(makeRecords(40), 50, nil)
	if err != nil {
		t.Fatal(err)
	}
	train, _ := ds.Partition(Train)
	l, err := NewLoader(train, 4, 2, 2, nil)
	if err != nil {
		t.Fatal(err)
	}

	reject := errors.New("rejected")
	var seen atomic.Int32
	d := NewGraphDataset(context.Background(), l, "train-spec", func(*Batch) error {
		if seen.Add(1) == 2 {
			return reject
		}
		return nil
	})
	if _, err := yieldAll(t, d); !errors.Is(err, reject) {
		t.Fatalf("expected check error, got %v", err)
	}
	d.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	d = NewGraphDataset(ctx, l, "train-spec", nil)
	if _, _, _, err := d.Yield(); err != nil {
		t.Fatal(err)
	}
	cancel()
	if _, err := yieldAll(t, d); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	d.Reset()
}

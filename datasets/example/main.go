package main

// Example command that demonstrates loading the prepared taxi fares CSV,
// splitting it into train and test partitions, collating a small batch and
// converting it into gomlx tensors.
//
// Usage:
//   go run ./datasets/example [prepared.csv]
//
// Without an argument the example tries datasets.DefaultPreparedLocations.
// Run `taxifare prepare` first if no prepared CSV exists yet.

import (
	"fmt"
	"log"
	"os"

	"github.com/Noofbiz/taxiFare/datasets"
	"github.com/Noofbiz/taxiFare/features"
)

func main() {
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	} else {
		found, err := datasets.FindPreparedCSV(datasets.DefaultPreparedLocations)
		if err != nil {
			log.Fatalf("failed to find prepared CSV: %v", err)
		}
		path = found
	}

	seed := int64(42)
	ds, err := datasets.LoadTaxiFareDataset(path, 75, &seed)
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}
	fmt.Printf("Using prepared CSV: %s\n", path)
	fmt.Printf("Total records: %d (split at %d)\n", ds.Len(), ds.SplitIndex())

	train, err := ds.Partition(datasets.Train)
	if err != nil {
		log.Fatalf("train partition: %v", err)
	}
	test, err := ds.Partition(datasets.Test)
	if err != nil {
		log.Fatalf("test partition: %v", err)
	}
	fmt.Printf("  train=%d test=%d\n", train.Len(), test.Len())

	n := min(8, train.Len())
	if n == 0 {
		return
	}
	fmt.Printf("Collating batch of %d train records...\n", n)
	b, err := train.Batch(datasets.Sequential(n))
	if err != nil {
		log.Fatalf("failed to build batch: %v", err)
	}
	bt, err := b.ToGomlxTensors()
	if err != nil {
		log.Fatalf("failed to convert batch to gomlx tensors: %v", err)
	}
	fmt.Printf("  continuous shape: %v\n", bt.Continuous.Shape().Dimensions)
	for i, name := range features.CategoricalNames {
		fmt.Printf("  %s shape: %v\n", name, bt.Categorical[i].Shape().Dimensions)
	}
	fmt.Printf("  labels shape: %v\n", bt.Labels.Shape().Dimensions)

	first, _ := train.Example(0)
	fmt.Printf("  first continuous: %v\n", first.Continuous())
	fmt.Printf("  first categorical: %v\n", first.Categorical())
	fmt.Printf("  first fare: %.2f\n", first.Label())
}

package datasets

import (
	"fmt"
	"path/filepath"
)

// DefaultPreparedLocations are tried by FindPreparedCSV when no explicit path
// is given.
var DefaultPreparedLocations = []string{
	"TaxiFaresPrepared.csv",
	"data/TaxiFaresPrepared.csv",
	"../TaxiFaresPrepared.csv",
	"../data/TaxiFaresPrepared.csv",
}

// FindPreparedCSV returns the first file matching one of the glob patterns.
func FindPreparedCSV(patterns []string) (string, error) {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err == nil && len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", fmt.Errorf("no prepared CSV found in %v", patterns)
}

// Sequential returns the indices [0, n).
func Sequential(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

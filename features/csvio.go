package features

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/Noofbiz/taxiFare/logger"
)

// requireColumns reads the header of f and verifies every required column is
// present, then rewinds f so it can be decoded from the start.
func requireColumns(f *os.File, required []string) error {
	header, err := csv.NewReader(f).Read()
	if err != nil {
		return fmt.Errorf("%w: read header of %s: %v", ErrData, f.Name(), err)
	}
	have := make(map[string]bool, len(header))
	for _, col := range header {
		have[strings.TrimSpace(strings.ToLower(col))] = true
	}
	for _, col := range required {
		if !have[col] {
			return fmt.Errorf("%w: required column %q not found in %s", ErrData, col, f.Name())
		}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewind %s: %v", ErrData, f.Name(), err)
	}
	return nil
}

// ReadRaw loads every row of a raw fares CSV.
func ReadRaw(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrData, path, err)
	}
	defer f.Close()

	if err := requireColumns(f, RawColumns); err != nil {
		return nil, err
	}
	var rows []*RawRecord
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrData, path, err)
	}
	out := make([]RawRecord, len(rows))
	for i, r := range rows {
		out[i] = *r
	}
	return out, nil
}

// ReadPrepared loads a prepared CSV. Rows with categorical values outside their
// cardinality fail the load.
func ReadPrepared(path string) ([]EngineeredRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrData, path, err)
	}
	defer f.Close()

	if err := requireColumns(f, PreparedColumns); err != nil {
		return nil, err
	}
	var rows []*EngineeredRecord
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrData, path, err)
	}
	out := make([]EngineeredRecord, len(rows))
	for i, r := range rows {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		out[i] = *r
	}
	return out, nil
}

// WritePrepared writes records to path with the prepared header, replacing the
// file atomically.
func WritePrepared(path string, records []EngineeredRecord) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	rows := make([]*EngineeredRecord, len(records))
	for i := range records {
		rows[i] = &records[i]
	}
	if err := gocsv.Marshal(&rows, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("encode prepared csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// PrepareFile runs feature engineering over a raw CSV and writes the prepared
// CSV. It returns the number of records written.
func PrepareFile(rawPath, preparedPath string, log logger.Logger) (int, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	raw, err := ReadRaw(rawPath)
	if err != nil {
		return 0, err
	}
	log.Infof("read %d raw records from %s", len(raw), rawPath)

	engineered, err := EngineerAll(raw)
	if err != nil {
		return 0, fmt.Errorf("engineer %s: %w", rawPath, err)
	}
	if err := WritePrepared(preparedPath, engineered); err != nil {
		return 0, err
	}
	log.Infof("wrote %d prepared records to %s", len(engineered), preparedPath)
	return len(engineered), nil
}

package sample

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"pemstudy/internal/types"
)

// The sample travels as a three-column TSV so it can be eyeballed (or pasted
// into the mirror's file browser) before materialization commits to it.
// Columns: pem_category, srcml_path, version.

// WriteTSV writes the sample in tabular interchange form.
func WriteTSV(w io.Writer, items []types.SampleItem) error {
	tsv := csv.NewWriter(w)
	tsv.Comma = '\t'

	for _, item := range items {
		row := []string{item.Category, item.Unit.SrcmlPath, strconv.FormatInt(item.Unit.Version, 10)}
		if err := tsv.Write(row); err != nil {
			return fmt.Errorf("failed to write sample row: %w", err)
		}
	}
	tsv.Flush()
	return tsv.Error()
}

// ReadTSV parses a sample interchange file.
func ReadTSV(r io.Reader) ([]types.SampleItem, error) {
	tsv := csv.NewReader(r)
	tsv.Comma = '\t'
	tsv.FieldsPerRecord = 3

	var items []types.SampleItem
	for {
		row, err := tsv.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: malformed sample row: %v", types.ErrSchemaMismatch, err)
		}
		version, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad version in sample row: %v", types.ErrSchemaMismatch, err)
		}
		items = append(items, types.SampleItem{
			Category: row[0],
			Unit:     types.UnitID{SrcmlPath: row[1], Version: version},
		})
	}
	return items, nil
}

// WriteFile writes the sample TSV to disk.
func WriteFile(path string, items []types.SampleItem) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create sample file: %w", err)
	}
	defer f.Close()

	if err := WriteTSV(f, items); err != nil {
		return err
	}
	return f.Close()
}

// ReadFile reads a sample TSV from disk.
func ReadFile(path string) ([]types.SampleItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample file: %w", err)
	}
	defer f.Close()
	return ReadTSV(f)
}

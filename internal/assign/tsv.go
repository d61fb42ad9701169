package assign

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pemstudy/internal/types"
)

// Each rater gets one TSV: a header comment recording who the file belongs
// to and the batch's duplication factor, then four-column rows of
// pem_category, srcml_path, version, variant — one row per judgement, in
// presentation order. The rating session reads this file verbatim; row
// order is the presentation order.

// FileName returns the assignment file name for a rater.
func FileName(rater string) string {
	return fmt.Sprintf("%s-assignments.tsv", rater)
}

// WriteTSV writes one rater's assignment in tabular interchange form.
func WriteTSV(w io.Writer, a types.Assignment) error {
	if _, err := fmt.Fprintf(w, "# rater=%s overlap=%d\n", a.Rater, a.Overlap); err != nil {
		return fmt.Errorf("failed to write assignment header: %w", err)
	}

	tsv := csv.NewWriter(w)
	tsv.Comma = '\t'

	for _, item := range a.Items {
		row := []string{
			item.Category,
			item.Unit.SrcmlPath,
			strconv.FormatInt(item.Unit.Version, 10),
			string(item.Variant),
		}
		if err := tsv.Write(row); err != nil {
			return fmt.Errorf("failed to write assignment row: %w", err)
		}
	}
	tsv.Flush()
	return tsv.Error()
}

// ReadTSV parses an assignment interchange file, header included.
func ReadTSV(r io.Reader) (types.Assignment, error) {
	br := bufio.NewReader(r)

	a, err := readHeader(br)
	if err != nil {
		return types.Assignment{}, err
	}

	tsv := csv.NewReader(br)
	tsv.Comma = '\t'
	tsv.FieldsPerRecord = 4

	for {
		row, err := tsv.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.Assignment{}, fmt.Errorf("%w: malformed assignment row: %v", types.ErrSchemaMismatch, err)
		}
		version, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			return types.Assignment{}, fmt.Errorf("%w: bad version in assignment row: %v", types.ErrSchemaMismatch, err)
		}
		variant, err := types.ParseVariant(row[3])
		if err != nil {
			return types.Assignment{}, fmt.Errorf("%w: %v", types.ErrSchemaMismatch, err)
		}
		a.Items = append(a.Items, types.AssignmentItem{
			Category: row[0],
			Unit:     types.UnitID{SrcmlPath: row[1], Version: version},
			Variant:  variant,
		})
	}
	return a, nil
}

// readHeader consumes the leading "# rater=... overlap=..." comment line.
// A file without it predates the header or was made by hand; either way it
// cannot answer how many raters saw each item, so it is rejected.
func readHeader(br *bufio.Reader) (types.Assignment, error) {
	line, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return types.Assignment{}, fmt.Errorf("failed to read assignment header: %w", err)
	}
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "#") {
		return types.Assignment{}, fmt.Errorf("%w: assignment file has no header line", types.ErrSchemaMismatch)
	}

	var a types.Assignment
	overlapSeen := false
	for _, field := range strings.Fields(strings.TrimPrefix(line, "#")) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "rater":
			a.Rater = value
		case "overlap":
			overlap, err := strconv.Atoi(value)
			if err != nil {
				return types.Assignment{}, fmt.Errorf("%w: bad overlap in assignment header: %v", types.ErrSchemaMismatch, err)
			}
			a.Overlap = overlap
			overlapSeen = true
		}
	}
	if a.Rater == "" || !overlapSeen {
		return types.Assignment{}, fmt.Errorf("%w: assignment header must record rater and overlap", types.ErrSchemaMismatch)
	}
	return a, nil
}

// WriteFiles writes every assignment into dir, one TSV per rater.
func WriteFiles(dir string, assignments []types.Assignment) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create assignment directory: %w", err)
	}
	for _, a := range assignments {
		if err := writeFile(filepath.Join(dir, FileName(a.Rater)), a); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, a types.Assignment) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create assignment file: %w", err)
	}
	defer f.Close()

	if err := WriteTSV(f, a); err != nil {
		return err
	}
	return f.Close()
}

// ReadFile reads one rater's assignment TSV from disk.
func ReadFile(path string) (types.Assignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Assignment{}, fmt.Errorf("failed to open assignment file: %w", err)
	}
	defer f.Close()
	return ReadTSV(f)
}

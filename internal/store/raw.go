package store

import (
	"context"
	"database/sql"
	"fmt"

	"pemstudy/internal/types"
)

// RawStore is the read-only raw error database collected during the original
// data-gathering project. Its messages table holds every diagnostic javac
// emitted, with rank marking the position of each diagnostic within a
// compilation (rank 1 is the first error shown to the learner).
type RawStore struct {
	db *sql.DB
}

// rawColumns is the minimum schema the filter needs from the raw store.
var rawColumns = []string{"srcml_path", "version", "start", "end", "text", "rank"}

// OpenRaw opens and validates the raw error database. A missing messages
// table or missing columns is a schema mismatch, which aborts the run.
func OpenRaw(path string) (*RawStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	exists, err := tableExists(db, "messages")
	if err != nil {
		db.Close()
		return nil, err
	}
	if !exists {
		db.Close()
		return nil, fmt.Errorf("%w: raw store has no messages table", types.ErrSchemaMismatch)
	}

	ok, err := hasColumns(db, "messages", rawColumns...)
	if err != nil {
		db.Close()
		return nil, err
	}
	if !ok {
		db.Close()
		return nil, fmt.Errorf("%w: raw messages table is missing required columns %v",
			types.ErrSchemaMismatch, rawColumns)
	}

	return &RawStore{db: db}, nil
}

// Close releases the database handle.
func (s *RawStore) Close() error {
	return s.db.Close()
}

// RawRow is one unprocessed messages row. Position fields stay textual here;
// parsing happens in the filter so a malformed row can be skipped and
// counted instead of aborting the pass.
type RawRow struct {
	SrcmlPath string
	Version   int64
	Start     string
	End       string
	Text      string
}

// FirstErrors iterates over every rank-1 diagnostic in deterministic order,
// invoking fn for each row. Iteration stops on the first error fn returns.
func (s *RawStore) FirstErrors(ctx context.Context, fn func(RawRow) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT srcml_path, version, start, end, text
		  FROM messages
		 WHERE rank = 1
		 ORDER BY srcml_path, version`)
	if err != nil {
		return fmt.Errorf("failed to query raw messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row RawRow
		if err := rows.Scan(&row.SrcmlPath, &row.Version, &row.Start, &row.End, &row.Text); err != nil {
			return fmt.Errorf("failed to scan raw message: %w", err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// HasSources reports whether the raw store carries a sources table (a local
// dump of the unit-version mirror). When absent, source text must come from
// the remote mirror collaborator at materialization time.
func (s *RawStore) HasSources() (bool, error) {
	return tableExists(s.db, "sources")
}

// SourceFor returns the source text of a unit from the local sources dump.
func (s *RawStore) SourceFor(ctx context.Context, unit types.UnitID) (string, error) {
	var source string
	err := s.db.QueryRowContext(ctx,
		"SELECT source FROM sources WHERE srcml_path = ? AND version = ?",
		unit.SrcmlPath, unit.Version,
	).Scan(&source)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("source for %s: %w", unit, types.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch source for %s: %w", unit, err)
	}
	return source, nil
}

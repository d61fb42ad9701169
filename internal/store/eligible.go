package store

import (
	"context"
	"database/sql"
	"fmt"

	"pemstudy/internal/types"
)

// eligibleSchema mirrors the raw messages shape, restricted to eligible rows
// and enriched with the computed sanitized text and javac name. The sources
// table is a local cache of unit source text for the materializer; the
// top_messages table records the ranked whitelist the rows were filtered
// against, so the artifact is self-describing.
const eligibleSchema = `
CREATE TABLE IF NOT EXISTS messages(
	srcml_path TEXT NOT NULL,
	version INTEGER NOT NULL,
	start TEXT NOT NULL,
	end TEXT NOT NULL,
	text TEXT NOT NULL,
	sanitized_text TEXT NOT NULL,
	javac_name TEXT,

	PRIMARY KEY(srcml_path, version)
);

CREATE TABLE IF NOT EXISTS top_messages(
	rank INTEGER NOT NULL,
	identifier TEXT NOT NULL,

	PRIMARY KEY(identifier)
);

CREATE TABLE IF NOT EXISTS sources(
	srcml_path TEXT NOT NULL,
	version INTEGER NOT NULL,
	source TEXT NOT NULL,

	PRIMARY KEY(srcml_path, version)
);
`

// EligibleStore holds the filtered subset of the raw error database.
type EligibleStore struct {
	db *sql.DB
}

// CreateEligible creates (or opens) an eligible store and ensures its schema.
func CreateEligible(path string) (*EligibleStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(eligibleSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create eligible schema: %w", err)
	}
	return &EligibleStore{db: db}, nil
}

// OpenEligible opens an existing eligible store, validating its schema.
func OpenEligible(path string) (*EligibleStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	ok, err := hasColumns(db, "messages", "srcml_path", "version", "start", "end", "text", "sanitized_text", "javac_name")
	if err != nil {
		db.Close()
		return nil, err
	}
	if !ok {
		db.Close()
		return nil, fmt.Errorf("%w: not an eligible store: %s", types.ErrSchemaMismatch, path)
	}
	return &EligibleStore{db: db}, nil
}

// Close releases the database handle.
func (s *EligibleStore) Close() error {
	return s.db.Close()
}

// WriteTopMessages records the ranked whitelist the store was built against.
func (s *EligibleStore) WriteTopMessages(ctx context.Context, categories []TopCategory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range categories {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO top_messages(rank, identifier) VALUES (?, ?)",
			c.Rank, c.Identifier,
		); err != nil {
			return fmt.Errorf("failed to insert top message %q: %w", c.Identifier, err)
		}
	}
	return tx.Commit()
}

// InsertRecord inserts one eligible record. Returns false when a record for
// the same (srcml_path, version) already exists; the corpus has at least one
// such duplicate and it is skipped, not an error.
func (s *EligibleStore) InsertRecord(ctx context.Context, r types.ErrorRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages(srcml_path, version, start, end, text, sanitized_text, javac_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.SrcmlPath, r.Version, r.Start.String(), r.End.String(), r.Text, r.SanitizedText, nullable(r.JavacName),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert record for %s: %w", r.Unit(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// InsertSource caches a unit's source text.
func (s *EligibleStore) InsertSource(ctx context.Context, unit types.UnitID, source string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sources(srcml_path, version, source) VALUES (?, ?, ?)",
		unit.SrcmlPath, unit.Version, source,
	)
	if err != nil {
		return fmt.Errorf("failed to insert source for %s: %w", unit, err)
	}
	return nil
}

// Records iterates every eligible record in deterministic order: by path,
// then version. The index builder depends on this ordering for reproducible
// output.
func (s *EligibleStore) Records(ctx context.Context, fn func(types.ErrorRecord) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT srcml_path, version, start, end, text, sanitized_text, javac_name
		  FROM messages
		 ORDER BY srcml_path, version`)
	if err != nil {
		return fmt.Errorf("failed to query eligible records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r          types.ErrorRecord
			start, end string
			javacName  sql.NullString
		)
		if err := rows.Scan(&r.SrcmlPath, &r.Version, &start, &end, &r.Text, &r.SanitizedText, &javacName); err != nil {
			return fmt.Errorf("failed to scan eligible record: %w", err)
		}
		r.JavacName = javacName.String
		if r.Start, err = types.ParsePosition(start); err != nil {
			return fmt.Errorf("corrupt start position in eligible store: %w", err)
		}
		if r.End, err = types.ParsePosition(end); err != nil {
			return fmt.Errorf("corrupt end position in eligible store: %w", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// RecordsFor returns the eligible records owned by one unit.
func (s *EligibleStore) RecordsFor(ctx context.Context, unit types.UnitID) ([]types.ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT srcml_path, version, start, end, text, sanitized_text, javac_name
		  FROM messages
		 WHERE srcml_path = ? AND version = ?
		 ORDER BY start`,
		unit.SrcmlPath, unit.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to query records for %s: %w", unit, err)
	}
	defer rows.Close()

	var records []types.ErrorRecord
	for rows.Next() {
		var (
			r          types.ErrorRecord
			start, end string
			javacName  sql.NullString
		)
		if err := rows.Scan(&r.SrcmlPath, &r.Version, &start, &end, &r.Text, &r.SanitizedText, &javacName); err != nil {
			return nil, fmt.Errorf("failed to scan record for %s: %w", unit, err)
		}
		r.JavacName = javacName.String
		if r.Start, err = types.ParsePosition(start); err != nil {
			return nil, fmt.Errorf("corrupt start position for %s: %w", unit, err)
		}
		if r.End, err = types.ParsePosition(end); err != nil {
			return nil, fmt.Errorf("corrupt end position for %s: %w", unit, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("records for %s: %w", unit, types.ErrNotFound)
	}
	return records, nil
}

// SourceFor returns the cached source text of a unit.
func (s *EligibleStore) SourceFor(ctx context.Context, unit types.UnitID) (string, error) {
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

// CountRecords returns how many eligible records the store holds.
func (s *EligibleStore) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// DistinctCategories returns how many distinct categories the store holds.
func (s *EligibleStore) DistinctCategories(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT COALESCE(javac_name, sanitized_text)) FROM messages",
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count categories: %w", err)
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

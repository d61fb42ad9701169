package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pemstudy/internal/types"
)

// answersSchema keys every judgement by (rater, scenario, variant).
// Re-answering a key updates the row in place; the table can never hold two
// judgements for one key through this store.
const answersSchema = `
CREATE TABLE IF NOT EXISTS answers(
	rater TEXT NOT NULL,
	srcml_path TEXT NOT NULL,
	version INTEGER NOT NULL,
	variant TEXT NOT NULL,
	pem_category TEXT NOT NULL,
	score INTEGER NOT NULL,
	comment TEXT NOT NULL DEFAULT '',
	answered_at TEXT NOT NULL,

	PRIMARY KEY(rater, srcml_path, version, variant)
);
`

// AnswersFileName returns the conventional per-rater answer store name.
func AnswersFileName(rater string) string {
	return fmt.Sprintf("%s-answers.sqlite3", rater)
}

// AnswerStore is one rater's durable judgement log. The rating session
// writes through it before advancing to the next item, which is what makes
// the session resumable after abrupt termination.
type AnswerStore struct {
	db *sql.DB
}

// OpenAnswers opens (creating if needed) a rater's answer store.
func OpenAnswers(path string) (*AnswerStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(answersSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create answers schema: %w", err)
	}
	return &AnswerStore{db: db}, nil
}

// Close releases the database handle.
func (s *AnswerStore) Close() error {
	return s.db.Close()
}

// Put records a judgement, replacing any earlier answer for the same key.
func (s *AnswerStore) Put(ctx context.Context, a types.RaterAnswer) error {
	if !types.ValidScore(a.Score) {
		return fmt.Errorf("refusing to persist out-of-range score %d for %s", a.Score, a.Key())
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO answers(rater, srcml_path, version, variant, pem_category, score, comment, answered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rater, srcml_path, version, variant) DO UPDATE SET
			pem_category = excluded.pem_category,
			score = excluded.score,
			comment = excluded.comment,
			answered_at = excluded.answered_at`,
		a.Rater, a.Unit.SrcmlPath, a.Unit.Version, string(a.Variant),
		a.Category, a.Score, a.Comment, a.AnsweredAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to persist answer for %s: %w", a.Key(), err)
	}
	return nil
}

// All returns every persisted answer in insertion-independent, deterministic
// order.
func (s *AnswerStore) All(ctx context.Context) ([]types.RaterAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rater, srcml_path, version, variant, pem_category, score, comment, answered_at
		  FROM answers
		 ORDER BY rater, srcml_path, version, variant`)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	var answers []types.RaterAnswer
	for rows.Next() {
		var (
			a          types.RaterAnswer
			variant    string
			answeredAt string
		)
		if err := rows.Scan(&a.Rater, &a.Unit.SrcmlPath, &a.Unit.Version, &variant,
			&a.Category, &a.Score, &a.Comment, &answeredAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		a.Variant = types.Variant(variant)
		if a.AnsweredAt, err = time.Parse(time.RFC3339, answeredAt); err != nil {
			return nil, fmt.Errorf("corrupt answered_at for %s: %w", a.Key(), err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// AnsweredKeys returns the set of keys this store already holds. The rating
// session subtracts these from the assignment to compute its resume point.
func (s *AnswerStore) AnsweredKeys(ctx context.Context) (map[types.AnswerKey]bool, error) {
	answers, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	keys := make(map[types.AnswerKey]bool, len(answers))
	for _, a := range answers {
		keys[a.Key()] = true
	}
	return keys, nil
}

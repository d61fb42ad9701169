// Package aggregate merges every rater's persisted answers into one
// consolidated store for analysis. It verifies the per-rater key-uniqueness
// invariant on the way in, and reports where raters who judged the same
// (scenario, variant) disagree. Nothing is resolved silently.
package aggregate

import (
	"context"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"pemstudy/internal/store"
	"pemstudy/internal/types"
)

// Duplicate records two contradictory rows for one key inside a single
// rater's file. The store's schema makes this impossible to write through
// the session, so a duplicate means the file was produced or edited by
// something else.
type Duplicate struct {
	Rater   string        `json:"rater"`
	Unit    types.UnitID  `json:"unit"`
	Variant types.Variant `json:"variant"`
	Scores  []int         `json:"scores"`
}

// Disagreement records one (scenario, variant) judged differently by two or
// more raters — expected for the pilot batch, surfaced for the downstream
// agreement analysis.
type Disagreement struct {
	Unit    types.UnitID   `json:"unit"`
	Variant types.Variant  `json:"variant"`
	Scores  map[string]int `json:"scores"` // rater -> score
}

// Report summarizes one aggregation run.
type Report struct {
	Inputs        []string       `json:"inputs"`
	Answers       int            `json:"answers"`
	Duplicates    []Duplicate    `json:"duplicates,omitempty"`
	Disagreements []Disagreement `json:"disagreements,omitempty"`
}

// Combine reads every input answer store and writes their union to output.
// It refuses to touch an existing output file: the aggregated dataset is
// produced whole, never patched. Duplicate keys inside one input abort the
// merge with ErrConflict; the returned report still identifies them.
func Combine(ctx context.Context, inputs []string, output string, logger *zap.Logger) (*Report, error) {
	report := &Report{Inputs: append([]string{}, inputs...)}

	if _, err := os.Stat(output); err == nil {
		return report, fmt.Errorf("output %s already exists, refusing to overwrite", output)
	} else if !os.IsNotExist(err) {
		return report, fmt.Errorf("failed to stat output: %w", err)
	}

	var all []types.RaterAnswer
	for _, path := range inputs {
		answers, dups, err := readInput(ctx, path)
		if err != nil {
			return report, err
		}
		report.Duplicates = append(report.Duplicates, dups...)
		all = append(all, answers...)
	}

	sortDuplicates(report.Duplicates)
	if len(report.Duplicates) > 0 {
		return report, fmt.Errorf("%w: %d duplicate key(s) across input files",
			types.ErrConflict, len(report.Duplicates))
	}

	report.Disagreements = findDisagreements(all)
	report.Answers = len(all)

	out, err := store.OpenAnswers(output)
	if err != nil {
		return report, err
	}
	defer out.Close()

	for _, a := range all {
		if err := out.Put(ctx, a); err != nil {
			return report, fmt.Errorf("failed to write aggregated answer: %w", err)
		}
	}

	logger.Info("aggregation complete",
		zap.Int("inputs", len(inputs)),
		zap.Int("answers", report.Answers),
		zap.Int("disagreements", len(report.Disagreements)))
	return report, nil
}

// readInput loads one rater file and checks its own key uniqueness. Rows
// that repeat a key with identical scores are deduplicated; contradictory
// repeats become Duplicate entries. A missing input file is fatal: opening
// it would materialize an empty store and silently drop the rater from the
// aggregate.
func readInput(ctx context.Context, path string) ([]types.RaterAnswer, []Duplicate, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil, fmt.Errorf("cannot read answer store %s: %w", path, err)
	}

	in, err := store.OpenAnswers(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer in.Close()

	rows, err := in.All(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	byKey := make(map[types.AnswerKey]types.RaterAnswer, len(rows))
	dupScores := make(map[types.AnswerKey][]int)
	var answers []types.RaterAnswer
	for _, a := range rows {
		key := a.Key()
		prev, seen := byKey[key]
		if !seen {
			byKey[key] = a
			answers = append(answers, a)
			continue
		}
		if prev.Score == a.Score && prev.Comment == a.Comment {
			continue
		}
		if len(dupScores[key]) == 0 {
			dupScores[key] = append(dupScores[key], prev.Score)
		}
		dupScores[key] = append(dupScores[key], a.Score)
	}

	var dups []Duplicate
	for key, scores := range dupScores {
		dups = append(dups, Duplicate{
			Rater:   key.Rater,
			Unit:    key.Unit,
			Variant: key.Variant,
			Scores:  scores,
		})
	}
	return answers, dups, nil
}

// findDisagreements groups answers by (scenario, variant) and keeps the
// groups where two or more raters disagree on the score.
func findDisagreements(answers []types.RaterAnswer) []Disagreement {
	type itemKey struct {
		unit    types.UnitID
		variant types.Variant
	}
	scores := make(map[itemKey]map[string]int)
	for _, a := range answers {
		key := itemKey{unit: a.Unit, variant: a.Variant}
		if scores[key] == nil {
			scores[key] = make(map[string]int)
		}
		scores[key][a.Rater] = a.Score
	}

	var out []Disagreement
	for key, byRater := range scores {
		if len(byRater) < 2 || allEqual(byRater) {
			continue
		}
		out = append(out, Disagreement{Unit: key.unit, Variant: key.variant, Scores: byRater})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Unit != out[j].Unit {
			return out[i].Unit.Less(out[j].Unit)
		}
		return out[i].Variant < out[j].Variant
	})
	return out
}

func allEqual(scores map[string]int) bool {
	var first int
	started := false
	for _, s := range scores {
		if !started {
			first = s
			started = true
			continue
		}
		if s != first {
			return false
		}
	}
	return true
}

func sortDuplicates(dups []Duplicate) {
	sort.Slice(dups, func(i, j int) bool {
		if dups[i].Rater != dups[j].Rater {
			return dups[i].Rater < dups[j].Rater
		}
		if dups[i].Unit != dups[j].Unit {
			return dups[i].Unit.Less(dups[j].Unit)
		}
		return dups[i].Variant < dups[j].Variant
	})
}

package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pemstudy/internal/types"
)

// FilterStats summarizes one filtering pass. Skipped rows are counted per
// reason; none of them abort the run.
type FilterStats struct {
	Scanned      int `json:"scanned"`
	Eligible     int `json:"eligible"`
	NotTop       int `json:"not_top"`
	Malformed    int `json:"malformed"`
	Duplicates   int `json:"duplicates"`
	SourcesKept  int `json:"sources_kept"`
	SourceMisses int `json:"source_misses"`
}

// Filter reads every first-error row of the raw store, applies the
// eligibility rules, and writes the survivors into the eligible store:
//   - the diagnostic's category is in the top-categories whitelist;
//   - the row parses (positions, non-empty path and text) — malformed rows
//     are skipped and counted, never fatal;
//   - one record per (srcml_path, version) — duplicates are dropped.
//
// When the raw store carries a local sources dump, the surviving units'
// source text is copied across so downstream stages need only one artifact.
func Filter(ctx context.Context, raw *RawStore, eligible *EligibleStore, logger *zap.Logger) (FilterStats, error) {
	var stats FilterStats

	if err := eligible.WriteTopMessages(ctx, TopCategories); err != nil {
		return stats, err
	}

	hasSources, err := raw.HasSources()
	if err != nil {
		return stats, err
	}

	err = raw.FirstErrors(ctx, func(row RawRow) error {
		stats.Scanned++

		record, reason := eligibleRecord(row)
		if reason != "" {
			stats.Malformed++
			logger.Warn("skipping malformed raw row",
				zap.String("srcml_path", row.SrcmlPath),
				zap.Int64("version", row.Version),
				zap.String("reason", reason))
			return nil
		}

		sanitized, javacName, category := Categorize(row.Text)
		if !IsTopCategory(category) {
			stats.NotTop++
			return nil
		}
		record.SanitizedText = sanitized
		record.JavacName = javacName

		inserted, err := eligible.InsertRecord(ctx, record)
		if err != nil {
			return err
		}
		if !inserted {
			stats.Duplicates++
			logger.Warn("duplicate unit in raw store",
				zap.String("unit", record.Unit().String()))
			return nil
		}
		stats.Eligible++

		if hasSources {
			source, err := raw.SourceFor(ctx, record.Unit())
			if err != nil {
				stats.SourceMisses++
				return nil
			}
			if err := eligible.InsertSource(ctx, record.Unit(), source); err != nil {
				return err
			}
			stats.SourcesKept++
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("filter pass failed: %w", err)
	}

	logger.Info("filter complete",
		zap.Int("scanned", stats.Scanned),
		zap.Int("eligible", stats.Eligible),
		zap.Int("not_top", stats.NotTop),
		zap.Int("malformed", stats.Malformed),
		zap.Int("duplicates", stats.Duplicates))

	return stats, nil
}

// eligibleRecord parses one raw row, returning a skip reason for rows that
// cannot be represented as an ErrorRecord.
func eligibleRecord(row RawRow) (types.ErrorRecord, string) {
	if row.SrcmlPath == "" {
		return types.ErrorRecord{}, "empty srcml_path"
	}
	if row.Text == "" {
		return types.ErrorRecord{}, "empty message text"
	}
	start, err := types.ParsePosition(row.Start)
	if err != nil {
		return types.ErrorRecord{}, fmt.Sprintf("bad start position: %v", err)
	}
	end, err := types.ParsePosition(row.End)
	if err != nil {
		return types.ErrorRecord{}, fmt.Sprintf("bad end position: %v", err)
	}
	return types.ErrorRecord{
		SrcmlPath: row.SrcmlPath,
		Version:   row.Version,
		Start:     start,
		End:       end,
		Text:      row.Text,
	}, ""
}

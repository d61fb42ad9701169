package enhance

import (
	"fmt"

	"go.uber.org/zap"

	"pemstudy/internal/bundle"
	"pemstudy/internal/types"
)

// MergeConflict records a checkpoint that disagrees with a message already
// present in the bundle for the same (scenario, variant). The bundle keeps
// its original message; conflicts are surfaced, never resolved silently.
type MergeConflict struct {
	Unit    types.UnitID  `json:"unit"`
	Variant types.Variant `json:"variant"`
}

// MergeStats summarizes one merge pass.
type MergeStats struct {
	Applied        int             `json:"applied"`
	AlreadyPresent int             `json:"already_present"`
	Unmatched      int             `json:"unmatched"`
	Conflicts      []MergeConflict `json:"conflicts,omitempty"`
}

// Merge folds the checkpointed generations for one variant back into the
// canonical bundle collection. Category-scoped checkpoints fan out to every
// scenario of their category. A message already recorded in the bundle is
// never overwritten: an identical checkpoint counts as already present, a
// differing one is a conflict.
func Merge(coll *bundle.Collection, dir string, variant types.Variant, logger *zap.Logger) (MergeStats, error) {
	var stats MergeStats

	checkpoints, err := readCheckpoints(dir, variant)
	if err != nil {
		return stats, err
	}

	for _, cp := range checkpoints {
		if cp.Variant != variant {
			continue
		}
		msg := types.GeneratedMessage{
			Text:        cp.Message,
			Model:       cp.Model,
			GeneratedAt: cp.GeneratedAt,
		}

		if cp.Unit == nil {
			// Category-scoped: apply to every scenario of the category.
			matched := false
			for _, s := range coll.Scenarios {
				if s.Category != cp.Category {
					continue
				}
				matched = true
				applyMessage(s, variant, msg, &stats)
			}
			if !matched {
				stats.Unmatched++
				logger.Warn("checkpoint matches no scenario",
					zap.String("pem_category", cp.Category),
					zap.String("variant", string(variant)))
			}
			continue
		}

		s := coll.Find(*cp.Unit)
		if s == nil {
			stats.Unmatched++
			logger.Warn("checkpoint matches no scenario",
				zap.String("unit", cp.Unit.String()),
				zap.String("variant", string(variant)))
			continue
		}
		applyMessage(s, variant, msg, &stats)
	}

	logger.Info("merge complete",
		zap.String("variant", string(variant)),
		zap.Int("applied", stats.Applied),
		zap.Int("already_present", stats.AlreadyPresent),
		zap.Int("conflicts", len(stats.Conflicts)))

	if len(stats.Conflicts) > 0 {
		return stats, fmt.Errorf("%w: %d checkpoint(s) disagree with recorded messages",
			types.ErrConflict, len(stats.Conflicts))
	}
	return stats, nil
}

func applyMessage(s *types.Scenario, variant types.Variant, msg types.GeneratedMessage, stats *MergeStats) {
	if existing, ok := s.Messages[variant]; ok {
		if existing.Text == msg.Text {
			stats.AlreadyPresent++
		} else {
			stats.Conflicts = append(stats.Conflicts, MergeConflict{Unit: s.Unit, Variant: variant})
		}
		return
	}
	s.SetMessage(variant, msg)
	stats.Applied++
}

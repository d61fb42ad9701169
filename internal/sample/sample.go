// Package sample draws the frozen, reproducible stratified sample of
// contexts from the category index. The draw is a pure function of
// (index, seed, per-category target); the study depends on being able to
// regenerate the identical sample long after the original run.
package sample

import (
	"math/rand"

	"pemstudy/internal/index"
	"pemstudy/internal/types"
)

// Draw selects up to perCategory contexts from every category, without
// replacement, using a partial Fisher-Yates shuffle seeded once for the
// whole pass. Categories are visited in index order, so the same
// (index, seed, perCategory) triple always yields the same items in the
// same order. Categories with fewer contexts than the target contribute
// everything they have.
func Draw(idx *index.Index, seed int64, perCategory int) []types.SampleItem {
	rng := rand.New(rand.NewSource(seed))

	var items []types.SampleItem
	for _, group := range idx.Categories {
		contexts := make([]types.Context, len(group.Contexts))
		copy(contexts, group.Contexts)

		k := perCategory
		if k > len(contexts) {
			k = len(contexts)
		}

		for i := 0; i < k; i++ {
			j := i + rng.Intn(len(contexts)-i)
			contexts[i], contexts[j] = contexts[j], contexts[i]
			items = append(items, types.SampleItem{
				Category: group.Category,
				Unit:     contexts[i].Unit,
			})
		}
	}
	return items
}

// PerCategoryCounts tallies how many items each category contributed.
func PerCategoryCounts(items []types.SampleItem) map[string]int {
	counts := make(map[string]int)
	for _, item := range items {
		counts[item.Category]++
	}
	return counts
}

// Package assign splits the enhanced scenario collection into per-rater
// work lists: a small pilot batch every rater sees, for agreement
// calibration, and a full batch partitioned across raters.
package assign

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"

	"pemstudy/internal/bundle"
	"pemstudy/internal/types"
)

// Options configures one scheduling run. The same options over the same
// collection always produce the same assignments.
type Options struct {
	Raters    []string
	PilotSize int
	// Overlap is how many raters judge each full-batch scenario. 1 keeps
	// the full batch disjoint; higher values duplicate scenarios for
	// inter-rater reliability and are recorded on each assignment.
	Overlap int
	Seed    int64
}

// Build partitions the collection and produces one assignment per rater,
// in the raters' given order. Pilot scenarios go to everyone; each full
// scenario goes to exactly Overlap raters, dealt round-robin so work is
// balanced. Presentation order groups items by category and shuffles
// within each category with a rater-specific seed, so no two raters see
// the same ordering.
func Build(coll *bundle.Collection, opts Options) ([]types.Assignment, error) {
	if len(opts.Raters) == 0 {
		return nil, fmt.Errorf("at least one rater is required")
	}
	seen := make(map[string]bool, len(opts.Raters))
	for _, r := range opts.Raters {
		if r == "" {
			return nil, fmt.Errorf("rater names must be non-empty")
		}
		if seen[r] {
			return nil, fmt.Errorf("duplicate rater %q", r)
		}
		seen[r] = true
	}
	if opts.Overlap < 1 {
		opts.Overlap = 1
	}
	if opts.Overlap > len(opts.Raters) {
		return nil, fmt.Errorf("overlap %d exceeds rater count %d", opts.Overlap, len(opts.Raters))
	}
	if opts.PilotSize < 0 {
		return nil, fmt.Errorf("pilot size must be non-negative")
	}
	if opts.PilotSize > len(coll.Scenarios) {
		return nil, fmt.Errorf("pilot size %d exceeds scenario count %d", opts.PilotSize, len(coll.Scenarios))
	}

	pilot, full := partition(coll, opts.PilotSize, opts.Seed)

	// Deal each full scenario to Overlap consecutive raters, advancing one
	// position per scenario.
	perRater := make(map[string][]*types.Scenario, len(opts.Raters))
	for i, s := range full {
		for j := 0; j < opts.Overlap; j++ {
			r := opts.Raters[(i+j)%len(opts.Raters)]
			perRater[r] = append(perRater[r], s)
		}
	}

	assignments := make([]types.Assignment, 0, len(opts.Raters))
	for _, r := range opts.Raters {
		scenarios := append(append([]*types.Scenario{}, pilot...), perRater[r]...)
		assignments = append(assignments, types.Assignment{
			Rater:   r,
			Overlap: opts.Overlap,
			Items:   presentationOrder(scenarios, raterSeed(opts.Seed, r)),
		})
	}
	return assignments, nil
}

// partition draws the pilot batch with a seeded permutation and returns
// both batches in collection order, so category grouping downstream stays
// stable.
func partition(coll *bundle.Collection, pilotSize int, seed int64) (pilot, full []*types.Scenario) {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(coll.Scenarios))

	pilotIdx := append([]int{}, perm[:pilotSize]...)
	fullIdx := append([]int{}, perm[pilotSize:]...)
	sort.Ints(pilotIdx)
	sort.Ints(fullIdx)

	for _, i := range pilotIdx {
		pilot = append(pilot, coll.Scenarios[i])
	}
	for _, i := range fullIdx {
		full = append(full, coll.Scenarios[i])
	}
	return pilot, full
}

// presentationOrder expands scenarios into (scenario, variant) items,
// grouped by category in first-appearance order, with the items of each
// category shuffled by the rater's own stream. Shuffling covers variants
// too: a rater never judges one scenario's four messages back to back.
func presentationOrder(scenarios []*types.Scenario, seed int64) []types.AssignmentItem {
	var categories []string
	groups := make(map[string][]types.AssignmentItem)

	for _, s := range scenarios {
		if _, ok := groups[s.Category]; !ok {
			categories = append(categories, s.Category)
		}
		for _, v := range types.AllVariants {
			if !s.HasMessage(v) {
				continue
			}
			groups[s.Category] = append(groups[s.Category], types.AssignmentItem{
				Category: s.Category,
				Unit:     s.Unit,
				Variant:  v,
			})
		}
	}

	rng := rand.New(rand.NewSource(seed))
	var items []types.AssignmentItem
	for _, cat := range categories {
		group := groups[cat]
		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})
		items = append(items, group...)
	}
	return items
}

// raterSeed derives a per-rater stream from the study seed, so reordering
// the rater list never changes what any one rater sees.
func raterSeed(seed int64, rater string) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d\x00%s", seed, rater)
	return int64(h.Sum64())
}

// Package index builds and persists the category index: every eligible
// context, grouped by PEM category. The index is the data contract between
// filtering and sampling; its serialized form is deterministic so the
// sampler's draws are reproducible.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"pemstudy/internal/store"
	"pemstudy/internal/types"
)

// SchemaVersion identifies the serialized index layout. Readers reject
// versions they do not understand instead of guessing.
const SchemaVersion = 1

// CategoryGroup is one category's deduplicated, ordered context list.
type CategoryGroup struct {
	Category string          `json:"pem_category"`
	Contexts []types.Context `json:"contexts"`
}

// Index maps every eligible context to its PEM category.
type Index struct {
	SchemaVersion int             `json:"schema_version"`
	Categories    []CategoryGroup `json:"categories"`
}

// Build makes one pass over the eligible store and groups its contexts by
// category. Output ordering is fully determined by the input: categories
// sort lexicographically, contexts sort by unit identity. Two builds over
// the same store serialize to identical bytes.
func Build(ctx context.Context, eligible *store.EligibleStore) (*Index, error) {
	groups := make(map[string][]types.Context)
	seen := make(map[string]bool)

	err := eligible.Records(ctx, func(r types.ErrorRecord) error {
		category := r.Category()
		context := types.Context{Unit: r.Unit(), Records: []types.ErrorRecord{r}}

		// Context identity is unit + diagnostic position set.
		dedupeKey := category + "\x00" + context.Unit.String() + "\x00" + context.PositionKey()
		if seen[dedupeKey] {
			return nil
		}
		seen[dedupeKey] = true

		groups[category] = append(groups[category], context)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index build failed: %w", err)
	}

	categories := make([]string, 0, len(groups))
	for category := range groups {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	idx := &Index{SchemaVersion: SchemaVersion}
	for _, category := range categories {
		contexts := groups[category]
		sort.Slice(contexts, func(i, j int) bool {
			return contexts[i].Unit.Less(contexts[j].Unit)
		})
		idx.Categories = append(idx.Categories, CategoryGroup{
			Category: category,
			Contexts: contexts,
		})
	}
	return idx, nil
}

// Lookup returns the context list for one category.
func (idx *Index) Lookup(category string) ([]types.Context, bool) {
	for _, g := range idx.Categories {
		if g.Category == category {
			return g.Contexts, true
		}
	}
	return nil, false
}

// TotalContexts returns the number of contexts across all categories.
func (idx *Index) TotalContexts() int {
	n := 0
	for _, g := range idx.Categories {
		n += len(g.Contexts)
	}
	return n
}

// Save persists the index as a single JSON artifact. The write goes
// through a temp file and rename so a rebuild never leaves a truncated
// index behind.
func (idx *Index) Save(path string) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace index: %w", err)
	}
	return nil
}

// Load reads a persisted index, validating its schema version.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("%w: failed to parse index: %v", types.ErrSchemaMismatch, err)
	}
	if idx.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: index schema version %d, want %d",
			types.ErrSchemaMismatch, idx.SchemaVersion, SchemaVersion)
	}
	return &idx, nil
}

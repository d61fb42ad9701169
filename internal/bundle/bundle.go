// Package bundle materializes sampled contexts into self-contained scenario
// bundles and persists them as one collection artifact. The collection is
// the input to every enhancement coordinator and to assignment.
package bundle

import (
	"encoding/json"
	"fmt"
	"os"

	"pemstudy/internal/types"
)

// SchemaVersion identifies the serialized collection layout.
const SchemaVersion = 1

// Collection is the persisted set of scenario bundles, in sample order.
type Collection struct {
	SchemaVersion int               `json:"schema_version"`
	Scenarios     []*types.Scenario `json:"scenarios"`
}

// Find returns the scenario for a unit, or nil.
func (c *Collection) Find(unit types.UnitID) *types.Scenario {
	for _, s := range c.Scenarios {
		if s.Unit == unit {
			return s
		}
	}
	return nil
}

// ByCategory groups scenarios by PEM category, preserving order within each
// group. Category iteration order follows first appearance in the
// collection.
func (c *Collection) ByCategory() (order []string, groups map[string][]*types.Scenario) {
	groups = make(map[string][]*types.Scenario)
	for _, s := range c.Scenarios {
		if _, seen := groups[s.Category]; !seen {
			order = append(order, s.Category)
		}
		groups[s.Category] = append(groups[s.Category], s)
	}
	return order, groups
}

// Save persists the collection atomically: a half-written bundle file must
// never replace a good one.
func (c *Collection) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bundles: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write bundles: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace bundles: %w", err)
	}
	return nil
}

// Load reads a persisted collection, validating its schema version.
func Load(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundles: %w", err)
	}
	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: failed to parse bundles: %v", types.ErrSchemaMismatch, err)
	}
	if c.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: bundle schema version %d, want %d",
			types.ErrSchemaMismatch, c.SchemaVersion, SchemaVersion)
	}
	return &c, nil
}

package enhance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pemstudy/internal/types"
)

// SchemaVersion identifies the checkpoint file layout.
const SchemaVersion = 1

// Checkpoint records one successfully generated message. One file per
// generation under the checkpoint directory; its existence is what makes
// re-runs idempotent, so it is written atomically after each call and never
// rewritten.
type Checkpoint struct {
	SchemaVersion int           `json:"schema_version"`
	RunID         string        `json:"run_id"`
	Variant       types.Variant `json:"variant"`
	Category      string        `json:"pem_category"`
	// Unit is nil for category-scoped generations (error-only variant,
	// placeholder-free category), which cover every scenario of Category.
	Unit        *types.UnitID `json:"unit,omitempty"`
	Message     string        `json:"message"`
	Model       string        `json:"model,omitempty"`
	Attempts    int           `json:"attempts"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// checkpointKey names the checkpoint file for a scenario and variant.
func checkpointKey(s *types.Scenario, variant types.Variant) string {
	if categoryScoped(variant, s.Category) {
		return fmt.Sprintf("category--%s--%s.json", sanitizeName(s.Category), variant)
	}
	return fmt.Sprintf("%s--%d--%s.json", sanitizeName(s.Unit.SrcmlPath), s.Unit.Version, variant)
}

// sanitizeName flattens a srcml path or category into a filename component.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		" ", "_",
		":", "_",
		"'", "",
		"<", "",
		">", "",
		"(", "",
		")", "",
		"[", ".",
		"]", "",
		",", "",
	)
	return strings.Trim(replacer.Replace(name), "_")
}

// writeCheckpoint persists a checkpoint atomically (temp file + rename):
// a crash mid-write must not leave a half-written file that a later run
// would mistake for completed work.
func writeCheckpoint(dir, key string, cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := filepath.Join(dir, key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit checkpoint: %w", err)
	}
	return nil
}

// checkpointExists reports whether a generation has already been recorded.
func checkpointExists(dir, key string) bool {
	_, err := os.Stat(filepath.Join(dir, key))
	return err == nil
}

// readCheckpoints loads every checkpoint for one variant from the directory.
// A missing directory means no generations have happened yet.
func readCheckpoints(dir string, variant types.Variant) ([]Checkpoint, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var checkpoints []Checkpoint
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if !strings.HasSuffix(strings.TrimSuffix(name, ".json"), "--"+string(variant)) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read checkpoint %s: %w", name, err)
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, fmt.Errorf("%w: corrupt checkpoint %s: %v", types.ErrSchemaMismatch, name, err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, nil
}

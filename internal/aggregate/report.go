package aggregate

import (
	"encoding/json"
	"fmt"
	"os"
)

// WriteReport persists the aggregation report as indented JSON next to the
// consolidated store.
func WriteReport(path string, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode aggregation report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write aggregation report: %w", err)
	}
	return nil
}

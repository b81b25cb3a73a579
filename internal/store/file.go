// File: internal/store/file.go
package store

import (
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/tracepoint/api/schemas"
)

// LoadEventsFile reads a JSON array of events. A leading ~ is expanded.
func LoadEventsFile(path string) ([]schemas.Event, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand events path %q: %w", path, err)
	}
	raw, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}
	var events []schemas.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events file %s: %w", expanded, err)
	}
	for i, e := range events {
		if e.IndividualID == "" {
			return nil, fmt.Errorf("event %d (%s) has no individual_id", i, e.ID)
		}
		if e.Severity < 0 || e.Severity > 1 {
			return nil, fmt.Errorf("event %d (%s) severity %.3f outside [0,1]", i, e.ID, e.Severity)
		}
		if e.ID == "" {
			events[i].ID = fmt.Sprintf("%s-%d", e.IndividualID, i)
		}
	}
	return events, nil
}

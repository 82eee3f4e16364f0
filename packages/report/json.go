package report

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

// JSON writes the full results tree as one machine-readable document.
type JSON struct {
	path string
}

func NewJSON(path string) *JSON {
	return &JSON{path: path}
}

func (j *JSON) Write(run *results.RunResult) error {
	raw, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run result: %w", err)
	}
	return os.WriteFile(j.path, append(raw, '\n'), 0o644)
}

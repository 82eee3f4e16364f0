package metrics

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONExporter writes the measurement set to a file.
type JSONExporter struct {
	path string
}

// NewJSONExporter creates a JSON file exporter.
func NewJSONExporter(path string) *JSONExporter {
	return &JSONExporter{path: path}
}

// Export writes the metrics document.
func (j *JSONExporter) Export(m *RunMetrics) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}
	return os.WriteFile(j.path, append(raw, '\n'), 0o644)
}

// Close is a no-op; the file is written atomically per export.
func (j *JSONExporter) Close() error {
	return nil
}

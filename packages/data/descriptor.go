package data

import (
	"encoding/json"
	"fmt"
)

// Kind identifies where a data source's rows come from.
type Kind string

const (
	KindInline   Kind = "inline"
	KindCSV      Kind = "csv"
	KindTSV      Kind = "tsv"
	KindXLSX     Kind = "xlsx"
	KindJSON     Kind = "json"
	KindDatabase Kind = "database"
)

// Descriptor describes a data source. Exactly one of Data (inline) or Source
// (file path) or Query+Connection (database) is expected depending on Type.
type Descriptor struct {
	Type   Kind             `json:"type" yaml:"type"`
	Source string           `json:"source,omitempty" yaml:"source,omitempty"`
	Data   []map[string]any `json:"data,omitempty" yaml:"data,omitempty"`

	// Filter is a gjson array-query expression applied after loading,
	// e.g. `role=="admin"` or `age>30`.
	Filter string `json:"filter,omitempty" yaml:"filter,omitempty"`

	// Sheet selects the worksheet for xlsx sources. Defaults to the first
	// sheet in the workbook.
	Sheet string `json:"sheet,omitempty" yaml:"sheet,omitempty"`

	// Path is a gjson path into a JSON document when the row array is not at
	// the document root.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	Query      string `json:"query,omitempty" yaml:"query,omitempty"`
	Connection string `json:"connection,omitempty" yaml:"connection,omitempty"`

	// Schema is an optional JSON Schema file; every loaded row must
	// validate against it.
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Validate checks the descriptor is internally consistent.
func (d *Descriptor) Validate() error {
	switch d.Type {
	case KindInline:
		if d.Data == nil {
			return fmt.Errorf("inline data source requires data rows")
		}
	case KindCSV, KindTSV, KindXLSX, KindJSON:
		if d.Source == "" {
			return fmt.Errorf("%s data source requires a source path", d.Type)
		}
	case KindDatabase:
		if d.Query == "" || d.Connection == "" {
			return fmt.Errorf("database data source requires query and connection")
		}
	case "":
		return fmt.Errorf("data source type is required")
	default:
		return fmt.Errorf("unknown data source type %q", d.Type)
	}
	return nil
}

// Key returns a stable cache key for the descriptor. Two descriptors with
// the same key resolve to the same row sequence within one run.
func (d *Descriptor) Key() string {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("%#v", d)
	}
	return string(b)
}

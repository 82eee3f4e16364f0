package data

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Loader resolves descriptors into row sequences, caching per descriptor key
// for the lifetime of the loader (one run).
type Loader struct {
	mu    sync.Mutex
	cache map[string][]map[string]any
}

// NewLoader returns an empty loader. Construct one per run; the cache is the
// run-scoped guarantee that a descriptor is read at most once.
func NewLoader() *Loader {
	return &Loader{cache: map[string][]map[string]any{}}
}

// Load resolves the descriptor into its ordered rows. A load failure is
// returned to the caller, which turns it into a synthetic failed result for
// the owning tests rather than aborting the run.
func (l *Loader) Load(d *Descriptor) ([]map[string]any, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	key := d.Key()
	l.mu.Lock()
	if rows, ok := l.cache[key]; ok {
		l.mu.Unlock()
		return rows, nil
	}
	l.mu.Unlock()

	rows, err := l.resolve(d)
	if err != nil {
		return nil, fmt.Errorf("loading %s data source: %w", d.Type, err)
	}

	if d.Filter != "" {
		rows, err = applyFilter(rows, d.Filter)
		if err != nil {
			return nil, fmt.Errorf("applying filter %q: %w", d.Filter, err)
		}
	}

	if d.Schema != "" {
		if err := validateRows(rows, d.Schema); err != nil {
			return nil, err
		}
	}

	l.mu.Lock()
	l.cache[key] = rows
	l.mu.Unlock()
	return rows, nil
}

// LoadRows is Load with the rows wrapped for access recording. Each call
// returns fresh Row wrappers over the shared cached values.
func (l *Loader) LoadRows(d *Descriptor) ([]*Row, error) {
	raw, err := l.Load(d)
	if err != nil {
		return nil, err
	}
	rows := make([]*Row, len(raw))
	for i, m := range raw {
		rows[i] = NewRow(m)
	}
	return rows, nil
}

func (l *Loader) resolve(d *Descriptor) ([]map[string]any, error) {
	switch d.Type {
	case KindInline:
		// Round-trip through JSON so inline rows look identical to rows that
		// crossed a worker process boundary.
		return jsonRoundTrip(d.Data)
	case KindCSV:
		return loadDelimited(d.Source, ',')
	case KindTSV:
		return loadDelimited(d.Source, '\t')
	case KindXLSX:
		return loadSheet(d.Source, d.Sheet)
	case KindJSON:
		return loadJSON(d.Source, d.Path)
	case KindDatabase:
		return loadQuery(d.Connection, d.Query)
	default:
		return nil, fmt.Errorf("unknown data source type %q", d.Type)
	}
}

func validateRows(rows []map[string]any, schemaPath string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewReferenceLoader("file://" + schemaPath))
	if err != nil {
		return fmt.Errorf("loading schema %s: %w", schemaPath, err)
	}
	for i, row := range rows {
		result, err := schema.Validate(gojsonschema.NewGoLoader(row))
		if err != nil {
			return fmt.Errorf("validating row %d: %w", i+1, err)
		}
		if !result.Valid() {
			errs := result.Errors()
			if len(errs) > 0 {
				return fmt.Errorf("row %d does not match schema: %s", i+1, errs[0].String())
			}
			return fmt.Errorf("row %d does not match schema", i+1)
		}
	}
	return nil
}

// jsonRoundTrip normalizes arbitrary row values to JSON-compatible shapes so
// cached rows look identical whether they crossed a process boundary or not.
func jsonRoundTrip(rows []map[string]any) ([]map[string]any, error) {
	b, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

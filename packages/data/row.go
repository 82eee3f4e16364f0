package data

import (
	"fmt"
	"sort"
	"sync"
)

// Row is one data row handed to a test body. Get records which columns were
// accessed; the recording is the explicit replacement for proxy-based
// property interception and feeds the per-result annotations.
type Row struct {
	mu       sync.Mutex
	values   map[string]any
	accessed map[string]struct{}
}

// NewRow wraps a value map. A nil map yields an empty row.
func NewRow(values map[string]any) *Row {
	if values == nil {
		values = map[string]any{}
	}
	return &Row{values: values, accessed: map[string]struct{}{}}
}

// EmptyRow returns a row with no columns, used when a test runs exactly once.
func EmptyRow() *Row {
	return NewRow(nil)
}

// Get returns the value for key (nil when absent) and records the access.
func (r *Row) Get(key string) any {
	r.mu.Lock()
	r.accessed[key] = struct{}{}
	v := r.values[key]
	r.mu.Unlock()
	return v
}

// String returns the value for key formatted as a string.
func (r *Row) String(key string) string {
	v := r.Get(key)
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// Lookup returns the value for key without recording the access. Name
// interpolation uses this so a {placeholder} in a title does not count as
// the test body reading data.
func (r *Row) Lookup(key string) (any, bool) {
	r.mu.Lock()
	v, ok := r.values[key]
	r.mu.Unlock()
	return v, ok
}

// Has reports whether the row contains key, without recording an access.
func (r *Row) Has(key string) bool {
	_, ok := r.Lookup(key)
	return ok
}

// Keys returns the row's column names, sorted.
func (r *Row) Keys() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of columns.
func (r *Row) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Accessed returns the recorded column accesses, sorted.
func (r *Row) Accessed() []string {
	r.mu.Lock()
	keys := make([]string, 0, len(r.accessed))
	for k := range r.accessed {
		keys = append(keys, k)
	}
	r.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Values returns a copy of the underlying map, for serialization across the
// worker process boundary.
func (r *Row) Values() map[string]any {
	r.mu.Lock()
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	r.mu.Unlock()
	return out
}

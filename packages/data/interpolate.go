package data

import (
	"fmt"
	"regexp"
)

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// IterationInfo describes one data-driven iteration for report display.
type IterationInfo struct {
	Index int // 1-based
	Total int
	Kind  Kind
	Row   *Row
}

// CreateIterationInfo builds the metadata for one row of a resolved source.
func CreateIterationInfo(row *Row, index, total int, d *Descriptor) IterationInfo {
	info := IterationInfo{Index: index + 1, Total: total, Row: row}
	if d != nil {
		info.Kind = d.Type
	}
	return info
}

// InterpolateName substitutes {key} tokens in a test name template with row
// values. Tokens whose key is absent from the row keep their literal text, so
// a malformed template stays visible in the report instead of crashing the
// run. Substituted values contain no brace tokens of their own, which makes
// re-interpolation of an already-interpolated name a no-op.
func InterpolateName(template string, row *Row) string {
	if row == nil {
		return template
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(token string) string {
		key := token[1 : len(token)-1]
		v, ok := row.Lookup(key)
		if !ok {
			return token
		}
		return fmt.Sprintf("%v", v)
	})
}

// DisplayName builds the final per-iteration display name: the interpolated
// template plus an iteration marker when the test expanded to multiple rows.
func DisplayName(template string, info IterationInfo) string {
	name := InterpolateName(template, info.Row)
	if info.Total > 1 {
		name = fmt.Sprintf("%s [Iteration %d/%d]", name, info.Index, info.Total)
	}
	return name
}

package runner

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/mohammed-a-khan/ptf/packages/core/registry"
)

// Filter selects which registered tests a run includes. Zero value matches
// everything.
type Filter struct {
	// Tags matches tests carrying any of the listed tags (own or inherited).
	Tags []string
	// Grep matches the display-template name with * wildcards.
	Grep string
	// Paths matches the full suite path plus name against doublestar
	// patterns, e.g. "Login/**" or "**/checkout*".
	Paths []string
}

// Matches reports whether the test passes every configured dimension.
func (f Filter) Matches(t *registry.Test) bool {
	if len(f.Tags) > 0 && !hasAnyTag(t.AllTags(), f.Tags) {
		return false
	}
	if f.Grep != "" && !matchesPattern(t.Name, f.Grep) {
		return false
	}
	if len(f.Paths) > 0 {
		full := t.ID()
		ok := false
		for _, p := range f.Paths {
			if matched, err := doublestar.Match(p, full); err == nil && matched {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func hasAnyTag(tags []string, filters []string) bool {
	for _, filter := range filters {
		for _, tag := range tags {
			if tag == filter {
				return true
			}
		}
	}
	return false
}

// matchesPattern supports leading/trailing/both * wildcards, else exact.
func matchesPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	starPrefix := strings.HasPrefix(pattern, "*")
	starSuffix := strings.HasSuffix(pattern, "*")
	core := strings.Trim(pattern, "*")
	switch {
	case starPrefix && starSuffix:
		return strings.Contains(name, core)
	case starPrefix:
		return strings.HasSuffix(name, core)
	case starSuffix:
		return strings.HasPrefix(name, core)
	default:
		return name == pattern
	}
}

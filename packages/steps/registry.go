// Package steps maps Gherkin step text onto handler functions. Matching is
// deliberately thin: `{param}` placeholders capture whitespace-delimited or
// quoted values, and the first registered pattern that matches wins.
package steps

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mohammed-a-khan/ptf/packages/core/runtime"
)

// Handler executes one matched step. args holds the captured placeholder
// values in pattern order.
type Handler func(t *runtime.T, args ...string) error

// defaultRegistry backs the package-level registration functions. Projects
// register step definitions from init() and the CLI binds feature files to
// this registry.
var defaultRegistry = NewRegistry()

// Default returns the shared registry.
func Default() *Registry { return defaultRegistry }

// Register adds a step definition to the shared registry.
func Register(pattern string, fn Handler) error {
	return defaultRegistry.Register(pattern, fn)
}

// MustRegister is Register on the shared registry, panicking on a bad
// pattern. Use from init().
func MustRegister(pattern string, fn Handler) {
	defaultRegistry.MustRegister(pattern, fn)
}

type entry struct {
	pattern string
	re      *regexp.Regexp
	fn      Handler
}

// Registry holds step definitions in registration order.
type Registry struct {
	entries []entry
}

// NewRegistry creates an empty step registry.
func NewRegistry() *Registry {
	return &Registry{}
}

var placeholderRe = regexp.MustCompile(`\\\{[^{}]+\\\}`)

// Register adds a step definition. Pattern placeholders look like
// `{username}`; a quoted value in the step text captures without its quotes.
func (r *Registry) Register(pattern string, fn Handler) error {
	if fn == nil {
		return fmt.Errorf("step %q has no handler", pattern)
	}
	escaped := regexp.QuoteMeta(strings.TrimSpace(pattern))
	expr := placeholderRe.ReplaceAllString(escaped, `"?([^"]+?)"?`)
	re, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return fmt.Errorf("compiling step pattern %q: %w", pattern, err)
	}
	r.entries = append(r.entries, entry{pattern: pattern, re: re, fn: fn})
	return nil
}

// MustRegister is Register that panics on a bad pattern. Use from init().
func (r *Registry) MustRegister(pattern string, fn Handler) {
	if err := r.Register(pattern, fn); err != nil {
		panic(err)
	}
}

// Match finds the handler for a step text and the captured arguments.
func (r *Registry) Match(text string) (Handler, []string, error) {
	text = strings.TrimSpace(text)
	for _, e := range r.entries {
		if m := e.re.FindStringSubmatch(text); m != nil {
			return e.fn, m[1:], nil
		}
	}
	return nil, nil, fmt.Errorf("no step definition matches %q", text)
}

// Patterns returns the registered patterns in order, for `ptf list`.
func (r *Registry) Patterns() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.pattern)
	}
	return out
}

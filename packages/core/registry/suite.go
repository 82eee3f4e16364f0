package registry

import (
	"strings"
	"time"

	"github.com/mohammed-a-khan/ptf/packages/data"
)

// Child is a node in a suite's ordered child list: either *Test or *Suite.
// Registration order is preserved; serial semantics depend on it.
type Child interface {
	childName() string
}

// Suite is one describe block: a named grouping of tests, nested suites and
// hooks. Immutable after its body finishes executing.
type Suite struct {
	Name    string
	Options SuiteOptions
	Parent  *Suite // non-owning back-reference; nil for the unit root

	Children []Child

	BeforeAll  []HookFunc
	AfterAll   []HookFunc
	BeforeEach []HookFunc
	AfterEach  []HookFunc
}

func (s *Suite) childName() string { return s.Name }

// Test is one registered test definition. One node may yield multiple
// results via data iteration.
type Test struct {
	Name    string // may contain {placeholder} tokens
	Options TestOptions
	Fn      TestFunc
	Suite   *Suite   // owning suite
	Path    []string // ancestor suite names, root first
}

func (t *Test) childName() string { return t.Name }

// ID returns the stable identifier for the test: its ancestor path joined
// with the template name. Workers locate nodes by this id in their freshly
// rebuilt trees.
func (t *Test) ID() string {
	return strings.Join(append(append([]string{}, t.Path...), t.Name), "/")
}

// Tests returns the suite's direct test children in registration order.
func (s *Suite) Tests() []*Test {
	var out []*Test
	for _, c := range s.Children {
		if t, ok := c.(*Test); ok {
			out = append(out, t)
		}
	}
	return out
}

// Suites returns the suite's direct child suites in registration order.
func (s *Suite) Suites() []*Suite {
	var out []*Suite
	for _, c := range s.Children {
		if child, ok := c.(*Suite); ok {
			out = append(out, child)
		}
	}
	return out
}

// PathNames returns the ancestor chain including the suite itself, root
// first.
func (s *Suite) PathNames() []string {
	if s.Parent == nil {
		return []string{s.Name}
	}
	return append(s.Parent.PathNames(), s.Name)
}

// Mode returns the effective execution mode, inherited from the nearest
// ancestor that sets one.
func (s *Suite) Mode() Mode {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Options.Mode != ModeDefault {
			return cur.Options.Mode
		}
	}
	return ModeDefault
}

// Enabled reports whether the suite and all its ancestors are enabled.
func (s *Suite) Enabled() bool {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Options.Enabled != nil && !*cur.Options.Enabled {
			return false
		}
		if cur.Options.Skip {
			return false
		}
	}
	return true
}

// Fixme reports whether any ancestor marks the subtree fixme.
func (s *Suite) Fixme() bool {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Options.Fixme {
			return true
		}
	}
	return false
}

// DataSource returns the nearest suite-level data descriptor on the
// ancestor chain.
func (s *Suite) DataSource() *data.Descriptor {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Options.Data != nil {
			return cur.Options.Data
		}
	}
	return nil
}

// Walk visits every test in the subtree in registration order.
func (s *Suite) Walk(fn func(*Test)) {
	for _, c := range s.Children {
		switch node := c.(type) {
		case *Test:
			fn(node)
		case *Suite:
			node.Walk(fn)
		}
	}
}

// AllTags returns the test's tags merged with every ancestor suite's tags.
func (t *Test) AllTags() []string {
	seen := map[string]struct{}{}
	var tags []string
	add := func(list []string) {
		for _, tag := range list {
			if _, ok := seen[tag]; !ok {
				seen[tag] = struct{}{}
				tags = append(tags, tag)
			}
		}
	}
	add(t.Options.Tags)
	for cur := t.Suite; cur != nil; cur = cur.Parent {
		add(cur.Options.Tags)
	}
	return tags
}

// EffectiveTimeout resolves the timeout for the test: its own, else the
// nearest ancestor suite's, else the given default. The slow multiplier is
// applied by the runner, not here.
func (t *Test) EffectiveTimeout(def time.Duration) time.Duration {
	if t.Options.Timeout > 0 {
		return t.Options.Timeout
	}
	for cur := t.Suite; cur != nil; cur = cur.Parent {
		if cur.Options.Timeout > 0 {
			return cur.Options.Timeout
		}
	}
	return def
}

// EffectiveRetries resolves the retry count the same way.
func (t *Test) EffectiveRetries(def int) int {
	if t.Options.Retries != nil {
		return *t.Options.Retries
	}
	for cur := t.Suite; cur != nil; cur = cur.Parent {
		if cur.Options.Retries != nil {
			return *cur.Options.Retries
		}
	}
	return def
}

// DataSource returns the descriptor driving this test's iteration: its own
// override, else the suite-level source when the test opted in.
func (t *Test) DataSource() *data.Descriptor {
	if t.Options.Data != nil {
		return t.Options.Data
	}
	if !t.usesSuiteData() {
		return nil
	}
	return t.Suite.DataSource()
}

// ShouldIterate reports whether the test expands one result per data row.
// A test-level source always iterates. A suite-level source applies when
// the test opts in with UseData or statically declares Columns; with
// neither, the test runs exactly once with an empty row. This is the
// documented best-effort default: a body that reads data through a helper
// without declaring columns runs once, and UseData is the escape valve.
func (t *Test) ShouldIterate() bool {
	if t.Options.Data != nil {
		return true
	}
	return t.usesSuiteData()
}

func (t *Test) usesSuiteData() bool {
	if t.Suite.DataSource() == nil {
		return false
	}
	if t.Options.UseData != nil {
		return *t.Options.UseData
	}
	return len(t.Options.Columns) > 0
}

// Disabled reports whether the test is statically excluded from execution.
func (t *Test) Disabled() bool {
	return t.Options.Skip || !t.Suite.Enabled()
}

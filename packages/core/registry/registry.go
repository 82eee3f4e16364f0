// Package registry holds the in-memory registration model: an ordered tree
// of suite and test nodes built by executing user registration code once per
// unit. Registration is single-threaded and synchronous; the explicit suite
// stack (not closures) is what allows arbitrarily deep nesting.
//
// Spec units register a build function from init(). The tree itself is never
// shared across processes: each worker, and the main process per unit, calls
// Build to reconstruct it fresh.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// BuildFunc populates a Builder with one unit's suites and tests.
type BuildFunc func(*Builder)

var (
	catalogMu sync.Mutex
	catalog   = map[string]BuildFunc{}
	order     []string
)

// Register adds a unit's build function to the catalog. Call it from init()
// in the spec file. Registering the same unit twice panics: it is a
// programming error in the test project.
func Register(unit string, build BuildFunc) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	if _, dup := catalog[unit]; dup {
		panic(fmt.Sprintf("registry: unit %q registered twice", unit))
	}
	catalog[unit] = build
	order = append(order, unit)
}

// Units returns the registered unit names in registration order.
func Units() []string {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	out := make([]string, len(order))
	copy(out, order)
	return out
}

// Build reconstructs the unit's registration tree from scratch. This is the
// per-worker rebuild: the returned tree shares nothing with any previous
// build.
func Build(unit string) (*Suite, error) {
	catalogMu.Lock()
	build, ok := catalog[unit]
	catalogMu.Unlock()
	if !ok {
		known := Units()
		sort.Strings(known)
		return nil, fmt.Errorf("registry: unknown unit %q (registered: %v)", unit, known)
	}

	b := NewBuilder(unit)
	build(b)
	if err := b.Err(); err != nil {
		return nil, err
	}
	return b.Root(), nil
}

// Clear wipes the unit catalog. Used by tests that register ad hoc units.
func Clear() {
	catalogMu.Lock()
	catalog = map[string]BuildFunc{}
	order = nil
	catalogMu.Unlock()
}

// Builder constructs one unit's tree. All methods must be called from the
// single goroutine executing the build function.
type Builder struct {
	root  *Suite
	stack []*Suite
	wf    []*workflowState // parallel to stack; nil entries for plain suites
	err   error
}

// NewBuilder returns a builder whose root suite carries the unit name.
func NewBuilder(unit string) *Builder {
	root := &Suite{Name: unit}
	return &Builder{root: root, stack: []*Suite{root}, wf: []*workflowState{nil}}
}

// Root returns the unit's root suite.
func (b *Builder) Root() *Suite { return b.root }

// Err returns the first misuse error recorded during the build.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

func (b *Builder) top() *Suite {
	return b.stack[len(b.stack)-1]
}

// Describe opens a nested suite and executes body immediately; any Test,
// hook or Describe calls inside body nest under it.
func (b *Builder) Describe(name string, opts SuiteOptions, body func()) {
	parent := b.top()
	s := &Suite{Name: name, Options: opts, Parent: parent}
	parent.Children = append(parent.Children, s)

	b.stack = append(b.stack, s)
	b.wf = append(b.wf, nil)
	body()
	b.stack = b.stack[:len(b.stack)-1]
	b.wf = b.wf[:len(b.wf)-1]
}

// Configure mutates the suite currently being described. Calling it outside
// a suite body (directly at unit level counts as the root suite) is allowed;
// the restriction is that it always targets the top of the stack.
func (b *Builder) Configure(opts SuiteOptions) {
	s := b.top()
	if opts.Mode != ModeDefault {
		s.Options.Mode = opts.Mode
	}
	if opts.Timeout > 0 {
		s.Options.Timeout = opts.Timeout
	}
	if opts.Retries != nil {
		s.Options.Retries = opts.Retries
	}
	if opts.Enabled != nil {
		s.Options.Enabled = opts.Enabled
	}
	if opts.Data != nil {
		s.Options.Data = opts.Data
	}
	if len(opts.Tags) > 0 {
		s.Options.Tags = append(s.Options.Tags, opts.Tags...)
	}
	if opts.Skip {
		s.Options.Skip = true
	}
	if opts.Fixme {
		s.Options.Fixme = true
	}
}

// Test registers a test under the currently open suite.
func (b *Builder) Test(name string, opts TestOptions, fn TestFunc) {
	if fn == nil {
		b.fail("registry: test %q has no body", name)
		return
	}
	s := b.top()

	if wf := b.wf[len(b.wf)-1]; wf != nil && !opts.Cleanup {
		wf.wire(s.Name, &opts)
	}

	t := &Test{
		Name:    name,
		Options: opts,
		Fn:      fn,
		Suite:   s,
		Path:    s.PathNames(),
	}
	s.Children = append(s.Children, t)
}

// Cleanup registers a cleanup test: it runs unconditionally, bypassing
// dependency checks and serial failure propagation. Inside a workflow suite
// it is deferred to run after every ordinary step.
func (b *Builder) Cleanup(name string, opts TestOptions, fn TestFunc) {
	opts.Cleanup = true
	b.Test(name, opts, fn)
}

// BeforeAll registers a hook running once before the suite's tests.
func (b *Builder) BeforeAll(fn HookFunc) {
	s := b.top()
	s.BeforeAll = append(s.BeforeAll, fn)
}

// AfterAll registers a hook running once after the suite's tests.
func (b *Builder) AfterAll(fn HookFunc) {
	s := b.top()
	s.AfterAll = append(s.AfterAll, fn)
}

// BeforeEach registers a hook running before every test in the suite and
// its descendants. Outer hooks run before inner ones.
func (b *Builder) BeforeEach(fn HookFunc) {
	s := b.top()
	s.BeforeEach = append(s.BeforeEach, fn)
}

// AfterEach registers a hook running after every test, inner hooks first
// (mirror ordering of BeforeEach).
func (b *Builder) AfterEach(fn HookFunc) {
	s := b.top()
	s.AfterEach = append(s.AfterEach, fn)
}

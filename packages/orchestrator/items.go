package orchestrator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mohammed-a-khan/ptf/packages/core/registry"
	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

// maxAssignments bounds how many workers an item is offered before the
// orchestrator gives up and synthesizes a failure for it.
const maxAssignments = 2

// testRef is the minimum a synthesized result needs when an item never
// reaches a worker.
type testRef struct {
	Name string
	Path []string
	Tags []string
}

// Item is one unit of distributable work: either a single test iteration or
// an entire serial suite.
type Item struct {
	ID   string
	Unit string

	// Single-test fields.
	TestID    string
	Row       map[string]any
	Iteration *results.Iteration

	// Batch fields.
	Batch        bool
	BatchPath    []string
	RowOverrides map[string][]map[string]any

	Refs     []testRef
	attempts int
}

// plan is the full partitioning of a run: distributable items plus results
// resolved at planning time, such as broken data sources.
type plan struct {
	items    []*Item
	resolved []*results.TestResult
}

func (o *Orchestrator) plan(units []string) (*plan, error) {
	p := &plan{}
	for _, unit := range units {
		root, err := registry.Build(unit)
		if err != nil {
			return nil, fmt.Errorf("building unit %q: %w", unit, err)
		}
		o.planSuite(unit, root, p)
	}
	return p, nil
}

// planSuite partitions one suite. Serial suites become atomic batches so
// their ordering and failure-propagation semantics hold inside a single
// process; everything else fans out per test and per data row.
func (o *Orchestrator) planSuite(unit string, s *registry.Suite, p *plan) {
	if !o.suiteHasWork(s) {
		return
	}

	if s.Mode() == registry.ModeSerial {
		tests := o.matchingSubtree(s)
		if len(tests) == 1 && tests[0].ShouldIterate() && tests[0].DataSource() != nil {
			// A serial suite holding exactly one data-driven test has no
			// inter-test ordering to protect, so its iterations fan out.
			o.fanOut(unit, tests[0], p)
			return
		}
		if len(tests) == 1 {
			o.singleItem(unit, tests[0], p)
			return
		}
		p.items = append(p.items, o.batchItem(unit, s, tests))
		return
	}

	for _, t := range s.Tests() {
		if o.filter.Matches(t) {
			o.planTest(unit, t, p)
		}
	}
	for _, child := range s.Suites() {
		o.planSuite(unit, child, p)
	}
}

func (o *Orchestrator) planTest(unit string, t *registry.Test, p *plan) {
	// Statically terminal tests produce one skip result, never one per row,
	// so they stay a single assignment.
	if t.Disabled() || t.Options.Fixme || t.Suite.Fixme() {
		o.singleItem(unit, t, p)
		return
	}
	if t.ShouldIterate() && t.DataSource() != nil {
		o.fanOut(unit, t, p)
		return
	}
	o.singleItem(unit, t, p)
}

func (o *Orchestrator) singleItem(unit string, t *registry.Test, p *plan) {
	p.items = append(p.items, &Item{
		ID:     uuid.NewString(),
		Unit:   unit,
		TestID: t.ID(),
		Refs:   []testRef{{Name: t.Name, Path: t.Path, Tags: t.AllTags()}},
	})
}

// fanOut resolves the test's data source here, in the orchestrator, and
// ships each row inside its own item. A broken source fails the owning test
// at planning time instead of crashing the run.
func (o *Orchestrator) fanOut(unit string, t *registry.Test, p *plan) {
	desc := t.DataSource()
	rows, err := o.loader.LoadRows(desc)
	if err != nil {
		res := syntheticResult(t.Name, t.Path, t.AllTags(), results.StatusFailed)
		res.Error = fmt.Sprintf("resolving data source: %v", err)
		p.resolved = append(p.resolved, res)
		return
	}
	if len(rows) == 0 {
		o.singleItem(unit, t, p)
		return
	}
	for i, row := range rows {
		p.items = append(p.items, &Item{
			ID:     uuid.NewString(),
			Unit:   unit,
			TestID: t.ID(),
			Row:    row.Values(),
			Iteration: &results.Iteration{
				Index: i + 1,
				Total: len(rows),
				Kind:  string(desc.Type),
			},
			Refs: []testRef{{Name: t.Name, Path: t.Path, Tags: t.AllTags()}},
		})
	}
}

// batchItem wraps a serial suite. Data sources of the tests inside are
// resolved up front so every process sees identical rows; a source the
// orchestrator cannot resolve is left out and the worker reports the
// failure itself.
func (o *Orchestrator) batchItem(unit string, s *registry.Suite, tests []*registry.Test) *Item {
	item := &Item{
		ID:        uuid.NewString(),
		Unit:      unit,
		Batch:     true,
		BatchPath: s.PathNames(),
	}
	for _, t := range tests {
		item.Refs = append(item.Refs, testRef{Name: t.Name, Path: t.Path, Tags: t.AllTags()})
		if !t.ShouldIterate() || t.DataSource() == nil || t.Disabled() {
			continue
		}
		rows, err := o.loader.LoadRows(t.DataSource())
		if err != nil {
			o.log.WithField("test", t.ID()).WithError(err).Warn("deferring data source resolution to worker")
			continue
		}
		if item.RowOverrides == nil {
			item.RowOverrides = make(map[string][]map[string]any)
		}
		maps := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			maps = append(maps, row.Values())
		}
		item.RowOverrides[t.ID()] = maps
	}
	return item
}

func (o *Orchestrator) matchingSubtree(s *registry.Suite) []*registry.Test {
	var out []*registry.Test
	s.Walk(func(t *registry.Test) {
		if o.filter.Matches(t) {
			out = append(out, t)
		}
	})
	return out
}

func (o *Orchestrator) suiteHasWork(s *registry.Suite) bool {
	found := false
	s.Walk(func(t *registry.Test) {
		if !found && o.filter.Matches(t) {
			found = true
		}
	})
	return found
}

func syntheticResult(name string, path []string, tags []string, status results.Status) *results.TestResult {
	return &results.TestResult{
		Name:         name,
		TemplateName: name,
		SuitePath:    path,
		Status:       status,
		StartedAt:    time.Now(),
		Tags:         tags,
	}
}

// failureResults synthesizes results for an item that never completed on any
// worker.
func (item *Item) failureResults(status results.Status, msg string) []*results.TestResult {
	out := make([]*results.TestResult, 0, len(item.Refs))
	for _, ref := range item.Refs {
		res := syntheticResult(ref.Name, ref.Path, ref.Tags, status)
		if status == results.StatusFailed {
			res.Error = msg
		} else {
			res.SkipReason = msg
		}
		res.Iteration = item.Iteration
		out = append(out, res)
	}
	return out
}

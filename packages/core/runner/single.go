package runner

import (
	"context"
	"fmt"

	"github.com/mohammed-a-khan/ptf/packages/core/registry"
	"github.com/mohammed-a-khan/ptf/packages/core/results"
	"github.com/mohammed-a-khan/ptf/packages/core/runtime"
	"github.com/mohammed-a-khan/ptf/packages/data"
)

// RunSingle executes one test iteration inside a freshly built tree. The
// worker path: the row was resolved by the orchestrator and shipped in the
// work item, and the ancestor before-all/after-all hooks run around the
// single test so a distributed test sees the same fixtures as a sequential
// one.
func (r *Runner) RunSingle(ctx context.Context, root *registry.Suite, testID string, rowValues map[string]any, iter *results.Iteration) (*results.TestResult, error) {
	t := registry.FindTest(root, testID)
	if t == nil {
		return nil, fmt.Errorf("test %q not found in unit %q", testID, root.Name)
	}

	if res := r.registrationTerminal(t); res != nil {
		return res, nil
	}

	lineage := suiteLineage(t.Suite)

	// Ancestor before-alls, outer first. A failure is attributed to the
	// hook and the body never runs.
	var pendingSteps []results.Step
	for _, s := range lineage {
		if len(s.BeforeAll) == 0 {
			continue
		}
		bt := runtime.New(s.Name, r.backend, nil, r.log)
		err := runHooks(bt, "beforeAll", s.BeforeAll)
		pendingSteps = append(pendingSteps, bt.TakeSteps()...)
		if err != nil {
			res := r.terminalResult(t, results.StatusFailed, "")
			res.Error = fmt.Sprintf("before-all hook failed: %v", err)
			res.Steps = pendingSteps
			return res, nil
		}
	}

	row := data.EmptyRow()
	var info *data.IterationInfo
	if rowValues != nil {
		row = data.NewRow(rowValues)
	}
	if iter != nil {
		i := data.CreateIterationInfo(row, iter.Index-1, iter.Total, t.DataSource())
		info = &i
	}

	res := r.runIteration(ctx, t, row, info)
	res.Steps = append(pendingSteps, res.Steps...)

	// Ancestor after-alls, inner first.
	for i := len(lineage) - 1; i >= 0; i-- {
		s := lineage[i]
		if len(s.AfterAll) == 0 {
			continue
		}
		at := runtime.New(s.Name, r.backend, nil, r.log)
		err := runHooks(at, "afterAll", s.AfterAll)
		res.Steps = append(res.Steps, at.TakeSteps()...)
		if err != nil && res.Status == results.StatusPassed {
			res.Status = results.StatusFailed
			res.Error = err.Error()
		}
	}

	r.sessionCleanup(res.Status.IsFailure())
	return res, nil
}

// RunBatch executes an entire serial suite in-process: the atomic work unit
// of the parallel path. Intra-batch ordering is guaranteed by running it
// here, sequentially.
func (r *Runner) RunBatch(ctx context.Context, root *registry.Suite, suitePath []string) (*results.SuiteResult, error) {
	s := registry.FindSuite(root, suitePath)
	if s == nil {
		return nil, fmt.Errorf("suite %v not found in unit %q", suitePath, root.Name)
	}
	sr := r.RunSuite(ctx, s)

	failed := false
	sr.Walk(func(tr *results.TestResult) {
		if tr.Status.IsFailure() {
			failed = true
		}
	})
	r.sessionCleanup(failed)
	return sr, nil
}

// sessionCleanup applies the session-reuse policy after an assignment
// completes, before the worker acknowledges and accepts new work.
func (r *Runner) sessionCleanup(failed bool) {
	if !r.cfg.GetSessionReuse() {
		if err := r.backend.Close(failed); err != nil {
			r.log.WithError(err).Warn("closing browser after assignment")
		}
		return
	}
	if err := r.backend.ClearState(); err != nil {
		r.log.WithError(err).Warn("clearing browser state after assignment")
	}
}

func suiteLineage(s *registry.Suite) []*registry.Suite {
	var lineage []*registry.Suite
	for cur := s; cur != nil; cur = cur.Parent {
		lineage = append([]*registry.Suite{cur}, lineage...)
	}
	return lineage
}

package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mohammed-a-khan/ptf/packages/browser"
	"github.com/mohammed-a-khan/ptf/packages/core/config"
	"github.com/mohammed-a-khan/ptf/packages/core/deps"
	"github.com/mohammed-a-khan/ptf/packages/core/registry"
	"github.com/mohammed-a-khan/ptf/packages/core/results"
	"github.com/mohammed-a-khan/ptf/packages/core/runtime"
	"github.com/mohammed-a-khan/ptf/packages/data"
)

// Options wires a Runner's collaborators. Everything is an explicit
// dependency: a worker process constructs its own set at startup and shares
// nothing with any other address space.
type Options struct {
	Config   *config.Config
	Backend  browser.Backend
	Tracker  *deps.Tracker
	Loader   *data.Loader
	Log      *logrus.Entry
	WorkerID int
	Filter   Filter

	// RowOverrides maps a test id to pre-resolved data rows. The parallel
	// path resolves rows in the orchestrator and ships them inside the
	// work item, so workers must not re-read the source.
	RowOverrides map[string][]map[string]any
}

// Runner executes registration trees sequentially in the current process.
type Runner struct {
	cfg      *config.Config
	backend  browser.Backend
	tracker  *deps.Tracker
	loader   *data.Loader
	log      *logrus.Entry
	workerID int
	filter   Filter
	rowOvr   map[string][]map[string]any
}

// New builds a runner. Nil collaborators get fresh defaults.
func New(opts Options) *Runner {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Tracker == nil {
		opts.Tracker = deps.NewTracker()
	}
	if opts.Loader == nil {
		opts.Loader = data.NewLoader()
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Backend == nil {
		opts.Backend = browser.NewFake(opts.Config.GetResultsDir(), opts.WorkerID)
	}
	return &Runner{
		cfg:      opts.Config,
		backend:  opts.Backend,
		tracker:  opts.Tracker,
		loader:   opts.Loader,
		log:      opts.Log,
		workerID: opts.WorkerID,
		filter:   opts.Filter,
		rowOvr:   opts.RowOverrides,
	}
}

// serialChain carries failure propagation through a serial suite and the
// nested suites that inherit its mode.
type serialChain struct {
	failed bool
}

// Run executes the given units sequentially and returns the unified result
// tree. The dependency tracker is cleared here, at the top of the run, since
// dependencies may cross suite boundaries.
func (r *Runner) Run(ctx context.Context, units []string) (*results.RunResult, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("no spec units to run")
	}

	r.tracker.Clear()
	rr := &results.RunResult{
		RunID:       uuid.NewString(),
		Environment: r.cfg.Environment,
		StartedAt:   time.Now(),
	}

	failed := false
	for _, unit := range units {
		root, err := registry.Build(unit)
		if err != nil {
			return nil, fmt.Errorf("building unit %q: %w", unit, err)
		}
		sr := r.RunSuite(ctx, root)
		rr.Suites = append(rr.Suites, sr)
		sr.Walk(func(tr *results.TestResult) {
			if tr.Status.IsFailure() {
				failed = true
			}
		})
	}

	if err := r.backend.CloseAll(failed); err != nil {
		r.log.WithError(err).Warn("closing browser session")
	}

	rr.Duration = time.Since(rr.StartedAt)
	rr.Recount()
	return rr, nil
}

// RunSuite executes one suite subtree and returns its result.
func (r *Runner) RunSuite(ctx context.Context, s *registry.Suite) *results.SuiteResult {
	return r.runSuite(ctx, s, nil)
}

func (r *Runner) runSuite(ctx context.Context, s *registry.Suite, chain *serialChain) *results.SuiteResult {
	start := time.Now()
	sr := &results.SuiteResult{
		Name: s.Name,
		Tags: s.Options.Tags,
		Mode: string(s.Mode()),
	}

	serial := s.Mode() == registry.ModeSerial
	if !serial {
		chain = nil
	} else if chain == nil {
		chain = &serialChain{}
	}

	if !r.suiteHasWork(s) {
		sr.Duration = time.Since(start)
		return sr
	}

	// Before-all runs once per suite. Its steps are attributed to the first
	// test result of the suite for reporting continuity.
	var pendingSteps []results.Step
	var beforeAllErr error
	if len(s.BeforeAll) > 0 {
		bt := runtime.New(s.Name, r.backend, nil, r.log)
		beforeAllErr = runHooks(bt, "beforeAll", s.BeforeAll)
		pendingSteps = bt.TakeSteps()
		if beforeAllErr != nil {
			r.log.WithField("suite", s.Name).WithError(beforeAllErr).Error("before-all hook failed")
			if chain != nil {
				chain.failed = true
			}
		}
	}

	firstPending := true
	for _, c := range s.Children {
		switch node := c.(type) {
		case *registry.Test:
			if !r.filter.Matches(node) {
				continue
			}
			var rs []*results.TestResult
			if beforeAllErr != nil && !node.Options.Cleanup {
				rs = []*results.TestResult{r.hookFailureResult(node, firstPending, beforeAllErr)}
			} else {
				rs = r.runTest(ctx, node, chain)
			}
			if firstPending && len(rs) > 0 && len(pendingSteps) > 0 {
				rs[0].Steps = append(pendingSteps, rs[0].Steps...)
				pendingSteps = nil
			}
			if len(rs) > 0 {
				firstPending = false
			}
			sr.Tests = append(sr.Tests, rs...)
		case *registry.Suite:
			if beforeAllErr != nil {
				sr.Suites = append(sr.Suites, r.skipSubtree(node, "skipped due to before-all hook failure"))
				continue
			}
			sr.Suites = append(sr.Suites, r.runSuite(ctx, node, chain))
		}
	}

	// After-all runs once; its steps go to the last test result.
	if beforeAllErr == nil && len(s.AfterAll) > 0 {
		at := runtime.New(s.Name, r.backend, nil, r.log)
		afterAllErr := runHooks(at, "afterAll", s.AfterAll)
		if last := lastResult(sr); last != nil {
			last.Steps = append(last.Steps, at.TakeSteps()...)
			if afterAllErr != nil && last.Status == results.StatusPassed {
				last.Status = results.StatusFailed
				last.Error = afterAllErr.Error()
			}
		}
		if afterAllErr != nil {
			r.log.WithField("suite", s.Name).WithError(afterAllErr).Error("after-all hook failed")
		}
	}

	// Serial suites preserve browser state across their own tests and clear
	// it only at the suite boundary.
	if serial && r.cfg.GetSessionReuse() {
		if err := r.backend.ClearState(); err != nil {
			r.log.WithError(err).Warn("clearing browser state at suite boundary")
		}
	}

	sr.Duration = time.Since(start)
	return sr
}

// runTest executes one test node, expanding data iteration, and returns its
// results in iteration order.
func (r *Runner) runTest(ctx context.Context, t *registry.Test, chain *serialChain) []*results.TestResult {
	// Serial propagation happens here, before any execution machinery: the
	// body, hooks and browser session are never touched.
	if chain != nil && chain.failed && !t.Options.Cleanup {
		res := r.terminalResult(t, results.StatusSkipped, "skipped due to prior failure in serial mode")
		r.record(t, res.Status, "")
		return []*results.TestResult{res}
	}

	if res := r.registrationTerminal(t); res != nil {
		r.record(t, res.Status, "")
		return []*results.TestResult{res}
	}

	if !t.Options.Cleanup && len(t.Options.DependsOn) > 0 {
		if ok, reasons := r.tracker.Check(t.Options.DependsOn); !ok {
			res := r.terminalResult(t, results.StatusSkipped, strings.Join(reasons, "; "))
			r.record(t, res.Status, "")
			return []*results.TestResult{res}
		}
	}

	out := r.expandAndRun(ctx, t, chain)

	// Session policy between tests. Inside a serial suite state is
	// deliberately preserved: later steps may depend on earlier steps'
	// browser state, e.g. an authenticated session.
	anyFailed := false
	for _, res := range out {
		if res.Status.IsFailure() {
			anyFailed = true
		}
	}
	if !r.cfg.GetSessionReuse() {
		arts, err := r.backend.CloseContext(anyFailed)
		if err != nil {
			r.log.WithError(err).Warn("closing browser context")
		}
		if n := len(out); n > 0 {
			mergeArtifacts(&out[n-1].Artifacts, arts)
		}
	} else if chain == nil {
		if err := r.backend.ClearState(); err != nil {
			r.log.WithError(err).Warn("clearing browser state")
		}
	}

	// The recorded outcome is the worst iteration: a failure anywhere gates
	// dependents, and a mix of passed and skipped records as skipped.
	status := results.StatusPassed
	errMsg := ""
	for _, res := range out {
		if res.Status.IsFailure() {
			status = res.Status
			errMsg = res.Error
			break
		}
		if res.Status != results.StatusPassed && status == results.StatusPassed {
			status = res.Status
			errMsg = res.Error
		}
	}
	r.record(t, status, errMsg)

	if chain != nil && anyFailed {
		chain.failed = true
	}
	return out
}

// expandAndRun resolves data iteration and runs each iteration's attempt
// loop.
func (r *Runner) expandAndRun(ctx context.Context, t *registry.Test, chain *serialChain) []*results.TestResult {
	desc := t.DataSource()

	var rows []*data.Row
	if ovr, ok := r.rowOvr[t.ID()]; ok {
		for _, m := range ovr {
			rows = append(rows, data.NewRow(m))
		}
	} else if t.ShouldIterate() && desc != nil {
		loaded, err := r.loader.LoadRows(desc)
		if err != nil {
			// A broken data source fails the owning test, not the run.
			res := r.terminalResult(t, results.StatusFailed, "")
			res.Error = fmt.Sprintf("resolving data source: %v", err)
			return []*results.TestResult{res}
		}
		rows = loaded
	}

	if len(rows) == 0 {
		res := r.runIteration(ctx, t, data.EmptyRow(), nil)
		return []*results.TestResult{res}
	}

	out := make([]*results.TestResult, 0, len(rows))
	for i, row := range rows {
		info := data.CreateIterationInfo(row, i, len(rows), desc)
		res := r.runIteration(ctx, t, row, &info)
		out = append(out, res)
		if chain != nil && res.Status.IsFailure() {
			chain.failed = true
		}
	}
	return out
}

// registrationTerminal resolves statically declared skip/fixme/disabled
// state into a terminal result, or nil when the test should execute.
func (r *Runner) registrationTerminal(t *registry.Test) *results.TestResult {
	switch {
	case !t.Suite.Enabled():
		return r.terminalResult(t, results.StatusSkipped, "suite disabled")
	case t.Options.Skip:
		reason := t.Options.SkipReason
		if reason == "" {
			reason = "skipped at registration"
		}
		return r.terminalResult(t, results.StatusSkipped, reason)
	case t.Options.Fixme || t.Suite.Fixme():
		return r.terminalResult(t, results.StatusFixme, "marked fixme")
	}
	return nil
}

func (r *Runner) terminalResult(t *registry.Test, status results.Status, reason string) *results.TestResult {
	return &results.TestResult{
		Name:         t.Name,
		TemplateName: t.Name,
		SuitePath:    t.Path,
		Status:       status,
		SkipReason:   reason,
		StartedAt:    time.Now(),
		Tags:         t.AllTags(),
		WorkerID:     r.workerID,
	}
}

// hookFailureResult attributes a before-all failure to the suite's first
// test and skips the rest: neither body executes, and the failure belongs
// to the hook, not a test.
func (r *Runner) hookFailureResult(t *registry.Test, first bool, hookErr error) *results.TestResult {
	if first {
		res := r.terminalResult(t, results.StatusFailed, "")
		res.Error = fmt.Sprintf("before-all hook failed: %v", hookErr)
		r.record(t, res.Status, res.Error)
		return res
	}
	res := r.terminalResult(t, results.StatusSkipped, "skipped due to before-all hook failure")
	r.record(t, res.Status, "")
	return res
}

// skipSubtree produces skipped results for every matching test in a subtree
// without executing anything.
func (r *Runner) skipSubtree(s *registry.Suite, reason string) *results.SuiteResult {
	sr := &results.SuiteResult{Name: s.Name, Tags: s.Options.Tags, Mode: string(s.Mode())}
	for _, c := range s.Children {
		switch node := c.(type) {
		case *registry.Test:
			if !r.filter.Matches(node) {
				continue
			}
			res := r.terminalResult(node, results.StatusSkipped, reason)
			r.record(node, res.Status, "")
			sr.Tests = append(sr.Tests, res)
		case *registry.Suite:
			sr.Suites = append(sr.Suites, r.skipSubtree(node, reason))
		}
	}
	return sr
}

func (r *Runner) record(t *registry.Test, status results.Status, errMsg string) {
	r.tracker.Record(t.Name, t.AllTags(), status, errMsg)
}

func (r *Runner) suiteHasWork(s *registry.Suite) bool {
	found := false
	s.Walk(func(t *registry.Test) {
		if !found && r.filter.Matches(t) {
			found = true
		}
	})
	return found
}

func lastResult(sr *results.SuiteResult) *results.TestResult {
	for i := len(sr.Suites) - 1; i >= 0; i-- {
		if last := lastResult(sr.Suites[i]); last != nil {
			return last
		}
	}
	if n := len(sr.Tests); n > 0 {
		return sr.Tests[n-1]
	}
	return nil
}

func mergeArtifacts(dst *results.Artifacts, src results.Artifacts) {
	dst.Screenshots = append(dst.Screenshots, src.Screenshots...)
	if dst.Video == "" {
		dst.Video = src.Video
	}
	if dst.Trace == "" {
		dst.Trace = src.Trace
	}
	if dst.HAR == "" {
		dst.HAR = src.HAR
	}
}

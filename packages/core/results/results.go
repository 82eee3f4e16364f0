// Package results defines the result tree produced by test execution and
// consumed by reporters, the run history store and the orchestrator. Every
// type in this package must survive JSON serialization across a process
// boundary: no function values, no live handles.
package results

import (
	"time"
)

// Status represents the possible outcomes of a test execution.
type Status string

const (
	StatusPassed          Status = "passed"
	StatusFailed          Status = "failed"
	StatusSkipped         Status = "skipped"
	StatusFixme           Status = "fixme"
	StatusExpectedFailure Status = "expected-failure"
	StatusUnexpectedPass  Status = "unexpected-pass"
)

// IsFailure reports whether the status counts against the run.
// An unexpected pass is an error-level outcome: a developer asserted a known
// failure and it silently started passing.
func (s Status) IsFailure() bool {
	return s == StatusFailed || s == StatusUnexpectedPass
}

// Action is a single low-level interaction recorded under a step, such as a
// click or a navigation.
type Action struct {
	Name     string        `json:"name"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Step is one named unit of work inside a test or hook body. Steps nest.
type Step struct {
	Name     string        `json:"name"`
	Hook     string        `json:"hook,omitempty"` // set when the step ran inside a hook ("beforeAll", "afterEach", ...)
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Actions  []Action      `json:"actions,omitempty"`
	Steps    []Step        `json:"steps,omitempty"`
}

// Artifacts holds file references collected from the browser session for one
// test result. Paths are relative to the run's results directory.
type Artifacts struct {
	Screenshots []string `json:"screenshots,omitempty"`
	Video       string   `json:"video,omitempty"`
	Trace       string   `json:"trace,omitempty"`
	HAR         string   `json:"har,omitempty"`
}

// Iteration carries data-driven iteration metadata for report display.
type Iteration struct {
	Index int    `json:"index"` // 1-based
	Total int    `json:"total"`
	Kind  string `json:"kind"` // data source kind: inline, csv, xlsx, json, database
}

// Attachment is an arbitrary named payload attached from inside a test body.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Path        string `json:"path,omitempty"`
	Body        string `json:"body,omitempty"`
}

// TestResult is the finalized outcome of one test execution. A data-driven
// test node yields one TestResult per row. Results are append-only once
// finalized.
type TestResult struct {
	// Name is the display name, after data interpolation and iteration
	// suffixing. TemplateName is the registered name with {placeholder}
	// tokens intact; aggregation keys on it so iterations of one test group
	// together regardless of which worker produced them.
	Name         string `json:"name"`
	TemplateName string `json:"templateName"`

	// SuitePath is the ancestor suite chain from root to owning suite.
	SuitePath []string `json:"suitePath"`

	Status     Status        `json:"status"`
	SkipReason string        `json:"skipReason,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts"` // 1 + retries actually consumed
	TimedOut   bool          `json:"timedOut,omitempty"`

	Tags        []string     `json:"tags,omitempty"`
	Iteration   *Iteration   `json:"iteration,omitempty"`
	Steps       []Step       `json:"steps,omitempty"`
	Artifacts   Artifacts    `json:"artifacts"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Annotations []string     `json:"annotations,omitempty"`

	Error string `json:"error,omitempty"`
	Stack string `json:"stack,omitempty"`

	WorkerID int `json:"workerId,omitempty"` // 0 in sequential runs
}

// FullPath returns the suite path plus the display name.
func (r *TestResult) FullPath() []string {
	p := make([]string, 0, len(r.SuitePath)+1)
	p = append(p, r.SuitePath...)
	return append(p, r.Name)
}

// SuiteResult aggregates the results of one suite and its children.
type SuiteResult struct {
	Name     string        `json:"name"`
	Tags     []string      `json:"tags,omitempty"`
	Mode     string        `json:"mode,omitempty"`
	Tests    []*TestResult `json:"tests,omitempty"`
	Suites   []*SuiteResult `json:"suites,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Summary holds run-level counters, one per terminal status.
type Summary struct {
	Total           int `json:"total"`
	Passed          int `json:"passed"`
	Failed          int `json:"failed"`
	Skipped         int `json:"skipped"`
	Fixme           int `json:"fixme"`
	ExpectedFailure int `json:"expectedFailure"`
	UnexpectedPass  int `json:"unexpectedPass"`
}

// Failures reports the number of error-level outcomes.
func (s Summary) Failures() int {
	return s.Failed + s.UnexpectedPass
}

// RunResult is the root of the result tree handed to reporters.
type RunResult struct {
	RunID       string         `json:"runId"`
	Environment string         `json:"environment,omitempty"`
	StartedAt   time.Time      `json:"startedAt"`
	Duration    time.Duration  `json:"duration"`
	Workers     int            `json:"workers"` // 0 for sequential runs
	Suites      []*SuiteResult `json:"suites"`
	Summary     Summary        `json:"summary"`
	Incomplete  bool           `json:"incomplete,omitempty"` // hard run deadline hit
}

// Count walks the test and recomputes the summary counter it belongs to.
func (s *Summary) Count(tr *TestResult) {
	s.Total++
	switch tr.Status {
	case StatusPassed:
		s.Passed++
	case StatusFailed:
		s.Failed++
	case StatusSkipped:
		s.Skipped++
	case StatusFixme:
		s.Fixme++
	case StatusExpectedFailure:
		s.ExpectedFailure++
	case StatusUnexpectedPass:
		s.UnexpectedPass++
	}
}

// Walk visits every test result in the suite tree in registration order.
func (sr *SuiteResult) Walk(fn func(*TestResult)) {
	for _, t := range sr.Tests {
		fn(t)
	}
	for _, child := range sr.Suites {
		child.Walk(fn)
	}
}

// Recount rebuilds the summary from the suite tree. The orchestrator calls
// this after reassembling distributed partial results, since worker results
// arrive in arbitrary order.
func (rr *RunResult) Recount() {
	rr.Summary = Summary{}
	for _, s := range rr.Suites {
		s.Walk(rr.Summary.Count)
	}
}

// FindSuite returns the child suite with the given name path, creating the
// chain when absent. Used when reassembling results keyed by suite path.
func (rr *RunResult) FindSuite(path []string) *SuiteResult {
	if len(path) == 0 {
		return nil
	}
	var cur *SuiteResult
	children := &rr.Suites
	for _, name := range path {
		var found *SuiteResult
		for _, c := range *children {
			if c.Name == name {
				found = c
				break
			}
		}
		if found == nil {
			found = &SuiteResult{Name: name}
			*children = append(*children, found)
		}
		cur = found
		children = &cur.Suites
	}
	return cur
}

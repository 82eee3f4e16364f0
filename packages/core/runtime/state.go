// Package runtime holds the transient per-attempt state of a running test:
// the fixture bundle handed to the body, the imperative skip/fixme/slow
// annotations, and the recorded step tree. One T exists per execution
// attempt and is discarded afterwards.
package runtime

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mohammed-a-khan/ptf/packages/browser"
	"github.com/mohammed-a-khan/ptf/packages/core/results"
	"github.com/mohammed-a-khan/ptf/packages/data"
)

// T is the fixture bundle passed to test and hook bodies.
type T struct {
	mu sync.Mutex

	name    string
	backend browser.Backend
	row     *data.Row
	log     *logrus.Entry

	shouldSkip     bool
	skipReason     string
	isFixme        bool
	fixmeReason    string
	expectedToFail bool
	isSlow         bool
	customTimeout  time.Duration

	steps       []results.Step
	stack       []*results.Step
	currentHook string

	attachments []results.Attachment
	annotations []string
}

// New builds the state for one execution attempt.
func New(name string, backend browser.Backend, row *data.Row, log *logrus.Entry) *T {
	if row == nil {
		row = data.EmptyRow()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &T{name: name, backend: backend, row: row, log: log}
}

// Name returns the display name of the executing test.
func (t *T) Name() string { return t.name }

// Page returns the browser page handle, launching lazily through the backend.
func (t *T) Page() (browser.Page, error) {
	return t.backend.GetPage()
}

// Context returns the browser context handle.
func (t *T) Context() (browser.Context, error) {
	return t.backend.GetContext()
}

// Data returns the current data row. Tests not opted into iteration receive
// an empty row.
func (t *T) Data() *data.Row { return t.row }

// Log returns the structured logger scoped to this test.
func (t *T) Log() *logrus.Entry { return t.log }

// Skip halts the test body when cond is true and marks the result skipped
// with the given reason. Nothing after the call runs.
func (t *T) Skip(cond bool, reason string) {
	if !cond {
		return
	}
	t.mu.Lock()
	t.shouldSkip = true
	t.skipReason = reason
	t.mu.Unlock()
	panic(&Signal{Kind: SignalSkip, Reason: reason})
}

// Fixme halts the test body when cond is true and marks the result fixme.
func (t *T) Fixme(cond bool, reason string) {
	if !cond {
		return
	}
	t.mu.Lock()
	t.isFixme = true
	t.fixmeReason = reason
	t.mu.Unlock()
	panic(&Signal{Kind: SignalFixme, Reason: reason})
}

// Fail declares, from inside the body, that this test is expected to fail.
func (t *T) Fail() {
	t.mu.Lock()
	t.expectedToFail = true
	t.mu.Unlock()
}

// Slow triples the remaining timeout budget for this attempt.
func (t *T) Slow() {
	t.mu.Lock()
	t.isSlow = true
	t.mu.Unlock()
}

// SetTimeout overrides the effective timeout for this attempt.
func (t *T) SetTimeout(d time.Duration) {
	t.mu.Lock()
	t.customTimeout = d
	t.mu.Unlock()
}

// Annotate attaches a free-form annotation to the result.
func (t *T) Annotate(note string) {
	t.mu.Lock()
	t.annotations = append(t.annotations, note)
	t.mu.Unlock()
}

// Attach records a named payload on the result.
func (t *T) Attach(name, contentType, body string) {
	t.mu.Lock()
	t.attachments = append(t.attachments, results.Attachment{
		Name:        name,
		ContentType: contentType,
		Body:        body,
	})
	t.mu.Unlock()
}

// AttachFile records a file reference on the result.
func (t *T) AttachFile(name, path string) {
	t.mu.Lock()
	t.attachments = append(t.attachments, results.Attachment{Name: name, Path: path})
	t.mu.Unlock()
}

// Step runs fn as a named step. Steps nest; failures propagate after the
// step is finalized so the report shows where the failure happened.
func (t *T) Step(name string, fn func() error) error {
	step := t.beginStep(name)
	start := time.Now()
	err := fn()
	t.endStep(step, time.Since(start), err)
	return err
}

// Action records a low-level interaction under the current step, or as a
// bare step when no step is open.
func (t *T) Action(name, detail string, d time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a := results.Action{Name: name, Detail: detail, Duration: d}
	if err != nil {
		a.Error = err.Error()
	}
	if len(t.stack) > 0 {
		cur := t.stack[len(t.stack)-1]
		cur.Actions = append(cur.Actions, a)
		return
	}
	t.steps = append(t.steps, results.Step{
		Name:     name,
		Hook:     t.currentHook,
		Passed:   err == nil,
		Duration: d,
		Actions:  []results.Action{a},
	})
}

func (t *T) beginStep(name string) *results.Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	step := &results.Step{Name: name, Hook: t.currentHook}
	t.stack = append(t.stack, step)
	return step
}

func (t *T) endStep(step *results.Step, d time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	step.Duration = d
	step.Passed = err == nil
	if err != nil {
		step.Error = err.Error()
	}

	// Pop; anything above the step on the stack was left open by a panic
	// inside fn and is folded into it.
	for len(t.stack) > 0 {
		top := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		if top == step {
			break
		}
		step.Steps = append(step.Steps, *top)
	}

	if len(t.stack) > 0 {
		parent := t.stack[len(t.stack)-1]
		parent.Steps = append(parent.Steps, *step)
	} else {
		t.steps = append(t.steps, *step)
	}
}

// EnterHook marks subsequently recorded steps as belonging to a hook phase
// ("beforeAll", "beforeEach", ...). The runner brackets hook execution with
// EnterHook/LeaveHook so hook steps stay attributed in the report.
func (t *T) EnterHook(phase string) {
	t.mu.Lock()
	t.currentHook = phase
	t.mu.Unlock()
}

// LeaveHook ends hook attribution.
func (t *T) LeaveHook() {
	t.mu.Lock()
	t.currentHook = ""
	t.mu.Unlock()
}

// State is the runner's read-only view of the flags after (or during) an
// attempt.
type State struct {
	ShouldSkip     bool
	SkipReason     string
	IsFixme        bool
	FixmeReason    string
	ExpectedToFail bool
	IsSlow         bool
	CustomTimeout  time.Duration
}

// Snapshot returns the current flag state.
func (t *T) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		ShouldSkip:     t.shouldSkip,
		SkipReason:     t.skipReason,
		IsFixme:        t.isFixme,
		FixmeReason:    t.fixmeReason,
		ExpectedToFail: t.expectedToFail,
		IsSlow:         t.isSlow,
		CustomTimeout:  t.customTimeout,
	}
}

// Steps returns the finalized step tree for the attempt.
func (t *T) Steps() []results.Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]results.Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// TakeSteps returns the recorded steps and resets the recorder. The runner
// uses this to attribute before-all steps to the first test of a suite.
func (t *T) TakeSteps() []results.Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.steps
	t.steps = nil
	t.stack = nil
	return out
}

// Attachments returns the recorded attachments.
func (t *T) Attachments() []results.Attachment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]results.Attachment, len(t.attachments))
	copy(out, t.attachments)
	return out
}

// Annotations returns the recorded annotations.
func (t *T) Annotations() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.annotations))
	copy(out, t.annotations)
	return out
}

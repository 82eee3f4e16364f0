// Package deps tracks test outcomes for dependsOn gating. Outcomes are
// recorded under the test's own name and under every tag it carries, so a
// dependent may reference either. The tracker is process-local: each worker
// keeps its own copy, and the orchestrator keeps the authoritative one.
package deps

import (
	"fmt"
	"sync"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

// Outcome is the most recent recorded result for one dependency reference.
type Outcome struct {
	TestName string
	Status   results.Status
	Error    string
}

// Tracker records pass/fail outcomes keyed by test name and tag.
type Tracker struct {
	mu       sync.Mutex
	outcomes map[string]Outcome
}

// NewTracker returns an empty tracker. Call Clear at the start of every
// top-level run, not per suite: dependencies may cross suite boundaries.
func NewTracker() *Tracker {
	return &Tracker{outcomes: map[string]Outcome{}}
}

// Record stores the outcome under the test's name and each of its tags.
// Later records overwrite earlier ones, so a reference always resolves to
// the most recent outcome.
func (t *Tracker) Record(testName string, tags []string, status results.Status, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	o := Outcome{TestName: testName, Status: status, Error: errMsg}
	t.outcomes[testName] = o
	for _, tag := range tags {
		t.outcomes[tag] = o
	}
}

// Check evaluates a dependsOn declaration. It returns true when every
// reference resolved to a passed outcome, and otherwise a human-readable
// reason per unmet reference, distinguishing "not yet executed" from
// "executed and failed".
func (t *Tracker) Check(dependsOn []string) (bool, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var reasons []string
	for _, ref := range dependsOn {
		o, ok := t.outcomes[ref]
		switch {
		case !ok:
			reasons = append(reasons, fmt.Sprintf("dependency %q has not executed yet", ref))
		case o.Status != results.StatusPassed:
			reason := fmt.Sprintf("dependency %q %s", ref, o.Status)
			if o.Error != "" {
				reason += ": " + o.Error
			}
			reasons = append(reasons, reason)
		}
	}
	return len(reasons) == 0, reasons
}

// Lookup returns the recorded outcome for a single reference.
func (t *Tracker) Lookup(ref string) (Outcome, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.outcomes[ref]
	return o, ok
}

// Clear wipes all recorded outcomes.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.outcomes = map[string]Outcome{}
	t.mu.Unlock()
}

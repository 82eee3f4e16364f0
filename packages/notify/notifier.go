// Package notify posts run outcomes to chat webhooks.
package notify

import (
	"time"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

// NotifyOn specifies when to send notifications.
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run.
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when tests fail.
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when tests pass.
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends notifications on failure and on the first green
	// run after one.
	NotifyRecovery NotifyOn = "recovery"
)

// RunSummary is the notification payload distilled from a run.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Environment string        `json:"environment,omitempty"`
	TotalTests  int           `json:"total_tests"`
	PassedTests int           `json:"passed_tests"`
	FailedTests int           `json:"failed_tests"`
	SkippedTests int          `json:"skipped_tests"`
	Duration    time.Duration `json:"duration"`
	Incomplete  bool          `json:"incomplete,omitempty"`
	IsRecovery  bool          `json:"is_recovery,omitempty"`
	Failed      []FailedTest  `json:"failed_results,omitempty"`
}

// FailedTest carries enough context to locate a failure from chat.
type FailedTest struct {
	Name  string `json:"name"`
	Suite string `json:"suite,omitempty"`
	Error string `json:"error,omitempty"`
}

// maxFailedDetails caps the failure list so a broken run does not flood the
// channel.
const maxFailedDetails = 10

// Summarize distills a run into the notification payload. recovered comes
// from the history store, which knows the previous run's outcome.
func Summarize(run *results.RunResult, recovered bool) *RunSummary {
	s := &RunSummary{
		RunID:        run.RunID,
		Environment:  run.Environment,
		TotalTests:   run.Summary.Total,
		PassedTests:  run.Summary.Passed,
		FailedTests:  run.Summary.Failures(),
		SkippedTests: run.Summary.Skipped + run.Summary.Fixme,
		Duration:     run.Duration,
		Incomplete:   run.Incomplete,
		IsRecovery:   recovered,
	}
	for _, suite := range run.Suites {
		suite.Walk(func(t *results.TestResult) {
			if !t.Status.IsFailure() || len(s.Failed) >= maxFailedDetails {
				return
			}
			s.Failed = append(s.Failed, FailedTest{
				Name:  t.Name,
				Suite: joinPath(t.SuitePath),
				Error: t.Error,
			})
		})
	}
	return s
}

func joinPath(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " / "
		}
		out += p
	}
	return out
}

// Notifier is one delivery channel.
type Notifier interface {
	Notify(summary *RunSummary) error
	Name() string
}

// Manager fans a summary out to every configured channel according to the
// notification policy.
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
}

// NewManager creates a notification manager.
func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{notifiers: notifiers, notifyOn: notifyOn}
}

// AddNotifier adds a delivery channel.
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Notify applies the policy and delivers. Channel errors do not stop the
// remaining channels; the last error is returned.
func (m *Manager) Notify(summary *RunSummary) error {
	send := false
	switch m.notifyOn {
	case NotifyAlways:
		send = true
	case NotifyFailure:
		send = summary.FailedTests > 0
	case NotifySuccess:
		send = summary.FailedTests == 0
	case NotifyRecovery:
		send = summary.FailedTests > 0 || summary.IsRecovery
	}
	if !send {
		return nil
	}

	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Notify(summary); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

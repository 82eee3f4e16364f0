// Package metrics exports run-level measurements for dashboards and CI
// trend tracking.
package metrics

import (
	"strings"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

// TestMetric is one test's measurement.
type TestMetric struct {
	Name       string  `json:"name"`
	Suite      string  `json:"suite,omitempty"`
	Status     string  `json:"status"`
	DurationMs float64 `json:"duration_ms"`
	Attempts   int     `json:"attempts"`
	WorkerID   int     `json:"worker_id,omitempty"`
}

// RunMetrics is the full measurement set of one run.
type RunMetrics struct {
	RunID       string    `json:"run_id"`
	Environment string    `json:"environment,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	DurationMs  float64   `json:"duration_ms"`
	Workers     int       `json:"workers"`
	Incomplete  bool      `json:"incomplete,omitempty"`

	Total           int `json:"total"`
	Passed          int `json:"passed"`
	Failed          int `json:"failed"`
	Skipped         int `json:"skipped"`
	Fixme           int `json:"fixme"`
	ExpectedFailure int `json:"expected_failure"`
	UnexpectedPass  int `json:"unexpected_pass"`

	P50DurationMs float64 `json:"p50_duration_ms"`
	P90DurationMs float64 `json:"p90_duration_ms"`
	P99DurationMs float64 `json:"p99_duration_ms"`

	Tests []TestMetric `json:"tests"`
}

// Exporter delivers run metrics to one destination.
type Exporter interface {
	Export(m *RunMetrics) error
	Close() error
}

// FromRun distills a finished run into its measurement set.
func FromRun(run *results.RunResult) *RunMetrics {
	m := &RunMetrics{
		RunID:           run.RunID,
		Environment:     run.Environment,
		StartedAt:       run.StartedAt,
		DurationMs:      float64(run.Duration.Milliseconds()),
		Workers:         run.Workers,
		Incomplete:      run.Incomplete,
		Total:           run.Summary.Total,
		Passed:          run.Summary.Passed,
		Failed:          run.Summary.Failed,
		Skipped:         run.Summary.Skipped,
		Fixme:           run.Summary.Fixme,
		ExpectedFailure: run.Summary.ExpectedFailure,
		UnexpectedPass:  run.Summary.UnexpectedPass,
	}

	h := hdrhistogram.New(1, int64(time.Hour/time.Millisecond), 3)
	for _, s := range run.Suites {
		s.Walk(func(t *results.TestResult) {
			m.Tests = append(m.Tests, TestMetric{
				Name:       t.Name,
				Suite:      strings.Join(t.SuitePath, "/"),
				Status:     string(t.Status),
				DurationMs: float64(t.Duration.Milliseconds()),
				Attempts:   t.Attempts,
				WorkerID:   t.WorkerID,
			})
			if t.Status == results.StatusSkipped || t.Status == results.StatusFixme {
				return
			}
			ms := t.Duration.Milliseconds()
			if ms < 1 {
				ms = 1
			}
			_ = h.RecordValue(ms)
		})
	}
	if h.TotalCount() > 0 {
		m.P50DurationMs = float64(h.ValueAtQuantile(50))
		m.P90DurationMs = float64(h.ValueAtQuantile(90))
		m.P99DurationMs = float64(h.ValueAtQuantile(99))
	}
	return m
}

// ExportAll delivers to every exporter, returning the last error.
func ExportAll(m *RunMetrics, exporters ...Exporter) error {
	var lastErr error
	for _, exp := range exporters {
		if err := exp.Export(m); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

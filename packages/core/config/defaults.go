package config

import "time"

const (
	// DefaultTimeout is the per-test timeout before the slow multiplier.
	DefaultTimeout = 30 * time.Second
	// DefaultWorkers is the parallel worker process count.
	DefaultWorkers = 4
	// DefaultStallTimeout is how long a worker may hold one assignment
	// before the orchestrator recycles it.
	DefaultStallTimeout = 5 * time.Minute
	// DefaultResultsDir is where artifacts and reports are written.
	DefaultResultsDir = "ptf-results"
	// DefaultBrowser is the browser engine launched when none is configured.
	DefaultBrowser = "chromium"
)

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Environment: "dev",
		Browser:     DefaultBrowser,
		Timeout:     Duration(DefaultTimeout),
		Workers:     DefaultWorkers,
		ResultsDir:  DefaultResultsDir,
		Reporters:   []string{"console"},
	}
}

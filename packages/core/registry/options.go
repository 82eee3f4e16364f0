package registry

import (
	"time"

	"github.com/mohammed-a-khan/ptf/packages/core/runtime"
	"github.com/mohammed-a-khan/ptf/packages/data"
)

// Mode controls how a suite's tests are scheduled.
type Mode string

const (
	// ModeDefault runs tests in registration order, independently: a failure
	// does not skip siblings.
	ModeDefault Mode = ""
	// ModeSerial runs tests in registration order on one worker; a failure
	// skips all subsequent non-cleanup tests in the suite.
	ModeSerial Mode = "serial"
	// ModeParallel allows tests to be distributed across workers
	// independently.
	ModeParallel Mode = "parallel"
)

// TestFunc is a test or hook body. It receives the fixture bundle and
// reports failure by returning an error or panicking.
type TestFunc func(t *runtime.T) error

// HookFunc is an alias kept for readability at registration sites.
type HookFunc = TestFunc

// SuiteOptions configures a describe block.
type SuiteOptions struct {
	Tags    []string
	Timeout time.Duration // 0 inherits from the ancestor chain / global default
	Retries *int          // nil inherits
	Skip    bool
	Enabled *bool // nil means enabled
	Fixme   bool
	Mode    Mode
	Data    *data.Descriptor
}

// TestOptions configures a single test registration.
type TestOptions struct {
	Tags           []string
	Timeout        time.Duration
	Retries        *int
	Skip           bool
	SkipReason     string
	Fixme          bool
	ExpectedToFail bool
	Slow           bool

	// Data overrides the suite-level source; a test with its own source
	// always iterates.
	Data *data.Descriptor

	// UseData explicitly opts in or out of suite-level data iteration.
	// When nil, the test iterates only if it declares Columns.
	UseData *bool

	// Columns statically declares the row columns the body reads. Declaring
	// at least one column opts the test into suite-level iteration.
	Columns []string

	// DependsOn lists test names or tags whose last recorded outcome must
	// be passed for this test to run.
	DependsOn []string

	// Cleanup marks the test as a cleanup step: it bypasses dependency
	// checks and serial failure propagation, and workflow suites defer it
	// to run last.
	Cleanup bool
}

// Bool returns a pointer to b, for the pointer-typed option fields.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to n.
func Int(n int) *int { return &n }

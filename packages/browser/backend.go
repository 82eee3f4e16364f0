// Package browser defines the narrow contract the test core consumes from a
// browser-automation backend, plus a Playwright-backed implementation and an
// in-memory fake. The core never depends on a specific engine's API shape
// beyond this contract.
package browser

import (
	"context"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

// Page is the per-test page handle injected into fixtures.
type Page interface {
	Goto(url string) error
	Click(selector string) error
	Fill(selector, value string) error
	Text(selector string) (string, error)
	Title() (string, error)
	URL() string
	WaitFor(selector string) error
	Evaluate(expression string) (any, error)
}

// Context exposes the state-clearing primitives of the active browser
// context.
type Context interface {
	ClearCookies() error
	ClearPermissions() error
}

// Backend is the capability the runner drives. Launch is lazy and
// idempotent; GetPage creates the context and page on first use.
type Backend interface {
	Launch(ctx context.Context) error
	GetPage() (Page, error)
	GetContext() (Context, error)

	// Screenshot captures the current page into the results directory and
	// returns the stored path, named collision-free for the given test.
	Screenshot(testName string) (string, error)

	// SessionArtifacts returns the artifact references accumulated for the
	// current context so far.
	SessionArtifacts() results.Artifacts

	// CloseContext tears down the active context and returns its final
	// artifacts (video, trace, HAR). Trace collection is skipped unless the
	// context saw a failure.
	CloseContext(failed bool) (results.Artifacts, error)

	// ClearState resets volatile browser state (cookies, permissions, web
	// storage) while keeping the context alive.
	ClearState() error

	// Close shuts the browser down; CloseAll additionally stops the driver.
	Close(failed bool) error
	CloseAll(failed bool) error
}

// Options configures a backend instance.
type Options struct {
	Browser     string // chromium, firefox, webkit
	Headless    bool
	ResultsDir  string
	WorkerID    int
	RecordVideo bool
	RecordHAR   bool
	RecordTrace bool
	BaseURL     string
}

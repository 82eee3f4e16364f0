package runner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-a-khan/ptf/packages/browser"
	"github.com/mohammed-a-khan/ptf/packages/core/config"
	"github.com/mohammed-a-khan/ptf/packages/core/registry"
	"github.com/mohammed-a-khan/ptf/packages/core/results"
	"github.com/mohammed-a-khan/ptf/packages/core/runtime"
	"github.com/mohammed-a-khan/ptf/packages/data"
)

func newTestRunner(t *testing.T, opts Options) (*Runner, *browser.Fake) {
	t.Helper()
	fake := browser.NewFake(t.TempDir(), 0)
	if opts.Backend == nil {
		opts.Backend = fake
	}
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	return New(opts), fake
}

func buildSuite(t *testing.T, body func(b *registry.Builder)) *registry.Suite {
	t.Helper()
	b := registry.NewBuilder("unit.spec")
	body(b)
	require.NoError(t, b.Err())
	return b.Root()
}

func flatten(sr *results.SuiteResult) []*results.TestResult {
	var out []*results.TestResult
	sr.Walk(func(tr *results.TestResult) { out = append(out, tr) })
	return out
}

func TestRunSuiteStatuses(t *testing.T) {
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("Statuses", registry.SuiteOptions{}, func() {
			b.Test("passes", registry.TestOptions{}, func(tt *runtime.T) error {
				return nil
			})
			b.Test("fails", registry.TestOptions{}, func(tt *runtime.T) error {
				return errors.New("element not found")
			})
			b.Test("panics", registry.TestOptions{}, func(tt *runtime.T) error {
				panic("nil dereference")
			})
			b.Test("skips itself", registry.TestOptions{}, func(tt *runtime.T) error {
				tt.Skip(true, "firefox only")
				return nil
			})
			b.Test("flags fixme", registry.TestOptions{}, func(tt *runtime.T) error {
				tt.Fixme(true, "selector changed upstream")
				return nil
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	sr := r.RunSuite(context.Background(), root)
	out := flatten(sr)
	require.Len(t, out, 5)

	assert.Equal(t, results.StatusPassed, out[0].Status)

	assert.Equal(t, results.StatusFailed, out[1].Status)
	assert.Equal(t, "element not found", out[1].Error)

	assert.Equal(t, results.StatusFailed, out[2].Status)
	assert.Contains(t, out[2].Error, "panic: nil dereference")
	assert.NotEmpty(t, out[2].Stack)

	assert.Equal(t, results.StatusSkipped, out[3].Status)
	assert.Equal(t, "firefox only", out[3].SkipReason)

	assert.Equal(t, results.StatusFixme, out[4].Status)
}

func TestFailureCapturesScreenshot(t *testing.T) {
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.Test("fails", registry.TestOptions{}, func(tt *runtime.T) error {
				return errors.New("boom")
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 1)
	require.Len(t, out[0].Artifacts.Screenshots, 1)
	assert.Equal(t, ".png", filepath.Ext(out[0].Artifacts.Screenshots[0]))
}

func TestExpectedToFail(t *testing.T) {
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.Test("known broken", registry.TestOptions{ExpectedToFail: true}, func(tt *runtime.T) error {
				return errors.New("still broken")
			})
			b.Test("silently fixed", registry.TestOptions{ExpectedToFail: true}, func(tt *runtime.T) error {
				return nil
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 2)

	assert.Equal(t, results.StatusExpectedFailure, out[0].Status)
	assert.Empty(t, out[0].Error)

	assert.Equal(t, results.StatusUnexpectedPass, out[1].Status)
	assert.True(t, out[1].Status.IsFailure())
}

func TestRegistrationSkipAndFixme(t *testing.T) {
	executed := false
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.Test("skipped", registry.TestOptions{Skip: true, SkipReason: "flaky on CI"}, func(tt *runtime.T) error {
				executed = true
				return nil
			})
			b.Test("fixme", registry.TestOptions{Fixme: true}, func(tt *runtime.T) error {
				executed = true
				return nil
			})
		})
		b.Describe("Disabled", registry.SuiteOptions{Enabled: registry.Bool(false)}, func() {
			b.Test("never runs", registry.TestOptions{}, func(tt *runtime.T) error {
				executed = true
				return nil
			})
		})
	})

	r, fake := newTestRunner(t, Options{})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 3)

	assert.False(t, executed)
	assert.False(t, fake.Launched())
	assert.Equal(t, results.StatusSkipped, out[0].Status)
	assert.Equal(t, "flaky on CI", out[0].SkipReason)
	assert.Equal(t, results.StatusFixme, out[1].Status)
	assert.Equal(t, results.StatusSkipped, out[2].Status)
	assert.Equal(t, "suite disabled", out[2].SkipReason)
}

func TestRetriesConsumeAttempts(t *testing.T) {
	calls := 0
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.Test("flaky", registry.TestOptions{Retries: registry.Int(2)}, func(tt *runtime.T) error {
				calls++
				if calls < 2 {
					return errors.New("transient")
				}
				return nil
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 1)
	assert.Equal(t, results.StatusPassed, out[0].Status)
	assert.Equal(t, 2, out[0].Attempts)
	assert.Equal(t, 2, calls)
}

func TestTimeout(t *testing.T) {
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.Test("hangs", registry.TestOptions{Timeout: 30 * time.Millisecond}, func(tt *runtime.T) error {
				time.Sleep(2 * time.Second)
				return nil
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 1)
	assert.Equal(t, results.StatusFailed, out[0].Status)
	assert.True(t, out[0].TimedOut)
	assert.Contains(t, out[0].Error, "timed out")
}

func TestSetTimeoutExtendsBudget(t *testing.T) {
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.Test("extends", registry.TestOptions{Timeout: 30 * time.Millisecond}, func(tt *runtime.T) error {
				tt.SetTimeout(3 * time.Second)
				time.Sleep(100 * time.Millisecond)
				return nil
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 1)
	assert.Equal(t, results.StatusPassed, out[0].Status)
}

func TestDependsOnGating(t *testing.T) {
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.Test("login", registry.TestOptions{}, func(tt *runtime.T) error {
				return errors.New("bad credentials")
			})
			b.Test("profile", registry.TestOptions{DependsOn: []string{"login"}}, func(tt *runtime.T) error {
				return nil
			})
			b.Test("unrelated", registry.TestOptions{}, func(tt *runtime.T) error {
				return nil
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 3)

	assert.Equal(t, results.StatusFailed, out[0].Status)
	assert.Equal(t, results.StatusSkipped, out[1].Status)
	assert.Contains(t, out[1].SkipReason, `dependency "login" failed`)
	assert.Equal(t, results.StatusPassed, out[2].Status)
}

func TestSerialModeSkipsAfterFailure(t *testing.T) {
	cleanupRan := false
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("Order", registry.SuiteOptions{Mode: registry.ModeSerial}, func() {
			b.Test("create", registry.TestOptions{}, func(tt *runtime.T) error {
				return nil
			})
			b.Test("pay", registry.TestOptions{}, func(tt *runtime.T) error {
				return errors.New("card declined")
			})
			b.Test("ship", registry.TestOptions{}, func(tt *runtime.T) error {
				return nil
			})
			b.Cleanup("remove order", registry.TestOptions{}, func(tt *runtime.T) error {
				cleanupRan = true
				return nil
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 4)

	assert.Equal(t, results.StatusPassed, out[0].Status)
	assert.Equal(t, results.StatusFailed, out[1].Status)
	assert.Equal(t, results.StatusSkipped, out[2].Status)
	assert.Contains(t, out[2].SkipReason, "serial mode")
	assert.Equal(t, results.StatusPassed, out[3].Status)
	assert.True(t, cleanupRan)
}

func TestSerialFailurePropagatesToNestedSuites(t *testing.T) {
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("Outer", registry.SuiteOptions{Mode: registry.ModeSerial}, func() {
			b.Test("fails", registry.TestOptions{}, func(tt *runtime.T) error {
				return errors.New("boom")
			})
			b.Describe("Inner", registry.SuiteOptions{}, func() {
				b.Test("inherits skip", registry.TestOptions{}, func(tt *runtime.T) error {
					return nil
				})
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 2)
	assert.Equal(t, results.StatusSkipped, out[1].Status)
}

func TestDataDrivenIteration(t *testing.T) {
	var seen []string
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("Login", registry.SuiteOptions{}, func() {
			b.Test("login as {user}", registry.TestOptions{
				Data: &data.Descriptor{Type: data.KindInline, Data: []map[string]any{
					{"user": "alice"},
					{"user": "bob"},
				}},
			}, func(tt *runtime.T) error {
				seen = append(seen, tt.Data().String("user"))
				return nil
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 2)

	assert.Equal(t, []string{"alice", "bob"}, seen)
	assert.Equal(t, "login as alice [Iteration 1/2]", out[0].Name)
	assert.Equal(t, "login as bob [Iteration 2/2]", out[1].Name)
	assert.Equal(t, "login as {user}", out[0].TemplateName)
	require.NotNil(t, out[0].Iteration)
	assert.Equal(t, 1, out[0].Iteration.Index)
	assert.Equal(t, 2, out[0].Iteration.Total)

	// The body read one column; the annotation records it.
	assert.Contains(t, out[0].Annotations, "data columns read: [user]")
}

func TestBrokenDataSourceFailsOwningTest(t *testing.T) {
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.Test("data driven", registry.TestOptions{
				Data: &data.Descriptor{Type: data.KindCSV, Source: "/nonexistent/users.csv"},
			}, func(tt *runtime.T) error {
				return nil
			})
			b.Test("healthy", registry.TestOptions{}, func(tt *runtime.T) error {
				return nil
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 2)

	assert.Equal(t, results.StatusFailed, out[0].Status)
	assert.Contains(t, out[0].Error, "resolving data source")
	assert.Equal(t, results.StatusPassed, out[1].Status)
}

func TestBeforeAllFailureAttribution(t *testing.T) {
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.BeforeAll(func(tt *runtime.T) error {
				return errors.New("database unreachable")
			})
			b.Test("first", registry.TestOptions{}, func(tt *runtime.T) error {
				return nil
			})
			b.Test("second", registry.TestOptions{}, func(tt *runtime.T) error {
				return nil
			})
			b.Describe("Nested", registry.SuiteOptions{}, func() {
				b.Test("third", registry.TestOptions{}, func(tt *runtime.T) error {
					return nil
				})
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 3)

	assert.Equal(t, results.StatusFailed, out[0].Status)
	assert.Contains(t, out[0].Error, "before-all hook failed: beforeAll hook: database unreachable")
	assert.Equal(t, results.StatusSkipped, out[1].Status)
	assert.Equal(t, results.StatusSkipped, out[2].Status)
}

func TestHookOrdering(t *testing.T) {
	var order []string
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("Outer", registry.SuiteOptions{}, func() {
			b.BeforeEach(func(tt *runtime.T) error {
				order = append(order, "outer-before")
				return nil
			})
			b.AfterEach(func(tt *runtime.T) error {
				order = append(order, "outer-after")
				return nil
			})
			b.Describe("Inner", registry.SuiteOptions{}, func() {
				b.BeforeEach(func(tt *runtime.T) error {
					order = append(order, "inner-before")
					return nil
				})
				b.AfterEach(func(tt *runtime.T) error {
					order = append(order, "inner-after")
					return nil
				})
				b.Test("t", registry.TestOptions{}, func(tt *runtime.T) error {
					order = append(order, "body")
					return nil
				})
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	flatten(r.RunSuite(context.Background(), root))

	assert.Equal(t, []string{
		"outer-before", "inner-before", "body", "inner-after", "outer-after",
	}, order)
}

func TestAfterEachRunsOnBodyFailure(t *testing.T) {
	afterRan := false
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.AfterEach(func(tt *runtime.T) error {
				afterRan = true
				return nil
			})
			b.Test("fails", registry.TestOptions{}, func(tt *runtime.T) error {
				return errors.New("boom")
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	flatten(r.RunSuite(context.Background(), root))
	assert.True(t, afterRan)
}

func TestAfterAllFailureFlipsLastResult(t *testing.T) {
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.AfterAll(func(tt *runtime.T) error {
				return errors.New("teardown failed")
			})
			b.Test("passes", registry.TestOptions{}, func(tt *runtime.T) error {
				return nil
			})
		})
	})

	r, _ := newTestRunner(t, Options{})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 1)
	assert.Equal(t, results.StatusFailed, out[0].Status)
	assert.Contains(t, out[0].Error, "teardown failed")
}

func TestSessionPolicyWithoutReuse(t *testing.T) {
	cfg := config.Default()
	cfg.SessionReuse = config.Bool(false)

	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.Test("a", registry.TestOptions{}, func(tt *runtime.T) error { return nil })
			b.Test("b", registry.TestOptions{}, func(tt *runtime.T) error { return nil })
		})
	})

	r, fake := newTestRunner(t, Options{Config: cfg})
	flatten(r.RunSuite(context.Background(), root))

	closes := 0
	for _, call := range fake.Calls() {
		if call == "closeContext:failed=false" {
			closes++
		}
	}
	assert.Equal(t, 2, closes)
}

func TestRunClearsTrackerAndCounts(t *testing.T) {
	registry.Clear()
	t.Cleanup(registry.Clear)
	registry.Register("run.spec", func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.Test("passes", registry.TestOptions{}, func(tt *runtime.T) error { return nil })
			b.Test("fails", registry.TestOptions{}, func(tt *runtime.T) error {
				return errors.New("boom")
			})
		})
	})

	r, fake := newTestRunner(t, Options{})
	run, err := r.Run(context.Background(), []string{"run.spec"})
	require.NoError(t, err)

	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, 2, run.Summary.Total)
	assert.Equal(t, 1, run.Summary.Passed)
	assert.Equal(t, 1, run.Summary.Failed)

	// The failed run closes the browser flagged as failed.
	assert.Contains(t, fake.Calls(), "closeAll:failed=true")
}

func TestRunUnknownUnit(t *testing.T) {
	registry.Clear()
	t.Cleanup(registry.Clear)

	r, _ := newTestRunner(t, Options{})
	_, err := r.Run(context.Background(), []string{"missing.spec"})
	require.Error(t, err)
}

func TestFilterByTag(t *testing.T) {
	var ran []string
	root := buildSuite(t, func(b *registry.Builder) {
		b.Describe("S", registry.SuiteOptions{}, func() {
			b.Test("smoke test", registry.TestOptions{Tags: []string{"smoke"}}, func(tt *runtime.T) error {
				ran = append(ran, "smoke")
				return nil
			})
			b.Test("full test", registry.TestOptions{Tags: []string{"regression"}}, func(tt *runtime.T) error {
				ran = append(ran, "full")
				return nil
			})
		})
	})

	r, _ := newTestRunner(t, Options{Filter: Filter{Tags: []string{"smoke"}}})
	out := flatten(r.RunSuite(context.Background(), root))
	require.Len(t, out, 1)
	assert.Equal(t, []string{"smoke"}, ran)
}

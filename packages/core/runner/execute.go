package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/mohammed-a-khan/ptf/packages/core/registry"
	"github.com/mohammed-a-khan/ptf/packages/core/results"
	"github.com/mohammed-a-khan/ptf/packages/core/runtime"
	"github.com/mohammed-a-khan/ptf/packages/data"
)

// slowMultiplier scales the effective timeout of slow-marked tests. Applied
// before the race starts, never retroactively.
const slowMultiplier = 3

var errTimedOut = errors.New("test timed out")

// runIteration executes one test iteration through the retry loop and
// returns its finalized result.
func (r *Runner) runIteration(ctx context.Context, t *registry.Test, row *data.Row, info *data.IterationInfo) *results.TestResult {
	displayName := t.Name
	var iter *results.Iteration
	if info != nil {
		displayName = data.DisplayName(t.Name, *info)
		iter = &results.Iteration{Index: info.Index, Total: info.Total, Kind: string(info.Kind)}
	}

	retries := t.EffectiveRetries(r.cfg.Retries)
	var res *results.TestResult
	for attempt := 0; attempt <= retries; attempt++ {
		res = r.attempt(ctx, t, row, displayName, attempt)
		if !res.Status.IsFailure() {
			break
		}
		if attempt < retries {
			r.log.WithFields(map[string]any{
				"test":    displayName,
				"attempt": attempt + 1,
				"retries": retries,
			}).Warn("test failed, retrying")
		}
	}
	res.Iteration = iter
	return res
}

// attempt runs a single execution attempt: session, fixtures, hook chains,
// the body raced against its timeout, and classification.
func (r *Runner) attempt(ctx context.Context, t *registry.Test, row *data.Row, displayName string, attempt int) *results.TestResult {
	res := &results.TestResult{
		Name:         displayName,
		TemplateName: t.Name,
		SuitePath:    t.Path,
		StartedAt:    time.Now(),
		Attempts:     attempt + 1,
		Tags:         t.AllTags(),
		WorkerID:     r.workerID,
	}

	// Infrastructure failure: report a synthetic failed result for this
	// test without crashing the run.
	if err := r.backend.Launch(ctx); err != nil {
		res.Status = results.StatusFailed
		res.Error = fmt.Sprintf("launching browser: %v", err)
		res.Duration = time.Since(res.StartedAt)
		return res
	}

	tt := runtime.New(displayName, r.backend, row, r.log.WithField("test", displayName))
	if t.Options.Slow {
		tt.Slow()
	}
	if t.Options.ExpectedToFail {
		tt.Fail()
	}

	beforeEach, afterEach := hookChains(t.Suite)

	var bodyErr error
	var timedOut bool

	tt.EnterHook("beforeEach")
	hookErr := r.race(ctx, tt, t, func() error {
		return callHooks(tt, beforeEach)
	})
	tt.LeaveHook()

	if hookErr != nil {
		bodyErr = fmt.Errorf("before-each hook: %w", hookErr)
	} else {
		bodyErr = r.race(ctx, tt, t, func() error {
			return t.Fn(tt)
		})
		timedOut = errors.Is(bodyErr, errTimedOut)
	}

	// After-each runs regardless of the body's outcome, inner hooks first.
	tt.EnterHook("afterEach")
	if afterErr := callHooks(tt, afterEach); afterErr != nil && bodyErr == nil {
		bodyErr = fmt.Errorf("after-each hook: %w", afterErr)
	}
	tt.LeaveHook()

	r.classify(res, tt, t, bodyErr, timedOut)

	res.Steps = append(res.Steps, tt.Steps()...)
	res.Attachments = tt.Attachments()
	res.Annotations = tt.Annotations()
	if cols := row.Accessed(); len(cols) > 0 {
		res.Annotations = append(res.Annotations, fmt.Sprintf("data columns read: %v", cols))
	}
	res.Duration = time.Since(res.StartedAt)
	return res
}

// classify turns declared and runtime state plus the body outcome into a
// terminal status, capturing a screenshot on failure before the caller
// decides whether to retry.
func (r *Runner) classify(res *results.TestResult, tt *runtime.T, t *registry.Test, bodyErr error, timedOut bool) {
	st := tt.Snapshot()

	// Typed control-flow signals short-circuit classification entirely.
	var sig *runtime.Signal
	if errors.As(bodyErr, &sig) {
		switch sig.Kind {
		case runtime.SignalFixme:
			res.Status = results.StatusFixme
		default:
			res.Status = results.StatusSkipped
		}
		res.SkipReason = sig.Reason
		return
	}

	failed := bodyErr != nil
	if st.ExpectedToFail {
		// Mutually exclusive and exhaustive for the annotation: a throw is
		// the expected failure, a pass is the error.
		if failed {
			res.Status = results.StatusExpectedFailure
			res.SkipReason = bodyErr.Error()
		} else {
			res.Status = results.StatusUnexpectedPass
			res.Error = "test was expected to fail but passed"
		}
		return
	}

	if !failed {
		res.Status = results.StatusPassed
		return
	}

	res.Status = results.StatusFailed
	res.Error = bodyErr.Error()
	res.TimedOut = timedOut
	if stack := stackOf(bodyErr); stack != "" {
		res.Stack = stack
	}

	if shot, err := r.backend.Screenshot(res.Name); err == nil {
		res.Artifacts.Screenshots = append(res.Artifacts.Screenshots, shot)
	}
	mergeArtifacts(&res.Artifacts, r.backend.SessionArtifacts())
}

// race runs fn against the effective timeout. The loser is abandoned, not
// cancelled: the goroutine may still be running after the deadline, which is
// why the timer re-checks runtime extensions before giving up.
func (r *Runner) race(ctx context.Context, tt *runtime.T, t *registry.Test, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- safeCall(fn)
	}()

	start := time.Now()
	timer := time.NewTimer(r.effectiveTimeout(tt, t))
	defer timer.Stop()

	for {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			// The body may have extended its own budget via SetTimeout or
			// Slow after the race started.
			effective := r.effectiveTimeout(tt, t)
			if elapsed := time.Since(start); elapsed < effective {
				timer.Reset(effective - elapsed)
				continue
			}
			return fmt.Errorf("%w after %s", errTimedOut, r.effectiveTimeout(tt, t))
		}
	}
}

// effectiveTimeout resolves the timeout for the attempt: runtime override,
// else declared/inherited, scaled by the slow multiplier.
func (r *Runner) effectiveTimeout(tt *runtime.T, t *registry.Test) time.Duration {
	st := tt.Snapshot()
	effective := t.EffectiveTimeout(r.cfg.GetTimeout())
	if st.CustomTimeout > 0 {
		effective = st.CustomTimeout
	}
	if st.IsSlow {
		effective *= slowMultiplier
	}
	return effective
}

// hookChains collects the before-each and after-each hook lists along the
// ancestor chain: before-each outer suites first, after-each mirrored with
// inner suites first.
func hookChains(s *registry.Suite) (beforeEach, afterEach []registry.HookFunc) {
	var lineage []*registry.Suite
	for cur := s; cur != nil; cur = cur.Parent {
		lineage = append([]*registry.Suite{cur}, lineage...)
	}
	for _, suite := range lineage {
		beforeEach = append(beforeEach, suite.BeforeEach...)
	}
	for i := len(lineage) - 1; i >= 0; i-- {
		afterEach = append(afterEach, lineage[i].AfterEach...)
	}
	return beforeEach, afterEach
}

// runHooks executes a hook list under a named phase, recovering panics.
func runHooks(tt *runtime.T, phase string, hooks []registry.HookFunc) error {
	tt.EnterHook(phase)
	defer tt.LeaveHook()
	if err := callHooks(tt, hooks); err != nil {
		return fmt.Errorf("%s hook: %w", phase, err)
	}
	return nil
}

func callHooks(tt *runtime.T, hooks []registry.HookFunc) error {
	for _, h := range hooks {
		hook := h
		if err := safeCall(func() error { return hook(tt) }); err != nil {
			return err
		}
	}
	return nil
}

// panicError wraps a recovered panic, preserving the stack for the report.
type panicError struct {
	value any
	stack string
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// safeCall invokes fn, converting panics into errors. Control-flow signals
// pass through as their typed error so classification can see them.
func safeCall(fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			if sig, ok := runtime.AsSignal(v); ok {
				err = sig
				return
			}
			err = &panicError{value: v, stack: string(debug.Stack())}
		}
	}()
	return fn()
}

func stackOf(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return pe.stack
	}
	return ""
}

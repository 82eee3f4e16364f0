// Package orchestrator distributes registered tests across worker
// subprocesses. Each worker owns an isolated browser session; the
// orchestrator plans work items, feeds them over a pull-based queue, recycles
// stalled or crashed workers, and reassembles per-item results into the
// unified run tree.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mohammed-a-khan/ptf/packages/core/config"
	"github.com/mohammed-a-khan/ptf/packages/core/results"
	"github.com/mohammed-a-khan/ptf/packages/core/runner"
	"github.com/mohammed-a-khan/ptf/packages/data"
	"github.com/mohammed-a-khan/ptf/packages/ipc"
)

// Options wires an Orchestrator's collaborators.
type Options struct {
	Config *config.Config
	Loader *data.Loader
	Log    *logrus.Entry
	Filter runner.Filter

	// Binary overrides the executable spawned as workers. Defaults to the
	// running binary, which re-executes itself with the worker subcommand.
	Binary string
}

// Orchestrator runs units in parallel across worker subprocesses.
type Orchestrator struct {
	cfg     *config.Config
	loader  *data.Loader
	log     *logrus.Entry
	filter  runner.Filter
	bin     string
	respawn *rate.Limiter
}

// New builds an orchestrator. Nil collaborators get fresh defaults.
func New(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Loader == nil {
		opts.Loader = data.NewLoader()
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Binary == "" {
		bin, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolving worker binary: %w", err)
		}
		opts.Binary = bin
	}
	return &Orchestrator{
		cfg:    opts.Config,
		loader: opts.Loader,
		log:    opts.Log,
		filter: opts.Filter,
		bin:    opts.Binary,
		// Crash-looping workers must not fork-bomb the host.
		respawn: rate.NewLimiter(rate.Every(time.Second), 3),
	}, nil
}

// outcome carries one completed item back to the collector. Exactly one of
// test and suite is set.
type outcome struct {
	item  *Item
	test  *results.TestResult
	suite *results.SuiteResult
	tests []*results.TestResult
}

// Run plans, distributes, and collects. The run resolves even when the hard
// deadline fires; work that never completed is reported as skipped and the
// result is marked incomplete.
func (o *Orchestrator) Run(ctx context.Context, units []string) (*results.RunResult, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("no spec units to run")
	}

	start := time.Now()
	run := &results.RunResult{
		RunID:       uuid.NewString(),
		Environment: o.cfg.Environment,
		StartedAt:   start,
	}

	p, err := o.plan(units)
	if err != nil {
		return nil, err
	}
	for _, res := range p.resolved {
		node := run.FindSuite(res.SuitePath)
		node.Tests = append(node.Tests, res)
	}
	if len(p.items) == 0 {
		run.Duration = time.Since(start)
		run.Recount()
		return run, nil
	}

	var cancel context.CancelFunc = func() {}
	if d := time.Duration(o.cfg.RunDeadline); d > 0 {
		ctx, cancel = context.WithTimeout(ctx, d)
	}
	defer cancel()

	n := o.cfg.GetWorkers()
	if n > len(p.items) {
		n = len(p.items)
	}
	if n < 1 {
		n = 1
	}
	run.Workers = n
	o.log.WithFields(map[string]any{"items": len(p.items), "workers": n}).Info("starting parallel run")

	queue := make(chan *Item, len(p.items)*maxAssignments)
	pending := make(map[string]*Item, len(p.items))
	for _, item := range p.items {
		queue <- item
		pending[item.ID] = item
	}

	out := make(chan outcome, len(p.items)*maxAssignments)
	g := new(errgroup.Group)
	for slot := 0; slot < n; slot++ {
		slot := slot
		g.Go(func() error {
			o.runSlot(ctx, slot, units, queue, out)
			return nil
		})
	}

	remaining := len(p.items)
collect:
	for remaining > 0 {
		select {
		case oc := <-out:
			o.attach(run, oc)
			delete(pending, oc.item.ID)
			remaining--
		case <-ctx.Done():
			break collect
		}
	}
	if ctx.Err() == nil {
		// Slots are parked on the queue; unblock them. On cancellation they
		// exit through their own ctx checks and the queue is left open, so a
		// late requeue can never hit a closed channel.
		close(queue)
	}
	_ = g.Wait()

	// Drain outcomes that landed between the deadline and worker shutdown.
	for len(out) > 0 {
		oc := <-out
		o.attach(run, oc)
		delete(pending, oc.item.ID)
	}

	if ctx.Err() != nil && len(pending) > 0 {
		reason := "run cancelled"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = "run deadline exceeded"
		}
		run.Incomplete = true
		for _, item := range pending {
			o.attach(run, outcome{
				item:  item,
				tests: item.failureResults(results.StatusSkipped, reason),
			})
		}
		o.log.WithField("unfinished", len(pending)).Warnf("%s, resolving with partial results", reason)
	}

	run.Duration = time.Since(start)
	run.Recount()
	return run, nil
}

// runSlot supervises one worker slot for the lifetime of the run: it pulls
// items, keeps a live subprocess, and recycles it on crash or stall.
func (o *Orchestrator) runSlot(ctx context.Context, slot int, units []string, queue chan *Item, out chan<- outcome) {
	var p *proc
	defer func() {
		if p != nil {
			p.terminate()
		}
	}()

	for {
		var item *Item
		select {
		case it, ok := <-queue:
			if !ok {
				return
			}
			item = it
		case <-ctx.Done():
			return
		}

		item.attempts++
		if p == nil {
			if err := o.respawn.Wait(ctx); err != nil {
				o.requeue(item, queue, out, "run cancelled before assignment")
				return
			}
			np, err := o.spawn(ctx, slot, units)
			if err != nil {
				o.log.WithField("slot", slot).WithError(err).Error("spawning worker")
				o.requeue(item, queue, out, fmt.Sprintf("spawning worker: %v", err))
				continue
			}
			p = np
		}

		oc, err := o.dispatch(ctx, p, item)
		if err != nil {
			if ctx.Err() != nil {
				// Leave the item pending; the collector resolves it.
				return
			}
			o.log.WithFields(map[string]any{"slot": slot, "item": item.ID}).WithError(err).Warn("recycling worker")
			p.kill()
			p = nil
			o.requeue(item, queue, out, err.Error())
			continue
		}
		out <- oc
	}
}

// requeue offers the item to another worker, or synthesizes its failure once
// the assignment budget is spent.
func (o *Orchestrator) requeue(item *Item, queue chan<- *Item, out chan<- outcome, reason string) {
	if item.attempts < maxAssignments {
		queue <- item
		return
	}
	out <- outcome{
		item:  item,
		tests: item.failureResults(results.StatusFailed, fmt.Sprintf("worker failed executing test: %s", reason)),
	}
}

// dispatch sends the assignment and waits for its completion frame. No frame
// within the stall timeout means the worker is wedged, likely on a hung
// browser, and gets recycled.
func (o *Orchestrator) dispatch(ctx context.Context, p *proc, item *Item) (outcome, error) {
	if err := p.assign(item); err != nil {
		return outcome{}, fmt.Errorf("assigning item: %w", err)
	}

	stall := time.NewTimer(o.cfg.GetStallTimeout())
	defer stall.Stop()

	for {
		select {
		case env, ok := <-p.frames:
			if !ok {
				return outcome{}, fmt.Errorf("worker %d exited mid-assignment", p.id)
			}
			switch env.Type {
			case ipc.TypeResult:
				if env.Result == nil || env.Result.Test == nil {
					return outcome{}, fmt.Errorf("worker %d sent empty result", p.id)
				}
				return outcome{item: item, test: env.Result.Test}, nil
			case ipc.TypeBatchResult:
				if env.BatchResult == nil || env.BatchResult.Suite == nil {
					return outcome{}, fmt.Errorf("worker %d sent empty batch result", p.id)
				}
				return outcome{item: item, suite: env.BatchResult.Suite}, nil
			case ipc.TypeError:
				// The worker is healthy, the assignment is not. Fail the
				// item without recycling.
				return outcome{
					item:  item,
					tests: item.failureResults(results.StatusFailed, env.Error.Message),
				}, nil
			default:
				o.log.WithField("type", env.Type).Debug("ignoring unexpected frame")
			}
		case <-stall.C:
			return outcome{}, fmt.Errorf("no response within %s", o.cfg.GetStallTimeout())
		case <-ctx.Done():
			return outcome{}, ctx.Err()
		}
	}
}

// attach merges one outcome into the run tree, keyed by suite path.
func (o *Orchestrator) attach(run *results.RunResult, oc outcome) {
	switch {
	case oc.test != nil:
		node := run.FindSuite(oc.test.SuitePath)
		node.Tests = append(node.Tests, oc.test)
	case oc.suite != nil:
		node := run.FindSuite(oc.item.BatchPath)
		node.Tags = oc.suite.Tags
		node.Mode = oc.suite.Mode
		node.Duration = oc.suite.Duration
		node.Tests = append(node.Tests, oc.suite.Tests...)
		node.Suites = append(node.Suites, oc.suite.Suites...)
	default:
		for _, res := range oc.tests {
			node := run.FindSuite(res.SuitePath)
			node.Tests = append(node.Tests, res)
		}
	}
}

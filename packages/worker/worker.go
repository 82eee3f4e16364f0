// Package worker implements the subprocess side of the parallel run. A
// worker reads assignments from stdin, executes them with its own browser
// session and its own freshly built registration trees, and writes results
// to stdout. Logs go to stderr so they never corrupt the protocol stream.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/mohammed-a-khan/ptf/packages/browser"
	"github.com/mohammed-a-khan/ptf/packages/core/config"
	"github.com/mohammed-a-khan/ptf/packages/core/deps"
	"github.com/mohammed-a-khan/ptf/packages/core/registry"
	"github.com/mohammed-a-khan/ptf/packages/core/runner"
	"github.com/mohammed-a-khan/ptf/packages/data"
	"github.com/mohammed-a-khan/ptf/packages/ipc"
)

// Options wires a worker's collaborators.
type Options struct {
	ID      int
	Config  *config.Config
	Units   []string
	Backend browser.Backend
	Log     *logrus.Entry

	// In and Out default to stdin/stdout, the protocol streams wired up by
	// the orchestrator.
	In  io.Reader
	Out io.Writer
}

// Worker executes assignments until its input closes or it is told to
// terminate.
type Worker struct {
	id      int
	cfg     *config.Config
	units   []string
	backend browser.Backend
	log     *logrus.Entry
	conn    *ipc.Conn
}

// New builds a worker. Nil collaborators get fresh defaults; the default
// backend drives a real browser per the configuration.
func New(opts Options) *Worker {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Backend == nil {
		opts.Backend = browser.NewPlaywright(browser.Options{
			Browser:     opts.Config.GetBrowser(),
			Headless:    opts.Config.GetHeadless(),
			ResultsDir:  opts.Config.GetResultsDir(),
			WorkerID:    opts.ID,
			RecordVideo: opts.Config.GetRecordVideo(),
			RecordHAR:   opts.Config.GetRecordHAR(),
			RecordTrace: opts.Config.GetRecordTrace(),
			BaseURL:     opts.Config.BaseURL,
		})
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if len(opts.Units) == 0 {
		opts.Units = registry.Units()
	}
	return &Worker{
		id:      opts.ID,
		cfg:     opts.Config,
		units:   opts.Units,
		backend: opts.Backend,
		log:     opts.Log.WithField("worker", opts.ID),
		conn:    ipc.NewConn(opts.In, opts.Out),
	}
}

// Run is the assignment loop. Preload failures are fatal: a worker that
// cannot build its units reports nothing useful.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		if err := w.backend.CloseAll(false); err != nil {
			w.log.WithError(err).Warn("closing browser on shutdown")
		}
	}()

	// Preload: building every unit up front surfaces registration errors
	// before the orchestrator hands out work.
	for _, unit := range w.units {
		if _, err := registry.Build(unit); err != nil {
			return fmt.Errorf("preloading unit %q: %w", unit, err)
		}
	}
	if err := w.conn.Send(&ipc.Envelope{
		Type:  ipc.TypeReady,
		Ready: &ipc.Ready{WorkerID: w.id, PID: os.Getpid(), Units: w.units},
	}); err != nil {
		return err
	}
	w.log.WithField("units", len(w.units)).Debug("worker ready")

	for {
		env, err := w.conn.Receive()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading assignment: %w", err)
		}

		switch env.Type {
		case ipc.TypeExecute:
			w.handleExecute(ctx, env.Execute)
		case ipc.TypeExecuteBatch:
			w.handleBatch(ctx, env.ExecuteBatch)
		case ipc.TypeTerminate:
			w.log.Debug("terminating on request")
			return nil
		default:
			w.sendError("", fmt.Sprintf("unexpected frame %s", env.Type))
		}
	}
}

// handleExecute runs one test iteration. The registration tree is rebuilt
// for every assignment so no state leaks between tests that happen to land
// on the same worker.
func (w *Worker) handleExecute(ctx context.Context, msg *ipc.Execute) {
	if msg == nil {
		w.sendError("", "execute frame missing payload")
		return
	}
	root, err := registry.Build(msg.Unit)
	if err != nil {
		w.sendError(msg.ItemID, fmt.Sprintf("building unit %q: %v", msg.Unit, err))
		return
	}
	res, err := w.newRunner(nil).RunSingle(ctx, root, msg.TestID, msg.Row, msg.Iteration)
	if err != nil {
		w.sendError(msg.ItemID, err.Error())
		return
	}
	w.send(&ipc.Envelope{
		Type:   ipc.TypeResult,
		Result: &ipc.Result{ItemID: msg.ItemID, Test: res},
	})
}

// handleBatch runs a whole serial suite in-process, preserving its ordering
// and failure propagation.
func (w *Worker) handleBatch(ctx context.Context, msg *ipc.ExecuteBatch) {
	if msg == nil {
		w.sendError("", "execute-batch frame missing payload")
		return
	}
	root, err := registry.Build(msg.Unit)
	if err != nil {
		w.sendError(msg.ItemID, fmt.Sprintf("building unit %q: %v", msg.Unit, err))
		return
	}
	sr, err := w.newRunner(msg.RowOverrides).RunBatch(ctx, root, msg.SuitePath)
	if err != nil {
		w.sendError(msg.ItemID, err.Error())
		return
	}
	w.send(&ipc.Envelope{
		Type:        ipc.TypeBatchResult,
		BatchResult: &ipc.BatchResult{ItemID: msg.ItemID, Suite: sr},
	})
}

// newRunner builds a fresh sequential runner for one assignment. The
// browser backend is the only collaborator shared across assignments;
// dependency state never outlives the batch that produced it.
func (w *Worker) newRunner(overrides map[string][]map[string]any) *runner.Runner {
	return runner.New(runner.Options{
		Config:       w.cfg,
		Backend:      w.backend,
		Tracker:      deps.NewTracker(),
		Loader:       data.NewLoader(),
		Log:          w.log,
		WorkerID:     w.id,
		RowOverrides: overrides,
	})
}

func (w *Worker) send(env *ipc.Envelope) {
	if err := w.conn.Send(env); err != nil {
		w.log.WithError(err).Error("sending frame")
	}
}

func (w *Worker) sendError(itemID, msg string) {
	w.log.WithField("item", itemID).Error(msg)
	w.send(&ipc.Envelope{
		Type:  ipc.TypeError,
		Error: &ipc.ErrorInfo{ItemID: itemID, Message: msg},
	})
}

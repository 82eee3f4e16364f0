package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/mohammed-a-khan/ptf/packages/ipc"
)

// launchWindow bounds how long a freshly spawned worker may take to preload
// its units and report ready.
const launchWindow = 60 * time.Second

// proc supervises one worker subprocess. The worker is this same binary
// re-executed with the hidden worker subcommand; protocol frames travel on
// stdin/stdout and the worker's stderr is passed through.
type proc struct {
	id    int
	cmd   *exec.Cmd
	conn  *ipc.Conn
	stdin io.WriteCloser

	frames chan *ipc.Envelope
	exited chan error
}

func (o *Orchestrator) spawn(ctx context.Context, id int, units []string) (*proc, error) {
	args := []string{"worker", "--worker-id", strconv.Itoa(id)}
	for _, u := range units {
		args = append(args, "--unit", u)
	}
	cmd := exec.CommandContext(ctx, o.bin, args...)
	cmd.Env = append(os.Environ(), o.cfg.Env()...)
	cmd.Env = append(cmd.Env, "PTF_WORKER_ID="+strconv.Itoa(id))
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting worker %d: %w", id, err)
	}

	p := &proc{
		id:     id,
		cmd:    cmd,
		conn:   ipc.NewConn(stdout, stdin),
		stdin:  stdin,
		frames: make(chan *ipc.Envelope, 16),
		exited: make(chan error, 1),
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer close(p.frames)
		for {
			env, err := p.conn.Receive()
			if err != nil {
				return
			}
			p.frames <- env
		}
	}()
	go func() {
		// Wait must not race the pipe reader.
		<-readerDone
		p.exited <- cmd.Wait()
	}()

	if err := p.awaitReady(ctx); err != nil {
		p.kill()
		return nil, err
	}
	o.log.WithFields(map[string]any{"worker": id, "pid": cmd.Process.Pid}).Debug("worker ready")
	return p, nil
}

func (p *proc) awaitReady(ctx context.Context) error {
	timer := time.NewTimer(launchWindow)
	defer timer.Stop()
	select {
	case env, ok := <-p.frames:
		if !ok {
			return fmt.Errorf("worker %d exited before ready", p.id)
		}
		if env.Type != ipc.TypeReady {
			return fmt.Errorf("worker %d sent %s before ready", p.id, env.Type)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("worker %d did not report ready within %s", p.id, launchWindow)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// assign sends a work item to the worker.
func (p *proc) assign(item *Item) error {
	env := &ipc.Envelope{}
	if item.Batch {
		env.Type = ipc.TypeExecuteBatch
		env.ExecuteBatch = &ipc.ExecuteBatch{
			ItemID:       item.ID,
			Unit:         item.Unit,
			SuitePath:    item.BatchPath,
			RowOverrides: item.RowOverrides,
		}
	} else {
		env.Type = ipc.TypeExecute
		env.Execute = &ipc.Execute{
			ItemID:    item.ID,
			Unit:      item.Unit,
			TestID:    item.TestID,
			Row:       item.Row,
			Iteration: item.Iteration,
		}
	}
	return p.conn.Send(env)
}

// terminate asks the worker to shut down cleanly and falls back to killing
// it when it lingers.
func (p *proc) terminate() {
	_ = p.conn.Send(&ipc.Envelope{Type: ipc.TypeTerminate})
	_ = p.stdin.Close()
	select {
	case <-p.exited:
	case <-time.After(10 * time.Second):
		p.kill()
	}
}

func (p *proc) kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	select {
	case <-p.exited:
	case <-time.After(5 * time.Second):
	}
}

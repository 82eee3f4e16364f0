// Package ipc defines the line-delimited JSON protocol spoken between the
// orchestrator and its worker processes over stdin/stdout. Worker stderr is
// reserved for logs and never carries protocol frames.
package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

// MessageType discriminates protocol frames.
type MessageType string

const (
	// TypeReady is sent once by the worker after preloading its units.
	TypeReady MessageType = "ready"
	// TypeExecute assigns a single test iteration to the worker.
	TypeExecute MessageType = "execute"
	// TypeExecuteBatch assigns a whole serial suite as one atomic item.
	TypeExecuteBatch MessageType = "execute-batch"
	// TypeResult carries the finished result of an execute assignment.
	TypeResult MessageType = "result"
	// TypeBatchResult carries the suite result of an execute-batch assignment.
	TypeBatchResult MessageType = "batch-result"
	// TypeError reports an assignment the worker could not execute at all.
	TypeError MessageType = "error"
	// TypeTerminate asks the worker to clean up its session and exit.
	TypeTerminate MessageType = "terminate"
)

// Envelope is the wire frame. Exactly one payload field matching Type is set.
type Envelope struct {
	Type         MessageType   `json:"type"`
	Ready        *Ready        `json:"ready,omitempty"`
	Execute      *Execute      `json:"execute,omitempty"`
	ExecuteBatch *ExecuteBatch `json:"executeBatch,omitempty"`
	Result       *Result       `json:"result,omitempty"`
	BatchResult  *BatchResult  `json:"batchResult,omitempty"`
	Error        *ErrorInfo    `json:"error,omitempty"`
}

// Ready announces a booted worker.
type Ready struct {
	WorkerID int      `json:"workerId"`
	PID      int      `json:"pid"`
	Units    []string `json:"units"`
}

// Execute is a single-test assignment. Row carries the resolved data values
// for this iteration; the worker never re-reads data sources.
type Execute struct {
	ItemID    string             `json:"itemId"`
	Unit      string             `json:"unit"`
	TestID    string             `json:"testId"`
	Row       map[string]any     `json:"row,omitempty"`
	Iteration *results.Iteration `json:"iteration,omitempty"`
}

// ExecuteBatch is a serial-suite assignment. RowOverrides ships resolved rows
// keyed by test id so every iteration inside the batch runs in order in the
// same process.
type ExecuteBatch struct {
	ItemID       string                      `json:"itemId"`
	Unit         string                      `json:"unit"`
	SuitePath    []string                    `json:"suitePath"`
	RowOverrides map[string][]map[string]any `json:"rowOverrides,omitempty"`
}

// Result acknowledges a single-test assignment.
type Result struct {
	ItemID string              `json:"itemId"`
	Test   *results.TestResult `json:"test"`
}

// BatchResult acknowledges a batch assignment.
type BatchResult struct {
	ItemID string               `json:"itemId"`
	Suite  *results.SuiteResult `json:"suite"`
}

// ErrorInfo reports a non-result failure: the item, if any, is requeued by
// the orchestrator against a different worker.
type ErrorInfo struct {
	ItemID  string `json:"itemId,omitempty"`
	Message string `json:"message"`
}

// Conn frames envelopes over a reader/writer pair. Writes are serialized;
// reads are expected from a single goroutine.
type Conn struct {
	mu  sync.Mutex
	enc *json.Encoder
	dec *json.Decoder
}

// NewConn wraps the given streams. The worker passes os.Stdin/os.Stdout, the
// orchestrator passes the subprocess pipes.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{
		enc: json.NewEncoder(w),
		dec: json.NewDecoder(bufio.NewReader(r)),
	}
}

// Send writes one frame.
func (c *Conn) Send(env *Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(env); err != nil {
		return fmt.Errorf("encoding %s frame: %w", env.Type, err)
	}
	return nil
}

// Receive blocks for the next frame. io.EOF means the peer closed its end.
func (c *Conn) Receive() (*Envelope, error) {
	var env Envelope
	if err := c.dec.Decode(&env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, fmt.Errorf("frame missing type")
	}
	return &env, nil
}

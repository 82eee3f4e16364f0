// Package runner executes registration trees in-process: hook ordering,
// retries, timeout racing, runtime annotations, serial-mode failure
// propagation, dependency gating, data-driven iteration and session-reuse-
// aware browser lifecycle. The parallel orchestrator reuses this runner
// inside each worker process; the worker's isolation comes from the process
// boundary, not from a separate execution engine.
//
// The timeout race abandons the losing goroutine rather than cancelling it:
// the cooperative model has no forced cancellation, so a timed-out body may
// still be running when its result is finalized. Bodies must not mutate
// shared state after suspension points for this reason.
package runner

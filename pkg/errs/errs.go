// Package errs defines the error taxonomy shared across the analyzer and
// orchestrator packages. Most errors are recovered locally by the
// caller; only InvariantViolation and Cancellation are meant to propagate
// out of the deterministic pipeline.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrDumpNotOpen indicates the inspector was called before the dump was opened.
	ErrDumpNotOpen = errors.New("dump not open")

	// ErrUnknownTool indicates a tool dispatch request named a tool the
	// dispatcher does not recognize.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrBlockedUnsafeCommand indicates exec() rejected a command under the
	// safety filter.
	ErrBlockedUnsafeCommand = errors.New("blocked unsafe command")

	// ErrInvalidToolArgs indicates a tool call's arguments failed schema validation.
	ErrInvalidToolArgs = errors.New("invalid tool arguments")

	// ErrToolBudgetExceeded indicates maxToolCalls was reached.
	ErrToolBudgetExceeded = errors.New("tool call budget exceeded")

	// ErrSamplingFailure indicates every sampling attempt for an iteration failed.
	ErrSamplingFailure = errors.New("sampling failed")
)

// InvariantViolationError is fatal: it means the report finalizer (or a
// post-finalize validator) detected a tree that cannot be made self
// consistent. Unlike every other error kind in this package, callers outside
// the orchestrator must surface this rather than recover from it.
type InvariantViolationError struct {
	Invariant string // Short invariant id, e.g. "frame-index-contiguous"
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violated (%s): %s", e.Invariant, e.Detail)
}

// NewInvariantViolation builds an *InvariantViolationError.
func NewInvariantViolation(invariant, detail string) *InvariantViolationError {
	return &InvariantViolationError{Invariant: invariant, Detail: detail}
}

// DebuggerCommandError wraps a failed debugger adapter command invocation.
// Recorded as the owning tool's output string; the analysis loop continues.
type DebuggerCommandError struct {
	Command string
	Err     error
}

func (e *DebuggerCommandError) Error() string {
	return fmt.Sprintf("debugger command %q failed: %v", e.Command, e.Err)
}

func (e *DebuggerCommandError) Unwrap() error { return e.Err }

// NewDebuggerCommandError builds a *DebuggerCommandError.
func NewDebuggerCommandError(cmd string, err error) *DebuggerCommandError {
	return &DebuggerCommandError{Command: cmd, Err: err}
}

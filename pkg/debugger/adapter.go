// Package debugger defines the debugger adapter interface: the uniform
// execute(cmd) -> text boundary over WinDbg or LLDB. Process
// management, symbol server fetching, and transport details are external
// collaborators — this package only specifies the contract and a couple of
// small, context-free helpers used by parsers/dispatcher against it.
package debugger

import "context"

// DebuggerType identifies which backend an Adapter wraps.
type DebuggerType string

const (
	WinDbg DebuggerType = "WinDbg"
	LLDB   DebuggerType = "LLDB"
)

// Adapter is the uniform interface over a debugger process that has a dump
// file open. Implementations (process spawning, I/O plumbing) live outside
// this module; dumpscope only consumes this interface.
type Adapter interface {
	// Execute runs a single debugger command and returns its raw text output.
	Execute(ctx context.Context, cmd string) (string, error)

	// DebuggerType reports which backend this adapter wraps.
	DebuggerType() DebuggerType

	// IsDumpOpen reports whether a dump file is currently open.
	IsDumpOpen() bool

	// LoadSOSExtension loads the managed-runtime debugging extension (SOS).
	LoadSOSExtension(ctx context.Context) error

	// ConfigureSymbolPath sets the debugger's symbol search path.
	ConfigureSymbolPath(ctx context.Context, path string) error

	// OpenDumpFile opens a dump file, optionally pointing at the original executable.
	OpenDumpFile(ctx context.Context, path string, executable string) error

	// CloseDump closes the currently open dump, releasing debugger resources.
	CloseDump(ctx context.Context) error
}

package heapanalysis

import "github.com/dumpscope/dumpscope/pkg/inspector"

// RawManagedFrame is one raw managed frame as ClrMd would decode it, before
// the includeArgs/includeLocals filters are applied.
type RawManagedFrame struct {
	Function   string
	Parameters []inspector.StackParameter
	Locals     []inspector.StackLocal
}

// RawThreadStack is one thread's raw decoded managed call stack.
type RawThreadStack struct {
	ThreadID string
	Frames   []RawManagedFrame
}

// BuildThreadStacks applies the includeArgs/includeLocals filters to raw
// decoded managed stacks.
func BuildThreadStacks(raw []RawThreadStack, includeArgs, includeLocals bool) *inspector.Stacks {
	threads := make([]inspector.ThreadStack, 0, len(raw))
	for _, rt := range raw {
		frames := make([]inspector.ManagedStackFrame, 0, len(rt.Frames))
		for _, rf := range rt.Frames {
			frame := inspector.ManagedStackFrame{Function: rf.Function}
			if includeArgs {
				frame.Parameters = rf.Parameters
			}
			if includeLocals {
				frame.Locals = rf.Locals
			}
			frames = append(frames, frame)
		}
		threads = append(threads, inspector.ThreadStack{ThreadID: rt.ThreadID, Frames: frames})
	}
	return &inspector.Stacks{Threads: threads}
}

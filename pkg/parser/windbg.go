// Package parser translates raw WinDbg/LLDB debugger text output into the
// report model. Every exported function is a pure mutator of
// (text, *report.Report): malformed lines are skipped, never surfaced as an
// error, since a partially-unparseable transcript should still yield a
// partial report rather than none at all.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dumpscope/dumpscope/pkg/report"
)

// windbgThreadLineRe matches a WinDbg `~*` thread listing line:
// "[#.] N  Id: pid.tid Suspend: s Teb: addr State".
// The leading "." (rather than "#") marks the faulting/current thread.
var windbgThreadLineRe = regexp.MustCompile(
	`^\s*([.#])\s*(\d+)\s+Id:\s+([0-9a-fA-F]+)\.([0-9a-fA-F]+)\s+Suspend:\s+(\d+)\s+Teb:\s+(\S+)\s+(.*?)\s*$`)

// windbgFrameLineRe matches one line of a `~*k` stack stanza:
// "NN  sp  ret  module!function+0xN [file @ line]".
var windbgFrameLineRe = regexp.MustCompile(
	`^\s*([0-9a-fA-F]+)\s+(\S+)\s+(\S+)\s+(\S+)!(\S+?)(?:\+0x([0-9a-fA-F]+))?(?:\s+\[(.+?)\s+@\s+(\d+)\])?\s*$`)

// ParseWinDbgThreads parses the `~*` thread listing, creating one
// report.Thread per matched line in encounter order.
func ParseWinDbgThreads(text string, r *report.Report) {
	for _, line := range strings.Split(text, "\n") {
		m := windbgThreadLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ordinal, tid, state := m[2], m[4], m[7]
		r.Analysis.Threads.All = append(r.Analysis.Threads.All, report.Thread{
			ThreadID:   ordinal + " (" + tid + ")",
			OSThreadID: tid,
			State:      state,
			IsFaulting: m[1] == ".",
		})
	}
}

// ParseWinDbgStacks parses a `~*k` transcript: one stanza per thread,
// each starting at a thread-line header (blank lines are ignored), each stanza's
// frame lines matched by windbgFrameLineRe. The thread a stanza
// belongs to is matched by OS thread id against threads already registered
// by ParseWinDbgThreads; an unmatched stanza is skipped.
func ParseWinDbgStacks(text string, r *report.Report) {
	threadByOSID := make(map[string]*report.Thread, len(r.Analysis.Threads.All))
	for i := range r.Analysis.Threads.All {
		t := &r.Analysis.Threads.All[i]
		if t.OSThreadID != "" {
			threadByOSID[t.OSThreadID] = t
		}
	}

	var current *report.Thread
	for _, line := range strings.Split(text, "\n") {
		if m := windbgThreadLineRe.FindStringSubmatch(line); m != nil {
			current = threadByOSID[m[4]]
			continue
		}
		if current == nil {
			continue
		}
		fm := windbgFrameLineRe.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		frame := report.StackFrame{
			InstructionPointer: fm[3],
			Module:             fm[4],
			Function:           fm[5],
		}
		if fm[7] != "" {
			frame.SourceFile = fm[7]
			if n, err := strconv.Atoi(fm[8]); err == nil {
				frame.LineNumber = &n
			}
		}
		current.CallStack = append(current.CallStack, frame)
	}
}

package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dumpscope/dumpscope/pkg/report"
)

// lldbThreadHeaderRe matches an LLDB thread-list line:
// "* thread #N: tid = 0xH, ..., stop reason = ...". The rest of the line
// (module/function/offset) is not needed for the thread record itself —
// that detail comes from the backtrace, parsed separately.
var lldbThreadHeaderRe = regexp.MustCompile(`^thread #(\d+): tid = (0x[0-9a-fA-F]+)`)

// ParseLLDBThreads parses an LLDB `thread list` transcript.
// A thread is faulting iff its line is marked with a leading "*" AND it
// carries a "stop reason = " clause.
func ParseLLDBThreads(text string, r *report.Report) {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		faulting := strings.HasPrefix(trimmed, "*")
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "*"))

		stopReason := ""
		hasStopReason := false
		if idx := strings.Index(trimmed, "stop reason = "); idx >= 0 {
			hasStopReason = true
			stopReason = strings.TrimSpace(trimmed[idx+len("stop reason = "):])
			trimmed = strings.TrimRight(trimmed[:idx], ", ")
		}

		m := lldbThreadHeaderRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		ordinal := m[1]
		tidHex := strings.TrimPrefix(m[2], "0x")

		r.Analysis.Threads.All = append(r.Analysis.Threads.All, report.Thread{
			ThreadID:   ordinal + " (" + tidHex + ")",
			OSThreadID: tidHex,
			State:      stopReason,
			IsFaulting: faulting && hasStopReason,
		})
	}
}

var (
	lldbFramePrefixRe = regexp.MustCompile(`^frame #(\d+):\s+(0x[0-9a-fA-F]+)\s+(.*)$`)
	lldbAtSuffixRe    = regexp.MustCompile(`^(.*?)\s+at\s+(.+?):(\d+)(?::(\d+))?\s*$`)
	lldbOffsetSuffixRe = regexp.MustCompile(`^(.*?)\s*\+\s*(\d+)\s*$`)
)

// splitModuleFunction splits "module`function..." on the first backtick that
// is not nested inside parentheses: a backtick inside parens (e.g. generic
// arity markers in a function signature) must not be mistaken for the
// module/function separator.
func splitModuleFunction(s string) (module, rest string, ok bool) {
	depth := 0
	for i, ch := range s {
		switch ch {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case '`':
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return s, "", false
}

// ParseLLDBBacktrace parses an LLDB `bt` transcript into the current thread's
// call stack. The thread a stanza belongs to is tracked by matching the
// preceding "thread #N:" header line against threads already registered by
// ParseLLDBThreads.
func ParseLLDBBacktrace(text string, r *report.Report) {
	threadByTid := make(map[string]*report.Thread, len(r.Analysis.Threads.All))
	for i := range r.Analysis.Threads.All {
		t := &r.Analysis.Threads.All[i]
		if t.OSThreadID != "" {
			threadByTid[t.OSThreadID] = t
		}
	}

	var current *report.Thread
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		if m := lldbThreadHeaderRe.FindStringSubmatch(trimmed); m != nil {
			current = threadByTid[strings.TrimPrefix(m[2], "0x")]
			continue
		}
		if current == nil {
			continue
		}
		fm := lldbFramePrefixRe.FindStringSubmatch(strings.TrimSpace(line))
		if fm == nil {
			continue
		}
		current.CallStack = append(current.CallStack, parseLLDBFrameBody(fm[2], fm[3]))
	}
}

func parseLLDBFrameBody(ip, rest string) report.StackFrame {
	frame := report.StackFrame{InstructionPointer: ip}

	module, afterBacktick, ok := splitModuleFunction(rest)
	frame.Module = strings.TrimSpace(module)
	if !ok {
		return frame
	}

	funcPart := afterBacktick
	if m := lldbAtSuffixRe.FindStringSubmatch(afterBacktick); m != nil {
		funcPart = m[1]
		frame.SourceFile = m[2]
		if n, err := strconv.Atoi(m[3]); err == nil {
			frame.LineNumber = &n
		}
	}

	funcPart = strings.TrimSpace(funcPart)
	if m := lldbOffsetSuffixRe.FindStringSubmatch(funcPart); m != nil {
		frame.Function = strings.TrimSpace(m[1])
	} else {
		frame.Function = funcPart
	}
	return frame
}

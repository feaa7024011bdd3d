package aitools

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/dumpscope/dumpscope/pkg/report"
)

// ThreadNotFoundResult is the literal tool result for a failed thread lookup.
const ThreadNotFoundResult = "Thread not found"

// debuggerNativeIDRe matches the "NN (tid: 0xhex)" and "NN (tid)" spellings
// WinDbg-derived thread ids use in the report.
var debuggerNativeIDRe = regexp.MustCompile(`^(\d+)\s*\((?:tid:\s*)?(0x[0-9a-fA-F]+|\d+)\)$`)

// parseUintFlexible parses decimal or 0x-prefixed hex.
func parseUintFlexible(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		return v, err == nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	return v, err == nil
}

// threadMatches reports whether a thread matches the requested id under any
// of the accepted spellings: debugger-native, decimal, or hex against the
// OS thread id.
func threadMatches(t *report.Thread, query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return false
	}
	if t.ThreadID == query {
		return true
	}

	// "NN (tid: 0xhex)" — match the debugger index and, when both parse,
	// the OS thread id.
	if m := debuggerNativeIDRe.FindStringSubmatch(query); m != nil {
		if strings.HasPrefix(t.ThreadID, m[1]+" ") || t.ThreadID == m[1] {
			return true
		}
		if tid, ok := parseUintFlexible(m[2]); ok {
			if osTID, ok2 := parseUintFlexible(t.OSThreadID); ok2 && osTID == tid {
				return true
			}
		}
		return false
	}

	qv, qok := parseUintFlexible(query)
	if !qok {
		return false
	}
	if osTID, ok := parseUintFlexible(t.OSThreadID); ok && osTID == qv {
		return true
	}
	if t.ManagedThreadID != nil && *t.ManagedThreadID >= 0 && uint64(*t.ManagedThreadID) == qv {
		return true
	}
	// Debugger-native ids like "3 (1a2b)" still match a plain decimal "3".
	if idx := strings.IndexByte(t.ThreadID, ' '); idx > 0 {
		if iv, err := strconv.ParseUint(t.ThreadID[:idx], 10, 64); err == nil && iv == qv {
			return true
		}
	}
	if iv, err := strconv.ParseUint(t.ThreadID, 10, 64); err == nil && iv == qv {
		return true
	}
	return false
}

// threadStackFrame is the frame shape get_thread_stack returns.
type threadStackFrame struct {
	FrameNumber int    `json:"frameNumber"`
	Module      string `json:"module,omitempty"`
	Function    string `json:"function"`
	IsManaged   bool   `json:"isManaged"`
	SourceFile  string `json:"sourceFile,omitempty"`
	LineNumber  *int   `json:"lineNumber,omitempty"`
}

// GetThreadStack resolves a get_thread_stack call against the report's
// thread list. Returns the literal ThreadNotFoundResult string
// when no thread matches.
func GetThreadStack(r *report.Report, raw json.RawMessage) (string, error) {
	var args struct {
		ThreadID string `json:"threadId"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", err
	}

	for i := range r.Analysis.Threads.All {
		t := &r.Analysis.Threads.All[i]
		if !threadMatches(t, args.ThreadID) {
			continue
		}
		frames := make([]threadStackFrame, 0, len(t.CallStack))
		for _, f := range t.CallStack {
			frames = append(frames, threadStackFrame{
				FrameNumber: f.FrameNumber,
				Module:      f.Module,
				Function:    f.Function,
				IsManaged:   f.IsManaged,
				SourceFile:  f.SourceFile,
				LineNumber:  f.LineNumber,
			})
		}
		out, err := json.Marshal(struct {
			ThreadID string             `json:"threadId"`
			Frames   []threadStackFrame `json:"frames"`
		}{ThreadID: t.ThreadID, Frames: frames})
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	return ThreadNotFoundResult, nil
}

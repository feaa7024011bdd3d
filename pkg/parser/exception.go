package parser

import (
	"regexp"
	"strings"

	"github.com/dumpscope/dumpscope/pkg/report"
)

var (
	winDbgExceptionCodeRe = regexp.MustCompile(`(?i)EXCEPTION_CODE:.*?(0x[0-9a-fA-F]+)`)
	winDbgFaultingIPRe    = regexp.MustCompile(`(?i)FAULTING_IP:\s*\r?\n?\s*(\S+)!(\S+)`)
	lldbSignalRe          = regexp.MustCompile(`signal\s+(SIG\w+)`)
)

// ntstatusNames maps well-known NTSTATUS exception codes to a human type
// name.
var ntstatusNames = map[string]string{
	"0xc0000005": "AccessViolation",
	"0xc00000fd": "StackOverflow",
	"0x80000003": "Breakpoint",
	"0xc000001d": "IllegalInstruction",
}

// lldbSignalNames maps POSIX signal names to a platform-appropriate
// exception type fallback.
var lldbSignalNames = map[string]string{
	"SIGSEGV": "AccessViolation",
	"SIGABRT": "Abort",
	"SIGILL":  "IllegalInstruction",
	"SIGFPE":  "FloatingPointException",
	"SIGBUS":  "BusError",
	"SIGTRAP": "Breakpoint",
}

func ensureException(r *report.Report) {
	if r.Analysis.Exception == nil {
		r.Analysis.Exception = &report.ExceptionInfo{}
	}
}

// ParseWinDbgException extracts EXCEPTION_CODE and FAULTING_IP from a
// `!analyze -v` transcript.
func ParseWinDbgException(text string, r *report.Report) {
	if m := winDbgExceptionCodeRe.FindStringSubmatch(text); m != nil {
		ensureException(r)
		r.Analysis.Exception.HResult = m[1]
		if name, ok := ntstatusNames[strings.ToLower(m[1])]; ok {
			r.Analysis.Exception.Type = name
		}
	}
	if m := winDbgFaultingIPRe.FindStringSubmatch(text); m != nil {
		ensureException(r)
		r.Analysis.Exception.Address = m[1] + "!" + m[2]
	}
}

// ParseLLDBException extracts a terminating signal from an LLDB transcript
// and maps it to a platform-appropriate exception type. SIGSTOP
// never produces an exception — compute_signature treats a bare
// SIGSTOP as a hang snapshot, not a crash.
func ParseLLDBException(text string, r *report.Report) {
	m := lldbSignalRe.FindStringSubmatch(text)
	if m == nil {
		return
	}
	sig := m[1]
	if sig == "SIGSTOP" {
		r.Analysis.Environment.CrashInfo.SignalName = sig
		return
	}
	ensureException(r)
	r.Analysis.Environment.CrashInfo.SignalName = sig
	if name, ok := lldbSignalNames[sig]; ok {
		r.Analysis.Exception.Type = name
	} else {
		r.Analysis.Exception.Type = sig
	}
}

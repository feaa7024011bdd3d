package aitools

import (
	"regexp"
	"strings"
)

// unsafeCommandRe matches shell-escape attempts anywhere in a command chain.
// Matched case-insensitively after leading
// separators and whitespace are stripped.
var unsafeCommandRe = regexp.MustCompile(`(?i)(^|[;|&]\s*)(\.shell|platform shell|command script import|shell\s)`)

// denyListedCommands are rejected outright as the command's first token.
var denyListedCommands = map[string]bool{
	"windbg": true,
	"cdb":    true,
}

// BlockedUnsafeResult is the synthesized tool result for rejected commands.
const BlockedUnsafeResult = "Blocked unsafe command"

// IsUnsafeCommand applies the exec safety filter: strip leading
// separators/whitespace, match the shell-escape pattern, then check the
// explicit deny list.
func IsUnsafeCommand(command string) bool {
	stripped := strings.TrimLeft(command, ";|& \t")
	if unsafeCommandRe.MatchString(stripped) {
		return true
	}
	fields := strings.Fields(strings.ToLower(stripped))
	if len(fields) > 0 && denyListedCommands[fields[0]] {
		return true
	}
	return false
}

// dumpObjRe matches the two dumpobj spellings the rewrite rule covers:
// "sos dumpobj <addr>" and "!dumpobj <addr>".
var dumpObjRe = regexp.MustCompile(`(?i)^(?:sos\s+|!)dumpobj\s+(\S+)\s*$`)

// DumpObjAddress extracts the address operand if command is a dumpobj
// invocation eligible for the inspect rewrite, else ("", false).
func DumpObjAddress(command string) (string, bool) {
	m := dumpObjRe.FindStringSubmatch(strings.TrimSpace(command))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// sosBangRe matches "sos !word ..." with any whitespace between sos and the
// bang.
var sosBangRe = regexp.MustCompile(`(?i)^(sos)\s*!\s*(\S.*)$`)

// NormalizeSOSBang collapses "sos !word ..." to "sos word ..." for LLDB
// adapters, which reject the bang spelling. Returns the command unchanged
// when the pattern does not apply.
func NormalizeSOSBang(command string) string {
	trimmed := strings.TrimSpace(command)
	m := sosBangRe.FindStringSubmatch(trimmed)
	if m == nil {
		return command
	}
	return m[1] + " " + m[2]
}

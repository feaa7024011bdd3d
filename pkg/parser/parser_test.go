package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpscope/dumpscope/pkg/report"
)

func TestParseWinDbgThreads(t *testing.T) {
	text := `
.  0  Id: 1234.1a2b Suspend: 0 Teb: 00007ff6` + "`" + `12340000 Unfrozen
#  1  Id: 1234.1a2c Suspend: 1 Teb: 00007ff6` + "`" + `12341000 Unfrozen
`
	r := &report.Report{}
	ParseWinDbgThreads(text, r)
	require.Len(t, r.Analysis.Threads.All, 2)
	assert.Equal(t, "0 (1a2b)", r.Analysis.Threads.All[0].ThreadID)
	assert.True(t, r.Analysis.Threads.All[0].IsFaulting)
	assert.Equal(t, "1 (1a2c)", r.Analysis.Threads.All[1].ThreadID)
	assert.False(t, r.Analysis.Threads.All[1].IsFaulting)
}

func TestParseWinDbgStacks(t *testing.T) {
	r := &report.Report{}
	ParseWinDbgThreads(".  0  Id: 1234.1a2b Suspend: 0 Teb: 0x0 Unfrozen", r)

	stackText := `
.  0  Id: 1234.1a2b Suspend: 0 Teb: 0x0 Unfrozen
00 00000000` + "`" + `00efface 00007ff6` + "`" + `12341111 MyApp!MyApp.Program.Main+0x20 [C:\src\Program.cs @ 42]
01 00000000` + "`" + `00effb00 00007ff6` + "`" + `12342222 coreclr!CallDescrWorkerInternal
`
	ParseWinDbgStacks(stackText, r)
	require.Len(t, r.Analysis.Threads.All[0].CallStack, 2)
	f0 := r.Analysis.Threads.All[0].CallStack[0]
	assert.Equal(t, "MyApp", f0.Module)
	assert.Equal(t, "MyApp.Program.Main", f0.Function)
	assert.Equal(t, `C:\src\Program.cs`, f0.SourceFile)
	require.NotNil(t, f0.LineNumber)
	assert.Equal(t, 42, *f0.LineNumber)

	f1 := r.Analysis.Threads.All[0].CallStack[1]
	assert.Equal(t, "coreclr", f1.Module)
	assert.Equal(t, "CallDescrWorkerInternal", f1.Function)
	assert.Nil(t, f1.LineNumber)
}

func TestParseLLDBThreads(t *testing.T) {
	text := `
* thread #1: tid = 0x1a2b, 0x00007fff5fc01000 libsystem_kernel.dylib` + "`" + `__pthread_kill + 10, name='main', stop reason = signal SIGABRT
  thread #2: tid = 0x1a2c, 0x00007fff5fc02000 libsystem_pthread.dylib` + "`" + `start_wqthread + 8, name='pool'
`
	r := &report.Report{}
	ParseLLDBThreads(text, r)
	require.Len(t, r.Analysis.Threads.All, 2)
	assert.Equal(t, "1 (1a2b)", r.Analysis.Threads.All[0].ThreadID)
	assert.True(t, r.Analysis.Threads.All[0].IsFaulting)
	assert.Equal(t, "signal SIGABRT", r.Analysis.Threads.All[0].State)

	assert.Equal(t, "2 (1a2c)", r.Analysis.Threads.All[1].ThreadID)
	assert.False(t, r.Analysis.Threads.All[1].IsFaulting)
}

func TestParseLLDBThreads_StarWithoutStopReasonIsNotFaulting(t *testing.T) {
	text := "* thread #1: tid = 0x1a2b, name='main'"
	r := &report.Report{}
	ParseLLDBThreads(text, r)
	require.Len(t, r.Analysis.Threads.All, 1)
	assert.False(t, r.Analysis.Threads.All[0].IsFaulting)
}

func TestSplitModuleFunction_IgnoresBacktickInsideParens(t *testing.T) {
	module, rest, ok := splitModuleFunction("MyApp`Foo::Bar(System.Collections.Generic.List`1)")
	require.True(t, ok)
	assert.Equal(t, "MyApp", module)
	assert.Equal(t, "Foo::Bar(System.Collections.Generic.List`1)", rest)
}

func TestParseLLDBBacktrace(t *testing.T) {
	r := &report.Report{}
	ParseLLDBThreads("* thread #1: tid = 0x1a2b, stop reason = signal SIGSEGV", r)

	text := `
* thread #1: tid = 0x1a2b, stop reason = signal SIGSEGV
  frame #0: 0x00007fff5fc01000 MyApp` + "`" + `MyApp.Program.Main(args=(System.String[]) $0) at Program.cs:42:7
  frame #1: 0x00007fff5fc02000 libsystem_kernel.dylib` + "`" + `__pthread_kill + 10
`
	ParseLLDBBacktrace(text, r)
	require.Len(t, r.Analysis.Threads.All[0].CallStack, 2)

	f0 := r.Analysis.Threads.All[0].CallStack[0]
	assert.Equal(t, "MyApp", f0.Module)
	assert.Equal(t, "MyApp.Program.Main(args=(System.String[]) $0)", f0.Function)
	assert.Equal(t, "Program.cs", f0.SourceFile)
	require.NotNil(t, f0.LineNumber)
	assert.Equal(t, 42, *f0.LineNumber)

	f1 := r.Analysis.Threads.All[0].CallStack[1]
	assert.Equal(t, "libsystem_kernel.dylib", f1.Module)
	assert.Equal(t, "__pthread_kill", f1.Function)
}

func TestParseModules(t *testing.T) {
	text := `
00007ff6` + "`" + `12340000 00007ff6` + "`" + `12350000   MyApp      (pdb symbols)       C:\sym\MyApp.pdb
00007ff6` + "`" + `12350000 00007ff6` + "`" + `12360000   coreclr    (deferred)
00007ff6` + "`" + `12360000 00007ff6` + "`" + `12370000   ntdll      (private pdb)
00007ff6` + "`" + `12370000 00007ff6` + "`" + `12380000   unknownmod (none)
`
	r := &report.Report{}
	ParseModules(text, r)
	require.Len(t, r.Analysis.Modules, 4)
	assert.Equal(t, "MyApp", r.Analysis.Modules[0].Name)
	assert.True(t, r.Analysis.Modules[0].HasSymbols)
	assert.False(t, r.Analysis.Modules[1].HasSymbols)
	assert.True(t, r.Analysis.Modules[2].HasSymbols)
	assert.False(t, r.Analysis.Modules[3].HasSymbols)
}

func TestParseWinDbgException(t *testing.T) {
	text := `
EXCEPTION_CODE: (NTSTATUS) 0xc0000005 (Access violation) - ...
FAULTING_IP:
MyApp!MyApp.Program.Main+1a
`
	r := &report.Report{}
	ParseWinDbgException(text, r)
	require.NotNil(t, r.Analysis.Exception)
	assert.Equal(t, "0xc0000005", r.Analysis.Exception.HResult)
	assert.Equal(t, "AccessViolation", r.Analysis.Exception.Type)
	assert.Equal(t, "MyApp!MyApp.Program.Main+1a", r.Analysis.Exception.Address)
}

func TestParseLLDBException_SIGSEGVSetsType(t *testing.T) {
	r := &report.Report{}
	ParseLLDBException("Process 123 stopped\n* thread #1, stop reason = signal SIGSEGV", r)
	require.NotNil(t, r.Analysis.Exception)
	assert.Equal(t, "AccessViolation", r.Analysis.Exception.Type)
	assert.Equal(t, "SIGSEGV", r.Analysis.Environment.CrashInfo.SignalName)
}

func TestParseLLDBException_SIGSTOPDoesNotCreateException(t *testing.T) {
	r := &report.Report{}
	ParseLLDBException("* thread #1, stop reason = signal SIGSTOP", r)
	assert.Nil(t, r.Analysis.Exception)
	assert.Equal(t, "SIGSTOP", r.Analysis.Environment.CrashInfo.SignalName)
}

func TestParsersSkipMalformedLinesWithoutPanicking(t *testing.T) {
	r := &report.Report{}
	assert.NotPanics(t, func() {
		ParseWinDbgThreads("garbage\n\n???", r)
		ParseWinDbgStacks("not a stack frame at all", r)
		ParseLLDBThreads("nonsense", r)
		ParseLLDBBacktrace("nonsense", r)
		ParseModules("nonsense", r)
		ParseWinDbgException("nonsense", r)
		ParseLLDBException("nonsense", r)
	})
}

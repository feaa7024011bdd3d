package aitools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpscope/dumpscope/pkg/debugger"
	"github.com/dumpscope/dumpscope/pkg/evidence"
	"github.com/dumpscope/dumpscope/pkg/hypothesis"
	"github.com/dumpscope/dumpscope/pkg/inspector"
	"github.com/dumpscope/dumpscope/pkg/report"
)

// fakeAdapter records executed commands and returns canned output.
type fakeAdapter struct {
	dbgType  debugger.DebuggerType
	commands []string
	output   string
}

func (f *fakeAdapter) Execute(_ context.Context, cmd string) (string, error) {
	f.commands = append(f.commands, cmd)
	if f.output != "" {
		return f.output, nil
	}
	return "OK: " + cmd, nil
}

func (f *fakeAdapter) DebuggerType() debugger.DebuggerType                { return f.dbgType }
func (f *fakeAdapter) IsDumpOpen() bool                                   { return true }
func (f *fakeAdapter) LoadSOSExtension(context.Context) error             { return nil }
func (f *fakeAdapter) ConfigureSymbolPath(context.Context, string) error  { return nil }
func (f *fakeAdapter) OpenDumpFile(context.Context, string, string) error { return nil }
func (f *fakeAdapter) CloseDump(context.Context) error                    { return nil }

// fakeInspector serves a single canned inspection.
type fakeInspector struct {
	open      bool
	inspected []uint64
}

func (f *fakeInspector) IsOpen() bool { return f.open }

func (f *fakeInspector) InspectObject(_ context.Context, addr uint64, _ *uint64, _, _, _ int) (*inspector.Inspection, error) {
	f.inspected = append(f.inspected, addr)
	return &inspector.Inspection{Address: addr, TypeName: "System.String", StringValue: "hello"}, nil
}

func (f *fakeInspector) ListModules(context.Context) ([]inspector.Module, error) { return nil, nil }
func (f *fakeInspector) GetGCSummary(context.Context) (*inspector.GCSummary, error) {
	return nil, nil
}
func (f *fakeInspector) GetTopMemoryConsumers(context.Context, int, time.Duration) (*inspector.TopConsumers, error) {
	return nil, nil
}
func (f *fakeInspector) GetStringAnalysis(context.Context, int, int, time.Duration) (*inspector.StringStats, error) {
	return nil, nil
}
func (f *fakeInspector) GetAsyncAnalysis(context.Context, time.Duration) (*inspector.AsyncSnapshot, error) {
	return nil, nil
}
func (f *fakeInspector) GetAllThreadStacks(context.Context, bool, bool) (*inspector.Stacks, error) {
	return nil, nil
}

func testReport() *report.Report {
	line := 42
	return &report.Report{
		Metadata: report.Metadata{DumpID: "d1", SchemaVersion: 3},
		Analysis: report.Analysis{
			Summary: report.Summary{CrashType: "NullReferenceException", Description: "Found 2 threads (3 total frames, 2 in faulting thread), 1 modules."},
			Exception: &report.ExceptionInfo{
				Type:    "System.NullReferenceException",
				Message: "Object reference not set to an instance of an object.",
			},
			Threads: report.Threads{
				All: []report.Thread{
					{
						ThreadID:   "1",
						OSThreadID: "0x00000010",
						IsFaulting: true,
						CallStack: []report.StackFrame{
							{FrameNumber: 0, Module: "myapp", Function: "Foo.Bar", IsManaged: true, LineNumber: &line},
							{FrameNumber: 1, Module: "libcoreclr", Function: "[Runtime]"},
						},
					},
					{ThreadID: "2", OSThreadID: "0x00000022"},
				},
			},
		},
	}
}

func newTestDispatcher(t *testing.T, adapter debugger.Adapter, insp inspector.Inspector, maxCalls int) *Dispatcher {
	t.Helper()
	ledger := evidence.New(0)
	d, err := New(Config{
		Adapter:      adapter,
		Inspector:    insp,
		Ledger:       ledger,
		Tracker:      hypothesis.New(ledger),
		Report:       testReport(),
		MaxToolCalls: maxCalls,
	})
	require.NoError(t, err)
	return d
}

func TestSafetyFilter_BlocksShellEscapes(t *testing.T) {
	adapter := &fakeAdapter{dbgType: debugger.LLDB}
	d := newTestDispatcher(t, adapter, nil, 0)

	for _, cmd := range []string{
		".shell whoami",
		"; .shell whoami",
		"platform shell whoami",
		"!threads | shell cat /etc/passwd",
		"command script import evil.py",
		"windbg -z foo.dmp",
		"cdb",
	} {
		res := d.Dispatch(context.Background(), ToolExec, mustJSON(t, map[string]string{"command": cmd}), 1)
		assert.Contains(t, res.Output, "Blocked unsafe", "command %q", cmd)
		assert.True(t, res.IsError)
	}
	assert.Empty(t, adapter.commands, "debugger must never be invoked for blocked commands")
}

func TestSafetyFilter_AllowsNormalCommands(t *testing.T) {
	assert.False(t, IsUnsafeCommand("!threads"))
	assert.False(t, IsUnsafeCommand("sos clrstack -all"))
	assert.False(t, IsUnsafeCommand("bt all"))
	// "shell" needs to be a command, not a substring of an operand.
	assert.False(t, IsUnsafeCommand("name2ee System.Private.CoreLib MyShellHelper"))
}

func TestDumpObjRewrite_InspectorOpen(t *testing.T) {
	adapter := &fakeAdapter{dbgType: debugger.LLDB}
	insp := &fakeInspector{open: true}
	d := newTestDispatcher(t, adapter, insp, 0)

	res := d.Dispatch(context.Background(), ToolExec, mustJSON(t, map[string]string{"command": "sos dumpobj 0x1234"}), 1)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Output, "System.String")
	assert.Empty(t, adapter.commands, "debugger receives no command after rewrite")
	require.Len(t, insp.inspected, 1)
	assert.Equal(t, uint64(0x1234), insp.inspected[0])
}

func TestDumpObjRewrite_BangSpelling(t *testing.T) {
	insp := &fakeInspector{open: true}
	d := newTestDispatcher(t, &fakeAdapter{dbgType: debugger.WinDbg}, insp, 0)

	res := d.Dispatch(context.Background(), ToolExec, mustJSON(t, map[string]string{"command": "!dumpobj 0xbeef"}), 1)
	assert.Contains(t, res.Output, "System.String")
	require.Len(t, insp.inspected, 1)
	assert.Equal(t, uint64(0xbeef), insp.inspected[0])
}

func TestDumpObjRewrite_InspectorClosed_PassesThrough(t *testing.T) {
	adapter := &fakeAdapter{dbgType: debugger.LLDB}
	d := newTestDispatcher(t, adapter, &fakeInspector{open: false}, 0)

	d.Dispatch(context.Background(), ToolExec, mustJSON(t, map[string]string{"command": "sos dumpobj 0x1234"}), 1)
	require.Len(t, adapter.commands, 1)
	assert.Equal(t, "sos dumpobj 0x1234", adapter.commands[0])
}

func TestSOSBangNormalization_LLDB(t *testing.T) {
	adapter := &fakeAdapter{dbgType: debugger.LLDB}
	d := newTestDispatcher(t, adapter, nil, 0)

	d.Dispatch(context.Background(), ToolExec,
		mustJSON(t, map[string]string{"command": "sos !name2ee System.Private.CoreLib System.String"}), 1)
	require.Len(t, adapter.commands, 1)
	assert.Equal(t, "sos name2ee System.Private.CoreLib System.String", adapter.commands[0])
}

func TestSOSBangNormalization_NotAppliedOnWinDbg(t *testing.T) {
	adapter := &fakeAdapter{dbgType: debugger.WinDbg}
	d := newTestDispatcher(t, adapter, nil, 0)

	d.Dispatch(context.Background(), ToolExec, mustJSON(t, map[string]string{"command": "sos !threads"}), 1)
	require.Len(t, adapter.commands, 1)
	assert.Equal(t, "sos !threads", adapter.commands[0])
}

func TestCache_DuplicateExecOneInvocation(t *testing.T) {
	adapter := &fakeAdapter{dbgType: debugger.LLDB, output: "42 threads"}
	d := newTestDispatcher(t, adapter, nil, 0)

	first := d.Dispatch(context.Background(), ToolExec, mustJSON(t, map[string]string{"command": "!threads"}), 1)
	second := d.Dispatch(context.Background(), ToolExec, mustJSON(t, map[string]string{"command": "  !THREADS "}), 1)

	assert.Len(t, adapter.commands, 1, "one debugger invocation for both spellings")
	assert.Equal(t, "42 threads", first.Output)
	assert.True(t, strings.HasPrefix(second.Output, CachedResultPrefix))
	assert.Contains(t, second.Output, "42 threads")
	assert.True(t, second.Cached)
}

func TestBudget_RefusedButRecorded(t *testing.T) {
	adapter := &fakeAdapter{dbgType: debugger.LLDB}
	d := newTestDispatcher(t, adapter, nil, 2)

	d.Dispatch(context.Background(), ToolExec, mustJSON(t, map[string]string{"command": "!threads"}), 1)
	d.Dispatch(context.Background(), ToolExec, mustJSON(t, map[string]string{"command": "bt all"}), 1)
	third := d.Dispatch(context.Background(), ToolExec, mustJSON(t, map[string]string{"command": "clrstack"}), 2)

	assert.Len(t, adapter.commands, 2, "exactly MaxToolCalls commands executed")
	assert.True(t, third.Refused)
	assert.Equal(t, 2, d.ExecutedCalls())
	assert.Len(t, d.Execs(), 3, "refused call still recorded for traceability")
	assert.True(t, d.BudgetExhausted())
}

func TestReportGet_PathAndSelect(t *testing.T) {
	d := newTestDispatcher(t, nil, nil, 0)

	res := d.Dispatch(context.Background(), ToolReportGet, mustJSON(t, map[string]any{"path": "analysis.exception.type"}), 1)
	assert.Equal(t, `"System.NullReferenceException"`, res.Output)

	res = d.Dispatch(context.Background(), ToolReportGet, mustJSON(t, map[string]any{
		"path":   "analysis.threads.all",
		"limit":  1,
		"select": []string{"threadId"},
	}), 1)
	assert.Equal(t, `[{"threadId":"1"}]`, res.Output)

	res = d.Dispatch(context.Background(), ToolReportGet, mustJSON(t, map[string]any{"path": "analysis.nonexistent"}), 1)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Output, "error:")
}

func TestReportGet_PageKindCount(t *testing.T) {
	d := newTestDispatcher(t, nil, nil, 0)
	res := d.Dispatch(context.Background(), ToolReportGet, mustJSON(t, map[string]any{
		"path": "analysis.threads.all", "pageKind": "count",
	}), 1)
	assert.Equal(t, "2", res.Output)
}

func TestGetThreadStack_ByOSThreadIDHex(t *testing.T) {
	d := newTestDispatcher(t, nil, nil, 0)

	res := d.Dispatch(context.Background(), ToolGetThreadStack, mustJSON(t, map[string]string{"threadId": "0x10"}), 1)
	require.False(t, res.IsError)

	var out struct {
		ThreadID string `json:"threadId"`
		Frames   []struct {
			Function string `json:"function"`
		} `json:"frames"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Output), &out))
	assert.Equal(t, "1", out.ThreadID)
	require.Len(t, out.Frames, 2)
	assert.Equal(t, "Foo.Bar", out.Frames[0].Function)
}

func TestGetThreadStack_Spellings(t *testing.T) {
	d := newTestDispatcher(t, nil, nil, 0)
	for _, id := range []string{"1", "16", "0x10", "1 (0x10)", "1 (tid: 0x10)"} {
		res := d.Dispatch(context.Background(), ToolGetThreadStack, mustJSON(t, map[string]string{"threadId": id}), 1)
		assert.NotEqual(t, ThreadNotFoundResult, res.Output, "spelling %q", id)
	}
	res := d.Dispatch(context.Background(), ToolGetThreadStack, mustJSON(t, map[string]string{"threadId": "99"}), 1)
	assert.Equal(t, ThreadNotFoundResult, res.Output)
}

func TestInspect_UnavailableReturnsHint(t *testing.T) {
	d := newTestDispatcher(t, nil, nil, 0)
	res := d.Dispatch(context.Background(), ToolInspect, mustJSON(t, map[string]any{"address": "0x1234"}), 1)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Output, "hint")
}

func TestEvidenceAndHypothesisTools(t *testing.T) {
	d := newTestDispatcher(t, nil, nil, 0)

	res := d.Dispatch(context.Background(), ToolEvidenceAdd, mustJSON(t, map[string]any{
		"items": []map[string]string{{"source": "!threads", "finding": "42 threads"}},
	}), 1)
	require.False(t, res.IsError)
	assert.Contains(t, res.Output, `"addedIds":["E1"]`)
	assert.True(t, d.EvidenceToolExecuted())

	res = d.Dispatch(context.Background(), ToolHypothesisRegister, mustJSON(t, map[string]any{
		"hypotheses": []map[string]any{{
			"hypothesis":          "thread-pool starvation",
			"supportsEvidenceIds": []string{"E1", "E99"},
		}},
	}), 1)
	require.False(t, res.IsError)
	assert.Contains(t, res.Output, `"unknownEvidenceIds":["E99"]`)

	d.ResetEvidenceMark()
	assert.False(t, d.EvidenceToolExecuted())
}

func TestUnknownTool(t *testing.T) {
	d := newTestDispatcher(t, nil, nil, 0)
	res := d.Dispatch(context.Background(), "no_such_tool", mustJSON(t, map[string]string{}), 1)
	assert.Equal(t, UnknownToolResult, res.Output)
	assert.True(t, res.IsError)
}

func TestToolsByName_SubsetAndOrder(t *testing.T) {
	tools := ToolsByName(ToolCheckpointComplete)
	require.Len(t, tools, 1)
	assert.Equal(t, ToolCheckpointComplete, tools[0].Name)

	all := AllTools()
	assert.Len(t, all, 12)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

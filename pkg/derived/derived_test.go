package derived

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpscope/dumpscope/pkg/report"
)

func TestSelectMeaningfulTopFrame(t *testing.T) {
	frames := []report.StackFrame{
		{Function: "[Runtime]"},
		{Function: "   "},
		{Function: "[ManagedMethod]"},
		{Function: "MyApp.Program.Main"},
	}
	sel := SelectMeaningfulTopFrame(frames)
	require.Equal(t, 3, sel.SelectedFrameIndex)
	require.Len(t, sel.SkippedFrames, 3)
	assert.Equal(t, "runtime-glue", sel.SkippedFrames[0].Reason)
	assert.Equal(t, "empty-function", sel.SkippedFrames[1].Reason)
	assert.Equal(t, "managed-placeholder", sel.SkippedFrames[2].Reason)
}

func TestSelectMeaningfulTopFrame_AllSkipped(t *testing.T) {
	frames := []report.StackFrame{{Function: "[Runtime]"}, {Function: "[JIT Code @ 0x1234]"}}
	sel := SelectMeaningfulTopFrame(frames)
	assert.Equal(t, -1, sel.SelectedFrameIndex)
	assert.Len(t, sel.SkippedFrames, 2)
}

func baseReport() *report.Report {
	return &report.Report{
		Analysis: report.Analysis{
			Threads: report.Threads{
				All: []report.Thread{
					{
						ThreadID:   "1",
						IsFaulting: true,
						CallStack: []report.StackFrame{
							{Function: "[Runtime]", Module: "coreclr"},
							{Function: "MyApp.Program.Main", Module: "MyApp"},
						},
					},
				},
			},
		},
	}
}

func TestComputeSignature_CrashVsHang(t *testing.T) {
	r := baseReport()
	fp := r.Analysis.Threads.All[0].ThreadID
	r.Analysis.Threads.FaultingThread = &fp
	r.Analysis.Exception = &report.ExceptionInfo{Type: "System.NullReferenceException"}

	sig := ComputeSignature(r, false)
	assert.Equal(t, "crash", sig.Kind)
	assert.Contains(t, sig.Hash, "sha256:")

	r2 := baseReport()
	r2.Analysis.Threads.FaultingThread = &fp
	sigHang := ComputeSignature(r2, true)
	assert.Equal(t, "hang", sigHang.Kind)
}

func TestComputeSignature_Deterministic(t *testing.T) {
	r := baseReport()
	fp := "1"
	r.Analysis.Threads.FaultingThread = &fp
	sig1 := ComputeSignature(r, false)
	sig2 := ComputeSignature(r, false)
	assert.Equal(t, sig1.Hash, sig2.Hash)
}

func TestCollectFindings_Deadlock(t *testing.T) {
	r := baseReport()
	r.Analysis.Threads.Deadlock = &report.DeadlockInfo{Detected: true, InvolvedThreads: []string{"1", "2"}}
	findings := CollectFindings(r)
	require.Len(t, findings, 1)
	assert.Equal(t, "threads.deadlock.detected", findings[0].ID)
}

func TestCollectFindings_LOHPressure(t *testing.T) {
	r := baseReport()
	r.Analysis.Memory.GC = &report.GCInfo{
		TotalHeapSize:   1000,
		GenerationSizes: report.GenerationSizes{LOH: 400},
	}
	findings := CollectFindings(r)
	require.Len(t, findings, 1)
	assert.Equal(t, "memory.loh.pressure", findings[0].ID)
}

func TestSynthesizeHypotheses_Exception(t *testing.T) {
	r := baseReport()
	r.Analysis.Exception = &report.ExceptionInfo{Type: "System.NullReferenceException", Message: "Object reference not set"}
	hyps := SynthesizeHypotheses(r)
	require.NotEmpty(t, hyps)
	assert.Equal(t, "Unhandled exception", hyps[0].Label)
}

func TestBuildTimeline_NoCycle(t *testing.T) {
	r := baseReport()
	assert.Nil(t, BuildTimeline(r))
}

func TestBuildTimeline_WithCycle(t *testing.T) {
	r := baseReport()
	r.Analysis.Synchronization = &report.Synchronization{
		WaitGraph: report.WaitGraph{
			Nodes: []report.WaitGraphNode{{ID: "t1", Kind: "thread"}, {ID: "lockA", Kind: "resource"}},
			Edges: []report.WaitGraphEdge{{From: "t1", To: "lockA", Kind: "waits"}, {From: "lockA", To: "t1", Kind: "owned by"}},
		},
		PotentialDeadlockCycles: [][]string{{"t1", "lockA"}},
	}
	tl := BuildTimeline(r)
	require.NotNil(t, tl)
	assert.Len(t, tl.Deadlocks, 1)
}

func TestDetectRuntimeShape_NativeAOT(t *testing.T) {
	r := &report.Report{}
	r.Analysis.Modules = []report.Module{{Name: "/app/myservice"}, {Name: "libc.musl-x86_64.so.1"}}
	r.Analysis.Threads.All = []report.Thread{{ThreadID: "1", CallStack: []report.StackFrame{
		{Function: "MyService.Program.Main", IsManaged: true},
	}}}
	r.Analysis.Exception = &report.ExceptionInfo{Type: "System.MissingMethodException"}

	DetectRuntimeShape(r)

	assert.Equal(t, report.RuntimeNativeAOT, r.Analysis.Environment.Runtime.Type)
	assert.True(t, r.Analysis.Environment.NativeAOT.IsNativeAOT)
	assert.False(t, r.Analysis.Environment.NativeAOT.HasJITCompiler)
	assert.NotEmpty(t, r.Analysis.Environment.NativeAOT.Indicators)
	require.NotNil(t, r.Analysis.Environment.NativeAOT.TrimmingAnalysis)
	assert.True(t, r.Analysis.Environment.NativeAOT.TrimmingAnalysis.PotentialTrimmingIssue)
	assert.True(t, r.Analysis.Environment.Platform.IsAlpine)
	assert.Equal(t, "musl", r.Analysis.Environment.Platform.LibcType)
}

func TestDetectRuntimeShape_CoreCLR(t *testing.T) {
	r := &report.Report{}
	r.Analysis.Modules = []report.Module{{Name: "coreclr.dll"}, {Name: "clrjit.dll"}}
	r.Analysis.Threads.All = []report.Thread{{ThreadID: "1", CallStack: []report.StackFrame{
		{Function: "Foo.Bar", IsManaged: true},
	}}}

	DetectRuntimeShape(r)

	assert.Equal(t, report.RuntimeCoreCLR, r.Analysis.Environment.Runtime.Type)
	assert.False(t, r.Analysis.Environment.NativeAOT.IsNativeAOT)
	assert.True(t, r.Analysis.Environment.NativeAOT.HasJITCompiler)
}

// Package derived implements the derived-fields builder: run
// over a populated, finalized report.Report to attach signature,
// stackSelection, findings, a deterministic root-cause hypothesis list, and
// a timeline. Operates entirely on the report tree after report.Finalize.
package derived

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dumpscope/dumpscope/pkg/report"
)

var placeholderPrefixRe = regexp.MustCompile(`^\[(JIT|Native) Code @ `)

// skipReason classifies why select_meaningful_top_frame would skip a frame,
// or "" if the frame should be kept.
func skipReason(function string) string {
	trimmed := strings.TrimSpace(function)
	switch {
	case trimmed == "":
		return "empty-function"
	case function == "[Runtime]":
		return "runtime-glue"
	case function == "[ManagedMethod]":
		return "managed-placeholder"
	case placeholderPrefixRe.MatchString(function):
		return "placeholder-jit-code"
	default:
		return ""
	}
}

// SelectMeaningfulTopFrame picks the first non-placeholder frame in a stack
// and records every skipped frame along the way.
func SelectMeaningfulTopFrame(frames []report.StackFrame) report.StackSelection {
	sel := report.StackSelection{SelectedFrameIndex: -1}
	for i, f := range frames {
		if reason := skipReason(f.Function); reason != "" {
			sel.SkippedFrames = append(sel.SkippedFrames, report.SkippedFrame{Index: i, Reason: reason})
			continue
		}
		sel.SelectedFrameIndex = i
		break
	}
	return sel
}

// selectedFrames returns the faulting thread's call stack from the selected
// top frame onward (the frames the signature hash covers), the full stack
// when every frame is a placeholder, or nil when no faulting thread is set
// or it is not in threads.all.
func selectedFrames(r *report.Report) []report.StackFrame {
	if r.Analysis.Threads.FaultingThread == nil {
		return nil
	}
	id := *r.Analysis.Threads.FaultingThread
	for _, t := range r.Analysis.Threads.All {
		if t.ThreadID != id {
			continue
		}
		sel := SelectMeaningfulTopFrame(t.CallStack)
		if sel.SelectedFrameIndex < 0 {
			return t.CallStack
		}
		return t.CallStack[sel.SelectedFrameIndex:]
	}
	return nil
}

// signatureCanonical is the canonical subset hashed into the crash/hang
// signature: the selected frames plus
// exception type plus signal, serialized deterministically.
type signatureCanonical struct {
	Frames        []string `json:"frames"`
	ExceptionType string   `json:"exceptionType,omitempty"`
	Signal        string   `json:"signal,omitempty"`
}

// IsHang reports whether the dump matches the hang rule: stop reason is
// SIGSTOP with no exception and no signal other than SIGSTOP itself.
func IsHang(stopReasonIsSIGSTOP bool, hasException bool, signalName string) bool {
	return stopReasonIsSIGSTOP && !hasException && (signalName == "" || signalName == "SIGSTOP")
}

// ComputeSignature builds the crash/hang dedup signature.
// stopReasonIsSIGSTOP is supplied by the caller because
// the stop reason itself is parser-specific state not retained on the
// report tree.
func ComputeSignature(r *report.Report, stopReasonIsSIGSTOP bool) report.Signature {
	hasException := r.Analysis.Exception != nil
	kind := "crash"
	if IsHang(stopReasonIsSIGSTOP, hasException, r.Analysis.Environment.CrashInfo.SignalName) {
		kind = "hang"
	}

	frames := selectedFrames(r)
	frameStrs := make([]string, 0, len(frames))
	for _, f := range frames {
		frameStrs = append(frameStrs, fmt.Sprintf("%s!%s", f.Module, f.Function))
	}

	canon := signatureCanonical{
		Frames: frameStrs,
		Signal: r.Analysis.Environment.CrashInfo.SignalName,
	}
	if hasException {
		canon.ExceptionType = r.Analysis.Exception.Type
	}

	data, _ := json.Marshal(canon)
	sum := sha256.Sum256(data)
	return report.Signature{Kind: kind, Hash: "sha256:" + hex.EncodeToString(sum[:])}
}

// findingRule is one deterministic rule evaluated by CollectFindings.
type findingRule func(r *report.Report) *report.Finding

// CollectFindings runs every deterministic finding rule over the report and
// returns the ones that fired, in rule-declaration order.
func CollectFindings(r *report.Report) []report.Finding {
	rules := []findingRule{
		findDeadlockDetected,
		findHighTimerCount,
		findLOHPressure,
		findMissingNativeSymbols,
		findSigstopSnapshot,
	}
	var findings []report.Finding
	for _, rule := range rules {
		if f := rule(r); f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}

func findDeadlockDetected(r *report.Report) *report.Finding {
	if r.Analysis.Threads.Deadlock == nil || !r.Analysis.Threads.Deadlock.Detected {
		return nil
	}
	return &report.Finding{
		ID:       "threads.deadlock.detected",
		Severity: "critical",
		Message:  fmt.Sprintf("Deadlock detected among %d threads", len(r.Analysis.Threads.Deadlock.InvolvedThreads)),
	}
}

func findHighTimerCount(r *report.Report) *report.Finding {
	if r.Analysis.Async == nil || len(r.Analysis.Async.Timers) <= 50 {
		return nil
	}
	return &report.Finding{
		ID:       "timers.high.count",
		Severity: "medium",
		Message:  fmt.Sprintf("%d live timers found, exceeding the healthy threshold of 50", len(r.Analysis.Async.Timers)),
	}
}

func findLOHPressure(r *report.Report) *report.Finding {
	if r.Analysis.Memory.GC == nil || r.Analysis.Memory.GC.TotalHeapSize == 0 {
		return nil
	}
	loh := r.Analysis.Memory.GC.GenerationSizes.LOH
	total := r.Analysis.Memory.GC.TotalHeapSize
	ratio := float64(loh) / float64(total)
	if ratio <= 0.3 {
		return nil
	}
	return &report.Finding{
		ID:       "memory.loh.pressure",
		Severity: "high",
		Message:  fmt.Sprintf("Large object heap is %.0f%% of total managed heap", ratio*100),
	}
}

func findMissingNativeSymbols(r *report.Report) *report.Finding {
	noSymbols := make(map[string]bool)
	for _, m := range r.Analysis.Modules {
		if !m.HasSymbols {
			noSymbols[m.Name] = true
		}
	}
	if len(noSymbols) == 0 {
		return nil
	}
	for _, t := range r.Analysis.Threads.All {
		for _, f := range t.CallStack {
			if !f.IsManaged && noSymbols[f.Module] {
				return &report.Finding{
					ID:       "symbols.native.missing",
					Severity: "low",
					Message:  fmt.Sprintf("Native frame in module %q has no loaded symbols", f.Module),
					Evidence: f.Module,
				}
			}
		}
	}
	return nil
}

func findSigstopSnapshot(r *report.Report) *report.Finding {
	if r.Analysis.Signature == nil || r.Analysis.Signature.Kind != "hang" {
		return nil
	}
	return &report.Finding{
		ID:       "capture.sigstop.snapshot",
		Severity: "info",
		Message:  "Dump was captured via SIGSTOP with no faulting exception; this is a live-process snapshot, not a crash",
	}
}

// hypothesisRule is one deterministic hypothesis-synthesis rule.
type hypothesisRule func(r *report.Report) *report.RootCauseHypothesis

// SynthesizeHypotheses builds the rank-ordered deterministic root-cause
// hypothesis list.
func SynthesizeHypotheses(r *report.Report) []report.RootCauseHypothesis {
	rules := []hypothesisRule{
		hypothesisSignalOrException,
		hypothesisDeadlockCycle,
		hypothesisLOHPressure,
		hypothesisHangSnapshot,
		hypothesisThreadPoolSaturation,
		hypothesisNativeAOTTrimming,
	}
	var hyps []report.RootCauseHypothesis
	for _, rule := range rules {
		if h := rule(r); h != nil {
			hyps = append(hyps, *h)
		}
	}
	return hyps
}

func hypothesisSignalOrException(r *report.Report) *report.RootCauseHypothesis {
	if r.Analysis.Exception != nil {
		return &report.RootCauseHypothesis{
			Label:       "Unhandled exception",
			Description: fmt.Sprintf("Process terminated on an unhandled %s: %s", r.Analysis.Exception.Type, r.Analysis.Exception.Message),
			Confidence:  "high",
		}
	}
	if sig := r.Analysis.Environment.CrashInfo.SignalName; sig != "" {
		return &report.RootCauseHypothesis{
			Label:       "Native signal",
			Description: fmt.Sprintf("Process received signal %s", sig),
			Confidence:  "medium",
		}
	}
	return nil
}

func hypothesisDeadlockCycle(r *report.Report) *report.RootCauseHypothesis {
	if r.Analysis.Synchronization == nil || len(r.Analysis.Synchronization.PotentialDeadlockCycles) == 0 {
		return nil
	}
	return &report.RootCauseHypothesis{
		Label:       "Deadlock",
		Description: fmt.Sprintf("%d potential wait cycle(s) detected in the synchronization graph", len(r.Analysis.Synchronization.PotentialDeadlockCycles)),
		Confidence:  "high",
	}
}

func hypothesisLOHPressure(r *report.Report) *report.RootCauseHypothesis {
	if r.Analysis.Memory.LeakAnalysis == nil || !r.Analysis.Memory.LeakAnalysis.Detected {
		return nil
	}
	return &report.RootCauseHypothesis{
		Label:       "Memory pressure",
		Description: fmt.Sprintf("Suspected managed memory leak (%s severity, %d bytes)", r.Analysis.Memory.LeakAnalysis.Severity, r.Analysis.Memory.LeakAnalysis.TotalHeapBytes),
		Confidence:  "medium",
	}
}

func hypothesisHangSnapshot(r *report.Report) *report.RootCauseHypothesis {
	if r.Analysis.Signature == nil || r.Analysis.Signature.Kind != "hang" {
		return nil
	}
	return &report.RootCauseHypothesis{
		Label:       "Hang",
		Description: "No faulting exception or signal; dump is a snapshot of a live, unresponsive process",
		Confidence:  "low",
	}
}

func hypothesisThreadPoolSaturation(r *report.Report) *report.RootCauseHypothesis {
	tp := r.Analysis.Threads.ThreadPool
	if tp == nil || tp.QueuedWorkItems == 0 {
		return nil
	}
	if tp.WorkerThreads < tp.MaxThreads && tp.QueuedWorkItems <= tp.WorkerThreads {
		return nil
	}
	return &report.RootCauseHypothesis{
		Label:       "Thread-pool saturation",
		Description: fmt.Sprintf("%d work items queued against %d worker threads (max %d)", tp.QueuedWorkItems, tp.WorkerThreads, tp.MaxThreads),
		Confidence:  "medium",
	}
}

func hypothesisNativeAOTTrimming(r *report.Report) *report.RootCauseHypothesis {
	ta := r.Analysis.Environment.NativeAOT.TrimmingAnalysis
	if ta == nil || !ta.PotentialTrimmingIssue {
		return nil
	}
	return &report.RootCauseHypothesis{
		Label:       "NativeAOT trimming mis-shape",
		Description: ta.Recommendation,
		Confidence:  ta.Confidence,
	}
}

// Timeline is the derived-fields builder's wait-cycle/blocked-chain summary.
type Timeline struct {
	Deadlocks      []DeadlockEntry      `json:"deadlocks,omitempty"`
	BlockedChains  []BlockedChainEntry  `json:"blockedChains,omitempty"`
}

// DeadlockEntry is one detected wait cycle.
type DeadlockEntry struct {
	Cycle []string `json:"cycle"`
}

// BlockedChainEntry is one thread's chain of "waits"/"owned by" hops.
type BlockedChainEntry struct {
	ThreadID string   `json:"threadId"`
	Chain    []string `json:"chain"`
}

// BuildTimeline produces the timeline block when the synchronization block
// lists at least one potential deadlock cycle, and nil otherwise;
// contention hotspots without a cycle do not produce a timeline.
func BuildTimeline(r *report.Report) *Timeline {
	sync := r.Analysis.Synchronization
	if sync == nil {
		return nil
	}
	if len(sync.PotentialDeadlockCycles) == 0 {
		return nil
	}

	tl := &Timeline{}
	for _, cycle := range sync.PotentialDeadlockCycles {
		tl.Deadlocks = append(tl.Deadlocks, DeadlockEntry{Cycle: cycle})
	}

	byFrom := make(map[string][]report.WaitGraphEdge)
	for _, e := range sync.WaitGraph.Edges {
		byFrom[e.From] = append(byFrom[e.From], e)
	}
	for _, n := range sync.WaitGraph.Nodes {
		if n.Kind != "thread" {
			continue
		}
		chain := walkChain(n.ID, byFrom, map[string]bool{})
		if len(chain) > 1 {
			tl.BlockedChains = append(tl.BlockedChains, BlockedChainEntry{ThreadID: n.ID, Chain: chain})
		}
	}
	return tl
}

func walkChain(start string, byFrom map[string][]report.WaitGraphEdge, visited map[string]bool) []string {
	if visited[start] {
		return []string{start}
	}
	visited[start] = true
	chain := []string{start}
	edges := byFrom[start]
	if len(edges) == 0 {
		return chain
	}
	chain = append(chain, walkChain(edges[0].To, byFrom, visited)...)
	return chain
}

// Build runs the full derived-fields pipeline over a finalized report,
// attaching signature, stackSelection, findings, and rootCause in place.
// Timeline is returned separately since the report tree has no
// field for it beyond what synchronization/findings already expose.
func Build(r *report.Report, stopReasonIsSIGSTOP bool) *Timeline {
	DetectRuntimeShape(r)

	sig := ComputeSignature(r, stopReasonIsSIGSTOP)
	r.Analysis.Signature = &sig

	if r.Analysis.Threads.FaultingThread != nil {
		for _, t := range r.Analysis.Threads.All {
			if t.ThreadID != *r.Analysis.Threads.FaultingThread {
				continue
			}
			sel := SelectMeaningfulTopFrame(t.CallStack)
			r.Analysis.StackSelection = &sel
			break
		}
	}

	r.Analysis.Findings = CollectFindings(r)
	r.Analysis.RootCause = &report.RootCause{Hypotheses: SynthesizeHypotheses(r)}

	return BuildTimeline(r)
}

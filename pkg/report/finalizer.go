package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholder frame functions that never carry real stack information.
var placeholderExact = map[string]bool{
	"[Runtime]":       true,
	"[ManagedMethod]": true,
}

var placeholderPrefixRe = regexp.MustCompile(`^\[(JIT|Native) Code @ `)

func isPlaceholderFunction(fn string) bool {
	trimmed := strings.TrimSpace(fn)
	if trimmed == "" {
		return true
	}
	if placeholderExact[fn] {
		return true
	}
	return placeholderPrefixRe.MatchString(fn)
}

// countClauseRe matches the recomputed summary clause so Finalize can
// replace a stale one in place instead of appending a duplicate.
var countClauseRe = regexp.MustCompile(`Found \d+ threads? \(\d+ total frames?, \d+ in faulting thread\), \d+ modules?\.`)

// sourceURLAnchorRe extracts the #Lnnn anchor from a source URL.
var sourceURLAnchorRe = regexp.MustCompile(`#L(\d+)$`)

// rawCommandDropPrefixes lists rawCommands keys that must never survive
// finalization.
var rawCommandDropPrefixes = []string{
	"expr -- (char*)",
	"ClrMD:InspectModule(",
}

// Finalize makes the report self-consistent. It is idempotent:
// calling it twice, or serializing then deserializing then calling it once
// more, produces no further change.
func Finalize(r *Report) {
	renumberFrames(r)
	recomputeTopFunctions(r)
	promotePlaceholderManaged(r)
	fixSourceURLAnchors(r)
	dropLowValueRawCommands(r)
	pickFaultingThread(r)
	dedupeAssemblies(r)
	r.Analysis.Threads.OSThreadCount = computeOSThreadCount(r)
	refreshSummaryCounts(r)
}

// dedupeAssemblies removes duplicate assemblies by normalized path (falling
// back to name when no path is set) and keeps Assemblies.count in sync with
// Assemblies.items.
func dedupeAssemblies(r *Report) {
	seen := make(map[string]bool, len(r.Analysis.Assemblies.Items))
	deduped := make([]Assembly, 0, len(r.Analysis.Assemblies.Items))
	for _, a := range r.Analysis.Assemblies.Items {
		key := a.Name
		if a.Path != "" {
			key = strings.ToLower(strings.ReplaceAll(a.Path, "\\", "/"))
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, a)
	}
	r.Analysis.Assemblies.Items = deduped
	r.Analysis.Assemblies.Count = len(deduped)
}

// renumberFrames renumbers each thread's call stack starting at 0 in
// emission order.
func renumberFrames(r *Report) {
	for i := range r.Analysis.Threads.All {
		frames := r.Analysis.Threads.All[i].CallStack
		for j := range frames {
			frames[j].FrameNumber = j
		}
	}
}

// recomputeTopFunctions recomputes Thread.TopFunction as "{module}!{function}"
// from the first non-placeholder frame, or "" if none exists.
func recomputeTopFunctions(r *Report) {
	for i := range r.Analysis.Threads.All {
		t := &r.Analysis.Threads.All[i]
		t.TopFunction = ""
		for _, f := range t.CallStack {
			if isPlaceholderFunction(f.Function) {
				continue
			}
			t.TopFunction = fmt.Sprintf("%s!%s", f.Module, f.Function)
			break
		}
	}
}

// promotePlaceholderManaged enforces that every frame whose function is
// exactly "[ManagedMethod]" is marked managed.
func promotePlaceholderManaged(r *Report) {
	for i := range r.Analysis.Threads.All {
		frames := r.Analysis.Threads.All[i].CallStack
		for j := range frames {
			if frames[j].Function == "[ManagedMethod]" {
				frames[j].IsManaged = true
			}
		}
	}
}

// fixSourceURLAnchors enforces that a sourceUrl with a #Lnnn anchor implies
// lineNumber == nnn.
func fixSourceURLAnchors(r *Report) {
	fix := func(f *StackFrame) {
		m := sourceURLAnchorRe.FindStringSubmatch(f.SourceURL)
		if m == nil {
			return
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return
		}
		f.LineNumber = &n
	}
	for i := range r.Analysis.Threads.All {
		frames := r.Analysis.Threads.All[i].CallStack
		for j := range frames {
			fix(&frames[j])
		}
	}
	if r.Analysis.Exception != nil {
		for j := range r.Analysis.Exception.StackTrace {
			fix(&r.Analysis.Exception.StackTrace[j])
		}
	}
}

// dropLowValueRawCommands removes rawCommands entries whose keys start with
// a known low-value/sensitive prefix.
func dropLowValueRawCommands(r *Report) {
	if r.RawCommands == nil {
		return
	}
	for key := range r.RawCommands {
		for _, prefix := range rawCommandDropPrefixes {
			if strings.HasPrefix(key, prefix) {
				delete(r.RawCommands, key)
				break
			}
		}
	}
}

// pickFaultingThread sets threads.faultingThread to the first isFaulting
// thread if none is already set.
func pickFaultingThread(r *Report) {
	if r.Analysis.Threads.FaultingThread != nil {
		return
	}
	for i := range r.Analysis.Threads.All {
		if r.Analysis.Threads.All[i].IsFaulting {
			id := r.Analysis.Threads.All[i].ThreadID
			r.Analysis.Threads.FaultingThread = &id
			return
		}
	}
}

// computeOSThreadCount counts threads that carry a distinct OS thread id;
// when no thread carries one, it returns the total thread count.
func computeOSThreadCount(r *Report) int {
	seen := make(map[string]bool)
	for _, t := range r.Analysis.Threads.All {
		if t.OSThreadID != "" {
			seen[t.OSThreadID] = true
		}
	}
	if len(seen) == 0 {
		return len(r.Analysis.Threads.All)
	}
	return len(seen)
}

// refreshSummaryCounts recomputes the "Found N1 threads (N2 total frames,
// N3 in faulting thread), N4 modules." clause and splices it into
// Summary.Description, replacing a stale clause if present.
func refreshSummaryCounts(r *Report) {
	threadCount := len(r.Analysis.Threads.All)
	totalFrames := 0
	faultingFrames := 0
	var faultingID string
	if r.Analysis.Threads.FaultingThread != nil {
		faultingID = *r.Analysis.Threads.FaultingThread
	}
	for _, t := range r.Analysis.Threads.All {
		totalFrames += len(t.CallStack)
		if faultingID != "" && t.ThreadID == faultingID {
			faultingFrames = len(t.CallStack)
		}
	}
	moduleCount := len(r.Analysis.Modules)

	r.Analysis.Summary.ThreadCount = threadCount
	r.Analysis.Summary.ModuleCount = moduleCount
	r.Analysis.Summary.AssemblyCount = r.Analysis.Assemblies.Count

	clause := fmt.Sprintf("Found %d threads (%d total frames, %d in faulting thread), %d modules.",
		threadCount, totalFrames, faultingFrames, moduleCount)

	desc := r.Analysis.Summary.Description
	if countClauseRe.MatchString(desc) {
		r.Analysis.Summary.Description = countClauseRe.ReplaceAllString(desc, clause)
		return
	}
	if desc == "" {
		r.Analysis.Summary.Description = clause
		return
	}
	r.Analysis.Summary.Description = strings.TrimRight(desc, " ") + " " + clause
}

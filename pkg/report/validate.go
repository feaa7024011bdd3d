package report

import (
	"fmt"

	"github.com/dumpscope/dumpscope/pkg/errs"
)

// Validate checks a finalized report against the invariants Finalize
// establishes (contiguous frame numbers, managed placeholder flag, source-URL
// anchor lines, assembly count, dropped raw commands) plus one it does not
// repair: every AI evidence id must exist in the evidence ledger.
// A non-empty return means the report is unfit to serialize.
func Validate(r *Report) []*errs.InvariantViolationError {
	var violations []*errs.InvariantViolationError

	for _, t := range r.Analysis.Threads.All {
		for i, f := range t.CallStack {
			if f.FrameNumber != i {
				violations = append(violations, errs.NewInvariantViolation(
					"frame-index-contiguous",
					fmt.Sprintf("thread %s frame %d has frameNumber %d", t.ThreadID, i, f.FrameNumber)))
			}
			if f.Function == "[ManagedMethod]" && !f.IsManaged {
				violations = append(violations, errs.NewInvariantViolation(
					"managed-placeholder-flag",
					fmt.Sprintf("thread %s frame %d is [ManagedMethod] but isManaged=false", t.ThreadID, i)))
			}
			if m := sourceURLAnchorRe.FindStringSubmatch(f.SourceURL); m != nil {
				want := m[1]
				if f.LineNumber == nil || fmt.Sprintf("%d", *f.LineNumber) != want {
					violations = append(violations, errs.NewInvariantViolation(
						"source-url-anchor-line",
						fmt.Sprintf("thread %s frame %d sourceUrl anchor #L%s does not match lineNumber", t.ThreadID, i, want)))
				}
			}
		}
	}

	if r.Analysis.Assemblies.Count != len(r.Analysis.Assemblies.Items) {
		violations = append(violations, errs.NewInvariantViolation(
			"assemblies-count-matches-items",
			fmt.Sprintf("count=%d but items has %d entries", r.Analysis.Assemblies.Count, len(r.Analysis.Assemblies.Items))))
	}

	for key := range r.RawCommands {
		for _, prefix := range rawCommandDropPrefixes {
			if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
				violations = append(violations, errs.NewInvariantViolation(
					"raw-commands-low-value-dropped",
					fmt.Sprintf("key %q should have been dropped", key)))
			}
		}
	}

	if r.Analysis.AiAnalysis != nil && r.Analysis.AiAnalysis.EvidenceLedger != nil {
		known := make(map[string]bool, len(r.Analysis.AiAnalysis.EvidenceLedger.Items))
		for _, item := range r.Analysis.AiAnalysis.EvidenceLedger.Items {
			known[item.ID] = true
		}
		for _, id := range r.Analysis.AiAnalysis.Evidence {
			if !known[id] {
				violations = append(violations, errs.NewInvariantViolation(
					"evidence-ids-exist-in-ledger",
					fmt.Sprintf("evidence id %q not found in evidenceLedger", id)))
			}
		}
	}

	return violations
}

// Package prompt assembles the AI orchestrator's system prompts and
// conversation scaffolding, and owns the JSON shape coercion applied to
// model output. The carry-forward prefixes here are
// load-bearing literals — the orchestrator test suite matches them exactly.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dumpscope/dumpscope/pkg/evidence"
	"github.com/dumpscope/dumpscope/pkg/hypothesis"
	"github.com/dumpscope/dumpscope/pkg/report"
)

// Load-bearing literals. Do not reword without
// updating the orchestrator tests in lockstep.
const (
	CheckpointUnavailableText = "Checkpoint synthesis unavailable"
	CheckpointCarryPrefix     = "Checkpoint JSON"
	EvidenceSnapshotPrefix    = "Evidence snapshot"
	StableStatePrefix         = "Stable state JSON (evidence ledger + hypotheses):"
)

// BaselinePaths is the fixed set of report_get calls the baseline-evidence
// phase mandates.
var BaselinePaths = []string{
	"metadata",
	"analysis.summary",
	"analysis.environment",
	"analysis.exception.type",
	"analysis.exception.message",
	"analysis.exception.hResult",
	"analysis.exception.stackTrace",
	"analysis.exception.analysis",
}

const systemPromptHeader = `You are a post-mortem crash analyst working over a managed (.NET) process dump. A deterministic crash report has already been produced; your job is to find the root cause and back it with an evidence ledger.

Workflow:
1. Read the report via report_get before anything else.
2. Register every fact you rely on via analysis_evidence_add, and candidate explanations via analysis_hypothesis_register.
3. Use exec (debugger commands), get_thread_stack, and inspect to test hypotheses.
4. When confident, call analysis_complete with rootCause, confidence, reasoning, and the supporting evidence ids. High-confidence completions without registered evidence are refused.`

// BuildSystemPrompt composes the main-loop system prompt from the report's
// headline facts.
func BuildSystemPrompt(r *report.Report) string {
	var sb strings.Builder
	sb.WriteString(systemPromptHeader)
	if r == nil {
		return sb.String()
	}
	sb.WriteString("\n\nDump context:\n")
	fmt.Fprintf(&sb, "- debugger: %s, schema version %d\n", r.Metadata.DebuggerType, r.Metadata.SchemaVersion)
	fmt.Fprintf(&sb, "- crash type: %s\n", r.Analysis.Summary.CrashType)
	fmt.Fprintf(&sb, "- %s\n", r.Analysis.Summary.Description)
	if exc := r.Analysis.Exception; exc != nil {
		fmt.Fprintf(&sb, "- exception: %s: %s\n", exc.Type, exc.Message)
	}
	if sig := r.Analysis.Signature; sig != nil {
		fmt.Fprintf(&sb, "- signature: %s %s\n", sig.Kind, sig.Hash)
	}
	return sb.String()
}

// BuildBaselineSystemPrompt is the first iteration's system prompt: the main
// prompt plus the mandated report_get call list.
func BuildBaselineSystemPrompt(r *report.Report) string {
	var sb strings.Builder
	sb.WriteString(BuildSystemPrompt(r))
	sb.WriteString("\n\nBefore any other tool, fetch this baseline evidence with report_get:\n")
	for _, path := range BaselinePaths {
		switch path {
		case "analysis.environment":
			fmt.Fprintf(&sb, "- report_get(path=%q, select=[\"platform\",\"runtime\",\"nativeAot\",\"crashInfo\"])\n", path)
		case "analysis.exception.stackTrace":
			fmt.Fprintf(&sb, "- report_get(path=%q, limit=8, select=[\"frameNumber\",\"module\",\"function\",\"isManaged\"])\n", path)
		default:
			fmt.Fprintf(&sb, "- report_get(path=%q)\n", path)
		}
	}
	return sb.String()
}

// BuildMetaBookkeepingPrompt is the instruction text for the bookkeeping
// request that follows the baseline phase.
func BuildMetaBookkeepingPrompt() string {
	return "Record what the baseline evidence established. Call analysis_evidence_add with every concrete fact, then analysis_hypothesis_register with your initial candidate explanations. Only bookkeeping tools are available for this turn."
}

// BuildCheckpointPrompt is the instruction text for a checkpoint synthesis
// request.
func BuildCheckpointPrompt() string {
	return "Summarize the analysis state so far by calling checkpoint_complete: established facts, open hypotheses, evidence ids, tool calls not to repeat, and next steps. Conversation history before this point will be pruned."
}

// BuildFinalSynthesisPrompt is the instruction text for the tool-free final
// synthesis request.
func BuildFinalSynthesisPrompt(reason string) string {
	return fmt.Sprintf("The investigation budget is exhausted (%s). Produce your final conclusion now as a single JSON object with fields rootCause, confidence (low|medium|high), reasoning, and optionally recommendations and additionalFindings. Respond with JSON only.", reason)
}

// BuildJudgePrompt is the instruction text for the terminal judge request.
func BuildJudgePrompt() string {
	return "Act as a judge over the registered hypotheses. Select the single best-supported hypothesis and call analysis_judge_complete with its id, your confidence, a rationale, the supporting evidence ids, and the rejected hypotheses with reasons."
}

// StableStateSnapshot renders the ledger and tracker as the stable state
// text block appended to each iteration's messages.
func StableStateSnapshot(ledger *evidence.Ledger, tracker *hypothesis.Tracker) string {
	state := struct {
		Evidence   *report.Ledger      `json:"evidenceLedger"`
		Hypotheses []report.Hypothesis `json:"hypotheses"`
	}{}
	if ledger != nil {
		state.Evidence = ledger.ToReport()
	}
	if tracker != nil {
		state.Hypotheses = tracker.ToReport()
	}
	data, err := json.Marshal(state)
	if err != nil {
		data = []byte("{}")
	}
	return StableStatePrefix + "\n" + string(data)
}

// CheckpointCarryForward renders a successful checkpoint as the
// carry-forward message that replaces pruned history.
func CheckpointCarryForward(checkpointJSON string) string {
	return CheckpointCarryPrefix + ":\n" + checkpointJSON
}

// FallbackCheckpoint renders the deterministic carry-forward used when
// checkpoint synthesis fails.
func FallbackCheckpoint(ledger *evidence.Ledger) string {
	var sb strings.Builder
	sb.WriteString(CheckpointUnavailableText)
	sb.WriteString("\n")
	sb.WriteString(EvidenceSnapshotPrefix)
	sb.WriteString(":\n")
	var items []report.LedgerItem
	if ledger != nil {
		items = ledger.ToReport().Items
	}
	data, err := json.Marshal(items)
	if err != nil {
		data = []byte("[]")
	}
	sb.Write(data)
	return sb.String()
}

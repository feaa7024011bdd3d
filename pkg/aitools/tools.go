// Package aitools implements the AI tool dispatcher: the fixed
// tool set the sampling loop exposes to the model, argument validation, the
// exec safety filter and rewrite rules, and the fingerprint result cache.
// Tool schemas are plain mcpsdk tool listings so the orchestrator can hand
// them to the sampling client without re-encoding.
package aitools

import (
	"encoding/json"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names.
const (
	ToolReportGet              = "report_get"
	ToolExec                   = "exec"
	ToolGetThreadStack         = "get_thread_stack"
	ToolInspect                = "inspect"
	ToolEvidenceAdd            = "analysis_evidence_add"
	ToolHypothesisRegister     = "analysis_hypothesis_register"
	ToolHypothesisScore        = "analysis_hypothesis_score"
	ToolCheckpointComplete     = "checkpoint_complete"
	ToolAnalysisComplete       = "analysis_complete"
	ToolSummaryRewriteComplete = "analysis_summary_rewrite_complete"
	ToolThreadNarrativeComplete = "analysis_thread_narrative_complete"
	ToolJudgeComplete          = "analysis_judge_complete"
)

// Default caps for the inspect tool.
const (
	DefaultInspectMaxDepth         = 5
	DefaultInspectMaxArrayElements = 10
	DefaultInspectMaxStringLength  = 1024
)

func schema(s string) json.RawMessage { return json.RawMessage(s) }

var toolDefs = []*mcpsdk.Tool{
	{
		Name:        ToolReportGet,
		Description: "Fetch a slice of the deterministic crash report by dot-path (e.g. analysis.exception.type). Supports limit and select for array paths.",
		InputSchema: schema(`{"type":"object","properties":{"path":{"type":"string"},"pageKind":{"type":"string","enum":["items","count"]},"limit":{"type":"integer"},"select":{"type":"array","items":{"type":"string"}}},"required":["path"]}`),
	},
	{
		Name:        ToolExec,
		Description: "Execute a restricted debugger command against the open dump and return its raw text output. Shell escapes are blocked.",
		InputSchema: schema(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`),
	},
	{
		Name:        ToolGetThreadStack,
		Description: "Get one thread's call stack by thread id (decimal, hex, or 'NN (tid: 0xhex)').",
		InputSchema: schema(`{"type":"object","properties":{"threadId":{"type":"string"}},"required":["threadId"]}`),
	},
	{
		Name:        ToolInspect,
		Description: "Inspect a managed object by address via the ClrMd-backed inspector: fields, array elements, string values.",
		InputSchema: schema(`{"type":"object","properties":{"address":{"type":"string"},"methodTable":{"type":"string"},"maxDepth":{"type":"integer","default":5},"maxArrayElements":{"type":"integer","default":10},"maxStringLength":{"type":"integer","default":1024}},"required":["address"]}`),
	},
	{
		Name:        ToolEvidenceAdd,
		Description: "Register evidence items (source, finding) in the analysis evidence ledger. Returns added/updated/duplicate ids.",
		InputSchema: schema(`{"type":"object","properties":{"items":{"type":"array","items":{"type":"object","properties":{"id":{"type":"string"},"source":{"type":"string"},"finding":{"type":"string"}},"required":["source","finding"]}}},"required":["items"]}`),
	},
	{
		Name:        ToolHypothesisRegister,
		Description: "Register root-cause hypotheses with optional evidence links. Duplicate text reports the existing id.",
		InputSchema: schema(`{"type":"object","properties":{"hypotheses":{"type":"array","items":{"type":"object","properties":{"id":{"type":"string"},"hypothesis":{"type":"string"},"confidence":{"type":"string","enum":["unknown","low","medium","high"]},"supportsEvidenceIds":{"type":"array","items":{"type":"string"}},"contradictsEvidenceIds":{"type":"array","items":{"type":"string"}},"unknowns":{"type":"array","items":{"type":"string"}},"testsToRun":{"type":"array","items":{"type":"string"}},"notes":{"type":"string"}},"required":["hypothesis"]}}},"required":["hypotheses"]}`),
	},
	{
		Name:        ToolHypothesisScore,
		Description: "Update confidence, notes, and evidence links of existing hypotheses. Does not renumber.",
		InputSchema: schema(`{"type":"object","properties":{"updates":{"type":"array","items":{"type":"object","properties":{"id":{"type":"string"},"confidence":{"type":"string","enum":["unknown","low","medium","high"]},"supportsEvidenceIds":{"type":"array","items":{"type":"string"}},"contradictsEvidenceIds":{"type":"array","items":{"type":"string"}},"unknowns":{"type":"array","items":{"type":"string"}},"testsToRun":{"type":"array","items":{"type":"string"}},"notes":{"type":"string"}},"required":["id"]}}},"required":["updates"]}`),
	},
	{
		Name:        ToolCheckpointComplete,
		Description: "Summarize the analysis state so conversation history can be pruned: facts, hypotheses, evidence, doNotRepeat, nextSteps.",
		InputSchema: schema(`{"type":"object","properties":{"facts":{"type":"array","items":{"type":"string"}},"hypotheses":{"type":"array","items":{"type":"string"}},"evidence":{"type":"array","items":{"type":"string"}},"doNotRepeat":{"type":"array","items":{"type":"string"}},"nextSteps":{"type":"array","items":{"type":"string"}}},"required":["facts"]}`),
	},
	{
		Name:        ToolAnalysisComplete,
		Description: "Finish the analysis with a root-cause conclusion, confidence, reasoning, and the evidence ids that support it.",
		InputSchema: schema(`{"type":"object","properties":{"rootCause":{"type":"string"},"confidence":{"type":"string","enum":["low","medium","high"]},"reasoning":{"type":"string"},"evidence":{"type":"array","items":{"type":"string"}},"recommendations":{"type":"array","items":{"type":"string"}},"additionalFindings":{"type":"array"}},"required":["rootCause","confidence","reasoning"]}`),
	},
	{
		Name:        ToolSummaryRewriteComplete,
		Description: "Complete the summary rewrite task with a refined description and recommendations.",
		InputSchema: schema(`{"type":"object","properties":{"description":{"type":"string"},"recommendations":{"type":"array","items":{"type":"string"}}},"required":["description","recommendations"]}`),
	},
	{
		Name:        ToolThreadNarrativeComplete,
		Description: "Complete the thread narrative task with a prose description of what the threads were doing.",
		InputSchema: schema(`{"type":"object","properties":{"description":{"type":"string"},"confidence":{"type":"string","enum":["low","medium","high"]}},"required":["description","confidence"]}`),
	},
	{
		Name:        ToolJudgeComplete,
		Description: "Select the winning hypothesis among the registered candidates, with rationale and supporting evidence ids.",
		InputSchema: schema(`{"type":"object","properties":{"selectedHypothesisId":{"type":"string"},"confidence":{"type":"string","enum":["low","medium","high"]},"rationale":{"type":"string"},"supportsEvidenceIds":{"type":"array","items":{"type":"string"}},"rejectedHypotheses":{"type":"array","items":{"type":"object","properties":{"id":{"type":"string"},"reason":{"type":"string"}},"required":["id"]}}},"required":["selectedHypothesisId","confidence","rationale","supportsEvidenceIds","rejectedHypotheses"]}`),
	},
}

// AllTools returns the full tool listing in registration order.
func AllTools() []*mcpsdk.Tool {
	out := make([]*mcpsdk.Tool, len(toolDefs))
	copy(out, toolDefs)
	return out
}

// ToolsByName returns the subset of the tool listing matching names, in the
// order given. Unknown names are skipped.
func ToolsByName(names ...string) []*mcpsdk.Tool {
	byName := make(map[string]*mcpsdk.Tool, len(toolDefs))
	for _, t := range toolDefs {
		byName[t.Name] = t
	}
	var out []*mcpsdk.Tool
	for _, name := range names {
		if t, ok := byName[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// IsCompletionTool reports whether name is one of the tools the orchestrator
// consumes itself rather than dispatching for a data result.
func IsCompletionTool(name string) bool {
	switch name {
	case ToolCheckpointComplete, ToolAnalysisComplete, ToolSummaryRewriteComplete,
		ToolThreadNarrativeComplete, ToolJudgeComplete:
		return true
	}
	return false
}

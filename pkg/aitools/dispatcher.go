package aitools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/dumpscope/dumpscope/pkg/debugger"
	"github.com/dumpscope/dumpscope/pkg/evidence"
	"github.com/dumpscope/dumpscope/pkg/hypothesis"
	"github.com/dumpscope/dumpscope/pkg/inspector"
	"github.com/dumpscope/dumpscope/pkg/report"
)

// CachedResultPrefix marks a tool result served from the fingerprint cache.
const CachedResultPrefix = "[cached tool result]"

// UnknownToolResult is the literal tool result for unrecognized tool names.
const UnknownToolResult = "Unknown tool"

// Config wires a Dispatcher to one analysis run's collaborators.
type Config struct {
	Adapter   debugger.Adapter    // may be nil (exec returns errors)
	Inspector inspector.Inspector // may be nil (inspect returns a hint)
	Ledger    *evidence.Ledger
	Tracker   *hypothesis.Tracker
	Report    *report.Report

	// MaxToolCalls caps executions; 0 = unlimited.
	MaxToolCalls int

	Logger *slog.Logger
}

// Result is one dispatched tool call's outcome.
type Result struct {
	Output   string
	IsError  bool
	Executed bool // ran fresh (counts against the budget)
	Cached   bool // served from the fingerprint cache
	Refused  bool // refused after budget exhaustion
}

// Dispatcher validates, filters, rewrites, caches, and executes the model's
// tool calls. One Dispatcher lives for one orchestrator run.
type Dispatcher struct {
	cfg        Config
	log        *slog.Logger
	reportJSON any // decoded report tree for report_get

	cache     map[string]string // fingerprint -> raw output
	executed  int               // budget-counted executions
	execs     []report.Exec     // full trace, including refused/cached calls
	evidenced bool              // any evidence tool executed since last reset
}

// New builds a Dispatcher. The report is snapshotted to JSON once; report_get
// serves slices of that snapshot for the whole run.
func New(cfg Config) (*Dispatcher, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	var tree any
	if cfg.Report != nil {
		data, err := json.Marshal(cfg.Report)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot report for tool access: %w", err)
		}
		if err := json.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("failed to decode report snapshot: %w", err)
		}
	}
	return &Dispatcher{
		cfg:        cfg,
		log:        log,
		reportJSON: tree,
		cache:      make(map[string]string),
	}, nil
}

// ExecutedCalls returns how many budget-counted executions have run.
func (d *Dispatcher) ExecutedCalls() int { return d.executed }

// BudgetExhausted reports whether MaxToolCalls has been reached.
func (d *Dispatcher) BudgetExhausted() bool {
	return d.cfg.MaxToolCalls > 0 && d.executed >= d.cfg.MaxToolCalls
}

// Execs returns the full tool execution trace in dispatch order.
func (d *Dispatcher) Execs() []report.Exec {
	out := make([]report.Exec, len(d.execs))
	copy(out, d.execs)
	return out
}

// EvidenceToolExecuted reports whether any ledger/tracker tool ran since the
// last ResetEvidenceMark (used by the premature-completion check).
func (d *Dispatcher) EvidenceToolExecuted() bool { return d.evidenced }

// ResetEvidenceMark clears the evidence-tool marker after a synthesis.
func (d *Dispatcher) ResetEvidenceMark() { d.evidenced = false }

// canonicalizeArgs produces the fingerprint's argument half: canonical JSON
// with object keys sorted, and — for exec — string values trimmed and
// uppercased so " !threads " and "!THREADS" collide.
func canonicalizeArgs(tool string, raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	if tool == ToolExec {
		v = upperTrimStrings(v)
	}
	return canonicalJSON(v)
}

func upperTrimStrings(v any) any {
	switch node := v.(type) {
	case string:
		return strings.ToUpper(strings.TrimSpace(node))
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[k] = upperTrimStrings(val)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, val := range node {
			out[i] = upperTrimStrings(val)
		}
		return out
	default:
		return v
	}
}

// canonicalJSON renders a decoded JSON value with sorted object keys.
func canonicalJSON(v any) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v any) {
	switch node := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kj, _ := json.Marshal(k)
			sb.Write(kj)
			sb.WriteByte(':')
			writeCanonical(sb, node[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, elem := range node {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, elem)
		}
		sb.WriteByte(']')
	default:
		out, _ := json.Marshal(node)
		sb.Write(out)
	}
}

// rewrite applies the exec rewrite rules, returning the possibly
// rewritten (tool, args) pair. Rewrites are applied before the safety filter
// and the cache lookup.
func (d *Dispatcher) rewrite(tool string, raw json.RawMessage) (string, json.RawMessage) {
	if tool != ToolExec {
		return tool, raw
	}
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return tool, raw
	}

	if addr, ok := DumpObjAddress(args.Command); ok && d.cfg.Inspector != nil && d.cfg.Inspector.IsOpen() {
		d.log.Debug("Rewriting dumpobj exec to inspect", "command", args.Command, "address", addr)
		rewritten, _ := json.Marshal(map[string]any{"address": addr})
		return ToolInspect, rewritten
	}

	if d.cfg.Adapter != nil && d.cfg.Adapter.DebuggerType() == debugger.LLDB {
		if normalized := NormalizeSOSBang(args.Command); normalized != args.Command {
			d.log.Debug("Normalizing SOS bang command for LLDB", "command", args.Command, "normalized", normalized)
			rewritten, _ := json.Marshal(map[string]any{"command": normalized})
			return tool, rewritten
		}
	}
	return tool, raw
}

// Dispatch runs one tool call through rewrite → safety filter → cache →
// execution. Errors during execution become the
// tool result string "error: <message>"; Dispatch itself never fails.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, raw json.RawMessage, iteration int) Result {
	name, raw = d.rewrite(name, raw)

	if name == ToolExec {
		var args struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(raw, &args); err == nil && IsUnsafeCommand(args.Command) {
			d.log.Debug("Blocked unsafe command", "command", args.Command)
			res := Result{Output: BlockedUnsafeResult, IsError: true}
			d.record(name, res.Output, iteration)
			return res
		}
	}

	fingerprint := name + "\x00" + canonicalizeArgs(name, raw)
	if cached, ok := d.cache[fingerprint]; ok {
		res := Result{Output: CachedResultPrefix + " " + cached, Cached: true}
		d.record(name, res.Output, iteration)
		return res
	}

	if d.BudgetExhausted() {
		res := Result{Output: "error: tool call budget exceeded", IsError: true, Refused: true}
		d.record(name, res.Output, iteration)
		return res
	}

	output, isErr := d.execute(ctx, name, raw)
	res := Result{Output: output, IsError: isErr, Executed: true}
	d.executed++
	if !isErr {
		d.cache[fingerprint] = output
	}
	d.record(name, output, iteration)
	return res
}

func (d *Dispatcher) record(tool, output string, iteration int) {
	d.execs = append(d.execs, report.Exec{Tool: tool, Output: output, Iteration: iteration})
}

// execute dispatches a (validated, filtered) tool call to its handler.
func (d *Dispatcher) execute(ctx context.Context, name string, raw json.RawMessage) (string, bool) {
	switch name {
	case ToolReportGet:
		out, err := ReportGet(d.reportJSON, raw)
		if err != nil {
			return "error: " + err.Error(), true
		}
		return out, false

	case ToolExec:
		return d.executeDebuggerCommand(ctx, raw)

	case ToolGetThreadStack:
		if d.cfg.Report == nil {
			return "error: no report available", true
		}
		out, err := GetThreadStack(d.cfg.Report, raw)
		if err != nil {
			return "error: " + err.Error(), true
		}
		return out, false

	case ToolInspect:
		return d.inspectObject(ctx, raw)

	case ToolEvidenceAdd:
		d.evidenced = true
		return d.evidenceAdd(raw)

	case ToolHypothesisRegister:
		d.evidenced = true
		return d.hypothesisRegister(raw)

	case ToolHypothesisScore:
		d.evidenced = true
		return d.hypothesisScore(raw)

	default:
		return UnknownToolResult, true
	}
}

func (d *Dispatcher) executeDebuggerCommand(ctx context.Context, raw json.RawMessage) (string, bool) {
	var args struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || strings.TrimSpace(args.Command) == "" {
		return "error: invalid tool arguments: exec requires a command string", true
	}
	if d.cfg.Adapter == nil || !d.cfg.Adapter.IsDumpOpen() {
		return "error: no dump is open in the debugger", true
	}
	out, err := d.cfg.Adapter.Execute(ctx, args.Command)
	if err != nil {
		return "error: " + err.Error(), true
	}
	return out, false
}

// inspectArgs tolerates both string and numeric address/methodTable values.
type inspectArgs struct {
	Address          json.RawMessage `json:"address"`
	MethodTable      json.RawMessage `json:"methodTable,omitempty"`
	MaxDepth         int             `json:"maxDepth,omitempty"`
	MaxArrayElements int             `json:"maxArrayElements,omitempty"`
	MaxStringLength  int             `json:"maxStringLength,omitempty"`
}

func parseAddress(raw json.RawMessage) (uint64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing address")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, ok := parseUintFlexible(s); ok {
			return v, nil
		}
		return 0, fmt.Errorf("bad address %q", s)
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	return 0, fmt.Errorf("bad address %s", strconv.Quote(string(raw)))
}

func (d *Dispatcher) inspectObject(ctx context.Context, raw json.RawMessage) (string, bool) {
	var args inspectArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "error: invalid tool arguments: " + err.Error(), true
	}

	if d.cfg.Inspector == nil || !d.cfg.Inspector.IsOpen() {
		hint, _ := json.Marshal(map[string]string{
			"hint": "managed object inspector is not available for this dump; use exec with a debugger command such as 'dumpobj <address>' instead",
		})
		return string(hint), false
	}

	addr, err := parseAddress(args.Address)
	if err != nil {
		return "error: " + err.Error(), true
	}
	var mt *uint64
	if len(args.MethodTable) > 0 && string(args.MethodTable) != "null" {
		v, mtErr := parseAddress(args.MethodTable)
		if mtErr != nil {
			return "error: " + mtErr.Error(), true
		}
		mt = &v
	}
	maxDepth := args.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultInspectMaxDepth
	}
	maxArray := args.MaxArrayElements
	if maxArray <= 0 {
		maxArray = DefaultInspectMaxArrayElements
	}
	maxStr := args.MaxStringLength
	if maxStr <= 0 {
		maxStr = DefaultInspectMaxStringLength
	}

	insp, err := d.cfg.Inspector.InspectObject(ctx, addr, mt, maxDepth, maxArray, maxStr)
	if err != nil {
		return "error: " + err.Error(), true
	}
	out, err := json.Marshal(insp)
	if err != nil {
		return "error: " + err.Error(), true
	}
	return string(out), false
}

func (d *Dispatcher) evidenceAdd(raw json.RawMessage) (string, bool) {
	var args struct {
		Items []struct {
			ID      string `json:"id,omitempty"`
			Source  string `json:"source"`
			Finding string `json:"finding"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "error: invalid tool arguments: " + err.Error(), true
	}
	if d.cfg.Ledger == nil {
		return "error: no evidence ledger for this run", true
	}
	items := make([]evidence.Item, 0, len(args.Items))
	for _, it := range args.Items {
		items = append(items, evidence.Item{ID: it.ID, Source: it.Source, Finding: it.Finding})
	}
	res := d.cfg.Ledger.AddOrUpdate(items)
	out, _ := json.Marshal(map[string]any{
		"addedIds":            emptyIfNil(res.AddedIDs),
		"updatedIds":          emptyIfNil(res.UpdatedIDs),
		"ignoredDuplicates":   res.IgnoredDuplicates,
		"ignoredDuplicateIds": emptyIfNil(res.IgnoredDuplicateIDs),
		"invalidItems":        len(res.InvalidItems),
	})
	return string(out), false
}

func (d *Dispatcher) hypothesisRegister(raw json.RawMessage) (string, bool) {
	var args struct {
		Hypotheses []struct {
			ID                     string   `json:"id,omitempty"`
			Hypothesis             string   `json:"hypothesis"`
			Confidence             string   `json:"confidence,omitempty"`
			SupportsEvidenceIDs    []string `json:"supportsEvidenceIds,omitempty"`
			ContradictsEvidenceIDs []string `json:"contradictsEvidenceIds,omitempty"`
			Unknowns               []string `json:"unknowns,omitempty"`
			TestsToRun             []string `json:"testsToRun,omitempty"`
			Notes                  string   `json:"notes,omitempty"`
		} `json:"hypotheses"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "error: invalid tool arguments: " + err.Error(), true
	}
	if d.cfg.Tracker == nil {
		return "error: no hypothesis tracker for this run", true
	}
	hyps := make([]hypothesis.Hypothesis, 0, len(args.Hypotheses))
	for _, h := range args.Hypotheses {
		hyps = append(hyps, hypothesis.Hypothesis{
			ID:                     h.ID,
			Text:                   h.Hypothesis,
			Confidence:             report.HypothesisConfidence(h.Confidence),
			SupportsEvidenceIDs:    h.SupportsEvidenceIDs,
			ContradictsEvidenceIDs: h.ContradictsEvidenceIDs,
			Unknowns:               h.Unknowns,
			TestsToRun:             h.TestsToRun,
			Notes:                  h.Notes,
		})
	}
	res := d.cfg.Tracker.Register(hyps)
	out, _ := json.Marshal(map[string]any{
		"addedIds":            emptyIfNil(res.AddedIDs),
		"ignoredDuplicateIds": emptyIfNil(res.IgnoredDuplicateIDs),
		"ignoredDuplicates":   res.IgnoredDuplicates,
		"unknownEvidenceIds":  emptyIfNil(res.UnknownEvidenceIDs),
	})
	return string(out), false
}

func (d *Dispatcher) hypothesisScore(raw json.RawMessage) (string, bool) {
	var args struct {
		Updates []struct {
			ID                     string   `json:"id"`
			Confidence             string   `json:"confidence,omitempty"`
			SupportsEvidenceIDs    []string `json:"supportsEvidenceIds,omitempty"`
			ContradictsEvidenceIDs []string `json:"contradictsEvidenceIds,omitempty"`
			Unknowns               []string `json:"unknowns,omitempty"`
			TestsToRun             []string `json:"testsToRun,omitempty"`
			Notes                  string   `json:"notes,omitempty"`
		} `json:"updates"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "error: invalid tool arguments: " + err.Error(), true
	}
	if d.cfg.Tracker == nil {
		return "error: no hypothesis tracker for this run", true
	}
	updates := make([]hypothesis.Update, 0, len(args.Updates))
	for _, u := range args.Updates {
		updates = append(updates, hypothesis.Update{
			ID:                     u.ID,
			Confidence:             report.HypothesisConfidence(u.Confidence),
			SupportsEvidenceIDs:    u.SupportsEvidenceIDs,
			ContradictsEvidenceIDs: u.ContradictsEvidenceIDs,
			Unknowns:               u.Unknowns,
			TestsToRun:             u.TestsToRun,
			Notes:                  u.Notes,
		})
	}
	res := d.cfg.Tracker.Update(updates)
	out, _ := json.Marshal(map[string]any{
		"updatedIds":         emptyIfNil(res.UpdatedIDs),
		"unknownEvidenceIds": emptyIfNil(res.UnknownEvidenceIDs),
	})
	return string(out), false
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Package orchestrator implements the AI analysis loop: a bounded,
// checkpointed sampling loop over the tool dispatcher, with a
// baseline-evidence phase, a meta-bookkeeping phase, defensive completion
// validation with auto-finalization, a tool-free final synthesis, and a
// terminal judge step for high-confidence conclusions. One Orchestrator
// value is a single run; nothing is shared across runs.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dumpscope/dumpscope/pkg/aitools"
	"github.com/dumpscope/dumpscope/pkg/config"
	"github.com/dumpscope/dumpscope/pkg/debugger"
	"github.com/dumpscope/dumpscope/pkg/errs"
	"github.com/dumpscope/dumpscope/pkg/evidence"
	"github.com/dumpscope/dumpscope/pkg/hypothesis"
	"github.com/dumpscope/dumpscope/pkg/inspector"
	"github.com/dumpscope/dumpscope/pkg/prompt"
	"github.com/dumpscope/dumpscope/pkg/report"
	"github.com/dumpscope/dumpscope/pkg/sampling"
)

func jsonUnmarshal(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}

// Orchestrator drives one AI analysis run. Construct with New; Run may be
// called once.
type Orchestrator struct {
	client     sampling.Client
	rep        *report.Report
	dispatcher *aitools.Dispatcher
	ledger     *evidence.Ledger
	tracker    *hypothesis.Tracker
	opts       config.OrchestratorOptions
	log        *slog.Logger
	trace      *traceWriter
	runID      string

	conversation []sampling.Message
	requestSeq   int
	iterations   int
	executedIDs  map[string]bool // tool_use ids whose calls actually ran

	lastRefusedFingerprint string

	summaryRewrite  *report.SummaryRewrite
	threadNarrative *report.Narrative
}

// New wires an orchestrator run over a finalized report and its debugger /
// inspector collaborators. opts should already carry the literal defaults
// (config.MergeOrchestratorOptions).
func New(client sampling.Client, rep *report.Report, adapter debugger.Adapter, insp inspector.Inspector, opts config.OrchestratorOptions, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	ledger := evidence.New(0)
	tracker := hypothesis.New(ledger)
	dispatcher, err := aitools.New(aitools.Config{
		Adapter:      adapter,
		Inspector:    insp,
		Ledger:       ledger,
		Tracker:      tracker,
		Report:       rep,
		MaxToolCalls: opts.MaxToolCalls,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	var trace *traceWriter
	if opts.EnableSamplingTraceFiles {
		trace = newTraceWriter(opts.SamplingTraceDir, opts.SamplingTraceMaxFileBytes, logger)
	}

	return &Orchestrator{
		client:      client,
		rep:         rep,
		dispatcher:  dispatcher,
		ledger:      ledger,
		tracker:     tracker,
		opts:        opts,
		log:         logger,
		trace:       trace,
		runID:       runID,
		executedIDs: make(map[string]bool),
	}, nil
}

// Run executes the full phase state machine and always returns a non-nil
// AiAnalysis — sampling failures and cancellation are captured as fallback
// results rather than raised.
func (o *Orchestrator) Run(ctx context.Context) *report.AiAnalysis {
	if !o.client.IsSamplingSupported() {
		return o.gatedResult("the connected client does not support sampling")
	}
	if !o.client.IsToolUseSupported() {
		return o.gatedResult("the connected client does not support tool use")
	}

	maxIter := o.opts.MaxIterations
	if maxIter < 1 {
		maxIter = 1
	}

	// maxIterations == 1 (or the 0 alias) leaves room for nothing but the
	// synthesis iteration.
	if maxIter == 1 {
		o.iterations = 1
		completion, err := o.finalSynthesis(ctx, "no tool iterations were available")
		if err != nil {
			return o.failureResult(err)
		}
		return o.finishWithJudge(ctx, completion)
	}

	// Phase: baseline evidence (iteration 1).
	o.iterations = 1
	if err := o.baselineEvidence(ctx); err != nil {
		return o.failureResult(err)
	}

	// Phase: meta bookkeeping (not counted as an iteration).
	if err := o.metaBookkeeping(ctx); err != nil {
		return o.failureResult(err)
	}

	// Phase: main loop. The last iteration slot is reserved for synthesis.
	sinceCheckpoint := 0
	for o.iterations < maxIter {
		o.iterations++

		if o.iterations == maxIter || o.dispatcher.BudgetExhausted() {
			reason := "max iterations reached with no completion"
			if o.dispatcher.BudgetExhausted() {
				reason = "tool call budget exceeded"
			}
			completion, err := o.finalSynthesis(ctx, reason)
			if err != nil {
				return o.failureResult(err)
			}
			return o.finishWithJudge(ctx, completion)
		}

		completion, err := o.loopIteration(ctx)
		if err != nil {
			return o.failureResult(err)
		}
		if completion != nil {
			return o.finishWithJudge(ctx, completion)
		}

		sinceCheckpoint++
		if o.opts.CheckpointEveryIterations > 0 && sinceCheckpoint >= o.opts.CheckpointEveryIterations {
			o.checkpoint(ctx)
			sinceCheckpoint = 0
		}
	}

	completion, err := o.finalSynthesis(ctx, "max iterations reached with no completion")
	if err != nil {
		return o.failureResult(err)
	}
	return o.finishWithJudge(ctx, completion)
}

// sample issues one sampling request, retrying empty responses up to
// MaxSamplingRequestAttempts without consuming an iteration. Every
// request/response pair is traced and logged.
func (o *Orchestrator) sample(ctx context.Context, req *sampling.CreateMessageRequestParams) (*sampling.CreateMessageResult, error) {
	attempts := o.opts.MaxSamplingRequestAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		o.requestSeq++
		seq := o.requestSeq

		o.log.Debug("Sampling request", "seq", seq, "attempt", attempt, "messages", len(req.Messages), "maxTokens", req.MaxTokens)
		if o.opts.EnableVerboseSamplingTrace {
			o.log.Info("system prompt preview", "seq", seq, "preview", truncateForLog(req.SystemPrompt, 400))
			o.log.Info("messages tail preview", "seq", seq, "preview", truncateForLog(messagesTail(req.Messages), 400))
		}
		o.trace.writeRequest(seq, req)

		res, err := o.client.RequestCompletion(ctx, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.log.Debug("Sampling response", "seq", seq, "error", err)
			continue
		}

		o.log.Debug("Sampling response", "seq", seq, "blocks", len(res.Content), "model", res.Model)
		o.trace.writeResponse(seq, res)

		if res.IsEmpty() {
			lastErr = fmt.Errorf("%w: empty response content", errs.ErrSamplingFailure)
			continue
		}
		return res, nil
	}
	if lastErr == nil {
		lastErr = errs.ErrSamplingFailure
	}
	return nil, fmt.Errorf("%w: %v", errs.ErrSamplingFailure, lastErr)
}

// baselineEvidence runs the first iteration: a system prompt mandating the
// fixed report_get set, with only report_get exposed.
func (o *Orchestrator) baselineEvidence(ctx context.Context) error {
	o.conversation = append(o.conversation, sampling.Message{
		Role:    sampling.RoleUser,
		Content: []sampling.ContentBlock{sampling.TextContentBlock{Text: "Begin the analysis by fetching the baseline evidence."}},
	})

	req := &sampling.CreateMessageRequestParams{
		SystemPrompt: prompt.BuildBaselineSystemPrompt(o.rep),
		Messages:     o.conversation,
		Tools:        aitools.ToolsByName(aitools.ToolReportGet),
		ToolChoice:   sampling.ToolChoicePtr(sampling.ToolChoiceRequired),
		MaxTokens:    o.opts.MaxTokensPerRequest,
	}
	res, err := o.sample(ctx, req)
	if err != nil {
		return err
	}

	results, _ := o.dispatchResponse(ctx, res)
	o.appendExchange(res, results)
	o.logUnmetBaselinePaths(res)
	return nil
}

// logUnmetBaselinePaths reports mandated report_get paths the model did not
// fetch. The phase proceeds regardless — the stable state snapshot keeps
// the model honest later.
func (o *Orchestrator) logUnmetBaselinePaths(res *sampling.CreateMessageResult) {
	fetched := make(map[string]bool)
	for _, tu := range res.ToolUses() {
		if tu.Name != aitools.ToolReportGet {
			continue
		}
		var args struct {
			Path string `json:"path"`
		}
		if jsonUnmarshal(tu.Input, &args) == nil {
			fetched[args.Path] = true
		}
	}
	for _, path := range prompt.BaselinePaths {
		if !fetched[path] {
			o.log.Debug("baseline path not fetched", "path", path)
		}
	}
}

// metaBookkeeping issues the single bookkeeping request that follows the
// baseline phase: toolChoice required, ledger/tracker tools only. Failures
// are logged and skipped, not fatal.
func (o *Orchestrator) metaBookkeeping(ctx context.Context) error {
	msgs := append(o.snapshotConversation(), sampling.Message{
		Role:    sampling.RoleUser,
		Content: []sampling.ContentBlock{sampling.TextContentBlock{Text: prompt.BuildMetaBookkeepingPrompt()}},
	})
	req := &sampling.CreateMessageRequestParams{
		SystemPrompt: prompt.BuildSystemPrompt(o.rep),
		Messages:     msgs,
		Tools: aitools.ToolsByName(
			aitools.ToolEvidenceAdd,
			aitools.ToolHypothesisRegister,
			aitools.ToolHypothesisScore,
		),
		ToolChoice: sampling.ToolChoicePtr(sampling.ToolChoiceRequired),
		MaxTokens:  o.opts.MaxTokensPerRequest,
	}
	res, err := o.sample(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		o.log.Debug("meta-bookkeeping sampling failed, continuing", "error", err)
		return nil
	}
	results, _ := o.dispatchResponse(ctx, res)
	o.appendExchange(res, results)
	return nil
}

// loopIteration runs one main-loop iteration: build messages, sample with
// the full tool set, dispatch tool calls, and detect completion. Returns a
// non-nil completion when the model finished.
func (o *Orchestrator) loopIteration(ctx context.Context) (*prompt.Completion, error) {
	msgs := append(o.snapshotConversation(), sampling.Message{
		Role:    sampling.RoleUser,
		Content: []sampling.ContentBlock{sampling.TextContentBlock{Text: prompt.StableStateSnapshot(o.ledger, o.tracker)}},
	})
	req := &sampling.CreateMessageRequestParams{
		SystemPrompt: prompt.BuildSystemPrompt(o.rep),
		Messages:     msgs,
		Tools:        aitools.AllTools(),
		MaxTokens:    o.opts.MaxTokensPerRequest,
	}
	res, err := o.sample(ctx, req)
	if err != nil {
		return nil, err
	}

	results, completion := o.dispatchResponse(ctx, res)
	o.appendExchange(res, results)
	return completion, nil
}

// dispatchResponse walks the tool_use blocks in emission order, applying
// rewrite → safety → cache → dispatch through the dispatcher and
// intercepting completion tools. The returned tool_result
// blocks are in the same order as the calls.
func (o *Orchestrator) dispatchResponse(ctx context.Context, res *sampling.CreateMessageResult) ([]sampling.ToolResultContentBlock, *prompt.Completion) {
	var results []sampling.ToolResultContentBlock
	var completion *prompt.Completion

	for _, tu := range res.ToolUses() {
		o.log.Debug("Tool requested", "tool", tu.Name, "id", tu.ID)

		if aitools.IsCompletionTool(tu.Name) {
			output, isErr, comp := o.handleCompletionTool(tu)
			o.executedIDs[tu.ID] = true
			results = append(results, sampling.ToolResultContentBlock{ToolUseID: tu.ID, Content: output, IsError: isErr})
			if comp != nil && completion == nil {
				completion = comp
			}
			continue
		}

		r := o.dispatcher.Dispatch(ctx, tu.Name, tu.Input, o.iterations)
		if r.Executed || r.Cached {
			o.executedIDs[tu.ID] = true
		}
		results = append(results, sampling.ToolResultContentBlock{ToolUseID: tu.ID, Content: r.Output, IsError: r.IsError})
	}
	return results, completion
}

// handleCompletionTool processes the orchestrator-owned tools.
func (o *Orchestrator) handleCompletionTool(tu sampling.ToolUseContentBlock) (output string, isError bool, completion *prompt.Completion) {
	switch tu.Name {
	case aitools.ToolAnalysisComplete:
		return o.handleAnalysisComplete(tu)

	case aitools.ToolSummaryRewriteComplete:
		var sr report.SummaryRewrite
		if err := jsonUnmarshal(tu.Input, &sr); err != nil {
			return "error: " + err.Error(), true, nil
		}
		o.summaryRewrite = &sr
		return "summary rewrite accepted", false, nil

	case aitools.ToolThreadNarrativeComplete:
		var n report.Narrative
		if err := jsonUnmarshal(tu.Input, &n); err != nil {
			return "error: " + err.Error(), true, nil
		}
		o.threadNarrative = &n
		return "thread narrative accepted", false, nil

	case aitools.ToolCheckpointComplete:
		// Only meaningful inside the checkpoint synthesis request, which
		// parses it directly.
		return "error: checkpoint_complete is only available during checkpoint synthesis", true, nil

	case aitools.ToolJudgeComplete:
		return "error: analysis_judge_complete is only available during the judge step", true, nil
	}
	return aitools.UnknownToolResult, true, nil
}

// handleAnalysisComplete enforces the premature-completion rule and its
// auto-finalization escape hatch.
func (o *Orchestrator) handleAnalysisComplete(tu sampling.ToolUseContentBlock) (string, bool, *prompt.Completion) {
	comp, err := prompt.ParseCompletion(tu.Input)
	if err != nil {
		return "error: " + err.Error(), true, nil
	}

	acceptable := comp.Confidence != report.ConfidenceHigh ||
		len(comp.Evidence) >= o.minHighConfidenceEvidence() ||
		o.dispatcher.EvidenceToolExecuted()

	if acceptable {
		o.resolveCompletionEvidence(comp)
		o.dispatcher.ResetEvidenceMark()
		return "analysis completion accepted", false, comp
	}

	fingerprint := string(tu.Input)
	if o.lastRefusedFingerprint == fingerprint {
		// Second identical high-confidence completion: auto-finalize with a
		// downgraded confidence and evidence synthesized from the tool trace.
		comp.Confidence = report.ConfidenceMedium
		comp.Evidence = o.autoGenerateEvidence()
		comp.Reasoning = strings.TrimSpace(comp.Reasoning +
			"\n[auto-finalized: completion repeated without registered evidence; evidence auto-generated from tool trace]")
		o.dispatcher.ResetEvidenceMark()
		return "analysis completion auto-finalized", false, comp
	}

	o.lastRefusedFingerprint = fingerprint
	return "Completion refused: no evidence has been registered since the last synthesis. " +
		"Call analysis_evidence_add with the facts supporting this conclusion (or lower the confidence), then call analysis_complete again.", true, nil
}

func (o *Orchestrator) minHighConfidenceEvidence() int {
	if o.opts.MinHighConfidenceEvidence > 0 {
		return o.opts.MinHighConfidenceEvidence
	}
	return 6
}

// resolveCompletionEvidence maps the completion's evidence entries to ledger
// ids, auto-synthesizing ledger items for entries that are free text or
// unknown ids so every referenced id exists in the ledger after the
// validation pass.
func (o *Orchestrator) resolveCompletionEvidence(comp *prompt.Completion) {
	resolved := make([]string, 0, len(comp.Evidence))
	for _, entry := range comp.Evidence {
		if o.ledger.Has(entry) {
			resolved = append(resolved, canonicalLedgerID(o.ledger, entry))
			continue
		}
		res := o.ledger.AddOrUpdate([]evidence.Item{{Source: "analysis_complete", Finding: entry}})
		switch {
		case len(res.AddedIDs) > 0:
			resolved = append(resolved, res.AddedIDs[0])
		case len(res.IgnoredDuplicateIDs) > 0:
			resolved = append(resolved, res.IgnoredDuplicateIDs[0])
		}
	}
	comp.Evidence = resolved
}

// canonicalLedgerID maps an accepted (possibly differently-spelled) id like
// "e010" to the ledger's stored spelling "E10".
func canonicalLedgerID(l *evidence.Ledger, id string) string {
	seq, ok := evidence.ParseSeq(id)
	if !ok {
		return id
	}
	for _, item := range l.Items() {
		if s, ok2 := evidence.ParseSeq(item.ID); ok2 && s == seq {
			return item.ID
		}
	}
	return id
}

// autoGenerateEvidence synthesizes ledger evidence from the most recent tool
// executions.
func (o *Orchestrator) autoGenerateEvidence() []string {
	execs := o.dispatcher.Execs()
	const maxAuto = 6
	start := 0
	if len(execs) > maxAuto {
		start = len(execs) - maxAuto
	}
	var ids []string
	for _, ex := range execs[start:] {
		res := o.ledger.AddOrUpdate([]evidence.Item{{
			Source:  ex.Tool,
			Finding: "auto-generated from tool trace: " + truncateForLog(ex.Output, 200),
		}})
		if len(res.AddedIDs) > 0 {
			ids = append(ids, res.AddedIDs[0])
		} else if len(res.IgnoredDuplicateIDs) > 0 {
			ids = append(ids, res.IgnoredDuplicateIDs[0])
		}
	}
	return ids
}

// checkpoint issues a synthesis request with only checkpoint_complete
// available, then replaces the conversation with [carry-forward,
// stable-state-snapshot]. Failures fall back to the deterministic
// checkpoint text.
func (o *Orchestrator) checkpoint(ctx context.Context) {
	msgs := append(o.snapshotConversation(), sampling.Message{
		Role:    sampling.RoleUser,
		Content: []sampling.ContentBlock{sampling.TextContentBlock{Text: prompt.BuildCheckpointPrompt()}},
	})
	req := &sampling.CreateMessageRequestParams{
		SystemPrompt: prompt.BuildSystemPrompt(o.rep),
		Messages:     msgs,
		Tools:        aitools.ToolsByName(aitools.ToolCheckpointComplete),
		ToolChoice:   sampling.ToolChoicePtr(sampling.ToolChoiceRequired),
		MaxTokens:    o.opts.CheckpointMaxTokens,
	}

	carryForward := ""
	res, err := o.sample(ctx, req)
	if err == nil {
		for _, tu := range res.ToolUses() {
			if tu.Name != aitools.ToolCheckpointComplete {
				continue
			}
			var cp prompt.Checkpoint
			if jsonUnmarshal(tu.Input, &cp) == nil {
				carryForward = prompt.CheckpointCarryForward(string(tu.Input))
			}
			break
		}
	}
	if carryForward == "" {
		o.log.Debug("checkpoint synthesis failed, using deterministic fallback", "error", err)
		carryForward = prompt.FallbackCheckpoint(o.ledger)
	}

	o.conversation = []sampling.Message{
		{Role: sampling.RoleUser, Content: []sampling.ContentBlock{sampling.TextContentBlock{Text: carryForward}}},
		{Role: sampling.RoleUser, Content: []sampling.ContentBlock{sampling.TextContentBlock{Text: prompt.StableStateSnapshot(o.ledger, o.tracker)}}},
	}
	// History before the checkpoint is gone; previously unexecuted tool ids
	// no longer appear in any message.
	o.executedIDs = make(map[string]bool)
}

// finalSynthesis builds pruned messages (unexecuted tool_use blocks and
// their tool_result blocks removed) and issues a tool-free request whose
// text is parsed as completion JSON.
func (o *Orchestrator) finalSynthesis(ctx context.Context, reason string) (*prompt.Completion, error) {
	msgs := append(o.prunedConversation(), sampling.Message{
		Role:    sampling.RoleUser,
		Content: []sampling.ContentBlock{sampling.TextContentBlock{Text: prompt.BuildFinalSynthesisPrompt(reason)}},
	})
	req := &sampling.CreateMessageRequestParams{
		SystemPrompt: prompt.BuildSystemPrompt(o.rep),
		Messages:     msgs,
		Tools:        nil,
		ToolChoice:   nil,
		MaxTokens:    o.opts.FinalSynthesisMaxTokens,
	}
	res, err := o.sample(ctx, req)
	if err != nil {
		return nil, err
	}

	comp, parseErr := prompt.ParseFinalSynthesisText(res.TextContent())
	if parseErr != nil {
		o.log.Debug("final synthesis response was not valid completion JSON", "error", parseErr)
		comp = &prompt.Completion{
			RootCause:  "Analysis incomplete: " + reason,
			Confidence: report.ConfidenceLow,
			Reasoning:  truncateForLog(res.TextContent(), 2000),
		}
	}
	if strings.Contains(reason, "tool call budget") {
		comp.Reasoning = "Tool call budget exceeded. " + comp.Reasoning
	}
	o.resolveCompletionEvidence(comp)
	o.dispatcher.ResetEvidenceMark()
	return comp, nil
}

// judge runs the terminal judge request for high-confidence completions.
// Returns nil when judging fails — confidence then stays as-is.
func (o *Orchestrator) judge(ctx context.Context) *report.Judge {
	msgs := append(o.prunedConversation(),
		sampling.Message{
			Role:    sampling.RoleUser,
			Content: []sampling.ContentBlock{sampling.TextContentBlock{Text: prompt.StableStateSnapshot(o.ledger, o.tracker)}},
		},
		sampling.Message{
			Role:    sampling.RoleUser,
			Content: []sampling.ContentBlock{sampling.TextContentBlock{Text: prompt.BuildJudgePrompt()}},
		},
	)
	req := &sampling.CreateMessageRequestParams{
		SystemPrompt: prompt.BuildSystemPrompt(o.rep),
		Messages:     msgs,
		Tools:        aitools.ToolsByName(aitools.ToolJudgeComplete),
		ToolChoice:   sampling.ToolChoicePtr(sampling.ToolChoiceRequired),
		MaxTokens:    o.opts.MaxTokensPerRequest,
	}
	res, err := o.sample(ctx, req)
	if err != nil {
		o.log.Debug("judge sampling failed, keeping completion confidence", "error", err)
		return nil
	}
	for _, tu := range res.ToolUses() {
		if tu.Name != aitools.ToolJudgeComplete {
			continue
		}
		var j report.Judge
		if err := jsonUnmarshal(tu.Input, &j); err != nil {
			o.log.Debug("judge returned malformed payload", "error", err)
			return nil
		}
		// Unknown evidence ids are filtered, matching the tracker's policy.
		var known []string
		for _, id := range j.SupportsEvidenceIDs {
			if o.ledger.Has(id) {
				known = append(known, id)
			}
		}
		j.SupportsEvidenceIDs = known
		return &j
	}
	return nil
}

// finishWithJudge assembles the final AiAnalysis from an accepted or
// synthesized completion, running the judge step for high confidence.
func (o *Orchestrator) finishWithJudge(ctx context.Context, comp *prompt.Completion) *report.AiAnalysis {
	ai := o.baseResult()
	ai.RootCause = comp.RootCause
	ai.Confidence = comp.Confidence
	ai.Reasoning = comp.Reasoning
	ai.Recommendations = comp.Recommendations
	ai.AdditionalFindings = prompt.CoerceAdditionalFindings(comp.AdditionalFindings)
	ai.Evidence = comp.Evidence

	if comp.Confidence == report.ConfidenceHigh {
		ai.Judge = o.judge(ctx)
	}

	// The ledger may have grown during evidence resolution and judging;
	// refresh the attached snapshot last.
	ai.EvidenceLedger = o.ledger.ToReport()
	ai.Hypotheses = o.tracker.ToReport()
	ai.CommandsExecuted = o.dispatcher.Execs()

	o.trace.writeFinal(ai)
	return ai
}

// baseResult builds the common AiAnalysis scaffold shared by all exits.
func (o *Orchestrator) baseResult() *report.AiAnalysis {
	return &report.AiAnalysis{
		Iterations:       o.iterations,
		EvidenceLedger:   o.ledger.ToReport(),
		Hypotheses:       o.tracker.ToReport(),
		CommandsExecuted: o.dispatcher.Execs(),
		Summary:          o.summaryRewrite,
		ThreadNarrative:  o.threadNarrative,
	}
}

// gatedResult is the immediate return for unsupported client capabilities.
func (o *Orchestrator) gatedResult(why string) *report.AiAnalysis {
	ai := o.baseResult()
	ai.Iterations = 0
	ai.Confidence = report.ConfidenceLow
	ai.RootCause = "AI analysis unavailable: " + why
	ai.Reasoning = "The sampling client reported a missing capability, so no analysis loop was run."
	o.trace.writeFinal(ai)
	return ai
}

// failureResult captures sampling failures and cancellation as a fallback
// result rather than raising.
func (o *Orchestrator) failureResult(err error) *report.AiAnalysis {
	ai := o.baseResult()
	ai.Confidence = report.ConfidenceLow
	ai.Error = err.Error()
	ai.RootCause = "Sampling failed: " + err.Error()
	ai.Reasoning = "Every sampling attempt for an iteration failed; the analysis could not proceed."
	o.trace.writeFinal(ai)
	return ai
}

// appendExchange appends the model's response and the tool results (in call
// order) to the conversation.
func (o *Orchestrator) appendExchange(res *sampling.CreateMessageResult, results []sampling.ToolResultContentBlock) {
	o.conversation = append(o.conversation, sampling.Message{Role: sampling.RoleAssistant, Content: res.Content})
	if len(results) == 0 {
		return
	}
	blocks := make([]sampling.ContentBlock, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, r)
	}
	o.conversation = append(o.conversation, sampling.Message{Role: sampling.RoleUser, Content: blocks})
}

// snapshotConversation copies the conversation so per-request suffix
// messages never leak into the stored history.
func (o *Orchestrator) snapshotConversation() []sampling.Message {
	out := make([]sampling.Message, len(o.conversation))
	copy(out, o.conversation)
	return out
}

// prunedConversation removes tool_use blocks that never executed (budget
// refusals) and their matching tool_result blocks before final synthesis.
func (o *Orchestrator) prunedConversation() []sampling.Message {
	pruned := make([]sampling.Message, 0, len(o.conversation))
	dropped := make(map[string]bool)
	for _, msg := range o.conversation {
		var blocks []sampling.ContentBlock
		for _, b := range msg.Content {
			switch blk := b.(type) {
			case sampling.ToolUseContentBlock:
				if !o.executedIDs[blk.ID] {
					dropped[blk.ID] = true
					continue
				}
			case sampling.ToolResultContentBlock:
				if dropped[blk.ToolUseID] {
					continue
				}
			}
			blocks = append(blocks, b)
		}
		if len(blocks) > 0 {
			pruned = append(pruned, sampling.Message{Role: msg.Role, Content: blocks})
		}
	}
	return pruned
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func messagesTail(msgs []sampling.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	last := msgs[len(msgs)-1]
	var sb strings.Builder
	for _, b := range last.Content {
		if tb, ok := b.(sampling.TextContentBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

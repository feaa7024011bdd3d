package config

import (
	"fmt"

	"github.com/dumpscope/dumpscope/pkg/debugger"
)

// Validator validates configuration comprehensively with clear error
// messages (fail-fast, one component at a time).
type Validator struct {
	session *DumpSessionConfig
	opts    *OrchestratorOptions
}

// NewValidator creates a validator for the given dump session and
// orchestrator configuration. Either may be nil when only the other needs
// validating.
func NewValidator(session *DumpSessionConfig, opts *OrchestratorOptions) *Validator {
	return &Validator{session: session, opts: opts}
}

// ValidateAll performs comprehensive validation (fail-fast — stops at the
// first error).
func (v *Validator) ValidateAll() error {
	if v.session != nil {
		if err := v.validateSession(); err != nil {
			return fmt.Errorf("dump session validation failed: %w", err)
		}
	}
	if v.opts != nil {
		if err := v.validateOrchestrator(); err != nil {
			return fmt.Errorf("orchestrator validation failed: %w", err)
		}
	}
	return nil
}

func (v *Validator) validateSession() error {
	s := v.session
	if s.DumpPath == "" {
		return NewValidationError("dump_session", "dump_path", ErrMissingRequiredField)
	}
	switch s.DebuggerType {
	case debugger.WinDbg, debugger.LLDB:
	case "":
		return NewValidationError("dump_session", "debugger_type", ErrMissingRequiredField)
	default:
		return NewValidationError("dump_session", "debugger_type",
			fmt.Errorf("%w: %q", ErrInvalidValue, s.DebuggerType))
	}
	return nil
}

func (v *Validator) validateOrchestrator() error {
	o := v.opts
	if o.MaxIterations < 0 {
		return NewValidationError("orchestrator", "max_iterations",
			fmt.Errorf("%w: must be non-negative, got %d", ErrInvalidValue, o.MaxIterations))
	}
	if o.MaxToolCalls < 0 {
		return NewValidationError("orchestrator", "max_tool_calls",
			fmt.Errorf("%w: must be non-negative (0 = unlimited), got %d", ErrInvalidValue, o.MaxToolCalls))
	}
	if o.MaxSamplingRequestAttempts < 1 {
		return NewValidationError("orchestrator", "max_sampling_request_attempts",
			fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidValue, o.MaxSamplingRequestAttempts))
	}
	if o.CheckpointEveryIterations < 1 {
		return NewValidationError("orchestrator", "checkpoint_every_iterations",
			fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidValue, o.CheckpointEveryIterations))
	}
	if o.MaxTokensPerRequest < 1 {
		return NewValidationError("orchestrator", "max_tokens_per_request",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, o.MaxTokensPerRequest))
	}
	if o.CheckpointMaxTokens < 1 {
		return NewValidationError("orchestrator", "checkpoint_max_tokens",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, o.CheckpointMaxTokens))
	}
	if o.FinalSynthesisMaxTokens < 1 {
		return NewValidationError("orchestrator", "final_synthesis_max_tokens",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, o.FinalSynthesisMaxTokens))
	}
	if o.SamplingTraceMaxFileBytes < 1 {
		return NewValidationError("orchestrator", "sampling_trace_max_file_bytes",
			fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, o.SamplingTraceMaxFileBytes))
	}
	if o.EnableSamplingTraceFiles && o.SamplingTraceDir == "" {
		return NewValidationError("orchestrator", "sampling_trace_dir",
			fmt.Errorf("%w: required when enable_sampling_trace_files is true", ErrMissingRequiredField))
	}
	if o.MinHighConfidenceEvidence < 0 {
		return NewValidationError("orchestrator", "min_high_confidence_evidence",
			fmt.Errorf("%w: must be non-negative, got %d", ErrInvalidValue, o.MinHighConfidenceEvidence))
	}
	if o.AgentTimeout <= 0 {
		return NewValidationError("orchestrator", "agent_timeout",
			fmt.Errorf("%w: must be positive, got %v", ErrInvalidValue, o.AgentTimeout))
	}
	return nil
}

// Package config provides configuration management for dumpscope: the dump
// session descriptor (debugger backend, symbol path, ClrMd availability),
// the AI orchestrator's literal defaults, and the report disk
// cache location: YAML structs, mergo-based default merging, a hand-rolled
// Validator.
package config

import (
	"time"

	"github.com/dumpscope/dumpscope/pkg/debugger"
)

// DumpSessionConfig describes how to open and analyze one dump file.
type DumpSessionConfig struct {
	DumpPath       string              `yaml:"dump_path" validate:"required"`
	Executable     string              `yaml:"executable,omitempty"`
	DebuggerType   debugger.DebuggerType `yaml:"debugger_type" validate:"required"`
	SymbolPath     string              `yaml:"symbol_path,omitempty"`
	LoadSOS        bool                `yaml:"load_sos"`
	ClrMdEnabled   bool                `yaml:"clrmd_enabled"`
	UserID         string              `yaml:"user_id,omitempty"`
	DumpID         string              `yaml:"dump_id,omitempty"`
	ReportCacheDir string              `yaml:"report_cache_dir,omitempty"`
}

// OrchestratorOptions holds the AI orchestrator's configuration.
// Literal defaults come from Defaults() and are applied to zero-valued
// fields by MergeOrchestratorOptions.
type OrchestratorOptions struct {
	MaxIterations              int           `yaml:"max_iterations"`
	MaxToolCalls               int           `yaml:"max_tool_calls"` // 0 = unlimited
	MaxSamplingRequestAttempts int           `yaml:"max_sampling_request_attempts"`
	CheckpointEveryIterations  int           `yaml:"checkpoint_every_iterations"`
	MaxTokensPerRequest        int           `yaml:"max_tokens_per_request"`
	CheckpointMaxTokens        int           `yaml:"checkpoint_max_tokens"`
	FinalSynthesisMaxTokens    int           `yaml:"final_synthesis_max_tokens"`
	EnableVerboseSamplingTrace bool          `yaml:"enable_verbose_sampling_trace"`
	EnableSamplingTraceFiles   bool          `yaml:"enable_sampling_trace_files"`
	SamplingTraceMaxFileBytes  int           `yaml:"sampling_trace_max_file_bytes"`
	SamplingTraceDir           string        `yaml:"sampling_trace_dir,omitempty"`
	MinHighConfidenceEvidence  int           `yaml:"min_high_confidence_evidence"`
	AgentTimeout               time.Duration `yaml:"agent_timeout"`
}

// Defaults returns the orchestrator's literal default knobs. These values
// must stay literal numbers — tests pin them.
func Defaults() OrchestratorOptions {
	return OrchestratorOptions{
		MaxIterations:              1,
		MaxToolCalls:               0,
		MaxSamplingRequestAttempts: 1,
		CheckpointEveryIterations:  2,
		MaxTokensPerRequest:        16384,
		CheckpointMaxTokens:        65000,
		FinalSynthesisMaxTokens:    65000,
		EnableVerboseSamplingTrace: false,
		EnableSamplingTraceFiles:   false,
		SamplingTraceMaxFileBytes:  1 << 20,
		MinHighConfidenceEvidence:  6,
		AgentTimeout:               10 * time.Minute,
	}
}

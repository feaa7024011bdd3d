package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpscope/dumpscope/pkg/debugger"
)

func TestDefaults_LiteralValues(t *testing.T) {
	d := Defaults()
	assert.Equal(t, 1, d.MaxIterations)
	assert.Equal(t, 0, d.MaxToolCalls)
	assert.Equal(t, 1, d.MaxSamplingRequestAttempts)
	assert.Equal(t, 2, d.CheckpointEveryIterations)
	assert.Equal(t, 16384, d.MaxTokensPerRequest)
	assert.Equal(t, 65000, d.CheckpointMaxTokens)
	assert.Equal(t, 65000, d.FinalSynthesisMaxTokens)
	assert.False(t, d.EnableVerboseSamplingTrace)
	assert.False(t, d.EnableSamplingTraceFiles)
	assert.Equal(t, 1<<20, d.SamplingTraceMaxFileBytes)
	assert.Equal(t, 6, d.MinHighConfidenceEvidence)
	assert.Equal(t, 10*time.Minute, d.AgentTimeout)
}

func TestMergeOrchestratorOptions_NilOverridesReturnsDefaults(t *testing.T) {
	merged, err := MergeOrchestratorOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), merged)
}

func TestMergeOrchestratorOptions_OverridesNonZeroFieldsOnly(t *testing.T) {
	overrides := &OrchestratorOptions{MaxIterations: 5}
	merged, err := MergeOrchestratorOptions(overrides)
	require.NoError(t, err)
	assert.Equal(t, 5, merged.MaxIterations)
	assert.Equal(t, Defaults().CheckpointMaxTokens, merged.CheckpointMaxTokens)
}

func TestValidator_SessionRequiresDumpPath(t *testing.T) {
	s := &DumpSessionConfig{DebuggerType: debugger.WinDbg}
	err := NewValidator(s, nil).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestValidator_SessionRejectsUnknownDebuggerType(t *testing.T) {
	s := &DumpSessionConfig{DumpPath: "/tmp/x.dmp", DebuggerType: debugger.DebuggerType("gdb")}
	err := NewValidator(s, nil).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestValidator_SessionAcceptsValidConfig(t *testing.T) {
	s := &DumpSessionConfig{DumpPath: "/tmp/x.dmp", DebuggerType: debugger.LLDB}
	assert.NoError(t, NewValidator(s, nil).ValidateAll())
}

func TestValidator_OrchestratorRejectsNegativeMaxIterations(t *testing.T) {
	o := Defaults()
	o.MaxIterations = -1
	err := NewValidator(nil, &o).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestValidator_OrchestratorRequiresTraceDirWhenFilesEnabled(t *testing.T) {
	o := Defaults()
	o.EnableSamplingTraceFiles = true
	err := NewValidator(nil, &o).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestValidator_OrchestratorAcceptsDefaults(t *testing.T) {
	o := Defaults()
	assert.NoError(t, NewValidator(nil, &o).ValidateAll())
}

func TestLoad_MissingFileReturnsConfigNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_InvalidYAMLReturnsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session: [unterminated"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestLoad_ValidFileMergesDefaultsAndValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dumpscope.yaml")
	contents := `
session:
  dump_path: /dumps/crash.dmp
  debugger_type: LLDB
orchestrator:
  max_iterations: 3
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	fc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dumps/crash.dmp", fc.Session.DumpPath)
	assert.Equal(t, 3, fc.Orchestrator.MaxIterations)
	assert.Equal(t, Defaults().CheckpointMaxTokens, fc.Orchestrator.CheckpointMaxTokens)
}

func TestLoad_MissingDumpPathFailsValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dumpscope.yaml")
	contents := `
session:
  debugger_type: windbg
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	r := &Report{
		Analysis: Analysis{
			Summary: Summary{Description: "Crash analysis complete."},
			Threads: Threads{
				All: []Thread{
					{
						ThreadID:   "1",
						IsFaulting: true,
						CallStack: []StackFrame{
							{FrameNumber: 9, Function: "[Runtime]", Module: "coreclr"},
							{FrameNumber: 3, Function: "[ManagedMethod]", Module: "MyApp"},
							{FrameNumber: 0, Function: "Main", Module: "MyApp", SourceURL: "https://example.com/a.cs#L42"},
						},
					},
					{
						ThreadID:   "2",
						OSThreadID: "0x10",
						CallStack:  []StackFrame{{Function: "Worker", Module: "MyApp"}},
					},
				},
			},
			Modules: []Module{{Name: "MyApp"}, {Name: "coreclr"}},
			Assemblies: Assemblies{
				Items: []Assembly{
					{Name: "MyApp", Path: `C:\app\MyApp.dll`},
					{Name: "MyApp-dup", Path: `c:/app/myapp.dll`},
					{Name: "Other"},
				},
			},
		},
		RawCommands: map[string]string{
			"!threads":                     "...",
			"expr -- (char*)0x1234":        "hello",
			"ClrMD:InspectModule(MyApp)":   "...",
		},
	}
	return r
}

func TestFinalize_RenumbersFrames(t *testing.T) {
	r := sampleReport()
	Finalize(r)
	for i, f := range r.Analysis.Threads.All[0].CallStack {
		assert.Equal(t, i, f.FrameNumber)
	}
}

func TestFinalize_TopFunctionSkipsPlaceholders(t *testing.T) {
	r := sampleReport()
	Finalize(r)
	assert.Equal(t, "MyApp!Main", r.Analysis.Threads.All[0].TopFunction)
}

func TestFinalize_TopFunctionEmptyWhenAllPlaceholder(t *testing.T) {
	r := &Report{Analysis: Analysis{Threads: Threads{All: []Thread{
		{ThreadID: "1", CallStack: []StackFrame{{Function: "[Runtime]"}, {Function: "   "}}},
	}}}}
	Finalize(r)
	assert.Equal(t, "", r.Analysis.Threads.All[0].TopFunction)
}

func TestFinalize_PromotesManagedMethodPlaceholder(t *testing.T) {
	r := sampleReport()
	Finalize(r)
	assert.True(t, r.Analysis.Threads.All[0].CallStack[1].IsManaged)
}

func TestFinalize_SourceURLAnchorDrivesLineNumber(t *testing.T) {
	r := sampleReport()
	Finalize(r)
	frame := r.Analysis.Threads.All[0].CallStack[2]
	require.NotNil(t, frame.LineNumber)
	assert.Equal(t, 42, *frame.LineNumber)
}

func TestFinalize_DropsLowValueRawCommands(t *testing.T) {
	r := sampleReport()
	Finalize(r)
	assert.Contains(t, r.RawCommands, "!threads")
	assert.NotContains(t, r.RawCommands, "expr -- (char*)0x1234")
	assert.NotContains(t, r.RawCommands, "ClrMD:InspectModule(MyApp)")
}

func TestFinalize_PicksFirstFaultingThread(t *testing.T) {
	r := sampleReport()
	Finalize(r)
	require.NotNil(t, r.Analysis.Threads.FaultingThread)
	assert.Equal(t, "1", *r.Analysis.Threads.FaultingThread)
}

func TestFinalize_DedupesAssembliesByNormalizedPath(t *testing.T) {
	r := sampleReport()
	Finalize(r)
	assert.Equal(t, 2, r.Analysis.Assemblies.Count)
	assert.Len(t, r.Analysis.Assemblies.Items, 2)
}

func TestFinalize_RefreshesSummaryClause(t *testing.T) {
	r := sampleReport()
	Finalize(r)
	assert.Contains(t, r.Analysis.Summary.Description, "Found 2 threads (4 total frames, 3 in faulting thread), 2 modules.")
}

func TestFinalize_ReplacesStaleClauseRatherThanAppending(t *testing.T) {
	r := sampleReport()
	r.Analysis.Summary.Description = "Summary. Found 99 threads (1 total frames, 1 in faulting thread), 1 modules."
	Finalize(r)
	assert.Equal(t, 1, countOccurrences(r.Analysis.Summary.Description, "Found"))
	assert.Contains(t, r.Analysis.Summary.Description, "Found 2 threads")
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}

func TestFinalize_IdempotentAcrossSerializeRoundTrip(t *testing.T) {
	r := sampleReport()
	Finalize(r)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var r2 Report
	require.NoError(t, json.Unmarshal(data, &r2))
	before, err := json.Marshal(&r2)
	require.NoError(t, err)

	Finalize(&r2)
	after, err := json.Marshal(&r2)
	require.NoError(t, err)

	assert.JSONEq(t, string(before), string(after))
}

func TestValidate_CleanReportHasNoViolations(t *testing.T) {
	r := sampleReport()
	Finalize(r)
	assert.Empty(t, Validate(r))
}

func TestValidate_CatchesEvidenceIDNotInLedger(t *testing.T) {
	r := sampleReport()
	Finalize(r)
	r.Analysis.AiAnalysis = &AiAnalysis{
		Evidence:       []string{"E1", "E2"},
		EvidenceLedger: &Ledger{Items: []LedgerItem{{ID: "E1", Source: "s", Finding: "f"}}},
	}
	violations := Validate(r)
	require.Len(t, violations, 1)
	assert.Equal(t, "evidence-ids-exist-in-ledger", violations[0].Invariant)
}

func TestRedactSensitiveEnv(t *testing.T) {
	p := &ProcessInfo{
		EnvironmentVariables: map[string]string{
			"DATABASE_CONNECTION_STRING": "Server=x;Password=y",
			"STRIPE_SECRET_KEY":          "sk_live_abc",
			"JWT_SIGNING_SECRET":         "abc",
			"PATH":                       "/usr/bin",
		},
		EnvOrder: []string{"DATABASE_CONNECTION_STRING", "STRIPE_SECRET_KEY", "JWT_SIGNING_SECRET", "PATH"},
	}
	RedactSensitiveEnv(p)
	assert.True(t, p.SensitiveDataFiltered)
	assert.Equal(t, "DATABASE_CONNECTION_STRING=<redacted>", p.EnvironmentVariables["DATABASE_CONNECTION_STRING"])
	assert.Equal(t, "STRIPE_SECRET_KEY=<redacted>", p.EnvironmentVariables["STRIPE_SECRET_KEY"])
	assert.Equal(t, "JWT_SIGNING_SECRET=<redacted>", p.EnvironmentVariables["JWT_SIGNING_SECRET"])
	assert.Equal(t, "/usr/bin", p.EnvironmentVariables["PATH"])
}

func TestRedactSensitiveEnv_NoSensitiveKeys(t *testing.T) {
	p := &ProcessInfo{
		EnvironmentVariables: map[string]string{"PATH": "/usr/bin"},
		EnvOrder:             []string{"PATH"},
	}
	RedactSensitiveEnv(p)
	assert.False(t, p.SensitiveDataFiltered)
}

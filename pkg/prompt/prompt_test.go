package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpscope/dumpscope/pkg/evidence"
	"github.com/dumpscope/dumpscope/pkg/hypothesis"
	"github.com/dumpscope/dumpscope/pkg/report"
)

func TestCoerceAdditionalFindings_Tolerance(t *testing.T) {
	raw := json.RawMessage(`["  finding one  ", "", "   ", null, 42, 3.5, true, {"k":"v"}, ["a","b"]]`)
	got := CoerceAdditionalFindings(raw)
	assert.Equal(t, []string{
		"finding one",
		"42",
		"3.5",
		"true",
		`{"k":"v"}`,
		`["a","b"]`,
	}, got)
}

func TestCoerceAdditionalFindings_NonArray(t *testing.T) {
	assert.Equal(t, []string{"solo"}, CoerceAdditionalFindings(json.RawMessage(`"solo"`)))
	assert.Nil(t, CoerceAdditionalFindings(nil))
	assert.Nil(t, CoerceAdditionalFindings(json.RawMessage(`null`)))
}

func TestParseCompletion(t *testing.T) {
	c, err := ParseCompletion(json.RawMessage(`{"rootCause":"NRE in Foo.Bar","confidence":"high","reasoning":"because","evidence":["E1"]}`))
	require.NoError(t, err)
	assert.Equal(t, "NRE in Foo.Bar", c.RootCause)
	assert.Equal(t, report.ConfidenceHigh, c.Confidence)

	_, err = ParseCompletion(json.RawMessage(`{"confidence":"high"}`))
	assert.Error(t, err)
}

func TestParseFinalSynthesisText_FencedAndProse(t *testing.T) {
	text := "Here is my conclusion:\n```json\n{\"rootCause\":\"deadlock on sync root\",\"confidence\":\"medium\",\"reasoning\":\"cycle in wait graph\"}\n```\ndone."
	c, err := ParseFinalSynthesisText(text)
	require.NoError(t, err)
	assert.Equal(t, "deadlock on sync root", c.RootCause)
	assert.Equal(t, report.ConfidenceMedium, c.Confidence)

	_, err = ParseFinalSynthesisText("no json here")
	assert.Error(t, err)
}

func TestParseFinalSynthesisText_NestedBraces(t *testing.T) {
	text := `{"rootCause":"brace {in} string","confidence":"low","reasoning":"r"}`
	c, err := ParseFinalSynthesisText(text)
	require.NoError(t, err)
	assert.Equal(t, "brace {in} string", c.RootCause)
}

func TestLoadBearingLiterals(t *testing.T) {
	assert.Equal(t, "Checkpoint synthesis unavailable", CheckpointUnavailableText)
	assert.True(t, strings.HasPrefix(CheckpointCarryForward(`{"facts":[]}`), "Checkpoint JSON"))

	ledger := evidence.New(0)
	ledger.AddOrUpdate([]evidence.Item{{Source: "!threads", Finding: "42 threads"}})
	fallback := FallbackCheckpoint(ledger)
	assert.True(t, strings.HasPrefix(fallback, "Checkpoint synthesis unavailable"))
	assert.Contains(t, fallback, "Evidence snapshot")
	assert.Contains(t, fallback, "42 threads")

	state := StableStateSnapshot(ledger, hypothesis.New(ledger))
	assert.True(t, strings.HasPrefix(state, "Stable state JSON (evidence ledger + hypotheses):"))
	assert.Contains(t, state, `"E1"`)
}

func TestBuildBaselineSystemPrompt_MandatesAllPaths(t *testing.T) {
	r := &report.Report{
		Metadata: report.Metadata{DebuggerType: "LLDB", SchemaVersion: 3},
		Analysis: report.Analysis{Summary: report.Summary{CrashType: "SIGSEGV"}},
	}
	p := BuildBaselineSystemPrompt(r)
	for _, path := range BaselinePaths {
		assert.Contains(t, p, path)
	}
	assert.Contains(t, p, "limit=8")
}

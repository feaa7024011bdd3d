package hypothesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumpscope/dumpscope/pkg/evidence"
	"github.com/dumpscope/dumpscope/pkg/report"
)

func ledgerWith(ids ...string) *evidence.Ledger {
	l := evidence.New(0)
	for _, id := range ids {
		l.AddOrUpdate([]evidence.Item{{Source: id, Finding: id}})
	}
	return l
}

func TestRegister_Basic(t *testing.T) {
	tr := New(ledgerWith("E1"))
	res := tr.Register([]Hypothesis{{Text: "deadlock between thread 1 and 2", SupportsEvidenceIDs: []string{"E1"}}})
	require.Len(t, res.AddedIDs, 1)
	h, ok := tr.Get(res.AddedIDs[0])
	require.True(t, ok)
	assert.Equal(t, report.HypothesisUnknown, h.Confidence)
}

func TestRegister_DedupeByNormalizedText(t *testing.T) {
	tr := New(evidence.New(0))
	r1 := tr.Register([]Hypothesis{{Text: "Deadlock between thread 1 and 2"}})
	r2 := tr.Register([]Hypothesis{{ID: "HX", Text: "deadlock   between thread 1 and 2"}})
	assert.Equal(t, r1.AddedIDs, r2.IgnoredDuplicateIDs)
	assert.Empty(t, r2.AddedIDs)
}

func TestRegister_UnknownEvidenceFiltered(t *testing.T) {
	tr := New(ledgerWith("E1"))
	res := tr.Register([]Hypothesis{{Text: "LOH pressure", SupportsEvidenceIDs: []string{"E1", "E99"}}})
	assert.Equal(t, []string{"E99"}, res.UnknownEvidenceIDs)
	h, _ := tr.Get(res.AddedIDs[0])
	assert.Equal(t, []string{"E1"}, h.SupportsEvidenceIDs)
}

func TestUpdate_ConfidenceAndNotes(t *testing.T) {
	tr := New(ledgerWith("E1"))
	res := tr.Register([]Hypothesis{{Text: "LOH pressure"}})
	id := res.AddedIDs[0]

	ur := tr.Update([]Update{{ID: id, Confidence: report.HypothesisHigh, Notes: "confirmed by heap stats"}})
	assert.Equal(t, []string{id}, ur.UpdatedIDs)
	h, _ := tr.Get(id)
	assert.Equal(t, report.HypothesisHigh, h.Confidence)
	assert.Equal(t, "confirmed by heap stats", h.Notes)
}

func TestToReport(t *testing.T) {
	tr := New(evidence.New(0))
	tr.Register([]Hypothesis{{Text: "deadlock"}})
	reps := tr.ToReport()
	require.Len(t, reps, 1)
	assert.Equal(t, "deadlock", reps[0].Hypothesis)
}

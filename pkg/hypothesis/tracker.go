// Package hypothesis implements the per-analysis hypothesis tracker
//: candidate root-cause hypotheses with evidence links,
// deduplicated by normalized hypothesis text, validated against an
// evidence.Ledger.
package hypothesis

import (
	"strconv"
	"strings"

	"github.com/dumpscope/dumpscope/pkg/evidence"
	"github.com/dumpscope/dumpscope/pkg/report"
)

// Hypothesis is one tracked candidate, mirroring report.Hypothesis but
// keyed for dedupe/lookup before it is projected to the report shape.
type Hypothesis struct {
	ID                     string
	Text                   string
	Confidence             report.HypothesisConfidence
	SupportsEvidenceIDs    []string
	ContradictsEvidenceIDs []string
	Unknowns               []string
	TestsToRun             []string
	Notes                  string
}

// RegisterResult reports what Register did with a batch of hypotheses.
type RegisterResult struct {
	AddedIDs            []string
	IgnoredDuplicateIDs []string
	IgnoredDuplicates   int
	UnknownEvidenceIDs  []string
}

// UpdateResult reports what Update did with a batch of updates.
type UpdateResult struct {
	UpdatedIDs         []string
	UnknownEvidenceIDs []string
}

// Update is one confidence/notes/evidence-link change to an existing
// hypothesis. Updates touch confidence, notes, and evidence links only;
// ids are never renumbered.
type Update struct {
	ID                     string
	Confidence             report.HypothesisConfidence
	SupportsEvidenceIDs    []string
	ContradictsEvidenceIDs []string
	Unknowns               []string
	TestsToRun             []string
	Notes                  string
}

// Tracker is the per-analysis hypothesis set. Not usable as a
// zero value; construct with New.
type Tracker struct {
	ledger *evidence.Ledger
	seq    int
	items  []Hypothesis
	byID   map[string]int
	byText map[string]string
}

// New creates an empty Tracker backed by ledger for evidence-id validation.
func New(ledger *evidence.Ledger) *Tracker {
	return &Tracker{
		ledger: ledger,
		byID:   make(map[string]int),
		byText: make(map[string]string),
	}
}

func normalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func (t *Tracker) nextID(supplied string) string {
	if supplied != "" {
		return supplied
	}
	t.seq++
	return "H" + strconv.Itoa(t.seq)
}

// filterKnownEvidence splits ids into (known, unknown) against t.ledger.
func (t *Tracker) filterKnownEvidence(ids []string) (known, unknown []string) {
	if t.ledger == nil {
		return ids, nil
	}
	for _, id := range ids {
		if t.ledger.Has(id) {
			known = append(known, id)
		} else {
			unknown = append(unknown, id)
		}
	}
	return known, unknown
}

// Register adds a batch of hypotheses. Duplicate text (supplied
// with a new id) reports the existing id under IgnoredDuplicateIDs instead
// of adding. Unknown evidence ids referenced by Supports/Contradicts are
// filtered out of the stored hypothesis and reported separately.
func (t *Tracker) Register(hyps []Hypothesis) RegisterResult {
	var res RegisterResult
	for _, h := range hyps {
		key := normalizeText(h.Text)
		if existingID, ok := t.byText[key]; ok {
			res.IgnoredDuplicates++
			res.IgnoredDuplicateIDs = append(res.IgnoredDuplicateIDs, existingID)
			continue
		}

		supports, unknownSup := t.filterKnownEvidence(h.SupportsEvidenceIDs)
		contradicts, unknownCon := t.filterKnownEvidence(h.ContradictsEvidenceIDs)
		res.UnknownEvidenceIDs = append(res.UnknownEvidenceIDs, unknownSup...)
		res.UnknownEvidenceIDs = append(res.UnknownEvidenceIDs, unknownCon...)

		id := t.nextID(h.ID)
		stored := Hypothesis{
			ID:                     id,
			Text:                   h.Text,
			Confidence:             h.Confidence,
			SupportsEvidenceIDs:    supports,
			ContradictsEvidenceIDs: contradicts,
			Unknowns:               h.Unknowns,
			TestsToRun:             h.TestsToRun,
			Notes:                  h.Notes,
		}
		if stored.Confidence == "" {
			stored.Confidence = report.HypothesisUnknown
		}
		t.items = append(t.items, stored)
		t.byID[id] = len(t.items) - 1
		t.byText[key] = id
		res.AddedIDs = append(res.AddedIDs, id)
	}
	return res
}

// Update applies confidence/notes/evidence-link changes to existing
// hypotheses by id; unknown ids (hypothesis or evidence) are skipped/filtered
// rather than erroring.
func (t *Tracker) Update(updates []Update) UpdateResult {
	var res UpdateResult
	for _, u := range updates {
		idx, ok := t.byID[u.ID]
		if !ok {
			continue
		}
		existing := &t.items[idx]
		if u.Confidence != "" {
			existing.Confidence = u.Confidence
		}
		if u.Notes != "" {
			existing.Notes = u.Notes
		}
		if len(u.SupportsEvidenceIDs) > 0 {
			known, unknown := t.filterKnownEvidence(u.SupportsEvidenceIDs)
			existing.SupportsEvidenceIDs = known
			res.UnknownEvidenceIDs = append(res.UnknownEvidenceIDs, unknown...)
		}
		if len(u.ContradictsEvidenceIDs) > 0 {
			known, unknown := t.filterKnownEvidence(u.ContradictsEvidenceIDs)
			existing.ContradictsEvidenceIDs = known
			res.UnknownEvidenceIDs = append(res.UnknownEvidenceIDs, unknown...)
		}
		if len(u.Unknowns) > 0 {
			existing.Unknowns = u.Unknowns
		}
		if len(u.TestsToRun) > 0 {
			existing.TestsToRun = u.TestsToRun
		}
		res.UpdatedIDs = append(res.UpdatedIDs, existing.ID)
	}
	return res
}

// Items returns a snapshot of the tracker's current hypotheses in
// registration order.
func (t *Tracker) Items() []Hypothesis {
	out := make([]Hypothesis, len(t.items))
	copy(out, t.items)
	return out
}

// Get returns one hypothesis by id.
func (t *Tracker) Get(id string) (Hypothesis, bool) {
	idx, ok := t.byID[id]
	if !ok {
		return Hypothesis{}, false
	}
	return t.items[idx], true
}

// ToReport projects the tracker's current state to []report.Hypothesis for
// attachment to AiAnalysis.Hypotheses.
func (t *Tracker) ToReport() []report.Hypothesis {
	out := make([]report.Hypothesis, 0, len(t.items))
	for _, h := range t.items {
		out = append(out, report.Hypothesis{
			ID:                     h.ID,
			Hypothesis:             h.Text,
			Confidence:             h.Confidence,
			SupportsEvidenceIDs:    h.SupportsEvidenceIDs,
			ContradictsEvidenceIDs: h.ContradictsEvidenceIDs,
			Unknowns:               h.Unknowns,
			TestsToRun:             h.TestsToRun,
			Notes:                  h.Notes,
		})
	}
	return out
}

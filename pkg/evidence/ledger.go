// Package evidence implements the AI evidence ledger: an
// append-only, deduplicated list of (source, finding) pairs the AI
// orchestrator accumulates across a single analysis run. Not shared across
// runs — one Ledger lives for the lifetime of one orchestrator invocation.
package evidence

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dumpscope/dumpscope/pkg/report"
)

// Item is one ledger entry: caller-supplied or orchestrator-assigned id,
// plus the (source, finding) pair that is the dedupe key's basis.
type Item struct {
	ID      string
	Source  string
	Finding string
}

// AddResult reports what AddOrUpdate did with a batch of items.
type AddResult struct {
	AddedIDs             []string
	UpdatedIDs           []string
	IgnoredDuplicates    int
	IgnoredDuplicateIDs  []string
	InvalidItems         []string
}

// Ledger is the append-only, deduplicated evidence list. The
// zero value is not usable; construct with New.
type Ledger struct {
	maxItems int
	seq      int
	items    []Item          // insertion order, for FIFO eviction
	byID     map[string]int  // normalized id -> index into items
	byKey    map[string]string // dedupe key -> id
}

// New creates an empty Ledger. maxItems <= 0 means unlimited.
func New(maxItems int) *Ledger {
	return &Ledger{
		maxItems: maxItems,
		byID:     make(map[string]int),
		byKey:    make(map[string]string),
	}
}

// normalizeID compares ids case-insensitively with leading zeros ignored,
// so "E10" == "e010".
func normalizeID(id string) string {
	id = strings.TrimSpace(id)
	lower := strings.ToLower(id)
	if !strings.HasPrefix(lower, "e") {
		return lower
	}
	digits := strings.TrimLeft(lower[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return "e" + digits
}

// dedupeKey is normalize_whitespace(source) joined with lowercase(finding).
func dedupeKey(source, finding string) string {
	normSource := strings.Join(strings.Fields(source), " ")
	return normSource + "\x00" + strings.ToLower(finding)
}

func (l *Ledger) nextID() string {
	l.seq++
	return fmt.Sprintf("E%d", l.seq)
}

// AddOrUpdate appends or updates a batch of evidence items.
// An externally supplied id does not bypass dedupe: if the (source,
// finding) pair already exists, the existing id is returned under
// IgnoredDuplicateIDs and the supplied id is discarded. A supplied id that
// matches an existing item's id (by normalized comparison) updates that
// item's content in place, which may change its dedupe key and free the old
// one.
func (l *Ledger) AddOrUpdate(items []Item) AddResult {
	var res AddResult
	for _, item := range items {
		if item.Source == "" && item.Finding == "" {
			res.InvalidItems = append(res.InvalidItems, item.ID)
			continue
		}

		if item.ID != "" {
			if idx, ok := l.byID[normalizeID(item.ID)]; ok {
				existing := &l.items[idx]
				oldKey := dedupeKey(existing.Source, existing.Finding)
				delete(l.byKey, oldKey)
				existing.Source = item.Source
				existing.Finding = item.Finding
				newKey := dedupeKey(existing.Source, existing.Finding)
				l.byKey[newKey] = existing.ID
				res.UpdatedIDs = append(res.UpdatedIDs, existing.ID)
				continue
			}
		}

		key := dedupeKey(item.Source, item.Finding)
		if existingID, ok := l.byKey[key]; ok {
			res.IgnoredDuplicates++
			res.IgnoredDuplicateIDs = append(res.IgnoredDuplicateIDs, existingID)
			continue
		}

		id := l.nextID()
		newItem := Item{ID: id, Source: item.Source, Finding: item.Finding}
		l.items = append(l.items, newItem)
		l.byID[normalizeID(id)] = len(l.items) - 1
		l.byKey[key] = id
		res.AddedIDs = append(res.AddedIDs, id)

		l.evictIfOverCapacity()
	}
	return res
}

// evictIfOverCapacity drops the oldest item(s) by insertion order once
// maxItems is exceeded.
func (l *Ledger) evictIfOverCapacity() {
	if l.maxItems <= 0 {
		return
	}
	for len(l.items) > l.maxItems {
		evicted := l.items[0]
		l.items = l.items[1:]
		delete(l.byKey, dedupeKey(evicted.Source, evicted.Finding))
		l.reindex()
	}
}

// reindex rebuilds byID from scratch after the item slice shifts (FIFO
// eviction slices off the front, invalidating every stored index).
func (l *Ledger) reindex() {
	l.byID = make(map[string]int, len(l.items))
	for i, item := range l.items {
		l.byID[normalizeID(item.ID)] = i
	}
}

// Items returns a snapshot of the ledger's current items in insertion order.
func (l *Ledger) Items() []Item {
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

// Has reports whether id (normalized) exists in the ledger.
func (l *Ledger) Has(id string) bool {
	_, ok := l.byID[normalizeID(id)]
	return ok
}

// ToReport converts the ledger's current state to the report.Ledger shape
// for attachment to AiAnalysis.EvidenceLedger.
func (l *Ledger) ToReport() *report.Ledger {
	items := make([]report.LedgerItem, 0, len(l.items))
	for _, item := range l.items {
		items = append(items, report.LedgerItem{ID: item.ID, Source: item.Source, Finding: item.Finding})
	}
	return &report.Ledger{Items: items}
}

// ParseSeq extracts the numeric sequence from an "E<seq>" id; used by
// callers that need to seed a ledger's sequence counter from persisted ids.
func ParseSeq(id string) (int, bool) {
	norm := normalizeID(id)
	if !strings.HasPrefix(norm, "e") {
		return 0, false
	}
	n, err := strconv.Atoi(norm[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

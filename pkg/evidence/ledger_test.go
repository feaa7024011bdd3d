package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOrUpdate_Basic(t *testing.T) {
	l := New(0)
	res := l.AddOrUpdate([]Item{{Source: "!threads", Finding: "42 threads total"}})
	require.Len(t, res.AddedIDs, 1)
	assert.Equal(t, "E1", res.AddedIDs[0])
	assert.True(t, l.Has("E1"))
	assert.True(t, l.Has("e001"))
}

func TestAddOrUpdate_Dedupe(t *testing.T) {
	l := New(0)
	l.AddOrUpdate([]Item{{Source: "!threads", Finding: "42 threads total"}})
	res := l.AddOrUpdate([]Item{{Source: "  !threads  ", Finding: "42 THREADS total"}})
	assert.Empty(t, res.AddedIDs)
	assert.Equal(t, 1, res.IgnoredDuplicates)
	assert.Equal(t, []string{"E1"}, res.IgnoredDuplicateIDs)
}

func TestAddOrUpdate_SuppliedIDDoesNotBypassDedupe(t *testing.T) {
	l := New(0)
	l.AddOrUpdate([]Item{{Source: "!threads", Finding: "42 threads total"}})
	res := l.AddOrUpdate([]Item{{ID: "E99", Source: "!threads", Finding: "42 threads total"}})
	assert.Empty(t, res.AddedIDs)
	assert.Equal(t, []string{"E1"}, res.IgnoredDuplicateIDs)
	assert.False(t, l.Has("E99"))
}

func TestAddOrUpdate_UpdateChangesDedupeKey(t *testing.T) {
	l := New(0)
	l.AddOrUpdate([]Item{{Source: "!threads", Finding: "42 threads total"}})
	res := l.AddOrUpdate([]Item{{ID: "E1", Source: "!threads", Finding: "updated finding"}})
	assert.Equal(t, []string{"E1"}, res.UpdatedIDs)

	// Old key is now free — re-adding it creates a fresh item, not a dup.
	res2 := l.AddOrUpdate([]Item{{Source: "!threads", Finding: "42 threads total"}})
	assert.Equal(t, []string{"E2"}, res2.AddedIDs)
}

func TestAddOrUpdate_IdempotentRepeat(t *testing.T) {
	l := New(0)
	items := []Item{{Source: "!threads", Finding: "42 threads total"}}
	l.AddOrUpdate(items)
	before := l.Items()
	l.AddOrUpdate(items)
	after := l.Items()
	assert.Equal(t, before, after)
}

func TestAddOrUpdate_FIFOEviction(t *testing.T) {
	l := New(2)
	l.AddOrUpdate([]Item{{Source: "a", Finding: "1"}})
	l.AddOrUpdate([]Item{{Source: "b", Finding: "2"}})
	l.AddOrUpdate([]Item{{Source: "c", Finding: "3"}})

	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Source)
	assert.Equal(t, "c", items[1].Source)
	assert.False(t, l.Has("E1"))
}

func TestAddOrUpdate_InvalidItem(t *testing.T) {
	l := New(0)
	res := l.AddOrUpdate([]Item{{ID: "Ex"}})
	assert.Len(t, res.InvalidItems, 1)
}

func TestToReport(t *testing.T) {
	l := New(0)
	l.AddOrUpdate([]Item{{Source: "!threads", Finding: "42 threads total"}})
	rep := l.ToReport()
	require.Len(t, rep.Items, 1)
	assert.Equal(t, "E1", rep.Items[0].ID)
}

package heapanalysis

import (
	"sort"

	"github.com/dumpscope/dumpscope/pkg/inspector"
)

// internThreshold bounds the "short" bucket used to derive a suggestion from
// a string's value; any longer value falls in the "long" (cache) bucket.
// suggestString does not consult cacheThreshold.
const (
	internThreshold = 64
	cacheThreshold  = 1024
)

// RawString is one raw string instance as enumerated off the heap, before
// aggregation by value.
type RawString struct {
	Value string
	Bytes uint64
}

// suggestString derives the get_string_analysis suggestion for one distinct
// string value: empty values point at a shared empty-string
// sentinel, boolean text at a typed constant, short strings at interning,
// long strings at a cache.
func suggestString(value string) string {
	switch {
	case value == "":
		return "use empty-string sentinel"
	case value == "true" || value == "false" || value == "True" || value == "False":
		return "use typed constant"
	case len(value) <= internThreshold:
		return "intern"
	default:
		return "cache"
	}
}

// AggregateStringAnalysis groups raw string instances by value and ranks
// them by total bytes / occurrence count.
func AggregateStringAnalysis(raw []RawString, topN int) *inspector.StringStats {
	type agg struct {
		count int
		bytes uint64
	}
	byValue := make(map[string]*agg)
	var order []string
	var total uint64

	for _, r := range raw {
		a, ok := byValue[r.Value]
		if !ok {
			a = &agg{}
			byValue[r.Value] = a
			order = append(order, r.Value)
		}
		a.count++
		a.bytes += r.Bytes
		total += r.Bytes
	}

	instances := make([]inspector.StringInstance, 0, len(order))
	for _, v := range order {
		a := byValue[v]
		instances = append(instances, inspector.StringInstance{
			Value:      v,
			Count:      a.count,
			TotalBytes: a.bytes,
			Suggestion: suggestString(v),
		})
	}

	bySize := append([]inspector.StringInstance(nil), instances...)
	sort.Slice(bySize, func(i, j int) bool { return bySize[i].TotalBytes > bySize[j].TotalBytes })
	byCount := append([]inspector.StringInstance(nil), instances...)
	sort.Slice(byCount, func(i, j int) bool { return byCount[i].Count > byCount[j].Count })

	if topN > 0 {
		if len(bySize) > topN {
			bySize = bySize[:topN]
		}
		if len(byCount) > topN {
			byCount = byCount[:topN]
		}
	}

	return &inspector.StringStats{
		TopBySize:  bySize,
		TopByCount: byCount,
		TotalBytes: total,
	}
}

// truncateValue caps a string's displayed length.
func truncateValue(value string, maxLen int) (string, bool) {
	if maxLen <= 0 || len(value) <= maxLen {
		return value, false
	}
	return value[:maxLen], true
}

package heapanalysis

import (
	"github.com/dumpscope/dumpscope/pkg/inspector"
	"github.com/dumpscope/dumpscope/pkg/report"
)

// Leak severity buckets by the dominant type's share of the total heap.
// A single type owning half the heap is the classic retained-collection
// signature; under a tenth is normal steady-state churn.
const (
	leakHighShare   = 0.50
	leakMediumShare = 0.30
	leakLowShare    = 0.10
)

// topConsumerRows bounds how many rows are copied into the report's leak
// block; the full ranking stays available through the inspect tools.
const topConsumerRows = 10

// BuildLeakAnalysis derives the report's leak block from the heap summary
// and the by-size consumer ranking. Severity is bucketed by the largest
// type's share of totalHeapBytes; Detected is false only for the None
// bucket.
func BuildLeakAnalysis(gc *inspector.GCSummary, consumers *inspector.TopConsumers) *report.LeakAnalysis {
	if gc == nil || consumers == nil || len(consumers.BySize) == 0 || gc.TotalHeapSize == 0 {
		return nil
	}

	dominant := consumers.BySize[0]
	share := float64(dominant.TotalSize) / float64(gc.TotalHeapSize)

	severity := report.LeakNone
	switch {
	case share >= leakHighShare:
		severity = report.LeakHigh
	case share >= leakMediumShare:
		severity = report.LeakMedium
	case share >= leakLowShare:
		severity = report.LeakLow
	}

	top := consumers.BySize
	if len(top) > topConsumerRows {
		top = top[:topConsumerRows]
	}
	rows := make([]report.TopConsumerEntry, 0, len(top))
	for _, c := range top {
		rows = append(rows, report.TopConsumerEntry{
			TypeName:  c.TypeName,
			Count:     c.Count,
			TotalSize: c.TotalSize,
		})
	}

	return &report.LeakAnalysis{
		Detected:       severity != report.LeakNone,
		Severity:       severity,
		TotalHeapBytes: gc.TotalHeapSize,
		TopConsumers:   rows,
	}
}

// Package heapanalysis implements the ClrMd-backed heap/string/async/thread
// algorithms consumed through pkg/inspector.Inspector: dedup
// rules for object owners, leak-severity buckets, and the parallel
// segment-partitioned heap walk used when the runtime reports Server GC.
package heapanalysis

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dumpscope/dumpscope/pkg/inspector"
)

// SegmentObject is one live object as enumerated directly off a GC segment,
// the raw unit the heap walk operates on before aggregation into
// inspector.TopConsumers.
type SegmentObject struct {
	Address     uint64
	MethodTable uint64
	TypeName    string
	Size        uint64
	Owners      []inspector.Owner
}

// HeapSegment is one GC heap segment's live object set.
type HeapSegment struct {
	ID      int
	Objects []SegmentObject
}

// HeapSource is the raw ClrMd segment enumeration this package aggregates.
// It is narrower than inspector.Inspector — just enough surface to walk
// segments — so the parallel/sequential walk stays testable without a full
// Inspector fake.
type HeapSource interface {
	Segments(ctx context.Context) ([]HeapSegment, error)
	IsServerGC() bool
}

// MaxInstancesPerType bounds how many MemoryObjectInstance entries are
// attached per type.
const MaxInstancesPerType = 5

type typeAccumulator struct {
	typeName  string
	count     int
	totalSize uint64
	instances []inspector.MemoryObjectInstance
}

// ComputeTopMemoryConsumers walks every heap segment — in parallel, one
// goroutine per segment, when src.IsServerGC() reports true and there is
// more than one segment, else sequentially — and aggregates per-type counts/sizes. usedParallel and
// segmentsProcessed are always reported so callers can tell which path ran.
func ComputeTopMemoryConsumers(ctx context.Context, src HeapSource, topN int, timeout time.Duration) (*inspector.TopConsumers, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	segments, err := src.Segments(ctx)
	if err != nil {
		return nil, err
	}

	perSegment := make([][]SegmentObject, len(segments))
	useParallel := src.IsServerGC() && len(segments) > 1

	if useParallel {
		g, gctx := errgroup.WithContext(ctx)
		for i := range segments {
			i := i
			g.Go(func() error {
				objs, segErr := flattenSegment(gctx, segments[i])
				if segErr != nil {
					return segErr
				}
				perSegment[i] = objs
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range segments {
			objs, segErr := flattenSegment(ctx, segments[i])
			if segErr != nil {
				return nil, segErr
			}
			perSegment[i] = objs
		}
	}

	acc := make(map[string]*typeAccumulator)
	var order []string
	for _, objs := range perSegment {
		for _, obj := range objs {
			a, ok := acc[obj.TypeName]
			if !ok {
				a = &typeAccumulator{typeName: obj.TypeName}
				acc[obj.TypeName] = a
				order = append(order, obj.TypeName)
			}
			a.count++
			a.totalSize += obj.Size
		}
	}

	// Second pass: attach instances only for types under the cap, deduping
	// owners by MethodTable address (falling back to normalized type name).
	for _, objs := range perSegment {
		for _, obj := range objs {
			a := acc[obj.TypeName]
			if a.count > MaxInstancesPerType || len(a.instances) >= MaxInstancesPerType {
				continue
			}
			a.instances = append(a.instances, inspector.MemoryObjectInstance{
				Address: obj.Address,
				Size:    obj.Size,
				Owners:  dedupeOwners(obj.Owners),
			})
		}
	}

	consumers := make([]inspector.TypeConsumer, 0, len(order))
	for _, name := range order {
		a := acc[name]
		consumers = append(consumers, inspector.TypeConsumer{
			TypeName:  a.typeName,
			Count:     a.count,
			TotalSize: a.totalSize,
			Instances: a.instances,
		})
	}

	bySize := append([]inspector.TypeConsumer(nil), consumers...)
	sort.Slice(bySize, func(i, j int) bool { return bySize[i].TotalSize > bySize[j].TotalSize })
	byCount := append([]inspector.TypeConsumer(nil), consumers...)
	sort.Slice(byCount, func(i, j int) bool { return byCount[i].Count > byCount[j].Count })

	if topN > 0 {
		bySize = truncate(bySize, topN)
		byCount = truncate(byCount, topN)
	}

	return &inspector.TopConsumers{
		BySize:            bySize,
		ByCount:           byCount,
		UsedParallel:      useParallel,
		SegmentsProcessed: len(segments),
	}, nil
}

func flattenSegment(ctx context.Context, seg HeapSegment) ([]SegmentObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return seg.Objects, nil
}

func truncate(c []inspector.TypeConsumer, n int) []inspector.TypeConsumer {
	if len(c) <= n {
		return c
	}
	return c[:n]
}

// dedupeOwners dedupes static-root owners by MethodTable address, falling
// back to normalized type name when the address is unset. Field-kind owners
// are distinct per holder and pass through untouched.
func dedupeOwners(owners []inspector.Owner) []inspector.Owner {
	seen := make(map[string]bool, len(owners))
	out := make([]inspector.Owner, 0, len(owners))
	for _, o := range owners {
		if o.Kind != "static" {
			out = append(out, o)
			continue
		}
		key := normalizeTypeName(o.TypeName)
		if o.MethodTable != 0 {
			key = "mt:" + uint64ToHex(o.MethodTable)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, o)
	}
	return out
}

func normalizeTypeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func uint64ToHex(v uint64) string {
	const hexDigits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Package syncanalysis builds the synchronization-primitive analysis block
//: monitor locks, SemaphoreSlim
// instances, reader/writer locks, reset events, wait handles, a wait graph
// over threads and resources, deadlock-cycle detection via Tarjan SCC, and
// contention-hotspot severity buckets.
package syncanalysis

import "github.com/dumpscope/dumpscope/pkg/report"

// RawSemaphoreSlim is a SemaphoreSlim instance as ClrMd would decode it,
// before the derived IsAsyncLock/IsContended flags are computed.
type RawSemaphoreSlim struct {
	Address      string
	CurrentCount int
	MaxCount     int
	SyncWaiters  int
	AsyncWaiters int
}

// BuildSemaphoreSlim derives IsAsyncLock/IsContended from a raw instance:
// isAsyncLock = maxCount == 1, isContended = currentCount == 0
// && (syncWaiters>0 || asyncWaiters>0).
func BuildSemaphoreSlim(raw RawSemaphoreSlim) report.SemaphoreSlimInfo {
	return report.SemaphoreSlimInfo{
		Address:      raw.Address,
		CurrentCount: raw.CurrentCount,
		MaxCount:     raw.MaxCount,
		SyncWaiters:  raw.SyncWaiters,
		AsyncWaiters: raw.AsyncWaiters,
		IsAsyncLock:  raw.MaxCount == 1,
		IsContended:  raw.CurrentCount == 0 && (raw.SyncWaiters > 0 || raw.AsyncWaiters > 0),
	}
}

// Edge kinds used in the wait graph. Cycles stay representable as edge
// lists rather than pointer cycles.
const (
	EdgeWaits   = "waits"
	EdgeOwnedBy = "owned by"
)

// Node kinds used in the wait graph.
const (
	NodeThread   = "thread"
	NodeResource = "resource"
)

// WaitEdge is one (threadID, resourceID, ownerThreadID) relationship feeding
// the wait graph: threadID is blocked waiting on resourceID, which is
// currently held by ownerThreadID (empty if unowned/unknown).
type WaitEdge struct {
	ThreadID      string
	ResourceID    string
	OwnerThreadID string
}

// BuildWaitGraph assembles the wait graph's node and edge lists from the raw
// wait relationships: nodes = threads ∪ resources, edges =
// {thread → resource "waits", resource → owner-thread "owned by"}.
func BuildWaitGraph(edges []WaitEdge) report.WaitGraph {
	nodeSeen := make(map[string]bool)
	var nodes []report.WaitGraphNode
	addNode := func(id, kind string) {
		if id == "" || nodeSeen[id+"\x00"+kind] {
			return
		}
		nodeSeen[id+"\x00"+kind] = true
		nodes = append(nodes, report.WaitGraphNode{ID: id, Kind: kind})
	}

	var graphEdges []report.WaitGraphEdge
	for _, e := range edges {
		addNode(e.ThreadID, NodeThread)
		addNode(e.ResourceID, NodeResource)
		graphEdges = append(graphEdges, report.WaitGraphEdge{From: e.ThreadID, To: e.ResourceID, Kind: EdgeWaits})
		if e.OwnerThreadID != "" {
			addNode(e.OwnerThreadID, NodeThread)
			graphEdges = append(graphEdges, report.WaitGraphEdge{From: e.ResourceID, To: e.OwnerThreadID, Kind: EdgeOwnedBy})
		}
	}

	return report.WaitGraph{Nodes: nodes, Edges: graphEdges}
}

// tarjan finds strongly connected components with more than one node (or a
// self-loop) over the graph's id-only edge list; detection operates purely
// on node ids, never on pointers.
type tarjan struct {
	graph    map[string][]string
	index    map[string]int
	lowlink  map[string]int
	onStack  map[string]bool
	stack    []string
	counter  int
	sccs     [][]string
}

func newTarjan(nodes []report.WaitGraphNode, edges []report.WaitGraphEdge) *tarjan {
	g := make(map[string][]string)
	for _, n := range nodes {
		g[n.ID] = nil
	}
	for _, e := range edges {
		g[e.From] = append(g[e.From], e.To)
	}
	return &tarjan{
		graph:   g,
		index:   make(map[string]int),
		lowlink: make(map[string]int),
		onStack: make(map[string]bool),
	}
}

func (t *tarjan) run(nodes []report.WaitGraphNode) [][]string {
	for _, n := range nodes {
		if _, seen := t.index[n.ID]; !seen {
			t.strongConnect(n.ID)
		}
	}
	return t.sccs
}

func (t *tarjan) strongConnect(v string) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.graph[v] {
		if _, seen := t.index[w]; !seen {
			t.strongConnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var scc []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, scc)
	}
}

// DetectDeadlockCycles runs Tarjan SCC over the thread↔resource wait graph
// and returns every cycle (SCC of size > 1, or a self-loop) as an ordered
// list of node ids.
func DetectDeadlockCycles(wg report.WaitGraph) [][]string {
	tj := newTarjan(wg.Nodes, wg.Edges)
	sccs := tj.run(wg.Nodes)

	selfLoop := make(map[string]bool)
	for _, e := range wg.Edges {
		if e.From == e.To {
			selfLoop[e.From] = true
		}
	}

	var cycles [][]string
	for _, scc := range sccs {
		if len(scc) > 1 {
			cycles = append(cycles, scc)
			continue
		}
		if len(scc) == 1 && selfLoop[scc[0]] {
			cycles = append(cycles, scc)
		}
	}
	return cycles
}

// ContentionSeverity buckets a resource's waiter count into the severity
// scale.
func ContentionSeverity(waiters int) string {
	switch {
	case waiters >= 10:
		return "critical"
	case waiters >= 5:
		return "high"
	case waiters >= 2:
		return "medium"
	case waiters >= 1:
		return "low"
	default:
		return ""
	}
}

// BuildContentionHotspots counts "waits" edges per resource and emits a
// ContentionHotspot for every resource with at least one waiter, in the
// resources' first-seen order.
func BuildContentionHotspots(wg report.WaitGraph) []report.ContentionHotspot {
	counts := make(map[string]int)
	var order []string
	for _, e := range wg.Edges {
		if e.Kind != EdgeWaits {
			continue
		}
		if _, ok := counts[e.To]; !ok {
			order = append(order, e.To)
		}
		counts[e.To]++
	}
	hotspots := make([]report.ContentionHotspot, 0, len(order))
	for _, resourceID := range order {
		waiters := counts[resourceID]
		hotspots = append(hotspots, report.ContentionHotspot{
			ResourceID: resourceID,
			Waiters:    waiters,
			Severity:   ContentionSeverity(waiters),
		})
	}
	return hotspots
}

// Inputs bundles the raw synchronization-primitive data ClrMd decodes,
// before the derived wait graph / cycle / hotspot fields are computed.
type Inputs struct {
	MonitorLocks      []report.MonitorLock
	SemaphoreSlims    []RawSemaphoreSlim
	ReaderWriterLocks []report.ReaderWriterLockInfo
	ResetEvents       []report.ResetEventInfo
	WaitHandles       []report.WaitHandleInfo
	WaitEdges         []WaitEdge
	SkipSyncBlocks    bool
}

// Analyze assembles the full Synchronization block from raw inputs.
func Analyze(in Inputs) *report.Synchronization {
	semaphores := make([]report.SemaphoreSlimInfo, 0, len(in.SemaphoreSlims))
	for _, raw := range in.SemaphoreSlims {
		semaphores = append(semaphores, BuildSemaphoreSlim(raw))
	}

	wg := BuildWaitGraph(in.WaitEdges)
	cycles := DetectDeadlockCycles(wg)
	hotspots := BuildContentionHotspots(wg)

	return &report.Synchronization{
		MonitorLocks:            in.MonitorLocks,
		SemaphoreSlims:          semaphores,
		ReaderWriterLocks:       in.ReaderWriterLocks,
		ResetEvents:             in.ResetEvents,
		WaitHandles:             in.WaitHandles,
		WaitGraph:               wg,
		PotentialDeadlockCycles: cycles,
		ContentionHotspots:      hotspots,
		SkipSyncBlocks:          in.SkipSyncBlocks,
	}
}

// Package inspector defines the managed object inspector interface — a
// ClrMd-backed reader that decodes a managed runtime's in-memory objects
// from a dump. The actual memory decoding is an external
// collaborator; this package specifies the
// contract and the result types the rest of dumpscope builds on.
package inspector

import (
	"context"
	"time"
)

// Module describes one loaded native or managed module.
type Module struct {
	Name        string
	BaseAddress uint64
	HasSymbols  bool
	PDBGUID     string
}

// GenerationSizes holds per-generation GC heap byte sizes.
type GenerationSizes struct {
	Gen0, Gen1, Gen2, LOH, POH uint64
}

// GCSummary is the top-level GC heap summary.
type GCSummary struct {
	TotalHeapSize   uint64
	GenerationSizes GenerationSizes
	IsServerGC      bool
	HeapCount       int
}

// Owner is a field holder or static root that keeps a MemoryObjectInstance alive.
type Owner struct {
	Kind          string // "field" | "static"
	HolderAddress uint64
	MethodTable   uint64 // 0 if unknown
	TypeName      string
	FieldName     string
}

// MemoryObjectInstance is one attached example instance for a type whose
// count is at or below maxInstancesPerType.
type MemoryObjectInstance struct {
	Address uint64
	Size    uint64
	Owners  []Owner
}

// TypeConsumer is one row of a top-memory-consumer report, keyed by type.
type TypeConsumer struct {
	TypeName  string
	Count     int
	TotalSize uint64
	Instances []MemoryObjectInstance // populated only when Count <= maxInstancesPerType
}

// TopConsumers is the result of GetTopMemoryConsumers, with two independent
// rankings over the same underlying type population.
type TopConsumers struct {
	BySize           []TypeConsumer
	ByCount          []TypeConsumer
	UsedParallel     bool
	SegmentsProcessed int
}

// StringInstance is one row of the string-analysis report.
type StringInstance struct {
	Value      string
	Count      int
	TotalBytes uint64
	Suggestion string // "use empty-string sentinel" | "use typed constant" | "intern" | "cache"
}

// StringStats is the result of GetStringAnalysis.
type StringStats struct {
	TopBySize  []StringInstance
	TopByCount []StringInstance
	TotalBytes uint64
}

// TaskStatus enumerates the coarse status of a System.Threading.Tasks.Task.
type TaskStatus string

const (
	TaskRanToCompletion TaskStatus = "RanToCompletion"
	TaskFaulted         TaskStatus = "Faulted"
	TaskCanceled        TaskStatus = "Canceled"
	TaskPending         TaskStatus = "Pending"
)

// FaultedTaskInfo describes a task object found in a faulted or canceled state.
type FaultedTaskInfo struct {
	Address          uint64
	Status           TaskStatus
	ExceptionType    string
	ExceptionMessage string
}

// TimerInfo describes one live timer object found on the heap.
type TimerInfo struct {
	Address    uint64
	DueTimeMS  int64
	PeriodMS   int64
	Callback   string
}

// ThreadPoolSnapshot summarizes CLR thread-pool state.
type ThreadPoolSnapshot struct {
	WorkerThreads   int
	RetiredThreads  int
	QueuedWorkItems int
	MinThreads      int
	MaxThreads      int
}

// AsyncSnapshot is the result of GetAsyncAnalysis.
type AsyncSnapshot struct {
	HasDeadlock      bool
	Timers           []TimerInfo
	ThreadPool       *ThreadPoolSnapshot
	FaultedTasks     []FaultedTaskInfo
}

// StackParameter is one typed parameter of a managed stack frame.
type StackParameter struct {
	Name        string
	TypeName    string
	ValueString string
}

// StackLocal is one local variable of a managed stack frame, with its value
// read where ClrMd can resolve it.
type StackLocal struct {
	Name        string
	TypeName    string
	ValueString string
}

// ManagedStackFrame is one frame of a managed thread's call stack, enriched
// with parameters/locals when requested.
type ManagedStackFrame struct {
	Function   string
	Parameters []StackParameter
	Locals     []StackLocal
}

// ThreadStack is one thread's full managed call stack.
type ThreadStack struct {
	ThreadID string
	Frames   []ManagedStackFrame
}

// Stacks is the result of GetAllThreadStacks.
type Stacks struct {
	Threads []ThreadStack
}

// InspectedField is one field of an inspected object.
type InspectedField struct {
	Name      string
	TypeName  string
	Value     string
	IsNull    bool
	Reference uint64 // non-zero if the field is itself a reference type
}

// Inspection is the result of InspectObject — a shallow decoded view of one
// managed object, bounded by maxDepth/maxArrayElements/maxStringLength.
type Inspection struct {
	Address       uint64
	TypeName      string
	Fields        []InspectedField
	ArrayElements []string // populated for array/collection types, capped
	ArrayTruncated bool
	StringValue   string // populated for System.String, capped
	StringTruncated bool
	Error         string // set instead of the above when inspection failed
}

// Inspector is the consumed ClrMd-backed interface. All
// addresses are opaque 64-bit integers with no pointer semantics in the
// host process — implementations resolve them against the dump's own
// managed heap.
type Inspector interface {
	IsOpen() bool

	InspectObject(ctx context.Context, addr uint64, methodTable *uint64, maxDepth, maxArrayElements, maxStringLength int) (*Inspection, error)

	ListModules(ctx context.Context) ([]Module, error)
	GetGCSummary(ctx context.Context) (*GCSummary, error)
	GetTopMemoryConsumers(ctx context.Context, topN int, timeout time.Duration) (*TopConsumers, error)
	GetStringAnalysis(ctx context.Context, topN, maxLen int, timeout time.Duration) (*StringStats, error)
	GetAsyncAnalysis(ctx context.Context, timeout time.Duration) (*AsyncSnapshot, error)
	GetAllThreadStacks(ctx context.Context, includeArgs, includeLocals bool) (*Stacks, error)
}

// Package report defines the crash analysis report tree and its
// finalizer. The tree is constructed empty, populated by the
// debugger-output parsers and ClrMd-backed analyzers, finalized exactly
// once, optionally enriched by the AI orchestrator, and then serialized —
// it is never mutated after serialization.
package report

import "time"

// Report is the root of the crash analysis report tree.
type Report struct {
	Metadata     Metadata       `json:"metadata"`
	Analysis     Analysis       `json:"analysis"`
	RawCommands  map[string]string `json:"rawCommands,omitempty"`
}

// Metadata identifies the dump and the run that produced this report.
type Metadata struct {
	DumpID        string    `json:"dumpId"`
	UserID        string    `json:"userId"`
	GeneratedAt   time.Time `json:"generatedAt"`
	DebuggerType  string    `json:"debuggerType"`
	SOSLoaded     bool      `json:"sosLoaded"`
	SchemaVersion int       `json:"schemaVersion"`
}

// Analysis is the bulk of the report tree.
type Analysis struct {
	Summary         Summary          `json:"summary"`
	Environment     Environment      `json:"environment"`
	Exception       *ExceptionInfo   `json:"exception,omitempty"`
	Threads         Threads          `json:"threads"`
	Modules         []Module         `json:"modules"`
	Assemblies      Assemblies       `json:"assemblies"`
	Memory          Memory           `json:"memory"`
	Async           *AsyncInfo       `json:"async,omitempty"`
	Synchronization *Synchronization `json:"synchronization,omitempty"`
	Signature       *Signature       `json:"signature,omitempty"`
	StackSelection  *StackSelection  `json:"stackSelection,omitempty"`
	Findings        []Finding        `json:"findings,omitempty"`
	RootCause       *RootCause       `json:"rootCause,omitempty"`
	AiAnalysis      *AiAnalysis      `json:"aiAnalysis,omitempty"`
}

// Summary is the recomputed crash headline.
type Summary struct {
	CrashType       string   `json:"crashType"`
	Description     string   `json:"description"`
	Recommendations []string `json:"recommendations,omitempty"`
	ThreadCount     int      `json:"threadCount"`
	ModuleCount     int      `json:"moduleCount"`
	AssemblyCount   int      `json:"assemblyCount"`
}

// Platform describes the OS/architecture the dump was captured on.
type Platform struct {
	OS          string `json:"os"`
	IsAlpine    bool   `json:"isAlpine"`
	LibcType    string `json:"libcType,omitempty"`
	Architecture string `json:"architecture"`
	PointerSize int    `json:"pointerSize"`
}

// RuntimeKind enumerates the managed runtime flavor.
type RuntimeKind string

const (
	RuntimeCoreCLR   RuntimeKind = "CoreCLR"
	RuntimeMono      RuntimeKind = "Mono"
	RuntimeNativeAOT RuntimeKind = "NativeAOT"
)

// Runtime describes the managed runtime in the dump.
type Runtime struct {
	Type       RuntimeKind `json:"type"`
	Version    string      `json:"version,omitempty"`
	CLRVersion string      `json:"clrVersion,omitempty"`
	IsHosted   bool        `json:"isHosted"`
}

// ProcessInfo describes the process's command line and environment.
type ProcessInfo struct {
	Arguments             []string          `json:"arguments"`
	EnvironmentVariables  map[string]string `json:"environmentVariables"`
	// EnvOrder preserves original environment-variable insertion order for
	// deterministic output, since Go maps do not.
	EnvOrder              []string          `json:"-"`
	SensitiveDataFiltered bool              `json:"sensitiveDataFiltered"`
}

// TrimmingAnalysis captures NativeAOT trimming-mis-shape evidence.
type TrimmingAnalysis struct {
	Confidence            string `json:"confidence"` // low|medium|high
	PotentialTrimmingIssue bool   `json:"potentialTrimmingIssue"`
	Recommendation        string `json:"recommendation,omitempty"`
}

// NativeAOTInfo captures NativeAOT detection state.
type NativeAOTInfo struct {
	IsNativeAOT      bool              `json:"isNativeAot"`
	HasJITCompiler   bool              `json:"hasJitCompiler"`
	Indicators       []string          `json:"indicators,omitempty"`
	TrimmingAnalysis *TrimmingAnalysis `json:"trimmingAnalysis,omitempty"`
}

// CrashInfo carries low-level crash signal metadata.
type CrashInfo struct {
	SignalName string `json:"signalName,omitempty"`
}

// Environment is the platform/runtime/process environment block.
type Environment struct {
	Platform  Platform      `json:"platform"`
	Runtime   Runtime       `json:"runtime"`
	Process   ProcessInfo   `json:"process"`
	NativeAOT NativeAOTInfo `json:"nativeAot"`
	CrashInfo CrashInfo     `json:"crashInfo"`
}

// StackFrame is one frame of a thread's call stack.
type StackFrame struct {
	FrameNumber        int               `json:"frameNumber"`
	InstructionPointer string            `json:"instructionPointer"`
	Module             string            `json:"module"`
	Function           string            `json:"function"`
	IsManaged          bool              `json:"isManaged"`
	SourceFile         string            `json:"sourceFile,omitempty"`
	LineNumber         *int              `json:"lineNumber,omitempty"`
	SourceURL          string            `json:"sourceUrl,omitempty"`
	SourceProvider     string            `json:"sourceProvider,omitempty"`
	Source             string            `json:"source,omitempty"`
	Parameters         []FrameParameter  `json:"parameters,omitempty"`
	Locals             []FrameLocal      `json:"locals,omitempty"`
	Registers          map[string]string `json:"registers,omitempty"`
}

// FrameParameter is one parameter attached to a managed StackFrame.
type FrameParameter struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}

// FrameLocal is one local variable attached to a managed StackFrame.
type FrameLocal struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value,omitempty"`
}

// Thread is one OS/managed thread's state.
type Thread struct {
	ThreadID         string       `json:"threadId"`
	OSThreadID       string       `json:"osThreadId,omitempty"`
	ManagedThreadID  *int         `json:"managedThreadId,omitempty"`
	State            string       `json:"state,omitempty"`
	IsFaulting       bool         `json:"isFaulting"`
	TopFunction      string       `json:"topFunction"`
	CallStack        []StackFrame `json:"callStack"`
	ThreadObject     string       `json:"threadObject,omitempty"`
	ClrThreadState   string       `json:"clrThreadState,omitempty"`
	GCMode           string       `json:"gcMode,omitempty"`
	LockCount        *int         `json:"lockCount,omitempty"`
	ThreadType       string       `json:"threadType,omitempty"`
	IsThreadpool     bool         `json:"isThreadpool,omitempty"`
	CurrentException string       `json:"currentException,omitempty"`
}

// ThreadsSummary is the thread count breakdown.
type ThreadsSummary struct {
	Total      int `json:"total"`
	Foreground int `json:"foreground"`
	Background int `json:"background"`
}

// DeadlockInfo describes a detected deadlock among threads/locks.
type DeadlockInfo struct {
	Detected        bool     `json:"detected"`
	InvolvedThreads []string `json:"involvedThreads,omitempty"`
	Locks           []string `json:"locks,omitempty"`
}

// ThreadPoolInfo summarizes CLR thread-pool saturation state for the report.
type ThreadPoolInfo struct {
	WorkerThreads   int `json:"workerThreads"`
	RetiredThreads  int `json:"retiredThreads"`
	QueuedWorkItems int `json:"queuedWorkItems"`
	MinThreads      int `json:"minThreads"`
	MaxThreads      int `json:"maxThreads"`
}

// Threads is the thread-related analysis block.
type Threads struct {
	Summary        ThreadsSummary  `json:"summary"`
	All            []Thread        `json:"all"`
	OSThreadCount  int             `json:"osThreadCount"`
	FaultingThread *string         `json:"faultingThread,omitempty"` // threadId of threads.all
	ThreadPool     *ThreadPoolInfo `json:"threadPool,omitempty"`
	Deadlock       *DeadlockInfo   `json:"deadlock,omitempty"`
}

// Module is one loaded native or managed module.
type Module struct {
	Name        string `json:"name"`
	BaseAddress string `json:"baseAddress"`
	HasSymbols  bool   `json:"hasSymbols"`
	PDBGuid     string `json:"pdbGuid,omitempty"`
}

// Assembly is one loaded managed assembly.
type Assembly struct {
	Name           string            `json:"name"`
	Path           string            `json:"path,omitempty"`
	BaseAddress    string            `json:"baseAddress,omitempty"`
	IsNativeImage  bool              `json:"isNativeImage"`
	RepositoryURL  string            `json:"repositoryUrl,omitempty"`
	CommitHash     string            `json:"commitHash,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// Assemblies is the report's deduplicated assembly list.
type Assemblies struct {
	Count int        `json:"count"`
	Items []Assembly `json:"items"`
}

// StackTraceEntry is a simplified frame used in ExceptionInfo.StackTrace.
type StackTraceEntry = StackFrame

// ExceptionChainEntry is one exception in an inner-exception chain.
type ExceptionChainEntry struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// TypeResolutionDiagnosis describes a failed managed type resolution.
type TypeResolutionDiagnosis struct {
	FailedType   string `json:"failedType"`
	MethodFound  bool   `json:"methodFound"`
	SimilarCount int    `json:"similarCount"`
	TotalMethods int    `json:"totalMethods"`
	Diagnosis    string `json:"diagnosis,omitempty"`
}

// ExceptionAnalysis is the nested analysis block under ExceptionInfo.
type ExceptionAnalysis struct {
	ExceptionChain  []ExceptionChainEntry    `json:"exceptionChain,omitempty"`
	TypeResolution  *TypeResolutionDiagnosis `json:"typeResolution,omitempty"`
}

// ExceptionInfo is the faulting exception, if any.
type ExceptionInfo struct {
	Type       string             `json:"type"`
	Message    string             `json:"message,omitempty"`
	HResult    string             `json:"hResult,omitempty"`
	Address    string             `json:"address,omitempty"`
	StackTrace []StackTraceEntry  `json:"stackTrace,omitempty"`
	Analysis   ExceptionAnalysis  `json:"analysis"`
}

// GenerationSizes holds per-generation GC heap byte sizes.
type GenerationSizes struct {
	Gen0 uint64 `json:"gen0"`
	Gen1 uint64 `json:"gen1"`
	Gen2 uint64 `json:"gen2"`
	LOH  uint64 `json:"loh"`
	POH  uint64 `json:"poh"`
}

// GCInfo is the GC heap summary.
type GCInfo struct {
	TotalHeapSize   uint64          `json:"totalHeapSize"`
	GenerationSizes GenerationSizes `json:"generationSizes"`
}

// LeakSeverity enumerates leak-analysis severity buckets.
type LeakSeverity string

const (
	LeakNone   LeakSeverity = "None"
	LeakLow    LeakSeverity = "Low"
	LeakMedium LeakSeverity = "Medium"
	LeakHigh   LeakSeverity = "High"
)

// TopConsumerEntry is one row of the leak analysis's top-consumers table.
type TopConsumerEntry struct {
	TypeName  string `json:"typeName"`
	Count     int    `json:"count"`
	TotalSize uint64 `json:"totalSize"`
}

// LeakAnalysis summarizes suspected memory leak evidence.
type LeakAnalysis struct {
	Detected       bool               `json:"detected"`
	Severity       LeakSeverity       `json:"severity"`
	TotalHeapBytes uint64             `json:"totalHeapBytes"`
	TopConsumers   []TopConsumerEntry `json:"topConsumers,omitempty"`
}

// Memory is the heap/leak analysis block.
type Memory struct {
	GC           *GCInfo              `json:"gc,omitempty"`
	HeapStats    map[string]any       `json:"heapStats,omitempty"`
	LeakAnalysis *LeakAnalysis        `json:"leakAnalysis,omitempty"`
}

// TimerEntry is one live .NET timer found in the dump.
type TimerEntry struct {
	Address   string `json:"address"`
	DueTimeMS int64  `json:"dueTimeMs"`
	PeriodMS  int64  `json:"periodMs"`
	Callback  string `json:"callback,omitempty"`
}

// AsyncInfo is the async/task/timer/threadpool analysis block.
type AsyncInfo struct {
	HasDeadlock bool            `json:"hasDeadlock"`
	Timers      []TimerEntry    `json:"timers,omitempty"`
	ThreadPool  *ThreadPoolInfo `json:"threadPool,omitempty"`
}

// MonitorLock describes one contended or held monitor lock.
type MonitorLock struct {
	ObjectAddress string   `json:"objectAddress"`
	OwnerThreadID string   `json:"ownerThreadId,omitempty"`
	Waiters       []string `json:"waiters,omitempty"`
	RecursionCount int     `json:"recursionCount"`
}

// SemaphoreSlimInfo describes one SemaphoreSlim instance.
type SemaphoreSlimInfo struct {
	Address      string `json:"address"`
	CurrentCount int    `json:"currentCount"`
	MaxCount     int    `json:"maxCount"`
	SyncWaiters  int    `json:"syncWaiters"`
	AsyncWaiters int    `json:"asyncWaiters"`
	IsAsyncLock  bool   `json:"isAsyncLock"`
	IsContended  bool   `json:"isContended"`
}

// ReaderWriterLockInfo describes one ReaderWriterLockSlim instance.
type ReaderWriterLockInfo struct {
	Address       string   `json:"address"`
	ReaderCount   int      `json:"readerCount"`
	WriterThreadID string  `json:"writerThreadId,omitempty"`
	WaitingWriters int     `json:"waitingWriters"`
	WaitingReaders int     `json:"waitingReaders"`
}

// ResetEventInfo describes one ManualResetEvent(Slim)/AutoResetEvent instance.
type ResetEventInfo struct {
	Address   string `json:"address"`
	IsSet     bool   `json:"isSet"`
	IsManual  bool   `json:"isManual"`
	Waiters   int    `json:"waiters"`
}

// WaitHandleInfo describes a generic native wait handle.
type WaitHandleInfo struct {
	Address string `json:"address"`
	Kind    string `json:"kind"`
	Waiters int    `json:"waiters"`
}

// WaitGraphNode is one node (thread or resource) in the wait graph.
type WaitGraphNode struct {
	ID   string `json:"id"`
	Kind string `json:"kind"` // "thread" | "resource"
}

// WaitGraphEdge is one directed edge in the wait graph.
type WaitGraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"` // "waits" | "owned by"
}

// WaitGraph is the sync analyzer's graph-of-waits representation.
type WaitGraph struct {
	Nodes []WaitGraphNode `json:"nodes"`
	Edges []WaitGraphEdge `json:"edges"`
}

// ContentionHotspot is one resource with a high waiter count.
type ContentionHotspot struct {
	ResourceID string `json:"resourceId"`
	Waiters    int    `json:"waiters"`
	Severity   string `json:"severity"` // low|medium|high|critical
}

// Synchronization is the synchronization-primitive analysis block.
type Synchronization struct {
	MonitorLocks             []MonitorLock          `json:"monitorLocks,omitempty"`
	SemaphoreSlims           []SemaphoreSlimInfo    `json:"semaphoreSlims,omitempty"`
	ReaderWriterLocks        []ReaderWriterLockInfo `json:"readerWriterLocks,omitempty"`
	ResetEvents              []ResetEventInfo       `json:"resetEvents,omitempty"`
	WaitHandles              []WaitHandleInfo       `json:"waitHandles,omitempty"`
	WaitGraph                WaitGraph              `json:"waitGraph"`
	PotentialDeadlockCycles  [][]string             `json:"potentialDeadlockCycles,omitempty"`
	ContentionHotspots       []ContentionHotspot    `json:"contentionHotspots,omitempty"`
	SkipSyncBlocks           bool                   `json:"skipSyncBlocks,omitempty"`
}

// Signature is the crash/hang dedup signature.
type Signature struct {
	Kind string `json:"kind"` // "crash" | "hang"
	Hash string `json:"hash"` // "sha256:..."
}

// SkippedFrame records one frame skipped by select_meaningful_top_frame.
type SkippedFrame struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// StackSelection records the derived-fields builder's top-frame selection.
type StackSelection struct {
	SelectedFrameIndex int            `json:"selectedFrameIndex"`
	SkippedFrames      []SkippedFrame `json:"skippedFrames,omitempty"`
}

// Finding is one deterministic finding emitted by collect_findings.
type Finding struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Evidence string `json:"evidence,omitempty"`
}

// RootCauseHypothesis is one root-cause hypothesis synthesized deterministically.
type RootCauseHypothesis struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Confidence  string `json:"confidence"`
}

// RootCause is the deterministic root-cause hypothesis list.
type RootCause struct {
	Hypotheses []RootCauseHypothesis `json:"hypotheses"`
}

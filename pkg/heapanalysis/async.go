package heapanalysis

import "github.com/dumpscope/dumpscope/pkg/inspector"

// RawTask is one raw Task object enumerated off the heap, before status
// classification.
type RawTask struct {
	Address          uint64
	StateFlags       int
	ExceptionType    string
	ExceptionMessage string
}

// Task state-flag bits, mirroring System.Threading.Tasks.Task's internal
// TASK_STATE_* constants.
const (
	taskStateRanToCompletion = 1 << 16
	taskStateFaulted         = 1 << 17
	taskStateCanceled        = 1 << 18
)

// classifyTaskStatus maps a Task's internal state-flags word to the coarse
// TaskStatus enum.
func classifyTaskStatus(flags int) inspector.TaskStatus {
	switch {
	case flags&taskStateFaulted != 0:
		return inspector.TaskFaulted
	case flags&taskStateCanceled != 0:
		return inspector.TaskCanceled
	case flags&taskStateRanToCompletion != 0:
		return inspector.TaskRanToCompletion
	default:
		return inspector.TaskPending
	}
}

// BuildAsyncSnapshot classifies raw task objects and assembles the async
// analysis result. Only faulted/canceled tasks carry exception detail.
func BuildAsyncSnapshot(tasks []RawTask, timers []inspector.TimerInfo, pool *inspector.ThreadPoolSnapshot, hasDeadlock bool) *inspector.AsyncSnapshot {
	var faulted []inspector.FaultedTaskInfo
	for _, t := range tasks {
		status := classifyTaskStatus(t.StateFlags)
		if status != inspector.TaskFaulted && status != inspector.TaskCanceled {
			continue
		}
		faulted = append(faulted, inspector.FaultedTaskInfo{
			Address:          t.Address,
			Status:           status,
			ExceptionType:    t.ExceptionType,
			ExceptionMessage: t.ExceptionMessage,
		})
	}
	return &inspector.AsyncSnapshot{
		HasDeadlock:  hasDeadlock,
		Timers:       timers,
		ThreadPool:   pool,
		FaultedTasks: faulted,
	}
}

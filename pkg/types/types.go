// Package types defines the core domain model shared by the ruvltra
// execution core: generation requests and results, pool status snapshots,
// pattern-memory statistics, backend tags and the task error taxonomy.
package types

import (
	"errors"
	"fmt"
)

// TaskID uniquely identifies an admitted task (monotonic per process).
type TaskID string

// TaskKind is the kind of code-assistance work a request asks for.
type TaskKind string

// Task kinds accepted by the core.
const (
	TaskGenerate  TaskKind = "generate"
	TaskReview    TaskKind = "review"
	TaskRefactor  TaskKind = "refactor"
	TaskExplain   TaskKind = "explain"
	TaskTest      TaskKind = "test"
	TaskFix       TaskKind = "fix"
	TaskComplete  TaskKind = "complete"
	TaskTranslate TaskKind = "translate"
)

// ValidTaskKind reports whether k is one of the accepted task kinds.
func ValidTaskKind(k TaskKind) bool {
	switch k {
	case TaskGenerate, TaskReview, TaskRefactor, TaskExplain,
		TaskTest, TaskFix, TaskComplete, TaskTranslate:
		return true
	}
	return false
}

// BackendKind tags one of the four generation substrates.
type BackendKind string

// Backend tags, in engine preference order.
const (
	BackendHTTP     BackendKind = "http"
	BackendNative   BackendKind = "native-local"
	BackendEmbedded BackendKind = "embedded-learning"
	BackendMock     BackendKind = "mock"
)

// GenerateRequest is the input to a single generation attempt.
// It is immutable once submitted to the pool.
type GenerateRequest struct {
	TaskKind    TaskKind `json:"taskType"`
	Instruction string   `json:"instruction"`
	Context     string   `json:"context,omitempty"`
	Language    string   `json:"language,omitempty"`
	FilePath    string   `json:"filePath,omitempty"`
	MaxTokens   int      `json:"maxTokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	TimeoutMs   int64    `json:"timeoutMs,omitempty"`
}

// TokenUsage carries optional token accounting forwarded from a backend.
// Zero values mean "unknown".
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens,omitempty"`
	CompletionTokens int `json:"completionTokens,omitempty"`
}

// TaskResult is the provenance envelope returned for every settled task.
type TaskResult struct {
	TaskID    TaskID      `json:"taskId"`
	WorkerID  string      `json:"workerId"`
	Backend   BackendKind `json:"backend"`
	Model     string      `json:"model,omitempty"`
	Output    string      `json:"output"`
	LatencyMs int64       `json:"latencyMs"`
	Usage     TokenUsage  `json:"usage,omitempty"`
}

// WorkerStatus is the runtime view of one pool member.
type WorkerStatus struct {
	ID             string      `json:"id"`
	ActiveTasks    int         `json:"activeTasks"`
	CompletedTasks int64       `json:"completedTasks"`
	FailedTasks    int64       `json:"failedTasks"`
	Backend        BackendKind `json:"backend"`
	LastUsedAtMs   int64       `json:"lastUsedAtMs"`
}

// PoolStatus is a point-in-time snapshot of the worker pool.
type PoolStatus struct {
	Workers        int                 `json:"workers"`
	MinWorkers     int                 `json:"minWorkers"`
	MaxWorkers     int                 `json:"maxWorkers"`
	QueueLength    int                 `json:"queueLength"`
	InFlight       int                 `json:"inFlight"`
	SubmittedTasks int64               `json:"submittedTasks"`
	FailedTasks    int64               `json:"failedTasks"`
	CancelledTasks int64               `json:"cancelledTasks"`
	TimedOutTasks  int64               `json:"timedOutTasks"`
	RejectedTasks  int64               `json:"rejectedTasks"`
	WorkerStats    []WorkerStatus      `json:"workerStats"`
	ByBackend      map[BackendKind]int `json:"byBackend"`
}

// MemoryStats summarizes one worker's pattern memory.
type MemoryStats struct {
	WorkerID           string   `json:"workerId"`
	Interactions       int64    `json:"interactions"`
	Successes          int64    `json:"successes"`
	Patterns           int      `json:"patterns"`
	Consolidations     int64    `json:"consolidations"`
	LastConsolidatedMs int64    `json:"lastConsolidatedMs"`
	TopKeys            []string `json:"topKeys"`
}

// ============================================================================
// Error taxonomy
// ============================================================================

// ErrKind is the stable identity of a task failure a caller can branch on.
type ErrKind string

// Task error kinds.
const (
	ErrKindInvalidArgument ErrKind = "invalid_argument"
	ErrKindQueueOverflow   ErrKind = "queue_overflow"
	ErrKindTimeout         ErrKind = "timeout"
	ErrKindCancelled       ErrKind = "cancelled"
	ErrKindBackend         ErrKind = "backend_error"
)

// TaskError is the typed failure returned by the pool for a settled task.
type TaskError struct {
	Kind    ErrKind
	Message string
	Cause   error
}

func (e *TaskError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TaskError) Unwrap() error { return e.Cause }

// NewTaskError builds a TaskError with the given kind and message.
func NewTaskError(kind ErrKind, msg string, cause error) *TaskError {
	return &TaskError{Kind: kind, Message: msg, Cause: cause}
}

// KindOf extracts the error kind from err. An unclassified failure is a
// backend failure by definition.
func KindOf(err error) ErrKind {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ErrKindBackend
}

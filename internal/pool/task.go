package pool

// ============================================================================
// Responsibilities:
// 1. The pool-side container for an admitted request: id, cancellation,
//    deadline timer, completion channel
// 2. Settlement is a latch: a task settles exactly once; later arrivals
//    (a backend answer racing a timeout, a duplicate cancel) are discarded
// ============================================================================

import (
	"context"
	"time"

	"github.com/ruvltra/ruvltra-go/pkg/types"
)

// task is one admitted, not-yet-settled request.
type task struct {
	id      types.TaskID
	req     types.GenerateRequest
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer

	// done is closed exactly once, at settlement.
	done chan struct{}

	// All below are guarded by the pool mutex.
	settled  bool
	started  bool
	timedOut bool
	result   types.TaskResult
	err      error

	submittedAt time.Time
}

func newTask(id types.TaskID, req types.GenerateRequest, timeout time.Duration) *task {
	ctx, cancel := context.WithCancel(context.Background())
	return &task{
		id:          id,
		req:         req,
		timeout:     timeout,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		submittedAt: time.Now(),
	}
}

// wait blocks until settlement and returns the outcome.
func (t *task) wait() (types.TaskResult, error) {
	<-t.done
	return t.result, t.err
}

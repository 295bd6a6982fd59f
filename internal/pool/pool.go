// ============================================================================
// Ruvltra Worker Pool - Bounded Concurrent Task Execution
// ============================================================================
//
// Package: internal/pool
// File: pool.go
// Purpose: Admission control, scheduling, cancellation, auto-scaling and
// metrics for generation tasks.
//
// Scheduling:
//   - FIFO queue with a hard ceiling; a submission is rejected with
//     QueueOverflow when the queue already holds queueMaxLength waiting
//     tasks (in-flight tasks do not count against the queue)
//   - A dispatch pass hands the queue head to an idle worker, preferring
//     the least-recently-used; it runs on every admission and settlement
//   - Scale-up on admission when the queue outgrows the worker set;
//     scale-down of long-idle workers on settlement and on a 5s heartbeat
//
// Settlement:
//   Every admitted task settles exactly once as success, timeout, cancelled
//   or backend failure. The settled flag is a latch: a backend answer that
//   races a timeout is discarded without touching counters.
//
// Concurrency model:
//   One mutex serializes the queue, the worker set, the counters and every
//   settlement, so a dispatch pass and a settlement can never interleave
//   mid-mutation. Generations themselves run on per-task goroutines, one
//   in flight per worker.
//
// ============================================================================

package pool

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruvltra/ruvltra-go/internal/config"
	"github.com/ruvltra/ruvltra-go/internal/engine"
	"github.com/ruvltra/ruvltra-go/internal/metrics"
	"github.com/ruvltra/ruvltra-go/internal/sona"
	"github.com/ruvltra/ruvltra-go/pkg/types"
)

const (
	heartbeatInterval = 5 * time.Second
	idleThreshold     = 20 * time.Second
)

// Pool executes generation requests across a bounded set of workers.
type Pool struct {
	cfg     config.Config
	extras  engine.Extras
	metrics *metrics.Collector

	mu           sync.Mutex
	queue        []*task
	workers      []*worker
	pending      map[types.TaskID]*task
	nextTaskSeq  int64
	nextWorkerID int
	inFlight     int
	shutdown     bool

	submittedTasks int64
	failedTasks    int64
	cancelledTasks int64
	timedOutTasks  int64
	rejectedTasks  int64

	stopCh chan struct{}
	taskWg sync.WaitGroup
	loopWg sync.WaitGroup
}

// New creates a pool with the configured number of initial workers and
// starts the idle-scale-down heartbeat.
func New(cfg config.Config, extras engine.Extras) *Pool {
	p := &Pool{
		cfg:     cfg,
		extras:  extras,
		metrics: metrics.NewCollector(),
		pending: make(map[types.TaskID]*task),
		stopCh:  make(chan struct{}),
	}

	for i := 0; i < cfg.Pool.InitialWorkers; i++ {
		p.addWorkerLocked()
	}

	p.loopWg.Add(1)
	go p.heartbeatLoop()

	slog.Info("Worker pool started",
		"workers", len(p.workers),
		"minWorkers", cfg.Pool.MinWorkers,
		"maxWorkers", cfg.Pool.MaxWorkers,
		"queueMaxLength", cfg.Pool.QueueMaxLength)
	return p
}

// Metrics exposes the pool's collector (for the /metrics endpoint).
func (p *Pool) Metrics() *metrics.Collector { return p.metrics }

// ============================================================================
// Submission
// ============================================================================

// Submit admits a request and blocks until it settles. The returned error,
// when non-nil, is a *types.TaskError the caller can branch on.
func (p *Pool) Submit(req types.GenerateRequest) (types.TaskResult, error) {
	p.mu.Lock()

	if p.shutdown {
		p.mu.Unlock()
		return types.TaskResult{}, types.NewTaskError(types.ErrKindCancelled,
			"pool is shutting down", nil)
	}

	if len(p.queue) >= p.cfg.Pool.QueueMaxLength {
		p.rejectedTasks++
		p.metrics.RecordRejected()
		p.mu.Unlock()
		retryMs := p.cfg.Pool.TaskTimeoutMs / 4
		return types.TaskResult{}, types.NewTaskError(types.ErrKindQueueOverflow,
			fmt.Sprintf("queue full (%d waiting); retry in ~%dms",
				p.cfg.Pool.QueueMaxLength, retryMs), nil)
	}

	timeout := time.Duration(p.cfg.Pool.TaskTimeoutMs) * time.Millisecond
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	p.nextTaskSeq++
	t := newTask(types.TaskID(fmt.Sprintf("task-%d", p.nextTaskSeq)), req, timeout)
	t.timer = time.AfterFunc(timeout, func() { p.onTimeout(t) })

	p.submittedTasks++
	p.metrics.RecordSubmitted()
	p.pending[t.id] = t
	p.queue = append(p.queue, t)

	// Scale up when the backlog outgrows the worker set.
	if len(p.queue) > len(p.workers) && len(p.workers) < p.cfg.Pool.MaxWorkers {
		p.addWorkerLocked()
	}

	p.dispatchLocked()
	p.updateGaugesLocked()
	p.mu.Unlock()

	return t.wait()
}

// ============================================================================
// Dispatch and execution
// ============================================================================

// dispatchLocked repeatedly pairs the queue head with an idle worker.
// Caller holds p.mu.
func (p *Pool) dispatchLocked() {
	for len(p.queue) > 0 {
		w := p.idleWorkerLocked()
		if w == nil {
			return
		}

		t := p.queue[0]
		p.queue = p.queue[1:]
		if t.settled {
			continue
		}

		t.started = true
		w.activeTasks = 1
		w.lastUsedAt = time.Now()
		p.inFlight++

		p.taskWg.Add(1)
		go p.runTask(w, t)
	}
}

// idleWorkerLocked returns the least-recently-used idle worker, or nil.
func (p *Pool) idleWorkerLocked() *worker {
	var pick *worker
	for _, w := range p.workers {
		if w.activeTasks != 0 {
			continue
		}
		if pick == nil || w.lastUsedAt.Before(pick.lastUsedAt) {
			pick = w
		}
	}
	return pick
}

// runTask executes one generation on its own goroutine: rewrite the
// instruction with the worker's memory, render the canonical prompt, walk
// the backend chain, record the outcome, settle.
func (p *Pool) runTask(w *worker, t *task) {
	defer p.taskWg.Done()

	original := t.req.Instruction
	instruction := w.rewrite(original, t.req.TaskKind, t.req.Language)

	maxTokens := t.req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.cfg.Generation.MaxTokens
	}
	temperature := t.req.Temperature
	if temperature == 0 {
		temperature = p.cfg.Generation.Temperature
	}

	prompt := engine.Prompt{
		Text:        engine.RenderPrompt(t.req, instruction),
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	start := time.Now()
	res, err := w.engine.Generate(t.ctx, prompt)
	latencyMs := time.Since(start).Milliseconds()
	if err == nil {
		latencyMs = res.LatencyMs
	}

	// The memory learns from the original instruction, not the rewritten one.
	w.record(sona.Interaction{
		Request:   t.req,
		Response:  res.Text,
		Success:   err == nil,
		LatencyMs: latencyMs,
		Usage:     res.Usage,
	})

	p.mu.Lock()
	if err == nil {
		settled := p.settleLocked(t, types.TaskResult{
			TaskID:    t.id,
			WorkerID:  w.id,
			Backend:   res.Backend,
			Model:     res.Model,
			Output:    res.Text,
			LatencyMs: res.LatencyMs,
			Usage:     res.Usage,
		}, nil)
		if settled {
			w.completedTasks++
		}
	} else if t.ctx.Err() != nil {
		// Cancelled or timed out; usually already settled by the canceller.
		p.settleLocked(t, types.TaskResult{}, types.NewTaskError(
			types.ErrKindCancelled, "task cancelled", err))
	} else {
		settled := p.settleLocked(t, types.TaskResult{}, types.NewTaskError(
			types.ErrKindBackend, "all backends failed", err))
		if settled {
			w.failedTasks++
		}
	}

	w.activeTasks = 0
	w.lastUsedAt = time.Now()
	p.inFlight--

	p.dispatchLocked()
	victims := p.scaleDownLocked()
	p.updateGaugesLocked()
	p.mu.Unlock()

	destroyAll(victims)
}

// onTimeout fires from the task's deadline timer.
func (p *Pool) onTimeout(t *task) {
	p.mu.Lock()
	if t.settled {
		p.mu.Unlock()
		return
	}
	t.timedOut = true
	p.settleLocked(t, types.TaskResult{}, types.NewTaskError(types.ErrKindTimeout,
		fmt.Sprintf("task exceeded %dms deadline", t.timeout.Milliseconds()), nil))
	p.dispatchLocked()
	p.updateGaugesLocked()
	p.mu.Unlock()
}

// settleLocked latches the task's outcome, classifies it into the lifetime
// counters, trips the cancellation token and releases the waiter. Returns
// false when the task was already settled. Caller holds p.mu.
func (p *Pool) settleLocked(t *task, result types.TaskResult, err error) bool {
	if t.settled {
		return false
	}
	t.settled = true
	t.result = result
	t.err = err

	if t.timer != nil {
		t.timer.Stop()
	}
	t.cancel()
	delete(p.pending, t.id)

	if !t.started {
		p.removeFromQueueLocked(t)
	}

	latency := time.Since(t.submittedAt).Seconds()
	switch {
	case err == nil:
		p.metrics.RecordCompleted(latency)
	case types.KindOf(err) == types.ErrKindTimeout:
		p.timedOutTasks++
		p.cancelledTasks++
		p.metrics.RecordTimedOut()
		p.metrics.RecordCancelled()
	case types.KindOf(err) == types.ErrKindCancelled:
		p.cancelledTasks++
		p.metrics.RecordCancelled()
	default:
		p.failedTasks++
		p.metrics.RecordFailed()
	}

	close(t.done)
	return true
}

func (p *Pool) removeFromQueueLocked(t *task) {
	for i, queued := range p.queue {
		if queued == t {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return
		}
	}
}

// ============================================================================
// Scaling
// ============================================================================

func (p *Pool) addWorkerLocked() *worker {
	p.nextWorkerID++
	w := newWorker(p.nextWorkerID, p.cfg, p.extras)
	p.workers = append(p.workers, w)
	slog.Debug("Worker added", "workerID", w.id, "workers", len(p.workers))
	return w
}

// scaleDownLocked removes long-idle workers (least-recently-used first)
// down to minWorkers, returning them for destruction outside the lock.
func (p *Pool) scaleDownLocked() []*worker {
	var victims []*worker
	now := time.Now()
	for len(p.workers) > p.cfg.Pool.MinWorkers {
		var pick *worker
		for _, w := range p.workers {
			if w.activeTasks != 0 || now.Sub(w.lastUsedAt) <= idleThreshold {
				continue
			}
			if pick == nil || w.lastUsedAt.Before(pick.lastUsedAt) {
				pick = w
			}
		}
		if pick == nil {
			break
		}
		p.removeWorkerLocked(pick)
		victims = append(victims, pick)
	}
	return victims
}

func (p *Pool) removeWorkerLocked(w *worker) {
	for i, candidate := range p.workers {
		if candidate == w {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			slog.Debug("Worker removed", "workerID", w.id, "workers", len(p.workers))
			return
		}
	}
}

func destroyAll(workers []*worker) {
	for _, w := range workers {
		w.destroy()
	}
}

// Scale resizes the pool toward target, clamped to [minWorkers, maxWorkers].
// Running tasks are never aborted; only idle workers are removed.
func (p *Pool) Scale(target int) types.PoolStatus {
	if target < p.cfg.Pool.MinWorkers {
		target = p.cfg.Pool.MinWorkers
	}
	if target > p.cfg.Pool.MaxWorkers {
		target = p.cfg.Pool.MaxWorkers
	}

	p.mu.Lock()
	for len(p.workers) < target {
		p.addWorkerLocked()
	}

	var victims []*worker
	for len(p.workers) > target {
		var pick *worker
		for _, w := range p.workers {
			if w.activeTasks != 0 {
				continue
			}
			if pick == nil || w.lastUsedAt.Before(pick.lastUsedAt) {
				pick = w
			}
		}
		if pick == nil {
			break
		}
		p.removeWorkerLocked(pick)
		victims = append(victims, pick)
	}

	p.dispatchLocked()
	p.updateGaugesLocked()
	status := p.statusLocked()
	p.mu.Unlock()

	destroyAll(victims)
	return status
}

// ============================================================================
// Introspection
// ============================================================================

// Status snapshots the pool.
func (p *Pool) Status() types.PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Pool) statusLocked() types.PoolStatus {
	status := types.PoolStatus{
		Workers:        len(p.workers),
		MinWorkers:     p.cfg.Pool.MinWorkers,
		MaxWorkers:     p.cfg.Pool.MaxWorkers,
		QueueLength:    len(p.queue),
		InFlight:       p.inFlight,
		SubmittedTasks: p.submittedTasks,
		FailedTasks:    p.failedTasks,
		CancelledTasks: p.cancelledTasks,
		TimedOutTasks:  p.timedOutTasks,
		RejectedTasks:  p.rejectedTasks,
		ByBackend:      make(map[types.BackendKind]int),
	}
	for _, w := range p.workers {
		status.WorkerStats = append(status.WorkerStats, w.status())
		status.ByBackend[w.engine.ActiveBackend()]++
	}
	return status
}

// SonaStats forwards workers' pattern-memory statistics. With a workerID it
// returns only that worker's stats.
func (p *Pool) SonaStats(workerID string) []types.MemoryStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stats []types.MemoryStats
	for _, w := range p.workers {
		if workerID != "" && w.id != workerID {
			continue
		}
		if w.memory == nil {
			continue
		}
		stats = append(stats, w.memory.Stats())
	}
	return stats
}

func (p *Pool) updateGaugesLocked() {
	p.metrics.UpdatePoolStats(len(p.queue), p.inFlight, len(p.workers))
}

// ============================================================================
// Heartbeat and shutdown
// ============================================================================

func (p *Pool) heartbeatLoop() {
	defer p.loopWg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.mu.Lock()
			victims := p.scaleDownLocked()
			p.updateGaugesLocked()
			p.mu.Unlock()
			destroyAll(victims)
		}
	}
}

// Shutdown stops accepting work, cancels every pending and running task,
// waits for task goroutines to unwind, flushes every worker's memory and
// releases backend resources.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true

	for _, t := range p.pending {
		p.settleLocked(t, types.TaskResult{}, types.NewTaskError(
			types.ErrKindCancelled, "pool shut down", nil))
	}
	p.queue = nil
	p.updateGaugesLocked()
	p.mu.Unlock()

	close(p.stopCh)
	p.taskWg.Wait()
	p.loopWg.Wait()

	p.mu.Lock()
	workers := p.workers
	p.workers = nil
	p.mu.Unlock()

	destroyAll(workers)
	slog.Info("Worker pool stopped")
}

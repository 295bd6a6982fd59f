// ============================================================================
// Ruvltra Worker - Pool Member
// ============================================================================
//
// Package: internal/pool
// File: worker.go
// Purpose: One pool member: a stable id, an owned inference engine and an
// owned pattern memory. A worker runs at most one task at a time; the pool's
// parallelism is across workers, never within one.
//
// Lifecycle: created on pool startup or scale-up, destroyed on idle
// scale-down or pool shutdown. Destruction flushes the worker's pattern
// memory and releases its adapters.
//
// ============================================================================

package pool

import (
	"fmt"
	"time"

	"github.com/ruvltra/ruvltra-go/internal/config"
	"github.com/ruvltra/ruvltra-go/internal/engine"
	"github.com/ruvltra/ruvltra-go/internal/sona"
	"github.com/ruvltra/ruvltra-go/pkg/types"
)

// worker is one exclusive owner of an engine and a memory.
type worker struct {
	id     string
	engine *engine.Engine
	memory *sona.Memory // nil when sona is disabled

	// Guarded by the pool mutex.
	activeTasks    int
	completedTasks int64
	failedTasks    int64
	lastUsedAt     time.Time
}

func newWorker(seq int, cfg config.Config, extras engine.Extras) *worker {
	id := fmt.Sprintf("worker-%d", seq)
	w := &worker{
		id:         id,
		engine:     engine.New(cfg, extras),
		lastUsedAt: time.Now(),
	}
	if cfg.Sona.Enabled {
		w.memory = sona.NewMemory(id, cfg.Sona.StateDir, cfg.Sona.PersistInterval)
	}
	return w
}

// rewrite applies the worker's learned hints to an instruction.
func (w *worker) rewrite(instruction string, kind types.TaskKind, language string) string {
	if w.memory == nil {
		return instruction
	}
	return w.memory.Rewrite(instruction, kind, language)
}

// record folds a finished interaction into the worker's memory.
func (w *worker) record(it sona.Interaction) {
	if w.memory != nil {
		w.memory.Record(it)
	}
}

// destroy flushes the memory and releases the engine's adapters.
func (w *worker) destroy() {
	if w.memory != nil {
		w.memory.Flush()
	}
	w.engine.Close()
}

// status snapshots the worker. Caller holds the pool mutex.
func (w *worker) status() types.WorkerStatus {
	return types.WorkerStatus{
		ID:             w.id,
		ActiveTasks:    w.activeTasks,
		CompletedTasks: w.completedTasks,
		FailedTasks:    w.failedTasks,
		Backend:        w.engine.ActiveBackend(),
		LastUsedAtMs:   w.lastUsedAt.UnixMilli(),
	}
}

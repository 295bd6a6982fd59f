// ============================================================================
// Ruvltra Inference Engine - Backend Contract
// ============================================================================
//
// Package: internal/engine
// File: backend.go
// Purpose: The single-method generation interface every model substrate
// implements, plus the shared readiness/note bookkeeping adapters embed.
//
// Adapters never build prompts themselves; the engine renders the one
// canonical prompt and hands it down. Preference order across adapters is
// data owned by the engine, not control flow inside adapters.
//
// ============================================================================

package engine

import (
	"context"
	"sync"

	"github.com/ruvltra/ruvltra-go/pkg/types"
)

// Prompt is the fully rendered input to one backend attempt.
type Prompt struct {
	Text        string
	MaxTokens   int
	Temperature float64
}

// Generation is the uniform output of one backend attempt.
type Generation struct {
	Text  string
	Model string
	Usage types.TokenUsage
}

// Backend is one model substrate behind the uniform generation method.
// Generate must observe ctx at every suspension point and stop in bounded
// time after cancellation.
type Backend interface {
	Kind() types.BackendKind
	Ready() bool
	Note() string
	Generate(ctx context.Context, p Prompt) (Generation, error)
}

// Closer is implemented by backends holding long-lived resources.
type Closer interface {
	Close()
}

// BackendState is the diagnostic view of one adapter.
type BackendState struct {
	Kind  types.BackendKind `json:"kind"`
	Ready bool              `json:"ready"`
	Note  string            `json:"note"`
}

// readiness is the shared ready-flag + status-note pair. A backend demoted
// (ready=false) during an attempt stays demoted for the rest of the process.
type readiness struct {
	mu    sync.Mutex
	ready bool
	note  string
}

func (r *readiness) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *readiness) Note() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.note
}

func (r *readiness) setReady(ready bool, note string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = ready
	r.note = note
}

func (r *readiness) setNote(note string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.note = note
}

// demote marks the backend permanently unready for this process.
func (r *readiness) demote(note string) {
	r.setReady(false, note)
}

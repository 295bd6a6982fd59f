// ============================================================================
// Ruvltra Inference Engine - Ranked Fallback Chain
// ============================================================================
//
// Package: internal/engine
// File: engine.go
// Purpose: Per-worker engine that turns a prompt into text using the first
// ready backend that succeeds, in fixed preference order:
//
//	remote-HTTP -> local-native -> embedded-learning -> mock
//
// The mock adapter is always ready, so the engine is total: a request is
// never rejected for lack of a backend. Individual backend failures are
// converted into a try-next-backend signal; only the final last-error
// survives to the caller. Cancellation is checked before every attempt.
//
// ============================================================================

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruvltra/ruvltra-go/internal/config"
	"github.com/ruvltra/ruvltra-go/pkg/types"
)

// Extras carries the optional in-process runtimes an engine can use.
type Extras struct {
	NativeRuntime NativeRuntime
	Embedded      EmbeddedOptions
}

// Result is one successful generation plus its provenance.
type Result struct {
	Generation
	Backend   types.BackendKind
	LatencyMs int64
}

// Engine owns its adapters and walks them in preference order.
type Engine struct {
	backends []Backend

	mu     sync.Mutex
	active types.BackendKind
}

// New builds a worker's engine from configuration. Each worker gets its own
// adapters; the HTTP circuit breaker is per engine.
func New(cfg config.Config, extras Extras) *Engine {
	httpBackend := NewHTTPBackend(HTTPConfig{
		Endpoint:   cfg.HTTP.Endpoint,
		APIKey:     cfg.HTTP.APIKey,
		Model:      cfg.HTTP.Model,
		Format:     cfg.HTTP.Format,
		Timeout:    time.Duration(cfg.HTTP.TimeoutMs) * time.Millisecond,
		MaxRetries: cfg.HTTP.MaxRetries,
		RetryBase:  time.Duration(cfg.HTTP.RetryBaseMs) * time.Millisecond,
		Breaker: NewCircuitBreaker(
			cfg.HTTP.CircuitFailureThreshold,
			time.Duration(cfg.HTTP.CircuitCooldownMs)*time.Millisecond,
		),
	})
	nativeBackend := NewNativeBackend(extras.NativeRuntime, cfg.Native.ModelPath, NativeOptions{
		ContextLength: cfg.Native.ContextLength,
		GPULayers:     cfg.Native.GPULayers,
		Threads:       cfg.Native.Threads,
	})
	embeddedBackend := NewEmbeddedBackend(extras.Embedded)
	mockBackend := NewMockBackend(time.Duration(cfg.Mock.LatencyMs) * time.Millisecond)

	return NewWithBackends(httpBackend, nativeBackend, embeddedBackend, mockBackend)
}

// NewWithBackends builds an engine over an explicit adapter chain.
func NewWithBackends(backends ...Backend) *Engine {
	e := &Engine{backends: backends, active: types.BackendMock}
	for _, b := range backends {
		if b.Ready() {
			e.active = b.Kind()
			break
		}
	}
	return e
}

// Generate walks the chain and returns the first success.
func (e *Engine) Generate(ctx context.Context, p Prompt) (Result, error) {
	var lastErr error

	for _, backend := range e.backends {
		if !backend.Ready() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		start := time.Now()
		gen, err := backend.Generate(ctx, p)
		if err == nil {
			e.setActive(backend.Kind())
			return Result{
				Generation: gen,
				Backend:    backend.Kind(),
				LatencyMs:  time.Since(start).Milliseconds(),
			}, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			// The task was cancelled; stop falling through.
			return Result{}, err
		}
		slog.Debug("Backend attempt failed",
			"backend", backend.Kind(), "error", err)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no backend available")
	}
	return Result{}, fmt.Errorf("all backends failed: %w", lastErr)
}

func (e *Engine) setActive(kind types.BackendKind) {
	e.mu.Lock()
	e.active = kind
	e.mu.Unlock()
}

// ActiveBackend reports the backend that served the most recent success.
func (e *Engine) ActiveBackend() types.BackendKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// States reports the diagnostic state of every adapter.
func (e *Engine) States() []BackendState {
	states := make([]BackendState, 0, len(e.backends))
	for _, b := range e.backends {
		states = append(states, BackendState{
			Kind:  b.Kind(),
			Ready: b.Ready(),
			Note:  b.Note(),
		})
	}
	return states
}

// Close releases adapter resources (model handles, connection pools).
func (e *Engine) Close() {
	for _, b := range e.backends {
		if c, ok := b.(Closer); ok {
			c.Close()
		}
	}
}

// ============================================================================
// Ruvltra Inference Engine - Local Native Adapter
// ============================================================================
//
// Package: internal/engine
// File: native.go
// Purpose: Generation against a local model file through a native runtime
// binding (llama.cpp style). The model is loaded once per worker; every call
// gets an isolated inference context so parallel workers never share mutable
// decoder state.
//
// The runtime itself is injected behind the NativeRuntime interface: the
// process links whatever binding the host provides, and tests inject fakes.
// When no runtime is linked, or the runtime self-reports a degraded
// JavaScript/WASM fallback, the adapter demotes itself for the rest of the
// process and the engine falls through to the next backend.
//
// ============================================================================

package engine

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/ruvltra/ruvltra-go/pkg/types"
)

// NativeRuntime is the binding to a local inference library.
type NativeRuntime interface {
	// Version identifies the binding. A "-js" suffix marks the degraded
	// non-native fallback build.
	Version() string
	// LoadModel maps the model file into memory once.
	LoadModel(path string, opts NativeOptions) (NativeModel, error)
}

// NativeOptions tune the native model load.
type NativeOptions struct {
	ContextLength int
	GPULayers     int
	Threads       int
}

// NativeModel is a loaded model able to mint per-call contexts.
type NativeModel interface {
	// NativeLoaded reports whether real native code backs this model (as
	// opposed to an emulated fallback).
	NativeLoaded() bool
	NewContext() (NativeContext, error)
	Close()
}

// NativeContext is one isolated decoder state.
type NativeContext interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
	Close()
}

// NativeBackend generates through a per-worker loaded model.
type NativeBackend struct {
	readiness
	modelPath string
	opts      NativeOptions

	mu    sync.Mutex
	model NativeModel
}

// NewNativeBackend loads the model file once. rt may be nil when no binding
// is linked into the process; the adapter then reports itself unready with a
// note naming the dependency the host is missing.
func NewNativeBackend(rt NativeRuntime, modelPath string, opts NativeOptions) *NativeBackend {
	b := &NativeBackend{modelPath: modelPath, opts: opts}

	if modelPath == "" {
		b.setReady(false, "no model path configured")
		return b
	}
	if rt == nil {
		b.setReady(false, missingRuntimeNote())
		return b
	}
	if strings.HasSuffix(rt.Version(), "-js") {
		b.setReady(false, "runtime is the non-native fallback build; "+missingRuntimeNote())
		return b
	}
	if _, err := os.Stat(modelPath); err != nil {
		b.setReady(false, fmt.Sprintf("model file unavailable: %v", err))
		return b
	}

	model, err := rt.LoadModel(modelPath, opts)
	if err != nil {
		b.setReady(false, fmt.Sprintf("model load failed: %v", err))
		return b
	}
	if !model.NativeLoaded() {
		model.Close()
		b.setReady(false, "runtime loaded in degraded mode; "+missingRuntimeNote())
		return b
	}

	b.model = model
	b.setReady(true, "model loaded: "+modelPath)
	return b
}

// Kind implements Backend.
func (b *NativeBackend) Kind() types.BackendKind { return types.BackendNative }

// Generate runs one call on a fresh inference context. Cancellation is
// best-effort: it is checked before the call and the context is released on
// completion.
func (b *NativeBackend) Generate(ctx context.Context, p Prompt) (Generation, error) {
	b.mu.Lock()
	model := b.model
	b.mu.Unlock()
	if model == nil {
		return Generation{}, fmt.Errorf("native backend has no loaded model")
	}
	if err := ctx.Err(); err != nil {
		return Generation{}, err
	}

	ictx, err := model.NewContext()
	if err != nil {
		return Generation{}, fmt.Errorf("create inference context: %w", err)
	}
	defer ictx.Close()

	text, err := ictx.Generate(ctx, p.Text, p.MaxTokens, p.Temperature)
	if err != nil {
		return Generation{}, fmt.Errorf("native inference: %w", err)
	}
	if isDegradedOutput(text) {
		b.demote("self-reported fallback output; " + missingRuntimeNote())
		return Generation{}, fmt.Errorf("native backend produced degraded-mode output")
	}

	return Generation{Text: text, Model: "native:" + b.modelPath}, nil
}

// Close releases the loaded model.
func (b *NativeBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model != nil {
		b.model.Close()
		b.model = nil
	}
}

// missingRuntimeNote names the native dependency expected on this host.
func missingRuntimeNote() string {
	return fmt.Sprintf("install the native llama bindings for %s/%s", runtime.GOOS, runtime.GOARCH)
}

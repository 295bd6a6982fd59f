// ============================================================================
// Ruvltra Inference Engine - Embedded Learning Adapter
// ============================================================================
//
// Package: internal/engine
// File: embedded.go
// Purpose: Generation through an in-process learning runtime supplied as a
// callable. At initialization the adapter may trigger a one-time model
// download to a fixed directory outside any package cache (so reinstalls do
// not re-download). When enabled, every prompt/response pair is recorded into
// the runtime's trajectory hook with a fixed confidence.
//
// Degraded-mode detection: if the callable ever produces output that
// self-identifies as a fallback mode, the adapter demotes itself for the
// rest of the process and the call fails so the chain continues.
//
// ============================================================================

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ruvltra/ruvltra-go/pkg/types"
)

// trajectoryConfidence is the fixed confidence recorded with every
// prompt/response pair.
const trajectoryConfidence = 0.8

// degradedMarkers are the documented fallback-mode strings a degraded
// runtime emits in its output.
var degradedMarkers = []string{
	"[fallback mode]",
	"native bindings not loaded",
	"running in wasm fallback",
}

func isDegradedOutput(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range degradedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// EmbeddedGenerateFunc is the callable the in-process runtime exposes.
type EmbeddedGenerateFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

// TrajectoryHook records a prompt/response pair for later training.
type TrajectoryHook func(prompt, response string, confidence float64)

// EmbeddedOptions wire an embedded runtime into the adapter.
type EmbeddedOptions struct {
	Generate   EmbeddedGenerateFunc
	Trajectory TrajectoryHook
	ModelID    string

	// ModelDir is the fixed download target; Download fetches the model
	// into it on first use. Both optional.
	ModelDir string
	Download func(dir string) error
}

// EmbeddedBackend runs the in-process learning runtime.
type EmbeddedBackend struct {
	readiness
	generate   EmbeddedGenerateFunc
	trajectory TrajectoryHook
	modelID    string
}

// NewEmbeddedBackend initializes the adapter, performing the one-time model
// download when configured.
func NewEmbeddedBackend(opts EmbeddedOptions) *EmbeddedBackend {
	b := &EmbeddedBackend{
		generate:   opts.Generate,
		trajectory: opts.Trajectory,
		modelID:    opts.ModelID,
	}
	if b.modelID == "" {
		b.modelID = "embedded"
	}
	if opts.Generate == nil {
		b.setReady(false, "no embedded runtime provided")
		return b
	}

	if opts.ModelDir != "" && opts.Download != nil {
		if err := ensureModel(opts.ModelDir, opts.Download); err != nil {
			b.setReady(false, fmt.Sprintf("model download failed: %v", err))
			return b
		}
	}

	b.setReady(true, "embedded runtime ready")
	return b
}

// ensureModel downloads the model once; a marker file records completion so
// the download survives reinstalls without repeating.
func ensureModel(dir string, download func(dir string) error) error {
	marker := filepath.Join(dir, ".model-ready")
	if _, err := os.Stat(marker); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	if err := download(dir); err != nil {
		return err
	}
	return os.WriteFile(marker, []byte("ok\n"), 0o644)
}

// Kind implements Backend.
func (b *EmbeddedBackend) Kind() types.BackendKind { return types.BackendEmbedded }

// Generate invokes the runtime callable and records the trajectory.
func (b *EmbeddedBackend) Generate(ctx context.Context, p Prompt) (Generation, error) {
	if err := ctx.Err(); err != nil {
		return Generation{}, err
	}

	text, err := b.generate(ctx, p.Text, p.MaxTokens)
	if err != nil {
		return Generation{}, fmt.Errorf("embedded runtime: %w", err)
	}
	if isDegradedOutput(text) {
		b.demote("runtime self-identified fallback mode; " + missingRuntimeNote())
		return Generation{}, fmt.Errorf("embedded runtime produced degraded-mode output")
	}

	if b.trajectory != nil {
		b.trajectory(p.Text, text, trajectoryConfidence)
	}
	return Generation{Text: text, Model: b.modelID}, nil
}

package engine

// ============================================================================
// Native Adapter Test File
// Purpose: Verify readiness gating on the injected runtime, degraded-build
// detection, and permanent demotion on fallback output
// ============================================================================

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	version string
	model   *fakeModel
	loadErr error
}

func (r *fakeRuntime) Version() string { return r.version }

func (r *fakeRuntime) LoadModel(path string, opts NativeOptions) (NativeModel, error) {
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.model, nil
}

type fakeModel struct {
	native bool
	output string
	closed bool
}

func (m *fakeModel) NativeLoaded() bool { return m.native }
func (m *fakeModel) Close()             { m.closed = true }

func (m *fakeModel) NewContext() (NativeContext, error) {
	return &fakeContext{output: m.output}, nil
}

type fakeContext struct {
	output string
	closed bool
}

func (c *fakeContext) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	return c.output, nil
}

func (c *fakeContext) Close() { c.closed = true }

func modelFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.gguf")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))
	return path
}

// TestNativeUnreadyWithoutRuntime tests the missing-binding note.
func TestNativeUnreadyWithoutRuntime(t *testing.T) {
	b := NewNativeBackend(nil, modelFile(t), NativeOptions{})
	assert.False(t, b.Ready())
	assert.Contains(t, b.Note(), "install the native llama bindings")
}

// TestNativeUnreadyWithoutModelPath tests that no path means not ready.
func TestNativeUnreadyWithoutModelPath(t *testing.T) {
	b := NewNativeBackend(&fakeRuntime{version: "1.0.0"}, "", NativeOptions{})
	assert.False(t, b.Ready())
	assert.Contains(t, b.Note(), "no model path")
}

// TestNativeRejectsJSBuild tests that the degraded "-js" build is refused.
func TestNativeRejectsJSBuild(t *testing.T) {
	rt := &fakeRuntime{version: "3.2.1-js", model: &fakeModel{native: true}}
	b := NewNativeBackend(rt, modelFile(t), NativeOptions{})
	assert.False(t, b.Ready())
	assert.Contains(t, b.Note(), "non-native fallback build")
}

// TestNativeRejectsDegradedLoad tests demotion when the loaded model reports
// it is not backed by native code, releasing the handle.
func TestNativeRejectsDegradedLoad(t *testing.T) {
	model := &fakeModel{native: false}
	rt := &fakeRuntime{version: "1.0.0", model: model}
	b := NewNativeBackend(rt, modelFile(t), NativeOptions{})
	assert.False(t, b.Ready())
	assert.True(t, model.closed)
}

// TestNativeLoadErrorUnready tests that a load failure reports the cause.
func TestNativeLoadErrorUnready(t *testing.T) {
	rt := &fakeRuntime{version: "1.0.0", loadErr: errors.New("mmap failed")}
	b := NewNativeBackend(rt, modelFile(t), NativeOptions{})
	assert.False(t, b.Ready())
	assert.Contains(t, b.Note(), "mmap failed")
}

// TestNativeGenerate tests the ready path end to end.
func TestNativeGenerate(t *testing.T) {
	rt := &fakeRuntime{version: "1.0.0", model: &fakeModel{native: true, output: "native answer"}}
	path := modelFile(t)
	b := NewNativeBackend(rt, path, NativeOptions{ContextLength: 4096})
	require.True(t, b.Ready())

	gen, err := b.Generate(context.Background(), Prompt{Text: "p", MaxTokens: 32})
	require.NoError(t, err)
	assert.Equal(t, "native answer", gen.Text)
	assert.Equal(t, "native:"+path, gen.Model)
}

// TestNativeDemotesOnFallbackOutput tests permanent demotion when inference
// output self-identifies as a fallback mode.
func TestNativeDemotesOnFallbackOutput(t *testing.T) {
	rt := &fakeRuntime{version: "1.0.0", model: &fakeModel{
		native: true,
		output: "[Fallback Mode] pretending to be a model",
	}}
	b := NewNativeBackend(rt, modelFile(t), NativeOptions{})
	require.True(t, b.Ready())

	_, err := b.Generate(context.Background(), Prompt{Text: "p"})
	require.Error(t, err)
	assert.False(t, b.Ready())
}

// TestNativeCloseReleasesModel tests resource release.
func TestNativeCloseReleasesModel(t *testing.T) {
	model := &fakeModel{native: true, output: "x"}
	rt := &fakeRuntime{version: "1.0.0", model: model}
	b := NewNativeBackend(rt, modelFile(t), NativeOptions{})

	b.Close()
	assert.True(t, model.closed)

	_, err := b.Generate(context.Background(), Prompt{Text: "p"})
	assert.Error(t, err)
}

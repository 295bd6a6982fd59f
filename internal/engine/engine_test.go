package engine

// ============================================================================
// Engine Test File
// Purpose: Verify the ranked fallback chain: preference order, readiness
// skipping, totality via the mock, and cancellation short-circuiting
// ============================================================================

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ruvltra/ruvltra-go/internal/config"
	"github.com/ruvltra/ruvltra-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a scriptable adapter for chain tests.
type fakeBackend struct {
	readiness
	kind  types.BackendKind
	text  string
	err   error
	calls int
}

func newFakeBackend(kind types.BackendKind, ready bool, text string, err error) *fakeBackend {
	f := &fakeBackend{kind: kind, text: text, err: err}
	f.setReady(ready, "scripted")
	return f
}

func (f *fakeBackend) Kind() types.BackendKind { return f.kind }

func (f *fakeBackend) Generate(ctx context.Context, p Prompt) (Generation, error) {
	f.calls++
	if f.err != nil {
		return Generation{}, f.err
	}
	return Generation{Text: f.text, Model: string(f.kind) + "-model"}, nil
}

// ============================================================================
// Fallback Chain Tests
// ============================================================================

// TestFirstReadyBackendWins tests that the chain stops at the first success.
func TestFirstReadyBackendWins(t *testing.T) {
	first := newFakeBackend(types.BackendHTTP, true, "from http", nil)
	second := newFakeBackend(types.BackendNative, true, "from native", nil)
	e := NewWithBackends(first, second)

	res, err := e.Generate(context.Background(), Prompt{Text: "p"})
	require.NoError(t, err)
	assert.Equal(t, "from http", res.Text)
	assert.Equal(t, types.BackendHTTP, res.Backend)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
	assert.Equal(t, types.BackendHTTP, e.ActiveBackend())
}

// TestFailureFallsThrough tests that a failing backend hands over to the
// next one in order.
func TestFailureFallsThrough(t *testing.T) {
	first := newFakeBackend(types.BackendHTTP, true, "", errors.New("remote down"))
	second := newFakeBackend(types.BackendEmbedded, true, "from embedded", nil)
	e := NewWithBackends(first, second)

	res, err := e.Generate(context.Background(), Prompt{Text: "p"})
	require.NoError(t, err)
	assert.Equal(t, types.BackendEmbedded, res.Backend)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, types.BackendEmbedded, e.ActiveBackend())
}

// TestUnreadyBackendSkipped tests that readiness gates attempts entirely.
func TestUnreadyBackendSkipped(t *testing.T) {
	unready := newFakeBackend(types.BackendHTTP, false, "never", nil)
	ready := newFakeBackend(types.BackendMock, true, "from mock", nil)
	e := NewWithBackends(unready, ready)

	res, err := e.Generate(context.Background(), Prompt{Text: "p"})
	require.NoError(t, err)
	assert.Equal(t, types.BackendMock, res.Backend)
	assert.Equal(t, 0, unready.calls)
}

// TestAllBackendsFailed tests that the last error survives to the caller.
func TestAllBackendsFailed(t *testing.T) {
	lastErr := errors.New("final failure")
	e := NewWithBackends(
		newFakeBackend(types.BackendHTTP, true, "", errors.New("first failure")),
		newFakeBackend(types.BackendNative, true, "", lastErr),
	)

	_, err := e.Generate(context.Background(), Prompt{Text: "p"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, lastErr))
	assert.Contains(t, err.Error(), "all backends failed")
}

// TestCancellationStopsChain tests that a cancelled task never starts the
// next backend.
func TestCancellationStopsChain(t *testing.T) {
	second := newFakeBackend(types.BackendMock, true, "never reached", nil)
	e := NewWithBackends(
		newFakeBackend(types.BackendHTTP, true, "", context.Canceled),
		second,
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Generate(ctx, Prompt{Text: "p"})
	require.Error(t, err)
	assert.Equal(t, 0, second.calls)
}

// TestDefaultConfigIsTotal tests that with nothing configured the chain
// still answers, via the mock.
func TestDefaultConfigIsTotal(t *testing.T) {
	cfg := config.Default()
	cfg.Mock.LatencyMs = 1
	e := New(cfg, Extras{})
	defer e.Close()

	res, err := e.Generate(context.Background(), Prompt{Text: "anything at all"})
	require.NoError(t, err)
	assert.Equal(t, types.BackendMock, res.Backend)
	assert.Contains(t, res.Text, "[mock response]")
}

// TestStatesReportEveryAdapter tests the diagnostic view.
func TestStatesReportEveryAdapter(t *testing.T) {
	cfg := config.Default()
	e := New(cfg, Extras{})
	defer e.Close()

	states := e.States()
	require.Len(t, states, 4)
	assert.Equal(t, types.BackendHTTP, states[0].Kind)
	assert.Equal(t, types.BackendNative, states[1].Kind)
	assert.Equal(t, types.BackendEmbedded, states[2].Kind)
	assert.Equal(t, types.BackendMock, states[3].Kind)
	assert.True(t, states[3].Ready)
}

// ============================================================================
// Mock Backend Tests
// ============================================================================

// TestMockDeterministicExcerpt tests the canned-answer shape.
func TestMockDeterministicExcerpt(t *testing.T) {
	m := NewMockBackend(0)
	long := strings.Repeat("x", 200)

	gen, err := m.Generate(context.Background(), Prompt{Text: long})
	require.NoError(t, err)
	assert.Equal(t, "ruvltra-mock", gen.Model)
	assert.True(t, strings.HasPrefix(gen.Text, "[mock response] "))
	assert.Contains(t, gen.Text, "...")

	again, err := m.Generate(context.Background(), Prompt{Text: long})
	require.NoError(t, err)
	assert.Equal(t, gen.Text, again.Text)
}

// TestMockHonoursCancellation tests that the simulated latency aborts early.
func TestMockHonoursCancellation(t *testing.T) {
	m := NewMockBackend(5 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.Generate(ctx, Prompt{Text: "p"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

// ============================================================================
// Prompt Rendering Tests
// ============================================================================

// TestRenderPrompt tests the canonical prompt layout.
func TestRenderPrompt(t *testing.T) {
	prompt := RenderPrompt(types.GenerateRequest{
		TaskKind: types.TaskReview,
		Language: "go",
		FilePath: "internal/server.go",
		Context:  "func main() {}",
	}, "check error paths")

	assert.True(t, strings.HasPrefix(prompt, "Task: review\n"))
	assert.Contains(t, prompt, "Language: go\n")
	assert.Contains(t, prompt, "File: internal/server.go\n")
	assert.Contains(t, prompt, "Instruction:\ncheck error paths\n")
	assert.Contains(t, prompt, "Context:\nfunc main() {}\n")
	assert.True(t, strings.HasSuffix(prompt, "Return only the final answer, with no preamble."))
}

// TestRenderPromptOmitsEmptySections tests that optional lines disappear.
func TestRenderPromptOmitsEmptySections(t *testing.T) {
	prompt := RenderPrompt(types.GenerateRequest{TaskKind: types.TaskGenerate}, "do it")
	assert.NotContains(t, prompt, "Language:")
	assert.NotContains(t, prompt, "File:")
	assert.NotContains(t, prompt, "Context:")
}

package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/ruvltra/ruvltra-go/pkg/types"
)

// mockModelID is reported as the model of every mock generation.
const mockModelID = "ruvltra-mock"

// MockBackend is the deterministic last-resort backend. It is always ready,
// so the fallback chain is total: no request is ever rejected for lack of a
// backend.
type MockBackend struct {
	readiness
	latency time.Duration
}

// NewMockBackend creates a mock backend with the given simulated latency.
func NewMockBackend(latency time.Duration) *MockBackend {
	m := &MockBackend{latency: latency}
	m.setReady(true, "always ready")
	return m
}

// Kind implements Backend.
func (m *MockBackend) Kind() types.BackendKind { return types.BackendMock }

// Generate sleeps the configured latency (with a small prompt-derived jitter,
// so tests stay deterministic) and returns a clearly marked canned answer.
// Cancellation is honoured during the sleep.
func (m *MockBackend) Generate(ctx context.Context, p Prompt) (Generation, error) {
	delay := m.latency + jitterFor(p.Text, m.latency/4)

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Generation{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Generation{}, err
	}

	excerpt := p.Text
	if len(excerpt) > 80 {
		excerpt = excerpt[:80] + "..."
	}
	return Generation{
		Text:  fmt.Sprintf("[mock response] %s", excerpt),
		Model: mockModelID,
	}, nil
}

// jitterFor derives a stable jitter in [0, span] from the prompt text.
func jitterFor(text string, span time.Duration) time.Duration {
	if span <= 0 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	return time.Duration(h.Sum32()) % span
}

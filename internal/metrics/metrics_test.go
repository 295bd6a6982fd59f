package metrics

// ============================================================================
// Metrics Test File
// Purpose: Verify counter/gauge recording and the Prometheus text exposition
// ============================================================================

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

// TestCountersAppearInExposition tests that recorded events show up.
func TestCountersAppearInExposition(t *testing.T) {
	c := NewCollector()

	c.RecordSubmitted()
	c.RecordSubmitted()
	c.RecordCompleted(0.25)
	c.RecordFailed()
	c.RecordTimedOut()
	c.RecordCancelled()
	c.RecordRejected()
	c.UpdatePoolStats(3, 1, 4)

	body := scrape(t, c)
	assert.Contains(t, body, "ruvltra_tasks_submitted_total 2")
	assert.Contains(t, body, "ruvltra_tasks_completed_total 1")
	assert.Contains(t, body, "ruvltra_tasks_failed_total 1")
	assert.Contains(t, body, "ruvltra_tasks_timed_out_total 1")
	assert.Contains(t, body, "ruvltra_tasks_cancelled_total 1")
	assert.Contains(t, body, "ruvltra_tasks_rejected_total 1")
	assert.Contains(t, body, "ruvltra_queue_length 3")
	assert.Contains(t, body, "ruvltra_tasks_in_flight 1")
	assert.Contains(t, body, "ruvltra_workers 4")
	assert.True(t, strings.Contains(body, "ruvltra_task_latency_seconds_count 1"))
}

// TestIndependentRegistries tests that two collectors never collide.
func TestIndependentRegistries(t *testing.T) {
	a := NewCollector()
	b := NewCollector()

	a.RecordSubmitted()

	assert.Contains(t, scrape(t, a), "ruvltra_tasks_submitted_total 1")
	assert.Contains(t, scrape(t, b), "ruvltra_tasks_submitted_total 0")
}

package sona

// ============================================================================
// Pattern Memory Persistence Test File
// Purpose: Verify snapshot round-trips, atomic writes, and tolerance to
// corrupt or mismatched snapshot files
// ============================================================================

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruvltra/ruvltra-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPersistRoundTrip tests that a restarted worker with the same id
// restores its learned patterns.
func TestPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()

	m := NewMemory("worker-1", dir, 1)
	for i := 0; i < 5; i++ {
		m.Record(Interaction{
			Request: types.GenerateRequest{
				TaskKind:    types.TaskGenerate,
				Instruction: "prefer dependency injection",
				Language:    "go",
			},
			Response: "ok",
			Success:  true,
		})
	}
	before, ok := m.Lookup("lang:go")
	require.True(t, ok)

	// New instance, same worker id: state comes back.
	restored := NewMemory("worker-1", dir, 1)
	after, ok := restored.Lookup("lang:go")
	require.True(t, ok)
	assert.Equal(t, before.Hits, after.Hits)
	assert.InDelta(t, before.Score, after.Score, 1e-9)
	assert.InDelta(t, before.Importance, after.Importance, 1e-9)
	assert.Equal(t, int64(5), restored.Stats().Interactions)

	// A different worker id starts empty.
	other := NewMemory("worker-2", dir, 1)
	assert.Equal(t, 0, other.PatternCount())
}

// TestFlushWritesVersionedSnapshot tests the on-disk format.
func TestFlushWritesVersionedSnapshot(t *testing.T) {
	dir := t.TempDir()

	m := NewMemory("worker-1", dir, 1000)
	m.Record(Interaction{
		Request: types.GenerateRequest{
			TaskKind:    types.TaskReview,
			Instruction: "watch for data races",
		},
		Response: "ok",
		Success:  true,
	})
	m.Flush()

	raw, err := os.ReadFile(filepath.Join(dir, "worker-1.json"))
	require.NoError(t, err)

	var snap snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, SchemaVersion, snap.Version)
	assert.Equal(t, "worker-1", snap.WorkerID)
	assert.NotEmpty(t, snap.Patterns)

	// No temp file left behind.
	_, err = os.Stat(filepath.Join(dir, "worker-1.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

// TestLoadIgnoresCorruptFile tests that a torn or garbage snapshot leaves
// the worker empty instead of failing startup.
func TestLoadIgnoresCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worker-1.json"), []byte("{not json"), 0o644))

	m := NewMemory("worker-1", dir, 1)
	assert.Equal(t, 0, m.PatternCount())
	assert.Equal(t, int64(0), m.Stats().Interactions)
}

// TestLoadIgnoresVersionMismatch tests that an unknown schema version is
// skipped entirely.
func TestLoadIgnoresVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	snap := snapshot{
		Version:  "sona-v0",
		WorkerID: "worker-1",
		Patterns: []Pattern{{Key: "task:general", Score: 0.9, Importance: 0.9, Hits: 3}},
	}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worker-1.json"), raw, 0o644))

	m := NewMemory("worker-1", dir, 1)
	assert.Equal(t, 0, m.PatternCount())
}

// TestLoadSkipsMalformedRecords tests per-record validation and clamping.
func TestLoadSkipsMalformedRecords(t *testing.T) {
	dir := t.TempDir()
	snap := snapshot{
		Version:  SchemaVersion,
		WorkerID: "worker-1",
		Patterns: []Pattern{
			{Key: "", Score: 0.5, Hits: 1},                                  // missing key
			{Key: "kw:negative", Score: 0.5, Hits: -1},                      // negative hits
			{Key: "kw:outofrange", Score: 7.5, Importance: -2.0, Hits: 2},   // clamped
			{Key: "task:general", Score: 0.6, Importance: 0.4, Hits: 4},     // valid
		},
	}
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worker-1.json"), raw, 0o644))

	m := NewMemory("worker-1", dir, 1)
	assert.Equal(t, 2, m.PatternCount())

	clamped, ok := m.Lookup("kw:outofrange")
	require.True(t, ok)
	assert.Equal(t, scoreCeil, clamped.Score)
	assert.Equal(t, importanceFloor, clamped.Importance)
}

// TestPersistenceDisabled tests that dir=="" never touches the filesystem.
func TestPersistenceDisabled(t *testing.T) {
	m := NewMemory("worker-1", "", 1)
	assert.Equal(t, "", m.StatePath())

	m.Record(Interaction{
		Request: types.GenerateRequest{TaskKind: types.TaskGenerate, Instruction: "anything"},
		Success: true,
	})
	m.Flush()
	assert.Greater(t, m.PatternCount(), 0)
}

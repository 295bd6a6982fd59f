package sona

// ============================================================================
// Responsibilities:
// 1. Serialize one worker's pattern memory to <dir>/<workerId>.json
// 2. Atomic writes (temp file + rename) so a crash never leaves a torn file
// 3. Tolerant loading: version mismatch, parse failure or malformed records
//    mean the worker simply starts empty - a flush must never take a worker
//    down, and a corrupt snapshot must never block startup
// ============================================================================

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// SchemaVersion tags the on-disk snapshot format. Only a matching version is
// loaded.
const SchemaVersion = "sona-v1"

// snapshot is the versioned on-disk form of a Memory.
type snapshot struct {
	Version            string    `json:"version"`
	WorkerID           string    `json:"worker_id"`
	Interactions       int64     `json:"interactions"`
	Successes          int64     `json:"successes"`
	Consolidations     int64     `json:"consolidations"`
	LastConsolidatedMs int64     `json:"last_consolidated_ms"`
	Patterns           []Pattern `json:"patterns"`
}

// Flush consolidates and persists the memory immediately. Called on worker
// removal and pool shutdown. Disk errors are logged and swallowed.
func (m *Memory) Flush() {
	if m.dir == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consolidateLocked()
	m.persistLocked()
}

// StatePath returns the snapshot file path for this worker, or "" when
// persistence is disabled.
func (m *Memory) StatePath() string {
	if m.dir == "" {
		return ""
	}
	return filepath.Join(m.dir, m.workerID+".json")
}

// persistLocked writes the snapshot atomically. Caller holds m.mu.
func (m *Memory) persistLocked() {
	m.sincePersist = 0

	snap := snapshot{
		Version:            SchemaVersion,
		WorkerID:           m.workerID,
		Interactions:       m.interactions,
		Successes:          m.successes,
		Consolidations:     m.consolidations,
		LastConsolidatedMs: m.lastConsolidatedMs,
		Patterns:           make([]Pattern, 0, len(m.patterns)),
	}
	for _, p := range m.patterns {
		snap.Patterns = append(snap.Patterns, *p)
	}

	if err := writeSnapshot(m.StatePath(), snap); err != nil {
		slog.Error("Failed to persist pattern memory",
			"workerID", m.workerID, "error", err)
	}
}

func writeSnapshot(path string, snap snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// load restores a previously persisted snapshot. Anything malformed is
// ignored record-by-record; an unreadable or mismatched file leaves the
// memory empty.
func (m *Memory) load() {
	path := m.StatePath()
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read pattern memory snapshot",
				"workerID", m.workerID, "error", err)
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		slog.Warn("Ignoring corrupt pattern memory snapshot",
			"workerID", m.workerID, "path", path, "error", err)
		return
	}
	if snap.Version != SchemaVersion {
		slog.Warn("Ignoring pattern memory snapshot with unknown version",
			"workerID", m.workerID, "version", snap.Version)
		return
	}

	loaded := 0
	for _, p := range snap.Patterns {
		if p.Key == "" || p.Hits < 0 || p.Successes < 0 {
			continue
		}
		pattern := p
		pattern.Score = clamp(pattern.Score, scoreFloor, scoreCeil)
		pattern.Importance = clamp(pattern.Importance, importanceFloor, importanceCeil)
		m.patterns[pattern.Key] = &pattern
		loaded++
	}

	m.interactions = snap.Interactions
	m.successes = snap.Successes
	m.consolidations = snap.Consolidations
	m.lastConsolidatedMs = snap.LastConsolidatedMs

	slog.Info("Pattern memory restored",
		"workerID", m.workerID, "patterns", loaded,
		"interactions", m.interactions)
}

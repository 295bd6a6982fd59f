// ============================================================================
// Ruvltra SONA - Per-Worker Pattern Memory
// ============================================================================
//
// Package: internal/sona
// File: memory.go
// Purpose: Online pattern store that each worker accumulates from its own
// interactions and uses to prepend learned preference hints to future
// instructions.
//
// Pattern update law (memory protection):
//   q = clamp(base + tokenBonus - latencyPenalty - promptPenalty, 0.05, 1.0)
//   plasticity p = max(0.05, 1 - importance)
//   score      <- score*(1-a) + q*a,  a = 0.28*p
//   importance <- clamp(importance*0.97 + g, 0.05, 0.99)
//
// High-importance patterns learn more slowly; successful hits both pull the
// score toward q and cement the pattern. Memory is strictly per worker so a
// noisy worker cannot contaminate the pool.
//
// Consolidation:
//   Every 20 interactions (and before every persist) low-value and stale
//   patterns are swept, and the map is capped at 600 entries by evicting the
//   worst ranked. The store can therefore never grow without bound.
//
// ============================================================================

package sona

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ruvltra/ruvltra-go/pkg/types"
)

// Tunables of the scoring and consolidation laws.
const (
	scoreFloor      = 0.01
	scoreCeil       = 1.0
	importanceFloor = 0.05
	importanceCeil  = 0.99

	qualityBaseSuccess = 0.8
	qualityBaseFailure = 0.2
	latencyPenaltyCap  = 0.4
	tokenBonusCap      = 0.15
	promptPenaltyCap   = 0.08

	learningRate   = 0.28
	importanceGain = 0.06
	importanceDrip = 0.01
	importanceDecy = 0.97

	consolidateEvery = 20
	maxPatterns      = 600

	maxKeywordKeys   = 6
	minKeywordLength = 4
)

// Pattern is one learned record: a derived key plus four numbers.
type Pattern struct {
	Key          string  `json:"key"`
	Score        float64 `json:"score"`
	Importance   float64 `json:"importance"`
	Hits         int64   `json:"hits"`
	Successes    int64   `json:"successes"`
	LastSeenAtMs int64   `json:"last_seen_at_ms"`
}

// Interaction is one completed generation, as seen by the worker's memory.
// Instruction is the original instruction, not the rewritten one.
type Interaction struct {
	Request   types.GenerateRequest
	Response  string
	Success   bool
	LatencyMs int64
	Usage     types.TokenUsage
}

// Memory is one worker's pattern store.
//
// The worker runs one task at a time, so updates are naturally sequential,
// but stats queries and the shutdown flush arrive from the pool; the mutex
// keeps those readers consistent.
type Memory struct {
	mu       sync.RWMutex
	workerID string

	patterns map[string]*Pattern

	interactions       int64
	successes          int64
	consolidations     int64
	lastConsolidatedMs int64

	// Persistence; dir == "" disables it.
	dir             string
	persistInterval int
	sincePersist    int

	now func() time.Time
}

// NewMemory creates an empty memory for workerID. If dir is non-empty the
// previously persisted snapshot (if any) is loaded and the memory persists
// itself every persistInterval interactions.
func NewMemory(workerID, dir string, persistInterval int) *Memory {
	if persistInterval < 1 {
		persistInterval = 1
	}
	m := &Memory{
		workerID:        workerID,
		patterns:        make(map[string]*Pattern),
		dir:             dir,
		persistInterval: persistInterval,
		now:             time.Now,
	}
	if dir != "" {
		m.load()
	}
	return m
}

// Record folds one interaction into the store.
func (m *Memory) Record(it Interaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowMs := m.now().UnixMilli()
	q := qualityScore(it)

	for _, key := range extractKeys(it) {
		p, ok := m.patterns[key]
		if !ok {
			p = &Pattern{Key: key, Score: 0.5, Importance: importanceFloor}
			m.patterns[key] = p
		}

		p.Hits++
		if it.Success {
			p.Successes++
		}
		p.LastSeenAtMs = nowMs

		plasticity := 1 - p.Importance
		if plasticity < 0.05 {
			plasticity = 0.05
		}
		alpha := learningRate * plasticity
		p.Score = clamp(p.Score*(1-alpha)+q*alpha, scoreFloor, scoreCeil)

		gain := importanceDrip
		if it.Success {
			gain = importanceGain
		}
		p.Importance = clamp(p.Importance*importanceDecy+gain, importanceFloor, importanceCeil)
	}

	m.interactions++
	if it.Success {
		m.successes++
	}

	consolidated := false
	if m.interactions%consolidateEvery == 0 {
		m.consolidateLocked()
		consolidated = true
	}

	if m.dir != "" {
		m.sincePersist++
		if consolidated || m.sincePersist >= m.persistInterval {
			m.persistLocked()
		}
	}
}

// qualityScore estimates how good one interaction was, in [0.05, 1.0].
func qualityScore(it Interaction) float64 {
	base := qualityBaseFailure
	if it.Success {
		base = qualityBaseSuccess
	}
	latencyPenalty := min(float64(it.LatencyMs)/12000, latencyPenaltyCap)
	tokenBonus := 0.0
	if it.Usage.CompletionTokens > 0 {
		tokenBonus = min(float64(it.Usage.CompletionTokens)/1600, tokenBonusCap)
	}
	promptPenalty := 0.0
	if it.Usage.PromptTokens > 0 {
		promptPenalty = min(float64(it.Usage.PromptTokens)/8000, promptPenaltyCap)
	}
	return clamp(base+tokenBonus-latencyPenalty-promptPenalty, 0.05, 1.0)
}

// extractKeys derives the deduplicated key set of an interaction.
func extractKeys(it Interaction) []string {
	seen := make(map[string]struct{})
	var keys []string
	add := func(k string) {
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	add("task:" + string(it.Request.TaskKind))
	add("task:general")

	if lang := strings.ToLower(strings.TrimSpace(it.Request.Language)); lang != "" {
		add("lang:" + lang)
	}
	if path := it.Request.FilePath; path != "" {
		segments := strings.Split(path, ".")
		ext := strings.ToLower(segments[len(segments)-1])
		if ext != "" {
			add("fileext:" + ext)
		}
	}

	kwCount := 0
	for _, word := range splitWords(it.Request.Instruction) {
		if kwCount >= maxKeywordKeys {
			break
		}
		if len(word) < minKeywordLength {
			continue
		}
		key := "kw:" + word
		if _, dup := seen[key]; dup {
			continue
		}
		add(key)
		kwCount++
	}

	if strings.Contains(it.Response, "try") && strings.Contains(it.Response, "catch") {
		add("pattern:error-handling")
	}
	if strings.Contains(it.Response, "interface ") || strings.Contains(it.Response, "type ") {
		add("pattern:typed-api")
	}

	return keys
}

// splitWords lowercases and splits on every non-alphanumeric-underscore rune,
// preserving first-seen order.
func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return false
		}
		return true
	})
}

// Consolidate sweeps stale and low-value patterns and enforces the ceiling.
func (m *Memory) Consolidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consolidateLocked()
}

func (m *Memory) consolidateLocked() {
	nowMs := m.now().UnixMilli()

	for key, p := range m.patterns {
		ageMinutes := float64(nowMs-p.LastSeenAtMs) / 60000
		value := 0.65*p.Score + 0.35*p.Importance
		if (p.Hits <= 1 && ageMinutes > 30) || (value < 0.22 && ageMinutes > 10) {
			delete(m.patterns, key)
		}
	}

	if len(m.patterns) > maxPatterns {
		ranked := make([]*Pattern, 0, len(m.patterns))
		for _, p := range m.patterns {
			ranked = append(ranked, p)
		}
		sort.Slice(ranked, func(i, j int) bool {
			return rank(ranked[i]) < rank(ranked[j])
		})
		for _, p := range ranked[:len(ranked)-maxPatterns] {
			delete(m.patterns, p.Key)
		}
	}

	m.consolidations++
	m.lastConsolidatedMs = nowMs
}

func rank(p *Pattern) float64 { return 0.7*p.Score + 0.3*p.Importance }

// Rewrite prepends up to three learned preference hints to instruction.
// With no applicable patterns the instruction comes back unchanged.
func (m *Memory) Rewrite(instruction string, kind types.TaskKind, language string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	taskKey := "task:" + string(kind)
	langKey := ""
	if lang := strings.ToLower(strings.TrimSpace(language)); lang != "" {
		langKey = "lang:" + lang
	}

	var candidates []*Pattern
	for key, p := range m.patterns {
		switch {
		case key == taskKey, key == "task:general":
		case langKey != "" && key == langKey:
		case strings.HasPrefix(key, "kw:"), strings.HasPrefix(key, "pattern:"):
		default:
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return instruction
	}

	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := rank(candidates[i]), rank(candidates[j])
		if ri != rj {
			return ri > rj
		}
		return candidates[i].Key < candidates[j].Key
	})
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	var b strings.Builder
	b.WriteString("Apply these learned project preferences before answering:\n")
	for i, p := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, directive(p.Key))
	}
	b.WriteString("\n")
	b.WriteString(instruction)
	return b.String()
}

// directive maps a pattern key to a short natural-language hint.
func directive(key string) string {
	switch {
	case key == "task:general":
		return "Optimize the response for general code assistance."
	case strings.HasPrefix(key, "task:"):
		return fmt.Sprintf("Optimize the response for the %q task.", strings.TrimPrefix(key, "task:"))
	case strings.HasPrefix(key, "lang:"):
		return fmt.Sprintf("Use idiomatic %s style.", strings.TrimPrefix(key, "lang:"))
	case strings.HasPrefix(key, "fileext:"):
		return fmt.Sprintf("Match the formatting conventions of .%s files.", strings.TrimPrefix(key, "fileext:"))
	case strings.HasPrefix(key, "kw:"):
		return fmt.Sprintf("Respect prior preferences around %q.", strings.TrimPrefix(key, "kw:"))
	case key == "pattern:error-handling":
		return "Include defensive error handling."
	case key == "pattern:typed-api":
		return "Keep API contracts explicit and typed."
	default:
		return fmt.Sprintf("Respect the established pattern %q.", key)
	}
}

// Stats reports a snapshot of this memory.
func (m *Memory) Stats() types.MemoryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ranked := make([]*Pattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		ranked = append(ranked, p)
	}
	sort.Slice(ranked, func(i, j int) bool {
		ri, rj := rank(ranked[i]), rank(ranked[j])
		if ri != rj {
			return ri > rj
		}
		return ranked[i].Key < ranked[j].Key
	})
	topKeys := make([]string, 0, 5)
	for _, p := range ranked {
		if len(topKeys) == 5 {
			break
		}
		topKeys = append(topKeys, p.Key)
	}

	return types.MemoryStats{
		WorkerID:           m.workerID,
		Interactions:       m.interactions,
		Successes:          m.successes,
		Patterns:           len(m.patterns),
		Consolidations:     m.consolidations,
		LastConsolidatedMs: m.lastConsolidatedMs,
		TopKeys:            topKeys,
	}
}

// PatternCount reports how many patterns the memory currently holds.
func (m *Memory) PatternCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.patterns)
}

// Lookup returns a copy of the pattern stored for key.
func (m *Memory) Lookup(key string) (Pattern, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patterns[key]
	if !ok {
		return Pattern{}, false
	}
	return *p, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ============================================================================
// Ruvltra Inference Engine - Remote HTTP Adapter
// ============================================================================
//
// Package: internal/engine
// File: http.go
// Purpose: Generation against a remote HTTP model API, with
//
//	- circuit breaker: open circuits fail fast without a wire call
//	- bounded retries with exponential backoff + jitter
//	- two wire shapes: chat-completions ("openai") and raw completion
//	  ("llama"), configured or auto-inferred from the endpoint path
//
// Retry policy:
//
//	Retryable:     transport errors (timeout, connection reset, fetch
//	               failure) and HTTP 408 / 429 / 5xx
//	Non-retryable: any other 4xx, or a well-formed body without content
//
// Backoff between attempts is retryBase * 2^attempt, clamped to 15s, plus
// up to 50ms of random jitter. The breaker's failure counter counts calls
// that exhausted their retries, not individual attempts.
//
// ============================================================================

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/ruvltra/ruvltra-go/internal/config"
	"github.com/ruvltra/ruvltra-go/pkg/types"
)

// Sentinel errors of the HTTP adapter.
var (
	// ErrCircuitOpen means the breaker refused the call before any wire
	// traffic happened.
	ErrCircuitOpen = errors.New("http backend circuit is open")
	// ErrEmptyResponse means the API answered 200 with a well-formed body
	// that carries no generated content.
	ErrEmptyResponse = errors.New("http backend returned no content")
)

const (
	backoffCap  = 15 * time.Second
	jitterSpan  = 50 * time.Millisecond
	healthyNote = "healthy"
)

// HTTPConfig is the wiring of one HTTP backend instance.
type HTTPConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Format     config.HTTPFormat
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
	Breaker    *CircuitBreaker
}

// HTTPBackend generates text via a remote model API.
type HTTPBackend struct {
	readiness
	cfg     HTTPConfig
	format  config.HTTPFormat
	client  *http.Client
	breaker *CircuitBreaker
}

// NewHTTPBackend creates the remote adapter. It is ready iff an endpoint is
// configured. The wire format is resolved once, here.
func NewHTTPBackend(cfg HTTPConfig) *HTTPBackend {
	b := &HTTPBackend{
		cfg:     cfg,
		format:  resolveFormat(cfg.Format, cfg.Endpoint),
		client:  &http.Client{},
		breaker: cfg.Breaker,
	}
	if b.breaker == nil {
		b.breaker = NewCircuitBreaker(5, 30*time.Second)
	}
	if cfg.Endpoint == "" {
		b.setReady(false, "no endpoint configured")
	} else {
		b.setReady(true, "configured: "+cfg.Endpoint)
	}
	return b
}

// Kind implements Backend.
func (b *HTTPBackend) Kind() types.BackendKind { return types.BackendHTTP }

// Breaker exposes the circuit state for diagnostics.
func (b *HTTPBackend) Breaker() *CircuitBreaker { return b.breaker }

// Generate performs up to MaxRetries+1 tries against the remote API.
func (b *HTTPBackend) Generate(ctx context.Context, p Prompt) (Generation, error) {
	if !b.breaker.Allow() {
		b.setNote(fmt.Sprintf("circuit open until %s", b.breaker.RetryAt().Format(time.RFC3339)))
		return Generation{}, ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, b.cfg.RetryBase, attempt-1); err != nil {
				// Cancelled while backing off: not a backend failure.
				return Generation{}, err
			}
		}

		gen, retryable, err := b.tryOnce(ctx, p)
		if err == nil {
			b.breaker.OnSuccess()
			b.setNote(healthyNote)
			return gen, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Cancellation is the caller's doing, not the backend's health.
			if ctx.Err() != nil {
				return Generation{}, err
			}
		}
		if !retryable {
			break
		}
	}

	b.breaker.OnFailure()
	b.setNote(fmt.Sprintf("last failure: %v", lastErr))
	return Generation{}, fmt.Errorf("http backend: %w", lastErr)
}

// tryOnce performs one wire call under a per-try timeout joined with the
// task's cancellation.
func (b *HTTPBackend) tryOnce(ctx context.Context, p Prompt) (Generation, bool, error) {
	tryCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	body, err := b.buildBody(p)
	if err != nil {
		return Generation{}, false, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(tryCtx, http.MethodPost, b.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Generation{}, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		// Transport failure (timeout, reset, refused): retryable.
		return Generation{}, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Generation{}, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusRequestTimeout ||
			resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode >= 500
		return Generation{}, retryable, fmt.Errorf("http status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	gen, err := b.parseBody(raw)
	if err != nil {
		// Well-formed 200 without content fails fast.
		return Generation{}, false, err
	}
	return gen, false, nil
}

// buildBody renders the request for the negotiated wire shape.
func (b *HTTPBackend) buildBody(p Prompt) ([]byte, error) {
	if b.format == config.FormatLlama {
		return json.Marshal(map[string]any{
			"prompt":      p.Text,
			"n_predict":   p.MaxTokens,
			"temperature": p.Temperature,
		})
	}
	return json.Marshal(map[string]any{
		"model": b.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": p.Text},
		},
		"max_tokens":  p.MaxTokens,
		"temperature": p.Temperature,
	})
}

// parseBody extracts the generated text and optional token usage.
func (b *HTTPBackend) parseBody(raw []byte) (Generation, error) {
	if b.format == config.FormatOpenAI {
		var parsed struct {
			Model   string `json:"model"`
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
			Usage struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return Generation{}, fmt.Errorf("decode response: %w", err)
		}
		if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
			return Generation{}, ErrEmptyResponse
		}
		model := parsed.Model
		if model == "" {
			model = b.cfg.Model
		}
		return Generation{
			Text:  parsed.Choices[0].Message.Content,
			Model: model,
			Usage: types.TokenUsage{
				PromptTokens:     parsed.Usage.PromptTokens,
				CompletionTokens: parsed.Usage.CompletionTokens,
			},
		}, nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Generation{}, fmt.Errorf("decode response: %w", err)
	}
	text, ok := findTextField(decoded)
	if !ok || text == "" {
		return Generation{}, ErrEmptyResponse
	}
	gen := Generation{Text: text, Model: b.cfg.Model}
	if obj, isMap := decoded.(map[string]any); isMap {
		if n, found := intField(obj, "tokens_evaluated"); found {
			gen.Usage.PromptTokens = n
		}
		if n, found := intField(obj, "tokens_predicted"); found {
			gen.Usage.CompletionTokens = n
		}
	}
	return gen, nil
}

// rawTextFields are searched recursively, in this priority order, for the
// generated text of a raw-completion response.
var rawTextFields = []string{"content", "text", "response", "completion", "generated_text", "output"}

func findTextField(v any) (string, bool) {
	for _, field := range rawTextFields {
		if s, ok := deepFindString(v, field); ok {
			return s, true
		}
	}
	return "", false
}

// deepFindString walks maps and arrays for the first string value under key.
func deepFindString(v any, key string) (string, bool) {
	switch node := v.(type) {
	case map[string]any:
		if s, ok := node[key].(string); ok {
			return s, true
		}
		for _, child := range node {
			if s, ok := deepFindString(child, key); ok {
				return s, true
			}
		}
	case []any:
		for _, child := range node {
			if s, ok := deepFindString(child, key); ok {
				return s, true
			}
		}
	}
	return "", false
}

func intField(obj map[string]any, key string) (int, bool) {
	if f, ok := obj[key].(float64); ok {
		return int(f), true
	}
	return 0, false
}

// resolveFormat picks the wire shape, inferring from the endpoint path when
// configured as auto. Chat-completions is the default.
func resolveFormat(format config.HTTPFormat, endpoint string) config.HTTPFormat {
	if format == config.FormatOpenAI || format == config.FormatLlama {
		return format
	}
	lower := strings.ToLower(endpoint)
	switch {
	case strings.Contains(lower, "/chat/completions"), strings.Contains(lower, "/v1/completions"):
		return config.FormatOpenAI
	case strings.Contains(lower, "/completion"), strings.Contains(lower, "/generate"):
		return config.FormatLlama
	default:
		return config.FormatOpenAI
	}
}

// sleepBackoff waits base * 2^attempt (capped) plus jitter, or returns early
// when ctx is cancelled.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	delay := base << attempt
	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}
	delay += time.Duration(rand.Int63n(int64(jitterSpan)))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

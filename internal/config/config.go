// ============================================================================
// Ruvltra Config - Operator Configuration Surface
// ============================================================================
//
// Package: internal/config
// File: config.go
// Purpose: Typed configuration for the execution core, loaded in three layers:
//
//	1. Compiled-in defaults (Default())
//	2. Optional YAML config file (--config / RUVLTRA_CONFIG)
//	3. RUVLTRA_* environment variable overrides
//
// Every numeric value is clamped to a sane range after loading; a malformed
// file or environment value falls back to the default instead of failing
// startup. The field names are a contract for operators and must not change.
//
// ============================================================================

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// HTTPFormat selects the wire shape of the remote model API.
type HTTPFormat string

// Supported wire shapes. Auto infers from the endpoint path.
const (
	FormatAuto   HTTPFormat = "auto"
	FormatOpenAI HTTPFormat = "openai"
	FormatLlama  HTTPFormat = "llama"
)

// Config is the complete operator-facing configuration.
type Config struct {
	Pool struct {
		MinWorkers     int   `yaml:"min_workers"`
		MaxWorkers     int   `yaml:"max_workers"`
		InitialWorkers int   `yaml:"initial_workers"`
		QueueMaxLength int   `yaml:"queue_max_length"`
		TaskTimeoutMs  int64 `yaml:"task_timeout_ms"`
	} `yaml:"pool"`

	Sona struct {
		Enabled         bool   `yaml:"enabled"`
		StateDir        string `yaml:"state_dir"`
		PersistInterval int    `yaml:"persist_interval"`
	} `yaml:"sona"`

	HTTP struct {
		Endpoint                string     `yaml:"endpoint"`
		APIKey                  string     `yaml:"api_key"`
		Model                   string     `yaml:"model"`
		Format                  HTTPFormat `yaml:"format"`
		TimeoutMs               int64      `yaml:"timeout_ms"`
		MaxRetries              int        `yaml:"max_retries"`
		RetryBaseMs             int64      `yaml:"retry_base_ms"`
		CircuitFailureThreshold int        `yaml:"circuit_failure_threshold"`
		CircuitCooldownMs       int64      `yaml:"circuit_cooldown_ms"`
	} `yaml:"http"`

	Native struct {
		ModelPath     string `yaml:"model_path"`
		ContextLength int    `yaml:"context_length"`
		GPULayers     int    `yaml:"gpu_layers"`
		Threads       int    `yaml:"threads"`
	} `yaml:"native"`

	Generation struct {
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"generation"`

	Mock struct {
		LatencyMs int64 `yaml:"latency_ms"`
	} `yaml:"mock"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the compiled-in defaults.
func Default() Config {
	var c Config
	c.Pool.MinWorkers = 2
	c.Pool.MaxWorkers = 8
	c.Pool.InitialWorkers = 2
	c.Pool.QueueMaxLength = 256
	c.Pool.TaskTimeoutMs = 60000

	c.Sona.Enabled = true
	c.Sona.PersistInterval = 10

	c.HTTP.Format = FormatAuto
	c.HTTP.TimeoutMs = 15000
	c.HTTP.MaxRetries = 2
	c.HTTP.RetryBaseMs = 250
	c.HTTP.CircuitFailureThreshold = 5
	c.HTTP.CircuitCooldownMs = 30000

	c.Native.ContextLength = 4096
	c.Native.GPULayers = -1
	c.Native.Threads = 0

	c.Generation.MaxTokens = 512
	c.Generation.Temperature = 0.2

	c.Mock.LatencyMs = 120

	c.Metrics.Enabled = false
	c.Metrics.Port = 9090

	c.LogLevel = "info"
	return c
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if non-empty and readable), then environment overrides, then
// clamping. A broken file is logged and ignored.
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = os.Getenv("RUVLTRA_CONFIG")
	}
	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			slog.Warn("Config file ignored", "path", path, "error", err)
			cfg = Default()
		}
	}

	applyEnv(&cfg)
	cfg.Clamp()
	return cfg
}

func mergeFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// applyEnv overlays RUVLTRA_* environment variables. Unparseable values are
// skipped so a typo cannot take the service down.
func applyEnv(c *Config) {
	envInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envInt64 := func(key string, dst *int64) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	envFloat := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	envStr := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	envBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	envInt("RUVLTRA_MIN_WORKERS", &c.Pool.MinWorkers)
	envInt("RUVLTRA_MAX_WORKERS", &c.Pool.MaxWorkers)
	envInt("RUVLTRA_INITIAL_WORKERS", &c.Pool.InitialWorkers)
	envInt("RUVLTRA_QUEUE_MAX_LENGTH", &c.Pool.QueueMaxLength)
	envInt64("RUVLTRA_TASK_TIMEOUT_MS", &c.Pool.TaskTimeoutMs)

	envBool("RUVLTRA_SONA_ENABLED", &c.Sona.Enabled)
	envStr("RUVLTRA_SONA_STATE_DIR", &c.Sona.StateDir)
	envInt("RUVLTRA_SONA_PERSIST_INTERVAL", &c.Sona.PersistInterval)

	envStr("RUVLTRA_HTTP_ENDPOINT", &c.HTTP.Endpoint)
	envStr("RUVLTRA_HTTP_API_KEY", &c.HTTP.APIKey)
	envStr("RUVLTRA_HTTP_MODEL", &c.HTTP.Model)
	if v, ok := os.LookupEnv("RUVLTRA_HTTP_FORMAT"); ok {
		c.HTTP.Format = HTTPFormat(strings.ToLower(v))
	}
	envInt64("RUVLTRA_HTTP_TIMEOUT_MS", &c.HTTP.TimeoutMs)
	envInt("RUVLTRA_HTTP_MAX_RETRIES", &c.HTTP.MaxRetries)
	envInt64("RUVLTRA_HTTP_RETRY_BASE_MS", &c.HTTP.RetryBaseMs)
	envInt("RUVLTRA_HTTP_CIRCUIT_FAILURE_THRESHOLD", &c.HTTP.CircuitFailureThreshold)
	envInt64("RUVLTRA_HTTP_CIRCUIT_COOLDOWN_MS", &c.HTTP.CircuitCooldownMs)

	envStr("RUVLTRA_MODEL_PATH", &c.Native.ModelPath)
	envInt("RUVLTRA_CONTEXT_LENGTH", &c.Native.ContextLength)
	envInt("RUVLTRA_GPU_LAYERS", &c.Native.GPULayers)
	envInt("RUVLTRA_THREADS", &c.Native.Threads)

	envInt("RUVLTRA_MAX_TOKENS", &c.Generation.MaxTokens)
	envFloat("RUVLTRA_TEMPERATURE", &c.Generation.Temperature)

	envInt64("RUVLTRA_MOCK_LATENCY_MS", &c.Mock.LatencyMs)

	envBool("RUVLTRA_METRICS_ENABLED", &c.Metrics.Enabled)
	envInt("RUVLTRA_METRICS_PORT", &c.Metrics.Port)

	envStr("RUVLTRA_LOG_LEVEL", &c.LogLevel)
}

// Clamp forces every value into its legal range.
func (c *Config) Clamp() {
	clampInt(&c.Pool.MinWorkers, 1, 64)
	clampInt(&c.Pool.MaxWorkers, c.Pool.MinWorkers, 64)
	clampInt(&c.Pool.InitialWorkers, c.Pool.MinWorkers, c.Pool.MaxWorkers)
	clampInt(&c.Pool.QueueMaxLength, 1, 100000)
	clampInt64(&c.Pool.TaskTimeoutMs, 1, 3600000)

	clampInt(&c.Sona.PersistInterval, 1, 10000)

	switch c.HTTP.Format {
	case FormatAuto, FormatOpenAI, FormatLlama:
	default:
		c.HTTP.Format = FormatAuto
	}
	clampInt64(&c.HTTP.TimeoutMs, 1, 600000)
	clampInt(&c.HTTP.MaxRetries, 0, 10)
	clampInt64(&c.HTTP.RetryBaseMs, 1, 60000)
	clampInt(&c.HTTP.CircuitFailureThreshold, 1, 1000)
	clampInt64(&c.HTTP.CircuitCooldownMs, 1, 3600000)

	clampInt(&c.Native.ContextLength, 256, 1<<20)
	clampInt(&c.Native.GPULayers, -1, 4096)
	clampInt(&c.Native.Threads, 0, 1024)

	clampInt(&c.Generation.MaxTokens, 1, 65536)
	if c.Generation.Temperature < 0 {
		c.Generation.Temperature = 0
	}
	if c.Generation.Temperature > 2 {
		c.Generation.Temperature = 2
	}

	clampInt64(&c.Mock.LatencyMs, 0, 60000)

	clampInt(&c.Metrics.Port, 1, 65535)
}

// SlogLevel maps the configured log level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func clampInt(v *int, lo, hi int) {
	if *v < lo {
		*v = lo
	}
	if *v > hi {
		*v = hi
	}
}

func clampInt64(v *int64, lo, hi int64) {
	if *v < lo {
		*v = lo
	}
	if *v > hi {
		*v = hi
	}
}

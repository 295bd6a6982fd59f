// ============================================================================
// Ruvltra Tool Catalog
// ============================================================================
//
// Package: internal/mcp
// File: tools.go
// Purpose: The fixed catalog of ruvltra_* tools the server advertises via
// tools/list: names, human descriptions and JSON Schemas for input and
// output. The schemas document the mediator's contract; validation itself
// lives in mediator.go.
//
// ============================================================================

package mcp

// Tool is one catalog entry.
type Tool struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	InputSchema  map[string]any `json:"inputSchema"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func number(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func obj(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// provenanceProps are the fields every single-task result carries.
func provenanceProps(resultField, resultDesc string) map[string]any {
	return map[string]any{
		resultField: str(resultDesc),
		"taskId":    str("Task identifier assigned on admission"),
		"workerId":  str("Worker that executed the task"),
		"backend":   str("Backend that produced the answer"),
		"model":     str("Model identifier reported by the backend"),
		"latencyMs": integer("End-to-end latency in milliseconds"),
	}
}

// commonInputProps are the optional knobs every generation tool accepts.
func commonInputProps() map[string]any {
	return map[string]any{
		"language":    str("Programming language of the code involved"),
		"filePath":    str("Path of the file the task concerns"),
		"maxTokens":   integer("Generation cap, 1 to 65536"),
		"temperature": number("Sampling temperature, 0 to 2"),
		"timeoutMs":   integer("Per-task deadline override in milliseconds"),
	}
}

func withCommon(props map[string]any) map[string]any {
	for k, v := range commonInputProps() {
		props[k] = v
	}
	return props
}

// Catalog returns the advertised tool set in a stable order.
func Catalog() []Tool {
	return []Tool{
		{
			Name:        "ruvltra_code_generate",
			Description: "Generate code from a free-form instruction, with optional surrounding context.",
			InputSchema: obj([]string{"instruction"}, withCommon(map[string]any{
				"instruction": str("What to generate"),
				"context":     str("Surrounding code or project context"),
				"code":        str("Alias for context: existing code to build on"),
			})),
			OutputSchema: obj(nil, provenanceProps("output", "Generated code or text")),
		},
		{
			Name:        "ruvltra_code_review",
			Description: "Review code for correctness, security and maintainability issues.",
			InputSchema: obj([]string{"code"}, withCommon(map[string]any{
				"code":        str("Code to review"),
				"instruction": str("Additional review goal"),
			})),
			OutputSchema: obj(nil, provenanceProps("review", "Review findings")),
		},
		{
			Name:        "ruvltra_code_refactor",
			Description: "Refactor code for clarity and structure without changing behavior.",
			InputSchema: obj([]string{"code"}, withCommon(map[string]any{
				"code":        str("Code to refactor"),
				"instruction": str("Refactoring goal"),
			})),
			OutputSchema: obj(nil, provenanceProps("refactored", "Refactored code")),
		},
		{
			Name:        "ruvltra_code_explain",
			Description: "Explain what a piece of code does, optionally for a target audience.",
			InputSchema: obj([]string{"code"}, withCommon(map[string]any{
				"code":     str("Code to explain"),
				"audience": str("Target audience, e.g. beginner or expert"),
			})),
			OutputSchema: obj(nil, provenanceProps("explanation", "Explanation of the code")),
		},
		{
			Name:        "ruvltra_code_test",
			Description: "Write unit tests for a piece of code, optionally with a named framework.",
			InputSchema: obj([]string{"code"}, withCommon(map[string]any{
				"code":      str("Code under test"),
				"framework": str("Test framework to target"),
			})),
			OutputSchema: obj(nil, provenanceProps("tests", "Generated tests")),
		},
		{
			Name:        "ruvltra_code_fix",
			Description: "Fix code that fails with a given error message.",
			InputSchema: obj([]string{"code", "error"}, withCommon(map[string]any{
				"code":  str("Failing code"),
				"error": str("Error message or failure description"),
			})),
			OutputSchema: obj(nil, provenanceProps("fix", "Fixed code")),
		},
		{
			Name:        "ruvltra_code_complete",
			Description: "Continue code from a prefix.",
			InputSchema: obj([]string{"prefix"}, withCommon(map[string]any{
				"prefix": str("Code to continue from"),
			})),
			OutputSchema: obj(nil, provenanceProps("completion", "Continuation of the prefix")),
		},
		{
			Name:        "ruvltra_code_translate",
			Description: "Translate code to another programming language, preserving behavior.",
			InputSchema: obj([]string{"code", "targetLanguage"}, withCommon(map[string]any{
				"code":           str("Code to translate"),
				"targetLanguage": str("Language to translate into"),
			})),
			OutputSchema: obj(nil, provenanceProps("translated", "Translated code")),
		},
		{
			Name:        "ruvltra_parallel_generate",
			Description: "Run several independent generation tasks concurrently and return per-task results in submission order.",
			InputSchema: obj([]string{"tasks"}, map[string]any{
				"tasks": map[string]any{
					"type":        "array",
					"minItems":    1,
					"description": "Independent generation tasks",
					"items": obj([]string{"instruction"}, map[string]any{
						"instruction": str("What to generate"),
						"filePath":    str("Path of the file this task concerns"),
						"context":     str("Surrounding code or project context"),
						"language":    str("Programming language"),
					}),
				},
				"timeoutMs": integer("Per-task deadline override applied to every task"),
			}),
			OutputSchema: obj(nil, map[string]any{
				"totalTasks":     integer("Number of tasks submitted"),
				"totalLatencyMs": integer("Wall-clock time for the whole batch"),
				"results": map[string]any{
					"type":        "array",
					"description": "Per-task outcomes, ordered as submitted",
				},
			}),
		},
		{
			Name:        "ruvltra_swarm_review",
			Description: "Review the same code concurrently from several perspectives (default: security, performance, quality, maintainability; at most 8).",
			InputSchema: obj([]string{"code"}, map[string]any{
				"code": str("Code to review"),
				"perspectives": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Review angles; defaults to security, performance, quality, maintainability",
				},
				"language":  str("Programming language"),
				"timeoutMs": integer("Per-task deadline override applied to every perspective"),
			}),
			OutputSchema: obj(nil, map[string]any{
				"perspectives":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"totalLatencyMs": integer("Wall-clock time for the whole swarm"),
				"reviews": map[string]any{
					"type":        "array",
					"description": "Per-perspective reviews, ordered as the perspectives",
				},
			}),
		},
		{
			Name:         "ruvltra_status",
			Description:  "Report the pool's current status: worker count, queue length, task counters, per-worker stats.",
			InputSchema:  obj(nil, map[string]any{}),
			OutputSchema: obj(nil, map[string]any{"status": map[string]any{"type": "object"}}),
		},
		{
			Name:        "ruvltra_sona_stats",
			Description: "Report pattern-memory statistics, for all workers or one.",
			InputSchema: obj(nil, map[string]any{
				"workerId": str("Restrict to one worker"),
			}),
			OutputSchema: obj(nil, map[string]any{"sona": map[string]any{"type": "array"}}),
		},
		{
			Name:        "ruvltra_scale_workers",
			Description: "Resize the worker pool to a target size, clamped to the configured bounds.",
			InputSchema: obj([]string{"target"}, map[string]any{
				"target": integer("Desired worker count"),
			}),
			OutputSchema: obj(nil, map[string]any{"status": map[string]any{"type": "object"}}),
		},
	}
}

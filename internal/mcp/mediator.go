// ============================================================================
// Ruvltra Tool Mediator - Tool Arguments to Generation Requests
// ============================================================================
//
// Package: internal/mcp
// File: mediator.go
// Purpose: The one boundary where untyped transport input lives. Every tool
// call is validated here (required fields, types, non-empty strings, integer
// ranges), composed into a normalized GenerateRequest via a fixed per-tool
// instruction template, and submitted to the pool. Everything past this file
// is statically typed.
//
// Fan-out tools (parallel_generate, swarm_review) submit multiple
// independent tasks concurrently; one failing item never cancels siblings.
//
// ============================================================================

package mcp

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ruvltra/ruvltra-go/pkg/types"
)

// maxSwarmPerspectives caps a swarm review.
const maxSwarmPerspectives = 8

// defaultPerspectives are used when a swarm review names none.
var defaultPerspectives = []string{"security", "performance", "quality", "maintainability"}

// Executor is the pool surface the mediator needs.
type Executor interface {
	Submit(req types.GenerateRequest) (types.TaskResult, error)
	Status() types.PoolStatus
	SonaStats(workerID string) []types.MemoryStats
	Scale(target int) types.PoolStatus
}

// Mediator translates per-tool shapes into pool submissions.
type Mediator struct {
	exec Executor
}

// NewMediator wires a mediator to its executor.
func NewMediator(exec Executor) *Mediator {
	return &Mediator{exec: exec}
}

// argError marks an invalid-params condition; the server maps it to a
// protocol-level error instead of a tool-result envelope.
type argError struct{ msg string }

func (e *argError) Error() string { return e.msg }

func badArgs(format string, args ...any) error {
	return &argError{msg: fmt.Sprintf(format, args...)}
}

// Call dispatches one tool invocation. The returned map is the structured
// payload; a task-level failure comes back as (payload, taskErr) with a nil
// argError, so the server can shape the isError envelope.
func (m *Mediator) Call(name string, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}

	switch name {
	case "ruvltra_code_generate":
		return m.generate(args)
	case "ruvltra_code_review":
		return m.singleCodeTool(args, types.TaskReview, "review",
			"Review the following code for correctness, security and maintainability. Point out concrete problems and suggest fixes.")
	case "ruvltra_code_refactor":
		return m.singleCodeTool(args, types.TaskRefactor, "refactored",
			"Refactor the following code to improve clarity and structure without changing its behavior.")
	case "ruvltra_code_explain":
		return m.explain(args)
	case "ruvltra_code_test":
		return m.test(args)
	case "ruvltra_code_fix":
		return m.fix(args)
	case "ruvltra_code_complete":
		return m.complete(args)
	case "ruvltra_code_translate":
		return m.translate(args)
	case "ruvltra_parallel_generate":
		return m.parallelGenerate(args)
	case "ruvltra_swarm_review":
		return m.swarmReview(args)
	case "ruvltra_status":
		return map[string]any{"status": m.exec.Status()}, nil
	case "ruvltra_sona_stats":
		workerID, err := optString(args, "workerId")
		if err != nil {
			return nil, err
		}
		return map[string]any{"sona": m.exec.SonaStats(workerID)}, nil
	case "ruvltra_scale_workers":
		target, ok, err := optInt(args, "target")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, badArgs("target is required")
		}
		return map[string]any{"status": m.exec.Scale(target)}, nil
	default:
		return nil, badArgs("unknown tool: %s", name)
	}
}

// ============================================================================
// Single-task tools
// ============================================================================

func (m *Mediator) generate(args map[string]any) (map[string]any, error) {
	instruction, err := reqString(args, "instruction")
	if err != nil {
		return nil, err
	}
	req := types.GenerateRequest{
		TaskKind:    types.TaskGenerate,
		Instruction: instruction,
	}
	if err := applyCommon(&req, args); err != nil {
		return nil, err
	}
	if req.Context == "" {
		code, err := optString(args, "code")
		if err != nil {
			return nil, err
		}
		req.Context = code
	}

	result, taskErr := m.exec.Submit(req)
	if taskErr != nil {
		return nil, taskErr
	}
	return map[string]any{
		"output":    result.Output,
		"workerId":  result.WorkerID,
		"backend":   result.Backend,
		"model":     result.Model,
		"latencyMs": result.LatencyMs,
		"taskId":    result.TaskID,
	}, nil
}

// singleCodeTool covers review and refactor: required code, a fixed
// instruction template, result under resultField.
func (m *Mediator) singleCodeTool(args map[string]any, kind types.TaskKind, resultField, template string) (map[string]any, error) {
	code, err := reqString(args, "code")
	if err != nil {
		return nil, err
	}

	instruction := template
	if goal, err := optString(args, "instruction"); err != nil {
		return nil, err
	} else if goal != "" {
		instruction += " Goal: " + goal
	}

	req := types.GenerateRequest{
		TaskKind:    kind,
		Instruction: instruction,
		Context:     code,
	}
	if err := applyCommon(&req, args); err != nil {
		return nil, err
	}
	return m.submitShaped(req, resultField)
}

func (m *Mediator) explain(args map[string]any) (map[string]any, error) {
	code, err := reqString(args, "code")
	if err != nil {
		return nil, err
	}
	audience, err := optString(args, "audience")
	if err != nil {
		return nil, err
	}

	instruction := "Explain what the following code does and why."
	if audience != "" {
		instruction += fmt.Sprintf(" Write for a %s audience.", audience)
	}

	req := types.GenerateRequest{
		TaskKind:    types.TaskExplain,
		Instruction: instruction,
		Context:     code,
	}
	if err := applyCommon(&req, args); err != nil {
		return nil, err
	}
	return m.submitShaped(req, "explanation")
}

func (m *Mediator) test(args map[string]any) (map[string]any, error) {
	code, err := reqString(args, "code")
	if err != nil {
		return nil, err
	}
	framework, err := optString(args, "framework")
	if err != nil {
		return nil, err
	}

	instruction := "Write thorough unit tests for the following code, covering edge cases."
	if framework != "" {
		instruction += fmt.Sprintf(" Use the %s framework.", framework)
	}

	req := types.GenerateRequest{
		TaskKind:    types.TaskTest,
		Instruction: instruction,
		Context:     code,
	}
	if err := applyCommon(&req, args); err != nil {
		return nil, err
	}
	return m.submitShaped(req, "tests")
}

func (m *Mediator) fix(args map[string]any) (map[string]any, error) {
	code, err := reqString(args, "code")
	if err != nil {
		return nil, err
	}
	errMsg, err := reqString(args, "error")
	if err != nil {
		return nil, err
	}

	req := types.GenerateRequest{
		TaskKind: types.TaskFix,
		Instruction: fmt.Sprintf(
			"Fix the following code. It currently fails with this error:\n%s", errMsg),
		Context: code,
	}
	if err := applyCommon(&req, args); err != nil {
		return nil, err
	}
	return m.submitShaped(req, "fix")
}

func (m *Mediator) complete(args map[string]any) (map[string]any, error) {
	prefix, err := reqString(args, "prefix")
	if err != nil {
		return nil, err
	}

	req := types.GenerateRequest{
		TaskKind:    types.TaskComplete,
		Instruction: "Continue the following code naturally from where it stops.",
		Context:     prefix,
	}
	if err := applyCommon(&req, args); err != nil {
		return nil, err
	}
	return m.submitShaped(req, "completion")
}

func (m *Mediator) translate(args map[string]any) (map[string]any, error) {
	code, err := reqString(args, "code")
	if err != nil {
		return nil, err
	}
	target, err := reqString(args, "targetLanguage")
	if err != nil {
		return nil, err
	}

	req := types.GenerateRequest{
		TaskKind:    types.TaskTranslate,
		Instruction: fmt.Sprintf("Translate the following code to %s, preserving behavior.", target),
		Context:     code,
		Language:    target,
	}
	if err := applyCommon(&req, args); err != nil {
		return nil, err
	}
	req.Language = target

	return m.submitShaped(req, "translated")
}

// submitShaped runs one task and shapes the result with the standard
// provenance envelope.
func (m *Mediator) submitShaped(req types.GenerateRequest, resultField string) (map[string]any, error) {
	result, err := m.exec.Submit(req)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		resultField: result.Output,
		"workerId":  result.WorkerID,
		"backend":   result.Backend,
		"model":     result.Model,
		"latencyMs": result.LatencyMs,
		"taskId":    result.TaskID,
	}, nil
}

// ============================================================================
// Fan-out tools
// ============================================================================

func (m *Mediator) parallelGenerate(args map[string]any) (map[string]any, error) {
	rawTasks, ok := args["tasks"].([]any)
	if !ok || len(rawTasks) == 0 {
		return nil, badArgs("tasks must be a non-empty array")
	}

	timeoutMs, _, err := optInt64(args, "timeoutMs")
	if err != nil {
		return nil, err
	}

	type item struct {
		req      types.GenerateRequest
		filePath string
	}
	items := make([]item, 0, len(rawTasks))
	for i, raw := range rawTasks {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, badArgs("tasks[%d] must be an object", i)
		}
		instruction, err := reqString(entry, "instruction")
		if err != nil {
			return nil, badArgs("tasks[%d]: %v", i, err)
		}
		filePath, err := optString(entry, "filePath")
		if err != nil {
			return nil, badArgs("tasks[%d]: %v", i, err)
		}
		ctx, err := optString(entry, "context")
		if err != nil {
			return nil, badArgs("tasks[%d]: %v", i, err)
		}
		lang, err := optString(entry, "language")
		if err != nil {
			return nil, badArgs("tasks[%d]: %v", i, err)
		}
		items = append(items, item{
			filePath: filePath,
			req: types.GenerateRequest{
				TaskKind:    types.TaskGenerate,
				Instruction: instruction,
				Context:     ctx,
				Language:    lang,
				FilePath:    filePath,
				TimeoutMs:   timeoutMs,
			},
		})
	}

	start := time.Now()
	results := make([]map[string]any, len(items))
	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			result, err := m.exec.Submit(items[idx].req)
			results[idx] = fanOutEntry(result, err)
			if items[idx].filePath != "" {
				results[idx]["filePath"] = items[idx].filePath
			}
		}(i)
	}
	wg.Wait()

	return map[string]any{
		"totalTasks":     len(items),
		"totalLatencyMs": time.Since(start).Milliseconds(),
		"results":        results,
	}, nil
}

func (m *Mediator) swarmReview(args map[string]any) (map[string]any, error) {
	code, err := reqString(args, "code")
	if err != nil {
		return nil, err
	}
	timeoutMs, _, err := optInt64(args, "timeoutMs")
	if err != nil {
		return nil, err
	}
	language, err := optString(args, "language")
	if err != nil {
		return nil, err
	}

	perspectives := defaultPerspectives
	if raw, present := args["perspectives"]; present {
		list, ok := raw.([]any)
		if !ok || len(list) == 0 {
			return nil, badArgs("perspectives must be a non-empty array of strings")
		}
		perspectives = make([]string, 0, len(list))
		for i, entry := range list {
			s, ok := entry.(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil, badArgs("perspectives[%d] must be a non-empty string", i)
			}
			perspectives = append(perspectives, s)
		}
	}
	if len(perspectives) > maxSwarmPerspectives {
		perspectives = perspectives[:maxSwarmPerspectives]
	}

	start := time.Now()
	reviews := make([]map[string]any, len(perspectives))
	var wg sync.WaitGroup
	for i, perspective := range perspectives {
		wg.Add(1)
		go func(idx int, perspective string) {
			defer wg.Done()
			result, err := m.exec.Submit(types.GenerateRequest{
				TaskKind: types.TaskReview,
				Instruction: fmt.Sprintf(
					"Review the following code strictly from a %s perspective. Report only findings relevant to %s.",
					perspective, perspective),
				Context:   code,
				Language:  language,
				TimeoutMs: timeoutMs,
			})
			entry := fanOutEntry(result, err)
			entry["perspective"] = perspective
			reviews[idx] = entry
		}(i, perspective)
	}
	wg.Wait()

	return map[string]any{
		"perspectives":   perspectives,
		"totalLatencyMs": time.Since(start).Milliseconds(),
		"reviews":        reviews,
	}, nil
}

// fanOutEntry shapes one fan-out item with per-item provenance; item
// failures are reported in place, never propagated to siblings.
func fanOutEntry(result types.TaskResult, err error) map[string]any {
	if err != nil {
		return map[string]any{
			"error": err.Error(),
		}
	}
	return map[string]any{
		"output":    result.Output,
		"workerId":  result.WorkerID,
		"backend":   result.Backend,
		"latencyMs": result.LatencyMs,
	}
}

// ============================================================================
// Argument helpers
// ============================================================================

func reqString(args map[string]any, key string) (string, error) {
	raw, present := args[key]
	if !present {
		return "", badArgs("%s is required", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", badArgs("%s must be a string", key)
	}
	if strings.TrimSpace(s) == "" {
		return "", badArgs("%s must not be empty", key)
	}
	return s, nil
}

func optString(args map[string]any, key string) (string, error) {
	raw, present := args[key]
	if !present {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", badArgs("%s must be a string", key)
	}
	return s, nil
}

func optInt(args map[string]any, key string) (int, bool, error) {
	raw, present := args[key]
	if !present {
		return 0, false, nil
	}
	f, ok := raw.(float64)
	if !ok || f != float64(int(f)) {
		return 0, false, badArgs("%s must be an integer", key)
	}
	return int(f), true, nil
}

func optInt64(args map[string]any, key string) (int64, bool, error) {
	n, present, err := optInt(args, key)
	if err != nil {
		return 0, false, err
	}
	if present && n < 0 {
		return 0, false, badArgs("%s must be non-negative", key)
	}
	return int64(n), present, nil
}

// applyCommon overlays the optional fields every tool accepts.
func applyCommon(req *types.GenerateRequest, args map[string]any) error {
	lang, err := optString(args, "language")
	if err != nil {
		return err
	}
	if lang != "" {
		req.Language = lang
	}

	filePath, err := optString(args, "filePath")
	if err != nil {
		return err
	}
	if filePath != "" {
		req.FilePath = filePath
	}

	ctx, err := optString(args, "context")
	if err != nil {
		return err
	}
	if ctx != "" {
		req.Context = ctx
	}

	if n, present, err := optInt(args, "maxTokens"); err != nil {
		return err
	} else if present {
		if n < 1 || n > 65536 {
			return badArgs("maxTokens must be in [1, 65536]")
		}
		req.MaxTokens = n
	}

	if raw, present := args["temperature"]; present {
		f, ok := raw.(float64)
		if !ok || f < 0 || f > 2 {
			return badArgs("temperature must be a number in [0, 2]")
		}
		req.Temperature = f
	}

	if ms, present, err := optInt64(args, "timeoutMs"); err != nil {
		return err
	} else if present {
		req.TimeoutMs = ms
	}
	return nil
}

package mcp

// ============================================================================
// MCP Server Test File
// Purpose: Verify the JSON-RPC 2.0 framing: handshake, catalog listing,
// tool-call envelopes, and the protocol error mapping
// ============================================================================

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/ruvltra/ruvltra-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runServer feeds newline-delimited requests through a server backed by the
// given executor and returns the decoded responses keyed by request id.
func runServer(t *testing.T, exec Executor, lines ...string) map[string]map[string]any {
	t.Helper()

	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	srv := NewServer(NewMediator(exec), in, &out, logger)
	require.NoError(t, srv.Run())

	responses := make(map[string]map[string]any)
	dec := json.NewDecoder(&out)
	for dec.More() {
		var resp map[string]any
		require.NoError(t, dec.Decode(&resp))
		id := "null"
		if raw, ok := resp["id"]; ok && raw != nil {
			idBytes, _ := json.Marshal(raw)
			id = string(idBytes)
		}
		responses[id] = resp
	}
	return responses
}

// TestInitializeHandshake tests the initialize result shape.
func TestInitializeHandshake(t *testing.T) {
	responses := runServer(t, &fakeExecutor{},
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)

	resp := responses["1"]
	require.NotNil(t, resp)
	result := resp["result"].(map[string]any)
	assert.Equal(t, protocolVersion, result["protocolVersion"])

	info := result["serverInfo"].(map[string]any)
	assert.Equal(t, "ruvltra", info["name"])

	caps := result["capabilities"].(map[string]any)
	assert.Contains(t, caps, "tools")
}

// TestToolsList tests that the full catalog is advertised.
func TestToolsList(t *testing.T) {
	responses := runServer(t, &fakeExecutor{},
		`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)

	result := responses["7"]["result"].(map[string]any)
	tools := result["tools"].([]any)
	assert.Len(t, tools, 13)

	names := make(map[string]bool)
	for _, raw := range tools {
		tool := raw.(map[string]any)
		names[tool["name"].(string)] = true
		assert.Contains(t, tool, "inputSchema")
	}
	assert.True(t, names["ruvltra_code_generate"])
	assert.True(t, names["ruvltra_swarm_review"])
	assert.True(t, names["ruvltra_scale_workers"])
}

// TestToolsCallEnvelope tests a successful call: text content plus the
// structured payload.
func TestToolsCallEnvelope(t *testing.T) {
	responses := runServer(t, &fakeExecutor{},
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"ruvltra_code_generate","arguments":{"instruction":"write a parser"}}}`)

	result := responses["2"]["result"].(map[string]any)
	assert.Nil(t, result["isError"])

	content := result["content"].([]any)
	require.Len(t, content, 1)
	item := content[0].(map[string]any)
	assert.Equal(t, "text", item["type"])

	var embedded map[string]any
	require.NoError(t, json.Unmarshal([]byte(item["text"].(string)), &embedded))
	assert.Equal(t, "worker-1", embedded["workerId"])

	structured := result["structuredContent"].(map[string]any)
	assert.Equal(t, "worker-1", structured["workerId"])
	assert.Contains(t, structured, "output")
}

// TestToolsCallInvalidArguments tests the -32602 mapping for bad arguments.
func TestToolsCallInvalidArguments(t *testing.T) {
	responses := runServer(t, &fakeExecutor{},
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"ruvltra_code_generate","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"ruvltra_nope","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{}}`)

	for _, id := range []string{"3", "4", "5"} {
		resp := responses[id]
		require.NotNil(t, resp, "response %s", id)
		rpcErr := resp["error"].(map[string]any)
		assert.Equal(t, float64(codeInvalidParams), rpcErr["code"], "response %s", id)
	}
}

// TestTaskFailureIsErrorEnvelope tests that a settled task failure comes
// back as a tool result with isError, not a protocol error.
func TestTaskFailureIsErrorEnvelope(t *testing.T) {
	exec := &fakeExecutor{failWhen: func(req types.GenerateRequest) error {
		return types.NewTaskError(types.ErrKindTimeout, "task exceeded 100ms deadline", nil)
	}}
	responses := runServer(t, exec,
		`{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"ruvltra_code_generate","arguments":{"instruction":"slow"}}}`)

	resp := responses["6"]
	require.NotNil(t, resp)
	assert.Nil(t, resp["error"])

	result := resp["result"].(map[string]any)
	assert.Equal(t, true, result["isError"])
	content := result["content"].([]any)
	require.Len(t, content, 1)
	assert.Contains(t, content[0].(map[string]any)["text"], "timeout")
}

// TestMethodNotFound tests the -32601 mapping.
func TestMethodNotFound(t *testing.T) {
	responses := runServer(t, &fakeExecutor{},
		`{"jsonrpc":"2.0","id":8,"method":"resources/list"}`)

	rpcErr := responses["8"]["error"].(map[string]any)
	assert.Equal(t, float64(codeMethodNotFound), rpcErr["code"])
}

// TestParseError tests the -32700 mapping for an unparseable line.
func TestParseError(t *testing.T) {
	responses := runServer(t, &fakeExecutor{}, `{this is not json`)

	resp := responses["null"]
	require.NotNil(t, resp)
	rpcErr := resp["error"].(map[string]any)
	assert.Equal(t, float64(codeParseError), rpcErr["code"])
}

// TestNotificationGetsNoResponse tests that id-less messages are consumed
// silently.
func TestNotificationGetsNoResponse(t *testing.T) {
	responses := runServer(t, &fakeExecutor{},
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":9,"method":"ping"}`)

	assert.Len(t, responses, 1)
	assert.Contains(t, responses, "9")
}

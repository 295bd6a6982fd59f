// ============================================================================
// Ruvltra MCP Server - JSON-RPC 2.0 over stdio
// ============================================================================
//
// Package: internal/mcp
// File: server.go
// Purpose: The process's only transport. Reads newline-delimited JSON-RPC
// 2.0 messages from stdin, dispatches initialize / tools/list / tools/call,
// and writes responses to stdout. Logs never touch stdout; the stream must
// stay parseable by the client.
//
// Error mapping:
//   - unparseable line            -> -32700
//   - unknown method              -> -32601
//   - invalid tool arguments      -> -32602 (protocol error, no envelope)
//   - task failure                -> tool result with isError=true
//
// ============================================================================

package mcp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// protocolVersion is the MCP revision this server speaks.
const protocolVersion = "2024-11-05"

// serverVersion is reported in the initialize handshake.
const serverVersion = "0.1.0"

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// contentItem is one entry of a tool result's content array.
type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// callResult is the tool-result envelope.
type callResult struct {
	Content           []contentItem `json:"content"`
	StructuredContent any           `json:"structuredContent,omitempty"`
	IsError           bool          `json:"isError,omitempty"`
}

// Server serves one client over a stdin/stdout pair.
type Server struct {
	mediator *Mediator
	logger   *slog.Logger

	in  io.Reader
	out io.Writer

	// Serializes stdout writes; tool calls run concurrently.
	writeMu sync.Mutex
}

// NewServer builds a server over the given streams.
func NewServer(mediator *Mediator, in io.Reader, out io.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		mediator: mediator,
		logger:   logger,
		in:       in,
		out:      out,
	}
}

// Run reads requests until EOF. Each request is handled in its own
// goroutine so a slow generation never blocks the read loop; Run returns
// only after every in-flight handler has responded.
func (s *Server) Run() error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var handlers sync.WaitGroup
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		// The scanner reuses its buffer between lines; handlers run
		// concurrently and hold RawMessage slices into this data.
		line := append([]byte(nil), scanner.Bytes()...)

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("unparseable request", "error", err)
			s.write(response{
				JSONRPC: "2.0",
				Error:   &rpcError{Code: codeParseError, Message: "parse error"},
			})
			continue
		}

		// Notifications carry no id and get no response.
		if req.ID == nil {
			s.handleNotification(req)
			continue
		}

		handlers.Add(1)
		go func(req request) {
			defer handlers.Done()
			s.write(s.handle(req))
		}(req)
	}
	handlers.Wait()
	return scanner.Err()
}

func (s *Server) handleNotification(req request) {
	switch req.Method {
	case "notifications/initialized":
		s.logger.Info("client initialized")
	default:
		s.logger.Debug("ignoring notification", "method", req.Method)
	}
}

func (s *Server) handle(req request) response {
	switch req.Method {
	case "initialize":
		return s.ok(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    "ruvltra",
				"version": serverVersion,
			},
		})

	case "ping":
		return s.ok(req.ID, map[string]any{})

	case "tools/list":
		return s.ok(req.ID, map[string]any{"tools": Catalog()})

	case "tools/call":
		return s.handleCall(req)

	default:
		return s.fail(req.ID, codeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleCall(req request) response {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return s.fail(req.ID, codeInvalidParams, "tools/call requires a tool name")
	}

	s.logger.Info("tool call", "tool", params.Name)
	payload, err := s.mediator.Call(params.Name, params.Arguments)
	if err != nil {
		var argErr *argError
		if errors.As(err, &argErr) {
			return s.fail(req.ID, codeInvalidParams, argErr.msg)
		}
		// A settled task failure is a valid tool result, not a protocol
		// error: the client sees an isError envelope.
		s.logger.Warn("tool call failed", "tool", params.Name, "error", err)
		return s.ok(req.ID, callResult{
			Content: []contentItem{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
	}

	text, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return s.fail(req.ID, codeInternalError, "failed to encode tool result")
	}
	return s.ok(req.ID, callResult{
		Content:           []contentItem{{Type: "text", Text: string(text)}},
		StructuredContent: payload,
	})
}

func (s *Server) ok(id json.RawMessage, result any) response {
	return response{JSONRPC: "2.0", ID: id, Result: result}
}

func (s *Server) fail(id json.RawMessage, code int, msg string) response {
	return response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}}
}

func (s *Server) write(resp response) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	enc := json.NewEncoder(s.out)
	if err := enc.Encode(resp); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

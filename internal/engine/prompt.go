package engine

import (
	"strings"

	"github.com/ruvltra/ruvltra-go/pkg/types"
)

// RenderPrompt assembles the one canonical prompt from a request and the
// (possibly rewritten) instruction. This is the only place a prompt is built;
// adapters never synthesize their own.
func RenderPrompt(req types.GenerateRequest, instruction string) string {
	var b strings.Builder

	b.WriteString("Task: ")
	b.WriteString(string(req.TaskKind))
	b.WriteString("\n")
	if req.Language != "" {
		b.WriteString("Language: ")
		b.WriteString(req.Language)
		b.WriteString("\n")
	}
	if req.FilePath != "" {
		b.WriteString("File: ")
		b.WriteString(req.FilePath)
		b.WriteString("\n")
	}

	b.WriteString("\nInstruction:\n")
	b.WriteString(instruction)
	b.WriteString("\n")

	if req.Context != "" {
		b.WriteString("\nContext:\n")
		b.WriteString(req.Context)
		b.WriteString("\n")
	}

	b.WriteString("\nReturn only the final answer, with no preamble.")
	return b.String()
}

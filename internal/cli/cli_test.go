package cli

// ============================================================================
// CLI Test File
// Purpose: Verify the command tree wiring and the tools catalog command
// ============================================================================

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ruvltra/ruvltra-go/internal/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildCLI tests the command tree structure.
func TestBuildCLI(t *testing.T) {
	root := BuildCLI()
	assert.Equal(t, "ruvltra", root.Use)

	names := make(map[string]bool)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["tools"])

	flag := root.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

// TestToolsCommand tests that the catalog is printed as parseable JSON.
func TestToolsCommand(t *testing.T) {
	root := BuildCLI()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"tools"})

	require.NoError(t, root.Execute())

	var tools []mcp.Tool
	require.NoError(t, json.Unmarshal(out.Bytes(), &tools))
	assert.Len(t, tools, 13)
	assert.Equal(t, "ruvltra_code_generate", tools[0].Name)
}

// Package tools provides the read-only exploration tool set.
//
// Every tool observes the repository and returns text; no tool may mutate
// repository content. Tools expose a typed parameter schema so requested
// invocations can be validated before dispatch.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// ToolParameter defines a parameter schema for a tool.
type ToolParameter struct {
	Name        string `json:"name"`
	ParamType   string `json:"param_type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolMetadata describes what a tool does and how to invoke it.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

// String returns a one-line representation of the tool metadata.
func (m ToolMetadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// Tool is the interface all exploration tools implement.
type Tool interface {
	// Metadata returns the tool name, description and parameter schema.
	Metadata() ToolMetadata

	// Validate checks arguments against the schema before execution.
	// Violations are reported as *Error with CodeSchemaViolation.
	Validate(args json.RawMessage) error

	// Execute runs the tool. Failures are returned as *Error; the output
	// is always printable text, never raw binary.
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// defaultExcludes are directory names skipped by every walking tool.
var defaultExcludes = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	".idea":        true,
	".vscode":      true,
	"__pycache__":  true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".venv":        true,
	"venv":         true,
}

// excluded reports whether any path component is an excluded directory.
func excluded(relPath string) bool {
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if defaultExcludes[part] {
			return true
		}
	}
	return false
}

// resolveInRoot joins a repository-relative path to the root and rejects
// paths that escape it. The repository is the only filesystem surface the
// agent may see.
func resolveInRoot(tool, root, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		rel = "."
	}
	abs := filepath.Join(root, filepath.FromSlash(rel))
	cleanRoot := filepath.Clean(root)
	if abs != cleanRoot && !strings.HasPrefix(abs, cleanRoot+string(filepath.Separator)) {
		return "", Errorf(CodePermissionDenied, tool, "path %q escapes the repository root", rel)
	}
	return abs, nil
}

// looksBinary reports whether content appears to be binary data.
func looksBinary(b []byte) bool {
	n := len(b)
	if n > 8000 {
		n = 8000
	}
	for i := 0; i < n; i++ {
		if b[i] == 0 {
			return true
		}
	}
	return false
}

// truncate limits text to max bytes, cutting at a line boundary where
// possible and appending an explicit marker so loss is never silent.
func truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := text[:max]
	if i := strings.LastIndexByte(cut, '\n'); i > max/2 {
		cut = cut[:i]
	}
	return fmt.Sprintf("%s\n... [truncated: %d of %d bytes shown]", cut, len(cut), len(text))
}

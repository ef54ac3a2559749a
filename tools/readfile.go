// read_file tool - bounded file content retrieval.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ReadFileTool reads a file inside the repository root. Files above the size
// ceiling are refused, and returned content is truncated to the payload limit
// with an explicit marker.
type ReadFileTool struct {
	root          string
	maxFileBytes  int64
	truncateBytes int
}

// NewReadFileTool creates a read_file tool scoped to the repository root.
func NewReadFileTool(root string, maxFileBytes int64, truncateBytes int) *ReadFileTool {
	if maxFileBytes <= 0 {
		maxFileBytes = DefaultMaxFileBytes
	}
	if truncateBytes <= 0 {
		truncateBytes = DefaultTruncateBytes
	}
	return &ReadFileTool{root: root, maxFileBytes: maxFileBytes, truncateBytes: truncateBytes}
}

// Metadata returns the tool metadata.
func (t *ReadFileTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "read_file",
		Description: fmt.Sprintf("Read the content of a text file. Files larger than %d bytes are refused; long content is truncated with a marker.", t.maxFileBytes),
		Parameters: []ToolParameter{
			{Name: "path", ParamType: "string", Description: "File path relative to the repository root", Required: true},
		},
	}
}

type readFileArgs struct {
	Path string `json:"path"`
}

// Validate validates the arguments.
func (t *ReadFileTool) Validate(args json.RawMessage) error {
	var a readFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return WrapError(CodeSchemaViolation, "read_file", "invalid arguments", err)
	}
	if strings.TrimSpace(a.Path) == "" {
		return Errorf(CodeSchemaViolation, "read_file", "path is required")
	}
	return nil
}

// Execute reads the file.
func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a readFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", WrapError(CodeSchemaViolation, "read_file", "invalid arguments", err)
	}

	abs, err := resolveInRoot("read_file", t.root, a.Path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return "", Errorf(CodeNotFound, "read_file", "file does not exist: %s", a.Path)
		case os.IsPermission(err):
			return "", WrapError(CodePermissionDenied, "read_file", a.Path, err)
		default:
			return "", WrapError(CodeExecFailed, "read_file", a.Path, err)
		}
	}
	if info.IsDir() {
		return "", Errorf(CodeSchemaViolation, "read_file", "%s is a directory, use list_dir", a.Path)
	}
	if info.Size() > t.maxFileBytes {
		return "", Errorf(CodeTooLarge, "read_file", "file %s is %d bytes, limit is %d", a.Path, info.Size(), t.maxFileBytes)
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		if os.IsPermission(err) {
			return "", WrapError(CodePermissionDenied, "read_file", a.Path, err)
		}
		return "", WrapError(CodeExecFailed, "read_file", a.Path, err)
	}

	if looksBinary(content) {
		return fmt.Sprintf("%s: binary file (%d bytes), content omitted", a.Path, len(content)), nil
	}

	return truncate(string(content), t.truncateBytes), nil
}

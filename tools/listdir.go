// list_dir tool - single directory listing.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListDirTool lists the entries of one directory with size metadata.
type ListDirTool struct {
	root string
}

// NewListDirTool creates a list_dir tool scoped to the repository root.
func NewListDirTool(root string) *ListDirTool {
	return &ListDirTool{root: root}
}

// Metadata returns the tool metadata.
func (t *ListDirTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "list_dir",
		Description: "List the entries of a directory (names, kind, sizes). Paths are relative to the repository root.",
		Parameters: []ToolParameter{
			{Name: "path", ParamType: "string", Description: "Directory path relative to the repository root (default: repository root)", Required: false},
		},
	}
}

type listDirArgs struct {
	Path string `json:"path"`
}

// Validate validates the arguments.
func (t *ListDirTool) Validate(args json.RawMessage) error {
	var a listDirArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return WrapError(CodeSchemaViolation, "list_dir", "invalid arguments", err)
		}
	}
	return nil
}

// Execute lists the directory.
func (t *ListDirTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a listDirArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return "", WrapError(CodeSchemaViolation, "list_dir", "invalid arguments", err)
		}
	}

	abs, err := resolveInRoot("list_dir", t.root, a.Path)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return "", Errorf(CodeNotFound, "list_dir", "directory does not exist: %s", a.Path)
		case os.IsPermission(err):
			return "", WrapError(CodePermissionDenied, "list_dir", a.Path, err)
		default:
			return "", WrapError(CodeExecFailed, "list_dir", a.Path, err)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	display := a.Path
	if strings.TrimSpace(display) == "" {
		display = "."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Directory %s (%d entries):\n", display, len(entries))
	for _, entry := range entries {
		rel := filepath.Join(display, entry.Name())
		if defaultExcludes[entry.Name()] && entry.IsDir() {
			fmt.Fprintf(&b, "%s/ (skipped)\n", rel)
			continue
		}
		if entry.IsDir() {
			fmt.Fprintf(&b, "%s/\n", rel)
			continue
		}
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(&b, "%s\n", rel)
			continue
		}
		fmt.Fprintf(&b, "%s (%d bytes)\n", rel, info.Size())
	}
	return b.String(), nil
}

// list_by_extension tool - enumerate files by extension.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultListExtMaxResults is the default maximum files per query.
const DefaultListExtMaxResults = 500

// ListByExtTool lists all files under a directory with a given extension.
type ListByExtTool struct {
	root       string
	maxResults int
}

// NewListByExtTool creates a list_by_extension tool scoped to the repository
// root. If maxResults <= 0, DefaultListExtMaxResults is used.
func NewListByExtTool(root string, maxResults int) *ListByExtTool {
	if maxResults <= 0 {
		maxResults = DefaultListExtMaxResults
	}
	return &ListByExtTool{root: root, maxResults: maxResults}
}

// Metadata returns the tool metadata.
func (t *ListByExtTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "list_by_extension",
		Description: "List every file with a given extension below a directory. Useful for gauging the size and spread of a language or file type.",
		Parameters: []ToolParameter{
			{Name: "extension", ParamType: "string", Description: "File extension to match (e.g., '.go', 'py')", Required: true},
			{Name: "path", ParamType: "string", Description: "Directory relative to the repository root (default: repository root)", Required: false},
		},
	}
}

type listExtArgs struct {
	Extension string `json:"extension"`
	Path      string `json:"path"`
}

// Validate validates the arguments.
func (t *ListByExtTool) Validate(args json.RawMessage) error {
	var a listExtArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return WrapError(CodeSchemaViolation, "list_by_extension", "invalid arguments", err)
	}
	if strings.TrimSpace(a.Extension) == "" {
		return Errorf(CodeSchemaViolation, "list_by_extension", "extension is required")
	}
	return nil
}

// Execute walks the directory and collects matching files.
func (t *ListByExtTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a listExtArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", WrapError(CodeSchemaViolation, "list_by_extension", "invalid arguments", err)
	}

	ext := strings.TrimSpace(a.Extension)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	absBase, err := resolveInRoot("list_by_extension", t.root, a.Path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(absBase); err != nil {
		return "", Errorf(CodeNotFound, "list_by_extension", "directory does not exist: %s", a.Path)
	} else if !info.IsDir() {
		return "", Errorf(CodeSchemaViolation, "list_by_extension", "%s is not a directory", a.Path)
	}

	var (
		files     []string
		truncated bool
	)
	err = filepath.WalkDir(absBase, func(path string, entry fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			if defaultExcludes[entry.Name()] || (strings.HasPrefix(entry.Name(), ".") && path != absBase) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(entry.Name()) != ext {
			return nil
		}
		rel, err := filepath.Rel(absBase, path)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		if len(files) >= t.maxResults {
			truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return "", WrapError(CodeExecFailed, "list_by_extension", "walk failed", err)
	}

	if len(files) == 0 {
		return fmt.Sprintf("No '%s' files found", ext), nil
	}

	sort.Strings(files)
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d '%s' files:\n", len(files), ext)
	for _, f := range files {
		fmt.Fprintln(&b, f)
	}
	if truncated {
		fmt.Fprintf(&b, "\n(limited to %d results)", t.maxResults)
	}
	return b.String(), nil
}

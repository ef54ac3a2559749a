// glob tool - file discovery by pattern.
//
// Returns file paths matching a glob pattern without reading content.
// Discovery and content loading are deliberately separate operations.
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

const (
	// DefaultGlobMaxResults is the default maximum results per query.
	DefaultGlobMaxResults = 100
	// AbsoluteGlobMaxResults is the hard limit to prevent excessive memory.
	AbsoluteGlobMaxResults = 1000
)

// GlobTool finds files matching glob patterns, with ** support.
type GlobTool struct {
	root       string
	maxResults int
}

// NewGlobTool creates a glob tool scoped to the repository root.
// If maxResults <= 0, AbsoluteGlobMaxResults is used.
func NewGlobTool(root string, maxResults int) *GlobTool {
	if maxResults <= 0 {
		maxResults = AbsoluteGlobMaxResults
	}
	return &GlobTool{root: root, maxResults: maxResults}
}

// Metadata returns the tool metadata.
func (t *GlobTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "glob",
		Description: "Find files matching a glob pattern. Returns file paths only (no content). Use for discovery, then read_file to load content.",
		Parameters: []ToolParameter{
			{Name: "pattern", ParamType: "string", Description: "Glob pattern (e.g., '**/*.go', 'src/**/*.ts', '*.yaml')", Required: true},
			{Name: "path", ParamType: "string", Description: "Base directory relative to the repository root (default: repository root)", Required: false},
			{Name: "max_results", ParamType: "integer", Description: fmt.Sprintf("Maximum files to return (default: %d)", DefaultGlobMaxResults), Required: false},
		},
	}
}

type globArgs struct {
	Pattern    string `json:"pattern"`
	Path       string `json:"path"`
	MaxResults *int   `json:"max_results"`
}

// Validate validates the arguments.
func (t *GlobTool) Validate(args json.RawMessage) error {
	var a globArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return WrapError(CodeSchemaViolation, "glob", "invalid arguments", err)
	}
	if strings.TrimSpace(a.Pattern) == "" {
		return Errorf(CodeSchemaViolation, "glob", "pattern is required")
	}
	if !strings.Contains(a.Pattern, "**") {
		if _, err := filepath.Match(a.Pattern, ""); err != nil {
			return WrapError(CodeSchemaViolation, "glob", "invalid glob pattern", err)
		}
	}
	return nil
}

// Execute runs the glob search.
func (t *GlobTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a globArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", WrapError(CodeSchemaViolation, "glob", "invalid arguments", err)
	}

	absBase, err := resolveInRoot("glob", t.root, a.Path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(absBase)
	if err != nil {
		return "", Errorf(CodeNotFound, "glob", "directory does not exist: %s", a.Path)
	}
	if !info.IsDir() {
		return "", Errorf(CodeSchemaViolation, "glob", "%s is not a directory", a.Path)
	}

	maxResults := DefaultGlobMaxResults
	if a.MaxResults != nil && *a.MaxResults > 0 {
		maxResults = *a.MaxResults
	}
	if maxResults > t.maxResults {
		maxResults = t.maxResults
	}

	// Leading "./" is redundant.
	pattern := strings.TrimPrefix(a.Pattern, "./")

	var matches []string
	if strings.Contains(pattern, "**") {
		matches, err = t.findMatchesRecursive(ctx, absBase, pattern, maxResults)
	} else {
		matches, err = t.findMatchesSimple(absBase, pattern, maxResults)
	}
	if err != nil {
		return "", err
	}

	return formatGlobResult(pattern, a.Path, matches, maxResults), nil
}

// findMatchesRecursive handles patterns with ** using WalkDir.
func (t *GlobTool) findMatchesRecursive(ctx context.Context, absBase, pattern string, maxResults int) ([]string, error) {
	var matches []string

	err := filepath.WalkDir(absBase, func(path string, entry os.DirEntry, err error) error {
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

		relPath, err := filepath.Rel(absBase, path)
		if err != nil {
			return nil
		}

		if matchGlobPattern(relPath, pattern) {
			matches = append(matches, relPath)
			if len(matches) >= maxResults {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return matches, WrapError(CodeExecFailed, "glob", "walk failed", err)
	}

	sort.Strings(matches)
	return matches, nil
}

// findMatchesSimple handles patterns without ** using filepath.Glob.
func (t *GlobTool) findMatchesSimple(absBase, pattern string, maxResults int) ([]string, error) {
	globMatches, err := filepath.Glob(filepath.Join(absBase, pattern))
	if err != nil {
		return nil, WrapError(CodeSchemaViolation, "glob", "invalid glob pattern", err)
	}

	var matches []string
	for _, m := range globMatches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		relPath, err := filepath.Rel(absBase, m)
		if err != nil {
			continue
		}
		matches = append(matches, relPath)
		if len(matches) >= maxResults {
			break
		}
	}

	sort.Strings(matches)
	return matches, nil
}

// formatGlobResult formats the matches as a text payload.
func formatGlobResult(pattern, basePath string, matches []string, maxResults int) string {
	if strings.TrimSpace(basePath) == "" {
		basePath = "."
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No files found matching pattern '%s' in %s", pattern, basePath)
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Found %d files matching '%s':\n", len(matches), pattern)
	for _, m := range matches {
		fmt.Fprintln(&result, filepath.ToSlash(m))
	}
	if len(matches) >= maxResults {
		fmt.Fprintf(&result, "\n(limited to %d results)", maxResults)
	}
	return result.String()
}

// matchGlobPattern matches a path against a glob pattern with ** support.
func matchGlobPattern(path, pattern string) bool {
	path = filepath.ToSlash(path)
	pattern = filepath.ToSlash(pattern)

	parts := strings.Split(pattern, "**")
	if len(parts) == 1 {
		return matchPattern(pattern, path)
	}

	// Prefix before the first ** must anchor the path.
	prefix := strings.TrimSuffix(parts[0], "/")
	if prefix != "" && !strings.HasPrefix(path, prefix) {
		return false
	}

	// Suffix after the last ** must match the tail.
	suffix := strings.TrimPrefix(parts[len(parts)-1], "/")
	if suffix != "" {
		if strings.Contains(suffix, "/") {
			if !strings.HasSuffix(path, suffix) {
				if !matchPattern("*/"+suffix, "/"+path) {
					return false
				}
			}
		} else {
			if !matchPattern(suffix, filepath.Base(path)) {
				return false
			}
		}
	}
	return true
}

// matchPattern wraps filepath.Match, returning false on error.
func matchPattern(pattern, name string) bool {
	matched, err := filepath.Match(pattern, name)
	return err == nil && matched
}

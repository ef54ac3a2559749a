// search_code tool - regex search over repository text files.
package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// DefaultSearchMaxResults is the default maximum matching lines per query.
	DefaultSearchMaxResults = 200
	// AbsoluteSearchMaxResults is the hard limit per query.
	AbsoluteSearchMaxResults = 1000
	// searchMaxFileBytes skips files above this size during search.
	searchMaxFileBytes = 1 << 20
	// searchMaxLineBytes skips pathological single lines (minified bundles).
	searchMaxLineBytes = 2000
)

// SearchTool searches file content for a regular expression and returns
// matching lines with file and line references.
type SearchTool struct {
	root       string
	maxResults int
}

// NewSearchTool creates a search_code tool scoped to the repository root.
// If maxResults <= 0, AbsoluteSearchMaxResults is used.
func NewSearchTool(root string, maxResults int) *SearchTool {
	if maxResults <= 0 {
		maxResults = AbsoluteSearchMaxResults
	}
	return &SearchTool{root: root, maxResults: maxResults}
}

// Metadata returns the tool metadata.
func (t *SearchTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "search_code",
		Description: "Search file content for a regular expression. Returns matching lines as path:line:text. Binary and oversized files are skipped.",
		Parameters: []ToolParameter{
			{Name: "pattern", ParamType: "string", Description: "Regular expression to search for (Go regexp syntax)", Required: true},
			{Name: "path", ParamType: "string", Description: "Directory to search under, relative to the repository root (default: repository root)", Required: false},
			{Name: "extension", ParamType: "string", Description: "Restrict to files with this extension (e.g., '.go')", Required: false},
			{Name: "max_results", ParamType: "integer", Description: fmt.Sprintf("Maximum matching lines to return (default: %d)", DefaultSearchMaxResults), Required: false},
		},
	}
}

type searchArgs struct {
	Pattern    string `json:"pattern"`
	Path       string `json:"path"`
	Extension  string `json:"extension"`
	MaxResults *int   `json:"max_results"`
}

// Validate validates the arguments, including regex compilation.
func (t *SearchTool) Validate(args json.RawMessage) error {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return WrapError(CodeSchemaViolation, "search_code", "invalid arguments", err)
	}
	if strings.TrimSpace(a.Pattern) == "" {
		return Errorf(CodeSchemaViolation, "search_code", "pattern is required")
	}
	if _, err := regexp.Compile(a.Pattern); err != nil {
		return WrapError(CodeSchemaViolation, "search_code", "invalid regular expression", err)
	}
	return nil
}

// Execute runs the search.
func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a searchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", WrapError(CodeSchemaViolation, "search_code", "invalid arguments", err)
	}

	re, err := regexp.Compile(a.Pattern)
	if err != nil {
		return "", WrapError(CodeSchemaViolation, "search_code", "invalid regular expression", err)
	}

	absBase, err := resolveInRoot("search_code", t.root, a.Path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(absBase); err != nil {
		return "", Errorf(CodeNotFound, "search_code", "directory does not exist: %s", a.Path)
	} else if !info.IsDir() {
		return "", Errorf(CodeSchemaViolation, "search_code", "%s is not a directory", a.Path)
	}

	maxResults := DefaultSearchMaxResults
	if a.MaxResults != nil && *a.MaxResults > 0 {
		maxResults = *a.MaxResults
	}
	if maxResults > t.maxResults {
		maxResults = t.maxResults
	}

	ext := a.Extension
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	var (
		matches   []string
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
		if ext != "" && filepath.Ext(entry.Name()) != ext {
			return nil
		}
		if info, err := entry.Info(); err != nil || info.Size() > searchMaxFileBytes {
			return nil
		}

		rel, err := filepath.Rel(absBase, path)
		if err != nil {
			return nil
		}

		fileMatches, err := searchFile(path, filepath.ToSlash(rel), re, maxResults-len(matches))
		if err != nil {
			return nil
		}
		matches = append(matches, fileMatches...)
		if len(matches) >= maxResults {
			truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return "", WrapError(CodeExecFailed, "search_code", "walk failed", err)
	}

	if len(matches) == 0 {
		return fmt.Sprintf("No matches for pattern '%s'", a.Pattern), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d matching lines for '%s':\n", len(matches), a.Pattern)
	for _, m := range matches {
		fmt.Fprintln(&b, m)
	}
	if truncated {
		fmt.Fprintf(&b, "\n(limited to %d results)", maxResults)
	}
	return b.String(), nil
}

// searchFile scans one file line by line and returns up to limit matches.
func searchFile(abs, rel string, re *regexp.Regexp, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := f.Read(head)
	if looksBinary(head[:n]) {
		return nil, nil
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}

	var matches []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), searchMaxFileBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if len(line) > searchMaxLineBytes {
			continue
		}
		if re.MatchString(line) {
			matches = append(matches, fmt.Sprintf("%s:%d:%s", rel, lineNo, strings.TrimRight(line, " \t")))
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches, scanner.Err()
}

// file_tree tool - depth-limited directory tree rendering.
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

const defaultTreeDepth = 3

// FileTreeTool renders a directory subtree with box-drawing connectors,
// similar to the Unix tree command.
type FileTreeTool struct {
	root string
}

// NewFileTreeTool creates a file_tree tool scoped to the repository root.
func NewFileTreeTool(root string) *FileTreeTool {
	return &FileTreeTool{root: root}
}

// Metadata returns the tool metadata.
func (t *FileTreeTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "file_tree",
		Description: "Render the directory tree below a path. Depth-limited; common build and VCS directories are skipped.",
		Parameters: []ToolParameter{
			{Name: "path", ParamType: "string", Description: "Directory path relative to the repository root (default: repository root)", Required: false},
			{Name: "max_depth", ParamType: "integer", Description: fmt.Sprintf("Maximum depth to descend (default: %d)", defaultTreeDepth), Required: false},
		},
	}
}

type fileTreeArgs struct {
	Path     string `json:"path"`
	MaxDepth int    `json:"max_depth"`
}

// Validate validates the arguments.
func (t *FileTreeTool) Validate(args json.RawMessage) error {
	var a fileTreeArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return WrapError(CodeSchemaViolation, "file_tree", "invalid arguments", err)
		}
	}
	if a.MaxDepth < 0 {
		return Errorf(CodeSchemaViolation, "file_tree", "max_depth must not be negative")
	}
	return nil
}

// Execute renders the tree.
func (t *FileTreeTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a fileTreeArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return "", WrapError(CodeSchemaViolation, "file_tree", "invalid arguments", err)
		}
	}
	if a.MaxDepth <= 0 {
		a.MaxDepth = defaultTreeDepth
	}

	abs, err := resolveInRoot("file_tree", t.root, a.Path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", Errorf(CodeNotFound, "file_tree", "directory does not exist: %s", a.Path)
		}
		return "", WrapError(CodeExecFailed, "file_tree", a.Path, err)
	}
	if !info.IsDir() {
		return "", Errorf(CodeSchemaViolation, "file_tree", "%s is not a directory", a.Path)
	}

	display := a.Path
	if strings.TrimSpace(display) == "" {
		display = filepath.Base(filepath.Clean(t.root))
	}

	var b strings.Builder
	b.WriteString(display + "/\n")
	if err := renderTree(ctx, &b, abs, "", 1, a.MaxDepth); err != nil {
		return "", err
	}
	return b.String(), nil
}

// renderTree writes one directory level and recurses into subdirectories.
func renderTree(ctx context.Context, b *strings.Builder, dir, prefix string, depth, maxDepth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// Unreadable subdirectories are annotated, not fatal.
		fmt.Fprintf(b, "%s└── [unreadable]\n", prefix)
		return nil
	}

	kept := entries[:0]
	for _, entry := range entries {
		if entry.IsDir() && defaultExcludes[entry.Name()] {
			continue
		}
		kept = append(kept, entry)
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].IsDir() != kept[j].IsDir() {
			return kept[i].IsDir()
		}
		return strings.ToLower(kept[i].Name()) < strings.ToLower(kept[j].Name())
	})

	for i, entry := range kept {
		connector := "├── "
		childPrefix := prefix + "│   "
		if i == len(kept)-1 {
			connector = "└── "
			childPrefix = prefix + "    "
		}

		if entry.IsDir() {
			fmt.Fprintf(b, "%s%s%s/\n", prefix, connector, entry.Name())
			if depth < maxDepth {
				if err := renderTree(ctx, b, filepath.Join(dir, entry.Name()), childPrefix, depth+1, maxDepth); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(b, "%s└── ...\n", childPrefix)
			}
			continue
		}
		fmt.Fprintf(b, "%s%s%s\n", prefix, connector, entry.Name())
	}
	return nil
}

package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fixtureRepo builds a small repository layout for tool tests.
func fixtureRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	files := map[string]string{
		"README.md":          "# Demo\n\nA demo project.\n",
		"go.mod":             "module example.com/demo\n\ngo 1.24\n",
		"main.go":            "package main\n\nfunc main() {\n\tprintln(\"hello\")\n}\n",
		"internal/db/db.go":  "package db\n\n// Connect opens the database.\nfunc Connect() error { return nil }\n",
		"internal/db/dsn.go": "package db\n\nconst defaultDSN = \"file:demo.db\"\n",
		"docs/guide.md":      "Usage guide.\n",
	}
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	// Excluded directory with a decoy file that must never surface.
	decoy := filepath.Join(root, "node_modules", "pkg")
	if err := os.MkdirAll(decoy, 0o755); err != nil {
		t.Fatalf("mkdir decoy: %v", err)
	}
	if err := os.WriteFile(filepath.Join(decoy, "index.go"), []byte("package pkg\n"), 0o644); err != nil {
		t.Fatalf("write decoy: %v", err)
	}

	// Binary file.
	if err := os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0x00, 0x01, 0x02, 0xFF}, 0o644); err != nil {
		t.Fatalf("write blob: %v", err)
	}

	return root
}

func mustExecute(t *testing.T, tool Tool, args string) string {
	t.Helper()
	out, err := tool.Execute(context.Background(), json.RawMessage(args))
	if err != nil {
		t.Fatalf("%s execute: %v", tool.Metadata().Name, err)
	}
	return out
}

func TestResolveInRootRejectsEscape(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		rel     string
		wantErr bool
	}{
		{name: "empty path is root", rel: "", wantErr: false},
		{name: "plain relative", rel: "src/main.go", wantErr: false},
		{name: "dot", rel: ".", wantErr: false},
		{name: "parent escape", rel: "../secrets", wantErr: true},
		{name: "nested escape", rel: "a/../../etc/passwd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveInRoot("test", root, tt.rel)
			if (err != nil) != tt.wantErr {
				t.Errorf("resolveInRoot(%q) error = %v, wantErr %v", tt.rel, err, tt.wantErr)
			}
			if err != nil && CodeOf(err) != CodePermissionDenied {
				t.Errorf("escape should be PermissionDenied, got %s", CodeOf(err))
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("line of text\n", 100)

	got := truncate(long, 200)
	if len(got) >= len(long) {
		t.Fatal("expected truncation")
	}
	if !strings.Contains(got, "[truncated:") {
		t.Errorf("truncated output missing marker: %q", got)
	}

	short := "short"
	if truncate(short, 200) != short {
		t.Error("short text must pass through unchanged")
	}
}

func TestReadFileTool(t *testing.T) {
	root := fixtureRepo(t)
	tool := NewReadFileTool(root, 0, 0)

	out := mustExecute(t, tool, `{"path":"README.md"}`)
	if !strings.Contains(out, "A demo project.") {
		t.Errorf("unexpected content: %q", out)
	}

	tests := []struct {
		name     string
		args     string
		wantCode ErrorCode
	}{
		{name: "missing file", args: `{"path":"nope.txt"}`, wantCode: CodeNotFound},
		{name: "directory", args: `{"path":"internal"}`, wantCode: CodeSchemaViolation},
		{name: "escape", args: `{"path":"../outside"}`, wantCode: CodePermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Execute(context.Background(), json.RawMessage(tt.args))
			if err == nil {
				t.Fatal("expected error")
			}
			if CodeOf(err) != tt.wantCode {
				t.Errorf("code = %s, want %s", CodeOf(err), tt.wantCode)
			}
		})
	}
}

func TestReadFileToolSizeCeiling(t *testing.T) {
	root := fixtureRepo(t)
	big := filepath.Join(root, "big.txt")
	if err := os.WriteFile(big, []byte(strings.Repeat("x", 2048)), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tool := NewReadFileTool(root, 1024, 0)
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"big.txt"}`))
	if CodeOf(err) != CodeTooLarge {
		t.Fatalf("code = %s, want %s", CodeOf(err), CodeTooLarge)
	}
}

func TestReadFileToolBinary(t *testing.T) {
	root := fixtureRepo(t)
	tool := NewReadFileTool(root, 0, 0)

	out := mustExecute(t, tool, `{"path":"blob.bin"}`)
	if !strings.Contains(out, "binary file") {
		t.Errorf("binary content must be omitted, got %q", out)
	}
}

func TestListDirTool(t *testing.T) {
	root := fixtureRepo(t)
	tool := NewListDirTool(root)

	out := mustExecute(t, tool, `{}`)
	if !strings.Contains(out, "README.md") || !strings.Contains(out, "internal/") {
		t.Errorf("listing incomplete: %q", out)
	}

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"missing"}`))
	if CodeOf(err) != CodeNotFound {
		t.Errorf("code = %s, want %s", CodeOf(err), CodeNotFound)
	}
}

func TestFileTreeTool(t *testing.T) {
	root := fixtureRepo(t)
	tool := NewFileTreeTool(root)

	out := mustExecute(t, tool, `{}`)
	for _, want := range []string{"README.md", "internal/", "db.go"} {
		if !strings.Contains(out, want) {
			t.Errorf("tree missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "├── ") && !strings.Contains(out, "└── ") {
		t.Error("tree output should use box-drawing connectors")
	}
	if strings.Contains(out, "node_modules") {
		t.Error("excluded directories must not appear in the tree")
	}
}

func TestFileTreeToolDepthLimit(t *testing.T) {
	root := fixtureRepo(t)
	tool := NewFileTreeTool(root)

	out := mustExecute(t, tool, `{"max_depth":1}`)
	if strings.Contains(out, "db.go") {
		t.Errorf("depth 1 should not descend into internal/db:\n%s", out)
	}
}

func TestGlobTool(t *testing.T) {
	root := fixtureRepo(t)
	tool := NewGlobTool(root, 0)

	tests := []struct {
		name    string
		args    string
		want    []string
		exclude []string
	}{
		{
			name: "recursive go files",
			args: `{"pattern":"**/*.go"}`,
			want: []string{"main.go", "internal/db/db.go", "internal/db/dsn.go"},
			// The decoy under node_modules must be filtered.
			exclude: []string{"node_modules"},
		},
		{
			name: "simple pattern",
			args: `{"pattern":"*.md"}`,
			want: []string{"README.md"},
		},
		{
			name: "scoped base path",
			args: `{"pattern":"**/*.md","path":"docs"}`,
			want: []string{"guide.md"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustExecute(t, tool, tt.args)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("missing %q in:\n%s", w, out)
				}
			}
			for _, e := range tt.exclude {
				if strings.Contains(out, e) {
					t.Errorf("unexpected %q in:\n%s", e, out)
				}
			}
		})
	}
}

func TestGlobToolValidate(t *testing.T) {
	tool := NewGlobTool(t.TempDir(), 0)

	if err := tool.Validate(json.RawMessage(`{"pattern":""}`)); CodeOf(err) != CodeSchemaViolation {
		t.Error("empty pattern must be a schema violation")
	}
	if err := tool.Validate(json.RawMessage(`{"pattern":"[unclosed"}`)); CodeOf(err) != CodeSchemaViolation {
		t.Error("malformed pattern must be a schema violation")
	}
}

func TestSearchTool(t *testing.T) {
	root := fixtureRepo(t)
	tool := NewSearchTool(root, 0)

	out := mustExecute(t, tool, `{"pattern":"func Connect"}`)
	if !strings.Contains(out, "internal/db/db.go:4:") {
		t.Errorf("missing match reference:\n%s", out)
	}

	out = mustExecute(t, tool, `{"pattern":"defaultDSN","extension":".go"}`)
	if !strings.Contains(out, "dsn.go") {
		t.Errorf("extension filter lost the match:\n%s", out)
	}

	out = mustExecute(t, tool, `{"pattern":"zzz_never_matches"}`)
	if !strings.Contains(out, "No matches") {
		t.Errorf("expected empty result message, got:\n%s", out)
	}
}

func TestSearchToolValidateRejectsBadRegex(t *testing.T) {
	tool := NewSearchTool(t.TempDir(), 0)
	err := tool.Validate(json.RawMessage(`{"pattern":"("}`))
	if CodeOf(err) != CodeSchemaViolation {
		t.Fatalf("code = %s, want %s", CodeOf(err), CodeSchemaViolation)
	}
}

func TestListByExtTool(t *testing.T) {
	root := fixtureRepo(t)
	tool := NewListByExtTool(root, 0)

	tests := []struct {
		name string
		args string
		want string
	}{
		{name: "with dot", args: `{"extension":".md"}`, want: "docs/guide.md"},
		{name: "without dot", args: `{"extension":"go"}`, want: "main.go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustExecute(t, tool, tt.args)
			if !strings.Contains(out, tt.want) {
				t.Errorf("missing %q in:\n%s", tt.want, out)
			}
			if strings.Contains(out, "node_modules") {
				t.Error("excluded directory leaked into results")
			}
		})
	}

	out := mustExecute(t, tool, `{"extension":".rs"}`)
	if !strings.Contains(out, "No '.rs' files") {
		t.Errorf("expected empty result message, got:\n%s", out)
	}
}

func TestRegistryCheck(t *testing.T) {
	root := fixtureRepo(t)
	registry, err := ForRepository(root)
	if err != nil {
		t.Fatalf("ForRepository: %v", err)
	}

	tests := []struct {
		name    string
		kind    string
		args    string
		wantErr bool
	}{
		{name: "known tool valid args", kind: "read_file", args: `{"path":"README.md"}`, wantErr: false},
		{name: "known tool bad args", kind: "read_file", args: `{"path":""}`, wantErr: true},
		{name: "unknown tool", kind: "write_file", args: `{}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.Check(tt.kind, json.RawMessage(tt.args))
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && CodeOf(err) != CodeSchemaViolation {
				t.Errorf("Check failures must be schema violations, got %s", CodeOf(err))
			}
		})
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	root := fixtureRepo(t)
	registry, err := ForRepository(root)
	if err != nil {
		t.Fatalf("ForRepository: %v", err)
	}

	names := registry.Names()
	want := []string{"file_tree", "glob", "list_by_extension", "list_dir", "read_file", "search_code"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestRegistryDescription(t *testing.T) {
	root := fixtureRepo(t)
	registry, err := ForRepository(root)
	if err != nil {
		t.Fatalf("ForRepository: %v", err)
	}

	desc := registry.Description()
	for _, want := range []string{"Tool: read_file", "Tool: search_code", "[required]", "[optional]"} {
		if !strings.Contains(desc, want) {
			t.Errorf("description missing %q", want)
		}
	}
}

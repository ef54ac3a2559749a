// Package output writes run artifacts to disk: the final document, a
// timestamped archival copy, a run report, and optional per-version draft
// snapshots.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/repodoc/model"
)

// PersistenceError reports a failure to write a run artifact. Persistence
// failures are fatal: a run whose output cannot be written has not succeeded.
type PersistenceError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Path, e.Err)
}

// Unwrap returns the wrapped cause.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Report summarizes a finished run for the report artifact.
type Report struct {
	RunID        string
	Repository   string
	Model        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Iterations   int
	ToolCalls    int
	Knowledge    int
	DraftVersion int
	Snapshots    int
	Outcome      string
	Forced       bool
	Confidence   float64
	MissingParts []string
	PromptTokens uint32
	OutputTokens uint32
}

// Sink writes run artifacts under a base directory.
type Sink struct {
	dir           string
	snapshots     bool
	logger        *zap.Logger
	snapshotCount int
}

// NewSink creates a sink rooted at dir. When snapshots is true, every draft
// version is archived under intermediate/.
func NewSink(dir string, snapshots bool, logger *zap.Logger) (*Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &PersistenceError{Path: dir, Err: err}
	}
	return &Sink{dir: dir, snapshots: snapshots, logger: logger}, nil
}

// Dir returns the base output directory.
func (s *Sink) Dir() string {
	return s.dir
}

// WriteFinal writes the final document and its timestamped archival copy.
// Returns the path of the primary document.
func (s *Sink) WriteFinal(draft model.Draft, repoName string) (string, error) {
	body := documentHeader(repoName, draft) + draft.Markdown()

	primary := filepath.Join(s.dir, "document.md")
	if err := writeFile(primary, body); err != nil {
		return "", err
	}

	stamp := draft.GeneratedAt.UTC().Format("20060102-150405")
	archived := filepath.Join(s.dir, fmt.Sprintf("document-%s.md", stamp))
	if err := writeFile(archived, body); err != nil {
		return "", err
	}

	s.logger.Info("document written",
		zap.String("path", primary),
		zap.String("archive", archived),
		zap.Int("version", draft.Version),
		zap.Bool("partial", draft.Partial))
	return primary, nil
}

// WriteSnapshot archives one intermediate draft version. A no-op when
// snapshots are disabled.
func (s *Sink) WriteSnapshot(draft model.Draft) error {
	if !s.snapshots {
		return nil
	}

	dir := filepath.Join(s.dir, "intermediate")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Path: dir, Err: err}
	}

	path := filepath.Join(dir, fmt.Sprintf("version_%d.md", draft.Version))
	if err := writeFile(path, draft.Markdown()); err != nil {
		return err
	}
	s.snapshotCount++
	s.logger.Debug("draft snapshot written", zap.String("path", path))
	return nil
}

// WriteReport writes the run report.
func (s *Sink) WriteReport(r Report) error {
	path := filepath.Join(s.dir, "report.md")
	return writeFile(path, renderReport(r))
}

// SnapshotCount returns how many intermediate snapshots were written.
func (s *Sink) SnapshotCount() int {
	return s.snapshotCount
}

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &PersistenceError{Path: path, Err: err}
	}
	return nil
}

func documentHeader(repoName string, draft model.Draft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", repoName)
	fmt.Fprintf(&b, "*Generated %s (draft v%d)*\n\n",
		draft.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"), draft.Version)
	return b.String()
}

func renderReport(r Report) string {
	var b strings.Builder
	b.WriteString("# Run Report\n\n")
	fmt.Fprintf(&b, "- Run: %s\n", r.RunID)
	fmt.Fprintf(&b, "- Repository: %s\n", r.Repository)
	fmt.Fprintf(&b, "- Model: %s\n", r.Model)
	fmt.Fprintf(&b, "- Started: %s\n", r.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Finished: %s\n", r.FinishedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	fmt.Fprintf(&b, "- Outcome: %s\n", r.Outcome)
	fmt.Fprintf(&b, "- Iterations: %d\n", r.Iterations)
	fmt.Fprintf(&b, "- Tool calls: %d\n", r.ToolCalls)
	fmt.Fprintf(&b, "- Knowledge entries: %d\n", r.Knowledge)
	fmt.Fprintf(&b, "- Final draft version: %d\n", r.DraftVersion)
	fmt.Fprintf(&b, "- Draft snapshots written: %d\n", r.Snapshots)
	fmt.Fprintf(&b, "- Confidence: %.2f\n", r.Confidence)
	fmt.Fprintf(&b, "- Tokens: %d prompt / %d completion\n", r.PromptTokens, r.OutputTokens)

	if r.Forced {
		b.WriteString("\nThe run was stopped by a budget or stagnation guard before the agent declared completion.\n")
	}
	if len(r.MissingParts) > 0 {
		b.WriteString("\n## Known gaps\n\n")
		for _, part := range r.MissingParts {
			fmt.Fprintf(&b, "- %s\n", part)
		}
	}
	return b.String()
}

// Package storage provides the SQLite run trace.
//
// Every run records its observations, knowledge entries and draft versions
// so a finished (or failed) run can be audited after the fact. Information
// Hiding:
// - SQLite connection management hidden behind the TraceStore type
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/repodoc/knowledge"
	"github.com/richinex/repodoc/model"
)

// TraceStore persists run traces in a SQLite database.
type TraceStore struct {
	db *sql.DB
}

// OpenTrace opens or creates a trace database at the given path.
// Creates parent directories if they don't exist.
func OpenTrace(path string) (*TraceStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &TraceStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// OpenTraceInMemory creates an in-memory trace store (useful for testing).
func OpenTraceInMemory() (*TraceStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	store := &TraceStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *TraceStore) Close() error {
	return s.db.Close()
}

func (s *TraceStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			repository TEXT NOT NULL,
			model TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			outcome TEXT,
			iterations INTEGER NOT NULL DEFAULT 0,
			tool_calls INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			tool TEXT NOT NULL,
			args TEXT NOT NULL,
			err_code TEXT,
			err_msg TEXT,
			byte_size INTEGER NOT NULL,
			observed_at TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_observations_run
		ON observations(run_id, iteration);

		CREATE TABLE IF NOT EXISTS knowledge_entries (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			iteration INTEGER NOT NULL,
			topic TEXT NOT NULL,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			confidence REAL NOT NULL,
			recorded_at TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE,
			UNIQUE(run_id, seq)
		);

		CREATE TABLE IF NOT EXISTS drafts (
			run_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			knowledge_seq INTEGER NOT NULL,
			partial INTEGER NOT NULL,
			markdown TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			PRIMARY KEY (run_id, version),
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// BeginRun records the start of a run.
func (s *TraceStore) BeginRun(ctx context.Context, runID, repository, modelName string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, repository, model, started_at) VALUES (?, ?, ?, ?)`,
		runID, repository, modelName, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}
	return nil
}

// FinishRun records the terminal outcome of a run.
func (s *TraceStore) FinishRun(ctx context.Context, runID, outcome string, iterations, toolCalls int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, outcome = ?, iterations = ?, tool_calls = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339), outcome, iterations, toolCalls, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// RecordObservation appends one tool observation to the trace. Payloads are
// not stored; the trace records what ran and how it ended, not file content.
func (s *TraceStore) RecordObservation(ctx context.Context, runID string, iteration int, obs model.Observation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observations (run_id, iteration, tool, args, err_code, err_msg, byte_size, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, iteration, obs.Action.Kind, string(obs.Action.Args),
		obs.ErrCode, obs.ErrMsg, obs.ByteSize, obs.Timestamp.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record observation: %w", err)
	}
	return nil
}

// RecordEntry appends one knowledge entry to the trace.
func (s *TraceStore) RecordEntry(ctx context.Context, runID string, entry knowledge.Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_entries (id, run_id, seq, iteration, topic, source, content, confidence, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, runID, entry.Seq, entry.Iteration, entry.Topic,
		entry.Source.DedupKey(), entry.Content, entry.Confidence,
		entry.RecordedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record knowledge entry: %w", err)
	}
	return nil
}

// RecordDraft appends one draft version to the trace.
func (s *TraceStore) RecordDraft(ctx context.Context, runID string, draft model.Draft) error {
	partial := 0
	if draft.Partial {
		partial = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drafts (run_id, version, knowledge_seq, partial, markdown, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, draft.Version, draft.KnowledgeSeq, partial, draft.Markdown(),
		draft.GeneratedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record draft: %w", err)
	}
	return nil
}

// RunSummary is a condensed view of one run row.
type RunSummary struct {
	RunID      string
	Repository string
	Model      string
	StartedAt  string
	FinishedAt string
	Outcome    string
	Iterations int
	ToolCalls  int
}

// GetRun loads one run row.
func (s *TraceStore) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, repository, model, started_at,
		        COALESCE(finished_at, ''), COALESCE(outcome, ''), iterations, tool_calls
		 FROM runs WHERE run_id = ?`, runID)

	var r RunSummary
	err := row.Scan(&r.RunID, &r.Repository, &r.Model, &r.StartedAt,
		&r.FinishedAt, &r.Outcome, &r.Iterations, &r.ToolCalls)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return &r, nil
}

// ListRuns returns run summaries, most recent first.
func (s *TraceStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, repository, model, started_at,
		        COALESCE(finished_at, ''), COALESCE(outcome, ''), iterations, tool_calls
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var result []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.Repository, &r.Model, &r.StartedAt,
			&r.FinishedAt, &r.Outcome, &r.Iterations, &r.ToolCalls); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// ObservationCount returns how many observations a run recorded.
func (s *TraceStore) ObservationCount(ctx context.Context, runID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM observations WHERE run_id = ?`, runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return count, nil
}

// DraftVersions returns the stored draft versions for a run in order.
func (s *TraceStore) DraftVersions(ctx context.Context, runID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version FROM drafts WHERE run_id = ? ORDER BY version`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list draft versions: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan draft version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/richinex/repodoc/knowledge"
	"github.com/richinex/repodoc/model"
)

func openTestStore(t *testing.T) *TraceStore {
	t.Helper()
	store, err := OpenTraceInMemory()
	if err != nil {
		t.Fatalf("open in-memory trace: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.BeginRun(ctx, "run-1", "/repos/demo", "claude-opus-4-5"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if run == nil || run.Repository != "/repos/demo" || run.Outcome != "" {
		t.Fatalf("unexpected run: %+v", run)
	}

	if err := store.FinishRun(ctx, "run-1", "done", 7, 23); err != nil {
		t.Fatalf("finish: %v", err)
	}

	run, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get after finish: %v", err)
	}
	if run.Outcome != "done" || run.Iterations != 7 || run.ToolCalls != 23 {
		t.Errorf("unexpected run after finish: %+v", run)
	}
}

func TestGetRunMissing(t *testing.T) {
	store := openTestStore(t)

	run, err := store.GetRun(context.Background(), "no-such-run")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run != nil {
		t.Errorf("expected nil for missing run, got %+v", run)
	}
}

func TestRecordObservations(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.BeginRun(ctx, "run-1", "/repos/demo", "gpt-5.2"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	observations := []model.Observation{
		{
			Action:    model.Action{Kind: "read_file", Args: json.RawMessage(`{"path":"README.md"}`)},
			Payload:   "# Demo",
			Timestamp: time.Now(),
			ByteSize:  6,
		},
		{
			Action:    model.Action{Kind: "read_file", Args: json.RawMessage(`{"path":"missing.go"}`)},
			ErrCode:   "NotFound",
			ErrMsg:    "file does not exist",
			Timestamp: time.Now(),
		},
	}
	for i, obs := range observations {
		if err := store.RecordObservation(ctx, "run-1", i+1, obs); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	count, err := store.ObservationCount(ctx, "run-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestRecordEntriesAndDrafts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.BeginRun(ctx, "run-1", "/repos/demo", "gpt-5.2"); err != nil {
		t.Fatalf("begin: %v", err)
	}

	kstore := knowledge.NewStore()
	action := model.Action{Kind: "read_file", Args: json.RawMessage(`{"path":"main.go"}`)}
	entry, _ := kstore.Record(1, "structure", action, "entry point", 0.9)

	if err := store.RecordEntry(ctx, "run-1", entry); err != nil {
		t.Fatalf("record entry: %v", err)
	}

	// Same entry twice violates the (run_id, seq) uniqueness.
	if err := store.RecordEntry(ctx, "run-1", entry); err == nil {
		t.Error("duplicate seq should be rejected")
	}

	for v := 1; v <= 3; v++ {
		draft := model.Draft{
			Version:      v,
			GeneratedAt:  time.Now(),
			KnowledgeSeq: v,
			Sections:     []model.Section{{ID: "overview", Title: "Overview", Content: "body"}},
		}
		if err := store.RecordDraft(ctx, "run-1", draft); err != nil {
			t.Fatalf("record draft %d: %v", v, err)
		}
	}

	versions, err := store.DraftVersions(ctx, "run-1")
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) != 3 || versions[0] != 1 || versions[2] != 3 {
		t.Errorf("versions = %v", versions)
	}
}

func TestListRunsOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-a", "run-b"} {
		if err := store.BeginRun(ctx, id, "/repos/demo", "gpt-5.2"); err != nil {
			t.Fatalf("begin %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
}

func TestOpenTraceCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "trace.db")
	store, err := OpenTrace(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	if err := store.BeginRun(context.Background(), "run-1", "/repos/demo", "m"); err != nil {
		t.Fatalf("begin: %v", err)
	}
}

package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/richinex/repodoc/config"
	"github.com/richinex/repodoc/llm"
	"github.com/richinex/repodoc/output"
	"github.com/richinex/repodoc/storage"
	"github.com/richinex/repodoc/tools"
)

// fakeProvider routes calls by system prompt: planner and assessor calls
// consume scripted responses, section generation returns a fixed body.
type fakeProvider struct {
	plans       []string
	assessments []string
	planIdx     int
	assessIdx   int
	planCalls   int
	assessCalls int
	planPrompts []string
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-1" }

func (p *fakeProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

func (p *fakeProvider) ChatWithFormat(ctx context.Context, messages []llm.ChatMessage, _ *llm.ResponseFormat) (llm.LLMResponse, error) {
	system := ""
	if len(messages) > 0 && messages[0].Role == "system" {
		system = messages[0].Content
	}

	switch {
	case strings.Contains(system, "autonomous code analyst"):
		p.planCalls++
		if len(messages) > 1 {
			p.planPrompts = append(p.planPrompts, messages[len(messages)-1].Content)
		}
		return llm.LLMResponse{Content: takeScripted(p.plans, &p.planIdx)}, nil
	case strings.Contains(system, "You judge whether"):
		p.assessCalls++
		return llm.LLMResponse{Content: takeScripted(p.assessments, &p.assessIdx)}, nil
	default:
		return llm.LLMResponse{Content: "Generated section body."}, nil
	}
}

// takeScripted returns the next scripted response, repeating the last one.
func takeScripted(scripted []string, idx *int) string {
	if len(scripted) == 0 {
		return ""
	}
	i := *idx
	if i >= len(scripted) {
		i = len(scripted) - 1
	}
	*idx++
	return scripted[i]
}

var _ llm.Provider = (*fakeProvider)(nil)

const (
	planReadMain     = `{"thought":"inspect the entry point","actions":[{"tool":"read_file","args":{"path":"main.go"},"topic":"components","reason":"entry point"}]}`
	planReadMissing  = `{"thought":"inspect a guessed file","actions":[{"tool":"read_file","args":{"path":"does_not_exist.go"},"topic":"components","reason":"guess"}]}`
	planReadLib      = `{"thought":"inspect the library","actions":[{"tool":"read_file","args":{"path":"lib.go"},"topic":"components","reason":"library"}]}`
	assessComplete   = `{"is_complete":true,"confidence_score":0.9,"missing_parts":[]}`
	assessIncomplete = `{"is_complete":false,"confidence_score":0.4,"missing_parts":["deployment"]}`
)

func fixtureRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"README.md": "# Demo\n\nA demo project.\n",
		"go.mod":    "module example.com/demo\n",
		"main.go":   "package main\n\nfunc main() {}\n",
		"lib.go":    "package main\n\nfunc helper() {}\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return root
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MaxIterations = 5
	cfg.MaxToolCalls = 30
	cfg.MinIterations = 1
	cfg.StagnationThreshold = 2
	cfg.ConcurrencyLimit = 2
	cfg.IntermediateOutput = true
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg config.Config, provider *fakeProvider) (*Orchestrator, string) {
	t.Helper()
	repo := fixtureRepo(t)

	registry, err := tools.ForRepository(repo)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	outDir := filepath.Join(t.TempDir(), "out")
	sink, err := output.NewSink(outDir, cfg.IntermediateOutput, zap.NewNop())
	if err != nil {
		t.Fatalf("sink: %v", err)
	}

	orch := New(cfg, llm.NewClient(provider), registry, sink, repo, zap.NewNop())
	return orch, outDir
}

func TestRunOrganicCompletion(t *testing.T) {
	provider := &fakeProvider{
		plans:       []string{planReadMain},
		assessments: []string{assessComplete},
	}
	orch, outDir := newTestOrchestrator(t, testConfig(), provider)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Partial {
		t.Error("organic completion must not be partial")
	}
	if result.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", result.Iterations)
	}
	// Seed (tree + README + go.mod) plus one planned read.
	if result.ToolCalls != 4 {
		t.Errorf("tool calls = %d, want 4", result.ToolCalls)
	}
	if result.KnowledgeEntries == 0 {
		t.Error("no knowledge recorded")
	}

	content, err := os.ReadFile(filepath.Join(outDir, "document.md"))
	if err != nil {
		t.Fatalf("document missing: %v", err)
	}
	if !strings.Contains(string(content), "Generated section body.") {
		t.Error("document missing generated sections")
	}
	if strings.Contains(string(content), "Partial document") {
		t.Error("complete document must not carry the partial marker")
	}
	if _, err := os.Stat(filepath.Join(outDir, "report.md")); err != nil {
		t.Errorf("report missing: %v", err)
	}
}

func TestRunToleratesToolFailure(t *testing.T) {
	trace, err := storage.OpenTraceInMemory()
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	defer trace.Close()

	provider := &fakeProvider{
		plans:       []string{planReadMissing, planReadMain},
		assessments: []string{assessIncomplete, assessComplete},
	}
	orch, _ := newTestOrchestrator(t, testConfig(), provider)
	orch.WithTrace(trace)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("a failed tool call must not abort the run: %v", err)
	}
	if result.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", result.Iterations)
	}

	// The failed call is still counted against the budget and traced.
	if result.ToolCalls != 5 {
		t.Errorf("tool calls = %d, want 5", result.ToolCalls)
	}
	count, err := trace.ObservationCount(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Errorf("traced observations = %d, want 5", count)
	}

	// The failure produced no knowledge entry: 3 seed reads plus main.go.
	if result.KnowledgeEntries != 4 {
		t.Errorf("knowledge entries = %d, want 4", result.KnowledgeEntries)
	}

	// The next planning prompt quotes the failure back to the model.
	if len(provider.planPrompts) != 2 {
		t.Fatalf("plan prompts = %d, want 2", len(provider.planPrompts))
	}
	second := provider.planPrompts[1]
	for _, want := range []string{"does_not_exist.go", "NotFound", "failed"} {
		if !strings.Contains(second, want) {
			t.Errorf("second planning prompt missing %q:\n%s", want, second)
		}
	}
	if strings.Contains(provider.planPrompts[0], "failed on the last step") {
		t.Error("first planning prompt must not report failures")
	}
}

func TestRunIterationBudgetForcesPartial(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 2

	provider := &fakeProvider{
		plans:       []string{planReadMain, planReadLib},
		assessments: []string{assessIncomplete},
	}
	orch, outDir := newTestOrchestrator(t, cfg, provider)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("budget-forced run must still succeed, got %v", err)
	}

	if !result.Partial {
		t.Error("budget-forced result must be partial")
	}
	if !result.Assessment.Forced {
		t.Error("assessment must be marked forced")
	}
	if result.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", result.Iterations)
	}

	content, err := os.ReadFile(filepath.Join(outDir, "document.md"))
	if err != nil {
		t.Fatalf("partial document missing: %v", err)
	}
	if !strings.Contains(string(content), "Partial document") {
		t.Error("partial document must carry the marker")
	}
}

func TestRunStagnationForcesFinish(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 10
	cfg.StagnationThreshold = 2

	// The same plan every iteration: after the first, nothing new.
	provider := &fakeProvider{
		plans:       []string{planReadMain},
		assessments: []string{assessIncomplete},
	}
	orch, _ := newTestOrchestrator(t, cfg, provider)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("stagnation-forced run must still succeed, got %v", err)
	}
	if !result.Assessment.Forced {
		t.Error("stagnation finish must be forced")
	}
	if !strings.Contains(result.Assessment.Reason, "stagnated") {
		t.Errorf("reason = %q", result.Assessment.Reason)
	}
	// Iteration 1 learns main.go; iterations 2 and 3 add nothing and trip
	// the threshold.
	if result.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", result.Iterations)
	}
}

func TestRunToolCallCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxToolCalls = 4 // seed uses 3, leaving one

	provider := &fakeProvider{
		plans:       []string{planReadMain, planReadLib},
		assessments: []string{assessIncomplete},
	}
	orch, _ := newTestOrchestrator(t, cfg, provider)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.ToolCalls > cfg.MaxToolCalls {
		t.Errorf("tool calls = %d exceeds ceiling %d", result.ToolCalls, cfg.MaxToolCalls)
	}
	if !result.Partial {
		t.Error("ceiling-stopped run must be partial")
	}
}

func TestRunPlanCorrection(t *testing.T) {
	provider := &fakeProvider{
		plans: []string{
			"this is not json at all",
			`{"thought":"bad tool","actions":[{"tool":"write_file","args":{"path":"x"},"topic":"t"}]}`,
			planReadMain,
		},
		assessments: []string{assessComplete},
	}
	orch, _ := newTestOrchestrator(t, testConfig(), provider)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Partial {
		t.Error("run should complete after plan corrections")
	}
	// One planning step consumed three attempts.
	if provider.planCalls != 3 {
		t.Errorf("plan calls = %d, want 3", provider.planCalls)
	}
}

func TestRunPlanCorrectionExhausted(t *testing.T) {
	provider := &fakeProvider{
		plans:       []string{"still not json"},
		assessments: []string{assessComplete},
	}
	orch, outDir := newTestOrchestrator(t, testConfig(), provider)

	_, err := orch.Run(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting plan corrections")
	}
	// Seed knowledge still yields a best-effort document.
	if _, statErr := os.Stat(filepath.Join(outDir, "document.md")); statErr != nil {
		t.Errorf("best-effort document missing: %v", statErr)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &fakeProvider{plans: []string{planReadMain}, assessments: []string{assessComplete}}
	orch, _ := newTestOrchestrator(t, testConfig(), provider)

	if _, err := orch.Run(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestRunRecordsTrace(t *testing.T) {
	trace, err := storage.OpenTraceInMemory()
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	defer trace.Close()

	provider := &fakeProvider{
		plans:       []string{planReadMain},
		assessments: []string{assessComplete},
	}
	orch, _ := newTestOrchestrator(t, testConfig(), provider)
	orch.WithTrace(trace)

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	ctx := context.Background()
	run, err := trace.GetRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run == nil || run.Outcome == "" {
		t.Fatalf("run not finished in trace: %+v", run)
	}
	count, err := trace.ObservationCount(ctx, result.RunID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != result.ToolCalls {
		t.Errorf("trace observations = %d, tool calls = %d", count, result.ToolCalls)
	}
	versions, err := trace.DraftVersions(ctx, result.RunID)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions) == 0 {
		t.Error("no draft versions in trace")
	}
}

func TestRunIntermediateSnapshots(t *testing.T) {
	cfg := testConfig()
	cfg.MaxIterations = 3

	provider := &fakeProvider{
		plans:       []string{planReadMain, planReadLib, planReadLib},
		assessments: []string{assessIncomplete, assessIncomplete, assessComplete},
	}
	orch, outDir := newTestOrchestrator(t, cfg, provider)

	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(outDir, "intermediate"))
	if err != nil {
		t.Fatalf("intermediate dir: %v", err)
	}
	if len(entries) == 0 {
		t.Error("expected intermediate draft snapshots")
	}
}

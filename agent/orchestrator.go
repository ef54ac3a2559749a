// Package agent runs the exploration loop: plan, act, observe, evaluate,
// draft, repeat, until the completeness judge or a budget guard stops it.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/richinex/repodoc/config"
	"github.com/richinex/repodoc/document"
	"github.com/richinex/repodoc/judge"
	"github.com/richinex/repodoc/knowledge"
	"github.com/richinex/repodoc/llm"
	"github.com/richinex/repodoc/model"
	"github.com/richinex/repodoc/output"
	"github.com/richinex/repodoc/storage"
	"github.com/richinex/repodoc/tools"
)

// knowledgeExcerptBytes caps how much of one observation payload becomes a
// knowledge entry.
const knowledgeExcerptBytes = 4096

// promptKnowledgeBudget caps the knowledge summary injected into prompts.
const promptKnowledgeBudget = 32 * 1024

// promptDraftBudget caps the draft excerpt shown to the assessor.
const promptDraftBudget = 16 * 1024

// Result is the outcome of one run.
type Result struct {
	RunID            string
	DocumentPath     string
	Draft            model.Draft
	Assessment       model.Assessment
	Iterations       int
	ToolCalls        int
	KnowledgeEntries int
	Partial          bool
	Usage            llm.TokenUsage
}

// Orchestrator drives one documentation run over one repository.
type Orchestrator struct {
	cfg      config.Config
	client   *llm.Client
	registry *tools.Registry
	executor *tools.Executor
	store    *knowledge.Store
	compiler *document.Compiler
	sink     *output.Sink
	trace    *storage.TraceStore
	logger   *zap.Logger

	repoPath string
	repoName string
	runID    string

	phase        model.Phase
	iteration    int
	toolCalls    int
	stagnant     int
	lastFailures []model.Observation
	draft        model.Draft
	assessment   model.Assessment
	startedAt    time.Time
}

// New creates an orchestrator. The registry must already be scoped to the
// repository; the sink receives all artifacts.
func New(cfg config.Config, client *llm.Client, registry *tools.Registry, sink *output.Sink, repoPath string, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		client:   client,
		registry: registry,
		executor: tools.NewExecutor(tools.ExecConfig{Timeout: cfg.ToolTimeout(), MaxRetries: cfg.ToolRetries}),
		store:    knowledge.NewStore(),
		compiler: document.NewCompiler(client, cfg.SectionSpecs(), logger),
		sink:     sink,
		logger:   logger,
		repoPath: repoPath,
		repoName: filepath.Base(filepath.Clean(repoPath)),
		runID:    uuid.NewString(),
	}
}

// WithTrace attaches a run-trace store.
func (o *Orchestrator) WithTrace(trace *storage.TraceStore) *Orchestrator {
	o.trace = trace
	return o
}

// RunID returns this run's identifier.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run executes the full loop and writes the document. A budget- or
// stagnation-forced stop still yields a (partial) document and a nil error;
// only unrecoverable failures return one.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	o.startedAt = time.Now()
	o.logger.Info("run starting",
		zap.String("run_id", o.runID),
		zap.String("repository", o.repoPath),
		zap.String("model", o.client.Provider().Model()))

	if o.trace != nil {
		if err := o.trace.BeginRun(ctx, o.runID, o.repoPath, o.client.Provider().Model()); err != nil {
			return Result{}, o.fail(err)
		}
	}

	if err := o.seed(ctx); err != nil {
		return o.bestEffortFinish(ctx, err)
	}

	for o.iteration < o.cfg.MaxIterations {
		if ctx.Err() != nil {
			return o.bestEffortFinish(ctx, ctx.Err())
		}
		o.iteration++

		plan, err := o.planStep(ctx)
		if err != nil {
			return o.bestEffortFinish(ctx, err)
		}

		observations := o.actStep(ctx, plan)
		newEntries := o.observeStep(ctx, plan, observations)
		if newEntries == 0 {
			o.stagnant++
		} else {
			o.stagnant = 0
		}

		assessment, err := o.evaluateStep(ctx)
		if err != nil {
			return o.bestEffortFinish(ctx, err)
		}
		o.assessment = assessment

		o.logger.Info("iteration evaluated",
			zap.Int("iteration", o.iteration),
			zap.String("verdict", assessment.Verdict.String()),
			zap.Float64("confidence", assessment.Confidence),
			zap.Int("knowledge", o.store.Len()),
			zap.Int("tool_calls", o.toolCalls),
			zap.Int("stagnant", o.stagnant))

		switch assessment.Verdict {
		case model.VerdictFinish:
			return o.finalize(ctx, assessment.Forced)
		case model.VerdictDraft, model.VerdictRevise:
			if err := o.draftStep(ctx); err != nil {
				return o.bestEffortFinish(ctx, err)
			}
		}
	}

	// Iteration budget exhausted without an organic finish.
	o.assessment.Forced = true
	o.assessment.Verdict = model.VerdictFinish
	if o.assessment.Reason == "" {
		o.assessment.Reason = "iteration budget exhausted"
	}
	return o.finalize(ctx, true)
}

// transition moves the state machine and logs it.
func (o *Orchestrator) transition(phase model.Phase) {
	o.logger.Debug("phase transition",
		zap.String("from", o.phase.String()),
		zap.String("to", phase.String()),
		zap.Int("iteration", o.iteration))
	o.phase = phase
}

// seedManifests are files whose content is collected up front when present.
var seedManifests = []string{
	"go.mod", "package.json", "pyproject.toml", "setup.py", "Cargo.toml",
	"pom.xml", "build.gradle", "Makefile", "Dockerfile", "docker-compose.yml",
}

// seedReadmes are checked in order; the first match is read.
var seedReadmes = []string{"README.md", "README.rst", "README"}

// seed performs the initial survey before the model plans anything: the
// README, a depth-limited tree, and any recognized manifest files.
func (o *Orchestrator) seed(ctx context.Context) error {
	o.transition(model.PhaseActing)

	var planned []PlannedAction
	planned = append(planned, PlannedAction{
		Tool:  "file_tree",
		Args:  json.RawMessage(`{"max_depth":3}`),
		Topic: "structure",
	})
	for _, name := range seedReadmes {
		if _, err := os.Stat(filepath.Join(o.repoPath, name)); err == nil {
			planned = append(planned, PlannedAction{
				Tool:  "read_file",
				Args:  json.RawMessage(fmt.Sprintf(`{"path":%q}`, name)),
				Topic: "overview",
			})
			break
		}
	}
	for _, name := range seedManifests {
		if _, err := os.Stat(filepath.Join(o.repoPath, name)); err == nil {
			planned = append(planned, PlannedAction{
				Tool:  "read_file",
				Args:  json.RawMessage(fmt.Sprintf(`{"path":%q}`, name)),
				Topic: "build",
			})
		}
	}

	plan := Plan{Thought: "initial survey", Actions: planned}
	observations := o.actStep(ctx, plan)
	o.observeStep(ctx, plan, observations)
	o.logger.Info("seed survey complete",
		zap.Int("tool_calls", o.toolCalls),
		zap.Int("knowledge", o.store.Len()))
	return ctx.Err()
}

// planStep asks the model what to explore next.
func (o *Orchestrator) planStep(ctx context.Context) (Plan, error) {
	o.transition(model.PhasePlanning)

	hints := ""
	if len(o.assessment.MissingParts) > 0 {
		gaps := ""
		for _, part := range o.assessment.MissingParts {
			gaps += "- " + part + "\n"
		}
		hints += fmt.Sprintf(plannerGapHint, gaps)
	}
	if len(o.lastFailures) > 0 {
		failures := ""
		for _, obs := range o.lastFailures {
			failures += fmt.Sprintf("- %s: %s\n", obs.Action.String(), obs.Text())
		}
		hints += fmt.Sprintf(plannerFailureHint, failures)
	}

	examined := "(none)"
	if paths := o.store.Paths(); len(paths) > 0 {
		examined = strings.Join(paths, ", ")
	}

	prompt := fmt.Sprintf(plannerUserPrompt,
		o.repoName, o.iteration, o.cfg.MaxIterations,
		o.remainingToolCalls(),
		examined,
		o.store.Summarize(promptKnowledgeBudget),
		hints)

	return o.requestPlan(ctx, prompt)
}

// actStep dispatches the plan's actions concurrently and returns their
// observations in issuance order. Actions beyond the remaining tool-call
// budget are dropped.
func (o *Orchestrator) actStep(ctx context.Context, plan Plan) []model.Observation {
	o.transition(model.PhaseActing)

	actions := plan.Actions
	if remaining := o.remainingToolCalls(); len(actions) > remaining {
		o.logger.Warn("plan truncated by tool-call budget",
			zap.Int("requested", len(actions)),
			zap.Int("remaining", remaining))
		actions = actions[:remaining]
	}
	if len(actions) == 0 {
		return nil
	}

	observations := make([]model.Observation, len(actions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ConcurrencyLimit)
	for i, pa := range actions {
		g.Go(func() error {
			observations[i] = o.execute(gctx, pa.Action())
			return nil
		})
	}
	// Goroutines never return errors; failures live in the observations.
	_ = g.Wait()

	o.toolCalls += len(actions)
	return observations
}

// execute runs one action through the executor and wraps the outcome.
func (o *Orchestrator) execute(ctx context.Context, action model.Action) model.Observation {
	obs := model.Observation{Action: action, Timestamp: time.Now().UTC()}

	tool, exists := o.registry.Get(action.Kind)
	if !exists {
		obs.ErrCode = string(tools.CodeSchemaViolation)
		obs.ErrMsg = fmt.Sprintf("unknown tool %q", action.Kind)
		return obs
	}

	payload, err := o.executor.Execute(ctx, tool, action.Args)
	if err != nil {
		obs.ErrCode = string(tools.CodeOf(err))
		obs.ErrMsg = err.Error()
		return obs
	}
	obs.Payload = payload
	obs.ByteSize = len(payload)
	return obs
}

// observeStep records observations into the trace and the knowledge store,
// in issuance order, and returns how many new knowledge entries resulted.
// Failed observations are retained so the next planning prompt can quote
// them back to the model.
func (o *Orchestrator) observeStep(ctx context.Context, plan Plan, observations []model.Observation) int {
	o.transition(model.PhaseObserving)

	newEntries := 0
	var failures []model.Observation
	for i, obs := range observations {
		if o.trace != nil {
			if err := o.trace.RecordObservation(ctx, o.runID, o.iteration, obs); err != nil {
				o.logger.Warn("trace write failed", zap.Error(err))
			}
		}

		if obs.Failed() {
			failures = append(failures, obs)
			o.logger.Debug("tool call failed",
				zap.String("tool", obs.Action.Kind),
				zap.String("code", obs.ErrCode),
				zap.String("msg", obs.ErrMsg))
			continue
		}

		content := obs.Payload
		if len(content) > knowledgeExcerptBytes {
			content = content[:knowledgeExcerptBytes] + "..."
		}
		topic := plan.Actions[i].TopicOrDefault()

		entry, added := o.store.Record(o.iteration, topic, obs.Action, content, 0.9)
		if !added {
			continue
		}
		newEntries++
		if o.trace != nil {
			if err := o.trace.RecordEntry(ctx, o.runID, entry); err != nil {
				o.logger.Warn("trace write failed", zap.Error(err))
			}
		}
	}
	o.lastFailures = failures
	return newEntries
}

// evaluateStep asks the model for a self-assessment and passes it through
// the judge's hard guards.
func (o *Orchestrator) evaluateStep(ctx context.Context) (model.Assessment, error) {
	o.transition(model.PhaseEvaluating)

	draftText := "(no draft yet)"
	if !o.draft.Empty() {
		draftText = o.draft.Markdown()
		if len(draftText) > promptDraftBudget {
			draftText = draftText[:promptDraftBudget] + "\n... [draft truncated]"
		}
	}

	messages := []llm.ChatMessage{
		llm.SystemMessage(assessorSystemPrompt),
		llm.UserMessage(fmt.Sprintf(assessorUserPrompt,
			o.repoName, o.store.Summarize(promptKnowledgeBudget), draftText)),
	}

	var sa judge.SelfAssessment
	response, err := o.client.ChatWithFormat(ctx, messages, llm.NewJSONObjectFormat())
	if err != nil {
		return model.Assessment{}, err
	}
	sa, err = judge.ParseAssessment(response)
	if err != nil {
		// An unparseable assessment never finishes the run; the guards
		// still get their say.
		o.logger.Warn("unparseable completeness assessment", zap.Error(err))
		sa = judge.SelfAssessment{}
	}

	guards := judge.Guards{
		Iteration:       o.iteration,
		MinIterations:   o.cfg.MinIterations,
		BudgetExhausted: o.budgetExhausted(),
		Stagnant:        o.stagnant >= o.cfg.StagnationThreshold,
		MinConfidence:   o.cfg.MinConfidence,
		KnowledgeCount:  o.store.Len(),
	}
	assessment := judge.Decide(sa, guards)

	// Drafting is driven here: once past the iteration floor, refresh the
	// draft whenever exploration will continue.
	if assessment.Verdict == model.VerdictContinue && o.iteration >= o.cfg.MinIterations && o.store.Len() > o.draft.KnowledgeSeq {
		assessment.Verdict = model.VerdictDraft
	}
	return assessment, nil
}

// draftStep compiles the next draft version and archives it.
func (o *Orchestrator) draftStep(ctx context.Context) error {
	o.transition(model.PhaseDrafting)

	draft, err := o.compiler.Compile(ctx, o.store.Snapshot(), false)
	if err != nil {
		return fmt.Errorf("draft compilation: %w", err)
	}
	o.draft = draft

	if err := o.sink.WriteSnapshot(draft); err != nil {
		return err
	}
	if o.trace != nil {
		if err := o.trace.RecordDraft(ctx, o.runID, draft); err != nil {
			o.logger.Warn("trace write failed", zap.Error(err))
		}
	}
	o.logger.Info("draft compiled",
		zap.Int("version", draft.Version),
		zap.Int("knowledge_seq", draft.KnowledgeSeq))
	return nil
}

// finalize compiles the final document, writes all artifacts and closes the
// trace. A forced stop produces a partial document but still succeeds.
func (o *Orchestrator) finalize(ctx context.Context, forced bool) (Result, error) {
	o.transition(model.PhaseFinalizing)

	draft, err := o.compiler.Compile(ctx, o.store.Snapshot(), forced)
	if err != nil {
		// Fall back to the last good draft rather than losing the run.
		if o.draft.Empty() {
			return Result{}, o.fail(fmt.Errorf("final compilation: %w", err))
		}
		o.logger.Warn("final compilation failed, using last draft", zap.Error(err))
		draft = o.draft
		draft.Partial = true
	}
	o.draft = draft

	docPath, err := o.sink.WriteFinal(draft, o.repoName)
	if err != nil {
		return Result{}, o.fail(err)
	}
	if o.trace != nil {
		if err := o.trace.RecordDraft(ctx, o.runID, draft); err != nil {
			o.logger.Warn("trace write failed", zap.Error(err))
		}
	}

	usage := o.client.Usage()
	report := output.Report{
		RunID:        o.runID,
		Repository:   o.repoPath,
		Model:        o.client.Provider().Model(),
		StartedAt:    o.startedAt,
		FinishedAt:   time.Now(),
		Iterations:   o.iteration,
		ToolCalls:    o.toolCalls,
		Knowledge:    o.store.Len(),
		DraftVersion: draft.Version,
		Snapshots:    o.sink.SnapshotCount(),
		Outcome:      "done",
		Forced:       forced,
		Confidence:   o.assessment.Confidence,
		MissingParts: o.assessment.MissingParts,
		PromptTokens: usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
	}
	if forced {
		report.Outcome = "done (forced)"
	}
	if err := o.sink.WriteReport(report); err != nil {
		return Result{}, o.fail(err)
	}

	if o.trace != nil {
		if err := o.trace.FinishRun(ctx, o.runID, report.Outcome, o.iteration, o.toolCalls); err != nil {
			o.logger.Warn("trace write failed", zap.Error(err))
		}
	}

	o.transition(model.PhaseDone)
	o.logger.Info("run finished",
		zap.String("run_id", o.runID),
		zap.String("document", docPath),
		zap.Bool("partial", draft.Partial),
		zap.Int("iterations", o.iteration),
		zap.Int("tool_calls", o.toolCalls))

	return Result{
		RunID:            o.runID,
		DocumentPath:     docPath,
		Draft:            draft,
		Assessment:       o.assessment,
		Iterations:       o.iteration,
		ToolCalls:        o.toolCalls,
		KnowledgeEntries: o.store.Len(),
		Partial:          draft.Partial,
		Usage:            usage,
	}, nil
}

// bestEffortFinish handles mid-run failures and cancellation: whatever
// knowledge exists becomes a partial document, then the original error is
// returned.
func (o *Orchestrator) bestEffortFinish(ctx context.Context, cause error) (Result, error) {
	o.logger.Warn("run interrupted, writing best-effort document", zap.Error(cause))

	// The original context may already be dead.
	finishCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		finishCtx, cancel = context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
	}

	if o.store.Len() > 0 {
		if result, err := o.finalize(finishCtx, true); err == nil {
			return result, cause
		}
	}
	return Result{RunID: o.runID}, o.fail(cause)
}

// fail marks the run failed in the trace and returns the error.
func (o *Orchestrator) fail(err error) error {
	o.transition(model.PhaseFailed)
	if o.trace != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if terr := o.trace.FinishRun(ctx, o.runID, "failed: "+err.Error(), o.iteration, o.toolCalls); terr != nil {
			o.logger.Warn("trace write failed", zap.Error(terr))
		}
	}
	return err
}

func (o *Orchestrator) remainingToolCalls() int {
	remaining := o.cfg.MaxToolCalls - o.toolCalls
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (o *Orchestrator) budgetExhausted() bool {
	return o.iteration >= o.cfg.MaxIterations || o.toolCalls >= o.cfg.MaxToolCalls
}

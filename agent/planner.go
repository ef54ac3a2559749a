// Plan parsing and validation.
//
// The model proposes actions as JSON; every proposal is checked against the
// tool registry before anything runs. Invalid plans get a bounded number of
// correction round-trips with the rejection reasons quoted back.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/richinex/repodoc/internal/jsonx"
	"github.com/richinex/repodoc/llm"
	"github.com/richinex/repodoc/model"
	"github.com/richinex/repodoc/tools"
)

// maxActionsPerPlan caps how many tool calls one planning step may request.
const maxActionsPerPlan = 6

// maxPlanCorrections bounds schema-correction round-trips per step.
const maxPlanCorrections = 2

// PlannedAction is one tool invocation proposed by the model.
type PlannedAction struct {
	Tool   string          `json:"tool"`
	Args   json.RawMessage `json:"args"`
	Topic  string          `json:"topic"`
	Reason string          `json:"reason"`
}

// Plan is the model's proposal for one exploration step.
type Plan struct {
	Thought string          `json:"thought"`
	Actions []PlannedAction `json:"actions"`
}

// Action converts a planned action to the executable form.
func (p PlannedAction) Action() model.Action {
	args := p.Args
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return model.Action{Kind: p.Tool, Args: args}
}

// defaultTopicFor maps a tool kind to a fallback knowledge topic when the
// model omits one.
func defaultTopicFor(kind string) string {
	switch kind {
	case "read_file":
		return "components"
	case "file_tree", "list_dir", "glob", "list_by_extension":
		return "structure"
	case "search_code":
		return "components"
	default:
		return "general"
	}
}

// Topic returns the planned topic, defaulting by tool kind.
func (p PlannedAction) TopicOrDefault() string {
	if t := strings.TrimSpace(strings.ToLower(p.Topic)); t != "" {
		return t
	}
	return defaultTopicFor(p.Tool)
}

// validatePlan checks every action against the registry. The returned slice
// holds one message per rejected action; an empty slice means the plan is
// acceptable.
func validatePlan(registry *tools.Registry, plan Plan) []string {
	var problems []string
	if len(plan.Actions) == 0 {
		problems = append(problems, "plan contains no actions")
		return problems
	}
	if len(plan.Actions) > maxActionsPerPlan {
		problems = append(problems, fmt.Sprintf("plan requests %d actions, maximum is %d", len(plan.Actions), maxActionsPerPlan))
		return problems
	}
	for i, pa := range plan.Actions {
		if err := registry.Check(pa.Tool, pa.Action().Args); err != nil {
			problems = append(problems, fmt.Sprintf("action %d (%s): %v", i+1, pa.Tool, err))
		}
	}
	return problems
}

// requestPlan asks the model for a plan and re-asks with the rejection
// reasons when the response fails to parse or validate. After the
// correction budget is spent the last error is returned.
func (o *Orchestrator) requestPlan(ctx context.Context, prompt string) (Plan, error) {
	messages := []llm.ChatMessage{
		llm.SystemMessage(fmt.Sprintf(plannerSystemPrompt, o.registry.Description())),
		llm.UserMessage(prompt),
	}

	var lastErr error
	for attempt := 0; attempt <= maxPlanCorrections; attempt++ {
		response, err := o.client.ChatWithFormat(ctx, messages, llm.NewJSONObjectFormat())
		if err != nil {
			return Plan{}, err
		}

		plan, err := jsonx.Decode[Plan](response)
		if err != nil {
			lastErr = err
			messages = append(messages,
				llm.AssistantMessage(response),
				llm.UserMessage(fmt.Sprintf(plannerCorrectionPrompt, err.Error())))
			continue
		}

		if problems := validatePlan(o.registry, plan); len(problems) > 0 {
			lastErr = fmt.Errorf("invalid plan: %s", strings.Join(problems, "; "))
			messages = append(messages,
				llm.AssistantMessage(response),
				llm.UserMessage(fmt.Sprintf(plannerCorrectionPrompt, strings.Join(problems, "\n"))))
			continue
		}

		return plan, nil
	}

	return Plan{}, fmt.Errorf("no valid plan after %d corrections: %w", maxPlanCorrections, lastErr)
}

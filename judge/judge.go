// Package judge decides whether the accumulated knowledge and current draft
// are complete enough to stop exploring.
//
// The model reports a structured self-assessment, but it never has the final
// word: hard guards derived from run state (budgets, stagnation, minimum
// iterations) override whatever the model claims. The decision itself is a
// pure function so every verdict is reproducible from its inputs.
package judge

import (
	"encoding/json"
	"fmt"

	"github.com/richinex/repodoc/internal/jsonx"
	"github.com/richinex/repodoc/model"
)

// SelfAssessment is the model's own completeness report.
type SelfAssessment struct {
	IsComplete      bool         `json:"is_complete"`
	ConfidenceScore float64      `json:"confidence_score"`
	MissingParts    []string     `json:"missing_parts"`
	SuggestedTools  []Suggestion `json:"suggested_tools"`
}

// Suggestion is a tool invocation the model proposes to fill a gap.
type Suggestion struct {
	Tool   string          `json:"tool"`
	Args   json.RawMessage `json:"args"`
	Reason string          `json:"reason"`
}

// ParseAssessment extracts a self-assessment from a raw model response.
// Confidence is clamped to [0, 1].
func ParseAssessment(response string) (SelfAssessment, error) {
	sa, err := jsonx.Decode[SelfAssessment](response)
	if err != nil {
		return SelfAssessment{}, fmt.Errorf("completeness assessment: %w", err)
	}
	if sa.ConfidenceScore < 0 {
		sa.ConfidenceScore = 0
	}
	if sa.ConfidenceScore > 1 {
		sa.ConfidenceScore = 1
	}
	return sa, nil
}

// Guards carries the run-state facts that constrain the verdict.
type Guards struct {
	// Iteration is the current iteration number (1-based).
	Iteration int
	// MinIterations is the floor below which a finish verdict is refused.
	MinIterations int
	// BudgetExhausted means an iteration or tool-call ceiling was hit.
	BudgetExhausted bool
	// Stagnant means the stagnation threshold was crossed.
	Stagnant bool
	// MinConfidence is the confidence floor for accepting completion.
	MinConfidence float64
	// KnowledgeCount is the number of recorded knowledge entries.
	KnowledgeCount int
}

// Decide combines the model's self-assessment with the hard guards and
// returns the verdict. Guards always win over the model's claim.
func Decide(sa SelfAssessment, g Guards) model.Assessment {
	switch {
	case g.BudgetExhausted:
		return model.Assessment{
			Verdict:      model.VerdictFinish,
			Confidence:   sa.ConfidenceScore,
			MissingParts: sa.MissingParts,
			Forced:       true,
			Reason:       "budget exhausted",
		}
	case g.Stagnant:
		return model.Assessment{
			Verdict:      model.VerdictFinish,
			Confidence:   sa.ConfidenceScore,
			MissingParts: sa.MissingParts,
			Forced:       true,
			Reason:       "exploration stagnated, no new knowledge",
		}
	case g.KnowledgeCount == 0:
		// Nothing learned yet; a completion claim here is meaningless.
		return model.Assessment{
			Verdict:      model.VerdictContinue,
			Confidence:   0,
			MissingParts: sa.MissingParts,
			Reason:       "no knowledge recorded yet",
		}
	}

	if sa.IsComplete {
		if g.Iteration < g.MinIterations {
			return model.Assessment{
				Verdict:      model.VerdictContinue,
				Confidence:   sa.ConfidenceScore,
				MissingParts: sa.MissingParts,
				Reason:       fmt.Sprintf("completion claimed at iteration %d, minimum is %d", g.Iteration, g.MinIterations),
			}
		}
		if sa.ConfidenceScore < g.MinConfidence {
			return model.Assessment{
				Verdict:      model.VerdictRevise,
				Confidence:   sa.ConfidenceScore,
				MissingParts: sa.MissingParts,
				Reason:       fmt.Sprintf("confidence %.2f below floor %.2f", sa.ConfidenceScore, g.MinConfidence),
			}
		}
		return model.Assessment{
			Verdict:    model.VerdictFinish,
			Confidence: sa.ConfidenceScore,
			Reason:     "assessment complete and confident",
		}
	}

	return model.Assessment{
		Verdict:      model.VerdictContinue,
		Confidence:   sa.ConfidenceScore,
		MissingParts: sa.MissingParts,
		Reason:       "assessment reports missing parts",
	}
}

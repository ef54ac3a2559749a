// Package model provides domain types shared across packages.
package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Action is a request to run one exploration tool against the repository.
// Kind is the registered tool name; Args must satisfy the tool's schema.
// Immutable once issued.
type Action struct {
	Kind string          `json:"kind"`
	Args json.RawMessage `json:"args"`
}

// DedupKey returns a canonical identity for the action: the kind plus its
// arguments re-marshaled with sorted keys. Two actions that would perform
// the same work produce the same key regardless of argument ordering.
func (a Action) DedupKey() string {
	var m map[string]interface{}
	if err := json.Unmarshal(a.Args, &m); err != nil || len(m) == 0 {
		return a.Kind + ":" + strings.TrimSpace(string(a.Args))
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(a.Kind)
	b.WriteByte(':')
	for _, k := range keys {
		v, _ := json.Marshal(m[k])
		fmt.Fprintf(&b, "%s=%s;", k, v)
	}
	return b.String()
}

// String returns a short human-readable form for logs.
func (a Action) String() string {
	args := string(a.Args)
	if len(args) > 120 {
		args = args[:120] + "..."
	}
	return fmt.Sprintf("%s(%s)", a.Kind, args)
}

// Observation is the recorded result of executing an Action.
// Append-only once recorded; never edited.
type Observation struct {
	Action    Action    `json:"action"`
	Payload   string    `json:"payload,omitempty"`
	ErrCode   string    `json:"err_code,omitempty"`
	ErrMsg    string    `json:"err_msg,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	ByteSize  int       `json:"byte_size"`
}

// Failed reports whether the observation recorded an error instead of a payload.
func (o Observation) Failed() bool {
	return o.ErrCode != ""
}

// Text returns the payload for successful observations, or a formatted
// error line so failures can be fed back to the model as plain text.
func (o Observation) Text() string {
	if o.Failed() {
		return fmt.Sprintf("tool %s failed: %s: %s", o.Action.Kind, o.ErrCode, o.ErrMsg)
	}
	return o.Payload
}

// Section is one independently generated part of a document draft.
// InputHash identifies the knowledge subset the content was generated from;
// recompiling with the same hash must reuse the prior content byte-for-byte.
type Section struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	InputHash string `json:"input_hash"`
}

// Draft is a versioned document. Each compilation produces a new version;
// prior versions are retained by the output sink when snapshots are enabled.
type Draft struct {
	Version      int       `json:"version"`
	Sections     []Section `json:"sections"`
	GeneratedAt  time.Time `json:"generated_at"`
	KnowledgeSeq int       `json:"knowledge_seq"`
	Partial      bool      `json:"partial"`
}

// Section returns the section with the given identifier.
func (d Draft) Section(id string) (Section, bool) {
	for _, s := range d.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// Markdown renders the draft as a single markdown document.
func (d Draft) Markdown() string {
	var b strings.Builder
	for i, s := range d.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", s.Title)
		b.WriteString(strings.TrimSpace(s.Content))
		b.WriteString("\n")
	}
	if d.Partial {
		b.WriteString("\n---\n\n*Partial document: the exploration budget was exhausted before the agent declared the document complete.*\n")
	}
	return b.String()
}

// Empty reports whether the draft has no section content at all.
func (d Draft) Empty() bool {
	for _, s := range d.Sections {
		if strings.TrimSpace(s.Content) != "" {
			return false
		}
	}
	return true
}

// Verdict is the Completeness Judge's decision for one evaluation step.
type Verdict int

const (
	// VerdictContinue means more exploration is needed before (re)drafting.
	VerdictContinue Verdict = iota
	// VerdictDraft means enough is known to write the document sections.
	VerdictDraft
	// VerdictRevise means specific sections should be regenerated.
	VerdictRevise
	// VerdictFinish means the current draft is the final document.
	VerdictFinish
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictContinue:
		return "continue"
	case VerdictDraft:
		return "draft"
	case VerdictRevise:
		return "revise"
	case VerdictFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// Assessment is the full result of one completeness evaluation: the verdict
// plus the model's self-reported confidence and gap list, and whether a hard
// guard overrode the model's own answer.
type Assessment struct {
	Verdict      Verdict  `json:"verdict"`
	Confidence   float64  `json:"confidence"`
	MissingParts []string `json:"missing_parts,omitempty"`
	Forced       bool     `json:"forced"`
	Reason       string   `json:"reason,omitempty"`
}

// Phase is a state of the orchestrator's state machine.
type Phase int

const (
	PhasePlanning Phase = iota
	PhaseActing
	PhaseObserving
	PhaseEvaluating
	PhaseDrafting
	PhaseFinalizing
	PhaseDone
	PhaseFailed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhasePlanning:
		return "planning"
	case PhaseActing:
		return "acting"
	case PhaseObserving:
		return "observing"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseDrafting:
		return "drafting"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Package document turns accumulated knowledge into the output document.
//
// Compilation is section by section: each section sees only the knowledge
// matching its topics, and a content-addressed cache guarantees that
// recompiling against unchanged knowledge reproduces the section byte for
// byte without another model call.
package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/repodoc/knowledge"
	"github.com/richinex/repodoc/llm"
	"github.com/richinex/repodoc/model"
)

// ChatClient is the slice of the LLM client the compiler needs.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.ChatMessage) (string, error)
}

// SectionSpec describes one section of the output document.
type SectionSpec struct {
	ID     string   `yaml:"id" json:"id"`
	Title  string   `yaml:"title" json:"title"`
	Topics []string `yaml:"topics" json:"topics"`
}

// DefaultSections is the section list used when the configuration does not
// supply one.
func DefaultSections() []SectionSpec {
	return []SectionSpec{
		{ID: "overview", Title: "Overview", Topics: []string{"overview", "purpose", "readme"}},
		{ID: "architecture", Title: "Architecture", Topics: []string{"architecture", "structure", "design"}},
		{ID: "components", Title: "Components", Topics: []string{"components", "modules", "packages"}},
		{ID: "data-model", Title: "Data Model", Topics: []string{"data", "schema", "storage"}},
		{ID: "interfaces", Title: "External Interfaces", Topics: []string{"api", "cli", "interfaces", "config"}},
		{ID: "build-and-run", Title: "Build and Run", Topics: []string{"build", "dependencies", "deployment"}},
		{ID: "testing", Title: "Testing", Topics: []string{"testing", "tests", "ci"}},
	}
}

// sectionBudget caps the knowledge context handed to one section prompt.
const sectionBudget = 24 * 1024

// Compiler builds versioned drafts from knowledge snapshots.
type Compiler struct {
	client   ChatClient
	sections []SectionSpec
	logger   *zap.Logger

	mu      sync.Mutex
	version int
	cache   map[string]cachedSection // section ID -> last generation
}

type cachedSection struct {
	inputHash string
	content   string
}

// NewCompiler creates a compiler for the given section list. An empty list
// falls back to DefaultSections.
func NewCompiler(client ChatClient, sections []SectionSpec, logger *zap.Logger) *Compiler {
	if len(sections) == 0 {
		sections = DefaultSections()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{
		client:   client,
		sections: sections,
		logger:   logger,
		cache:    make(map[string]cachedSection),
	}
}

// Sections returns the configured section list.
func (c *Compiler) Sections() []SectionSpec {
	return c.sections
}

// Compile produces the next draft version from a knowledge snapshot.
//
// A section whose input hash matches the previous compilation is reused
// verbatim; only sections whose knowledge subset changed cost a model call.
func (c *Compiler) Compile(ctx context.Context, snap knowledge.Snapshot, partial bool) (model.Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	draft := model.Draft{
		Version:      c.version + 1,
		GeneratedAt:  time.Now().UTC(),
		KnowledgeSeq: snap.Seq,
		Partial:      partial,
	}

	for _, spec := range c.sections {
		subset := subsetFor(spec, snap)
		hash := inputHash(spec, subset)

		if prev, ok := c.cache[spec.ID]; ok && prev.inputHash == hash {
			c.logger.Debug("section unchanged, reusing",
				zap.String("section", spec.ID),
				zap.String("hash", hash[:12]))
			draft.Sections = append(draft.Sections, model.Section{
				ID:        spec.ID,
				Title:     spec.Title,
				Content:   prev.content,
				InputHash: hash,
			})
			continue
		}

		content, err := c.generate(ctx, spec, subset)
		if err != nil {
			return model.Draft{}, fmt.Errorf("section %s: %w", spec.ID, err)
		}

		c.cache[spec.ID] = cachedSection{inputHash: hash, content: content}
		draft.Sections = append(draft.Sections, model.Section{
			ID:        spec.ID,
			Title:     spec.Title,
			Content:   content,
			InputHash: hash,
		})
		c.logger.Debug("section generated",
			zap.String("section", spec.ID),
			zap.Int("entries", len(subset.Entries)),
			zap.Int("bytes", len(content)))
	}

	c.version = draft.Version
	return draft, nil
}

// generate asks the model to write one section from its knowledge subset.
func (c *Compiler) generate(ctx context.Context, spec SectionSpec, subset knowledge.Snapshot) (string, error) {
	if len(subset.Entries) == 0 {
		return fmt.Sprintf("_No findings recorded for %s yet._", strings.ToLower(spec.Title)), nil
	}

	messages := []llm.ChatMessage{
		llm.SystemMessage(sectionSystemPrompt),
		llm.UserMessage(fmt.Sprintf(sectionUserPrompt,
			spec.Title, knowledge.SummarizeSnapshot(subset, sectionBudget))),
	}

	content, err := c.client.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// subsetFor filters a snapshot down to the entries a section may see.
// Sections without topics see everything.
func subsetFor(spec SectionSpec, snap knowledge.Snapshot) knowledge.Snapshot {
	if len(spec.Topics) == 0 {
		return snap
	}

	topicSet := make(map[string]bool, len(spec.Topics))
	for _, t := range spec.Topics {
		topicSet[strings.ToLower(t)] = true
	}

	out := knowledge.Snapshot{Seq: snap.Seq}
	for _, e := range snap.Entries {
		if topicSet[strings.ToLower(e.Topic)] {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

// inputHash fingerprints everything that feeds a section's generation.
// Identical hash means identical knowledge subset and spec, so the cached
// content can be reused without a model call.
func inputHash(spec SectionSpec, subset knowledge.Snapshot) string {
	h := sha256.New()
	h.Write([]byte(spec.ID))
	h.Write([]byte{0})
	h.Write([]byte(spec.Title))
	for _, e := range subset.Entries {
		h.Write([]byte{0})
		h.Write([]byte(e.Fingerprint()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

const sectionSystemPrompt = `You are a technical writer producing a requirements and design document for a software repository. Write clear, factual markdown grounded strictly in the findings you are given. Never invent files, APIs, or behavior that the findings do not support. Do not include a top-level heading; the section title is added by the caller.`

const sectionUserPrompt = `Write the body of the "%s" section of the document.

Findings gathered from the repository:

%s

Respond with the section body in markdown only.`

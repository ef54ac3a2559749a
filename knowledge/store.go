// Package knowledge provides the append-only store of facts gathered while
// exploring a repository.
//
// Entries are never mutated or removed once recorded; later snapshots always
// extend earlier ones. Duplicate findings are detected by fingerprint so the
// orchestrator can tell real progress from the model re-requesting what it
// already knows.
package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/repodoc/model"
)

// Entry is one recorded fact about the repository.
type Entry struct {
	ID         string       `json:"id"`
	Seq        int          `json:"seq"`
	Iteration  int          `json:"iteration"`
	Topic      string       `json:"topic"`
	Source     model.Action `json:"source"`
	Content    string       `json:"content"`
	Confidence float64      `json:"confidence"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// Fingerprint identifies an entry's substance: same topic, same action, same
// content hash means the same fact.
func (e Entry) Fingerprint() string {
	return fingerprint(e.Topic, e.Source, e.Content)
}

func fingerprint(topic string, source model.Action, content string) string {
	h := sha256.New()
	h.Write([]byte(topic))
	h.Write([]byte{0})
	h.Write([]byte(source.DedupKey()))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// Snapshot is an immutable view of the store at a sequence point.
type Snapshot struct {
	Seq     int
	Entries []Entry
}

// Store is the append-only knowledge store.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	seen    map[string]int   // fingerprint -> seq of first occurrence
	byPath  map[string][]int // referenced repository path -> entry seqs
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{seen: make(map[string]int), byPath: make(map[string][]int)}
}

// pathOf extracts the repository path an action referenced, normalized.
// Actions without a path argument (file_tree, search) return "".
func pathOf(source model.Action) string {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(source.Args, &args); err != nil || args.Path == "" {
		return ""
	}
	return path.Clean(args.Path)
}

// Record appends a fact. If an entry with the same fingerprint already
// exists, nothing is appended and added is false; the existing entry is
// returned.
func (s *Store) Record(iteration int, topic string, source model.Action, content string, confidence float64) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp := fingerprint(topic, source, content)
	if seq, exists := s.seen[fp]; exists {
		return s.entries[seq], false
	}

	entry := Entry{
		ID:         uuid.NewString(),
		Seq:        len(s.entries),
		Iteration:  iteration,
		Topic:      topic,
		Source:     source,
		Content:    content,
		Confidence: confidence,
		RecordedAt: time.Now().UTC(),
	}
	s.entries = append(s.entries, entry)
	s.seen[fp] = entry.Seq
	if p := pathOf(source); p != "" {
		s.byPath[p] = append(s.byPath[p], entry.Seq)
	}
	return entry, true
}

// Seen reports whether an action with this dedup key has already produced
// at least one entry.
func (s *Store) Seen(dedupKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Source.DedupKey() == dedupKey {
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns an immutable copy of the current state. A snapshot taken
// later is always a prefix-extension of one taken earlier.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, len(s.entries))
	copy(entries, s.entries)
	return Snapshot{Seq: len(entries), Entries: entries}
}

// ByTopic returns all entries whose topic matches, in recording order.
func (s *Store) ByTopic(topic string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Entry
	for _, e := range s.entries {
		if strings.EqualFold(e.Topic, topic) {
			result = append(result, e)
		}
	}
	return result
}

// ByPath returns all entries whose source action referenced the path, in
// recording order. The path is normalized the same way the index is.
func (s *Store) ByPath(p string) []Entry {
	if p == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Entry
	for _, seq := range s.byPath[path.Clean(p)] {
		result = append(result, s.entries[seq])
	}
	return result
}

// Paths returns the distinct repository paths knowledge was recorded for,
// sorted.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Topics returns the distinct topics present in the store, sorted.
func (s *Store) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]bool)
	for _, e := range s.entries {
		set[e.Topic] = true
	}
	topics := make([]string, 0, len(set))
	for t := range set {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// perEntryCap limits how much of one entry a summary may spend.
const perEntryCap = 2000

// Summarize renders the store as prompt context within a byte budget.
//
// The rendering is a pure function of the entries and the budget: topics are
// sorted, entries within a topic appear most recent first, and when the
// budget runs out an explicit omission marker is appended. Two stores with
// the same entries always summarize identically.
func (s *Store) Summarize(budget int) string {
	snap := s.Snapshot()
	return SummarizeSnapshot(snap, budget)
}

// SummarizeSnapshot renders a snapshot within a byte budget. See Summarize.
func SummarizeSnapshot(snap Snapshot, budget int) string {
	if len(snap.Entries) == 0 {
		return "No knowledge recorded yet."
	}

	byTopic := make(map[string][]Entry)
	for _, e := range snap.Entries {
		byTopic[e.Topic] = append(byTopic[e.Topic], e)
	}
	topics := make([]string, 0, len(byTopic))
	for t := range byTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	var (
		b       strings.Builder
		omitted int
		total   int
	)
	for _, topic := range topics {
		entries := byTopic[topic]
		// Most recent knowledge first within a topic.
		sort.Slice(entries, func(i, j int) bool { return entries[i].Seq > entries[j].Seq })

		header := fmt.Sprintf("## %s\n", topic)
		if total+len(header) > budget {
			omitted += len(entries)
			continue
		}
		b.WriteString(header)
		total += len(header)

		for _, e := range entries {
			content := e.Content
			if len(content) > perEntryCap {
				content = content[:perEntryCap] + "..."
			}
			line := fmt.Sprintf("- [iter %d, %s] %s\n", e.Iteration, e.Source.Kind, content)
			if total+len(line) > budget {
				omitted++
				continue
			}
			b.WriteString(line)
			total += len(line)
		}
	}

	if omitted > 0 {
		fmt.Fprintf(&b, "\n[%d of %d entries omitted for space]\n", omitted, len(snap.Entries))
	}
	return b.String()
}

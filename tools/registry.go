// Tool registration and lookup.
package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry manages the closed set of exploration tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Returns an error if the name is already taken.
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Metadata().Name
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns metadata for all registered tools, sorted by name.
func (r *Registry) List() []ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metadata := make([]ToolMetadata, 0, len(r.tools))
	for _, tool := range r.tools {
		metadata = append(metadata, tool.Metadata())
	}
	sort.Slice(metadata, func(i, j int) bool { return metadata[i].Name < metadata[j].Name })
	return metadata
}

// Check validates an action's arguments against its tool schema.
// An unknown kind or failed validation yields a CodeSchemaViolation error.
func (r *Registry) Check(kind string, args json.RawMessage) error {
	tool, exists := r.Get(kind)
	if !exists {
		return Errorf(CodeSchemaViolation, kind, "unknown tool %q (known: %s)", kind, strings.Join(r.Names(), ", "))
	}
	if err := tool.Validate(args); err != nil {
		if _, ok := err.(*Error); ok {
			return err
		}
		return WrapError(CodeSchemaViolation, kind, "invalid arguments", err)
	}
	return nil
}

// Description returns a formatted description of all tools for LLM prompts.
func (r *Registry) Description() string {
	var descriptions []string
	for _, meta := range r.List() {
		var params []string
		for _, p := range meta.Parameters {
			required := "optional"
			if p.Required {
				required = "required"
			}
			params = append(params, fmt.Sprintf("  - %s (%s): %s [%s]",
				p.Name, p.ParamType, p.Description, required))
		}
		descriptions = append(descriptions, fmt.Sprintf(
			"Tool: %s\nDescription: %s\nParameters:\n%s",
			meta.Name, meta.Description, strings.Join(params, "\n")))
	}
	return strings.Join(descriptions, "\n\n")
}

// Default size limits for repository exploration.
const (
	// DefaultMaxFileBytes is the ceiling above which read_file refuses a file.
	DefaultMaxFileBytes = 256 * 1024
	// DefaultTruncateBytes is the maximum payload returned per observation.
	DefaultTruncateBytes = 48 * 1024
)

// ForRepository creates a registry with the standard exploration tool set,
// all scoped to the given repository root.
func ForRepository(root string) (*Registry, error) {
	registry := NewRegistry()

	set := []Tool{
		NewListDirTool(root),
		NewReadFileTool(root, DefaultMaxFileBytes, DefaultTruncateBytes),
		NewFileTreeTool(root),
		NewGlobTool(root, 0),
		NewSearchTool(root, 0),
		NewListByExtTool(root, 0),
	}

	for _, t := range set {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("failed to register exploration tools: %w", err)
		}
	}

	return registry, nil
}

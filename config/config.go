// Package config provides run configuration loaded from an optional YAML
// file, overridden by environment variables, with validated defaults.
//
// Precedence, lowest to highest: built-in defaults, YAML file, environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/richinex/repodoc/document"
	"github.com/richinex/repodoc/llm"
)

// ConfigurationError reports invalid or missing startup configuration.
// It is always fatal: the run must not start on a broken configuration.
type ConfigurationError struct {
	Field string
	Msg   string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Msg)
}

// Config holds everything a run needs.
type Config struct {
	// Model is the LLM identifier; the provider is inferred from it.
	Model string `yaml:"model"`

	// MaxIterations caps plan/act/evaluate cycles.
	MaxIterations int `yaml:"max_iterations"`
	// MaxToolCalls caps total tool invocations across the run.
	MaxToolCalls int `yaml:"max_tool_calls"`
	// MinIterations is the floor before a completion claim is accepted.
	MinIterations int `yaml:"min_iterations"`
	// StagnationThreshold is how many consecutive iterations may pass
	// without new knowledge before the run is forced to finish.
	StagnationThreshold int `yaml:"stagnation_threshold"`
	// MinConfidence is the completeness confidence floor.
	MinConfidence float64 `yaml:"min_confidence"`

	// ConcurrencyLimit bounds parallel tool dispatch within one iteration.
	ConcurrencyLimit int `yaml:"concurrency_limit"`
	// ToolTimeoutSeconds is the per-tool-call timeout in seconds.
	ToolTimeoutSeconds int `yaml:"tool_timeout_seconds"`
	// ToolRetries is the attempt count for transient tool failures.
	ToolRetries int `yaml:"tool_retries"`

	// MaxTokens caps each model response.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature is the sampling temperature. Low values keep document
	// generation reproducible.
	Temperature float64 `yaml:"temperature"`

	// Sections overrides the generated document's section list.
	Sections []document.SectionSpec `yaml:"sections"`

	// OutputDir is where the document, report and snapshots are written.
	OutputDir string `yaml:"output_dir"`
	// IntermediateOutput enables per-version draft snapshots.
	IntermediateOutput bool `yaml:"intermediate_output"`
	// TraceDB is the SQLite run-trace path; empty disables tracing.
	TraceDB string `yaml:"trace_db"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model:               llm.ModelAnthropicClaudeOpus45,
		MaxIterations:       15,
		MaxToolCalls:        120,
		MinIterations:       2,
		StagnationThreshold: 3,
		MinConfidence:       0.7,
		ConcurrencyLimit:    4,
		ToolTimeoutSeconds:  30,
		ToolRetries:         3,
		MaxTokens:           4096,
		Temperature:         0.2,
		OutputDir:           "output",
		IntermediateOutput:  true,
		TraceDB:             "",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment overrides, then validation.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &ConfigurationError{Field: "config file", Msg: err.Error()}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &ConfigurationError{Field: "config file", Msg: fmt.Sprintf("invalid YAML: %v", err)}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays REPODOC_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("REPODOC_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("REPODOC_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("REPODOC_TRACE_DB"); v != "" {
		c.TraceDB = v
	}

	intVars := []struct {
		env    string
		target *int
	}{
		{"REPODOC_MAX_ITERATIONS", &c.MaxIterations},
		{"REPODOC_MAX_TOOL_CALLS", &c.MaxToolCalls},
		{"REPODOC_MIN_ITERATIONS", &c.MinIterations},
		{"REPODOC_STAGNATION_THRESHOLD", &c.StagnationThreshold},
		{"REPODOC_CONCURRENCY_LIMIT", &c.ConcurrencyLimit},
	}
	for _, iv := range intVars {
		v := os.Getenv(iv.env)
		if v == "" {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigurationError{Field: iv.env, Msg: fmt.Sprintf("not an integer: %q", v)}
		}
		*iv.target = parsed
	}

	if v := os.Getenv("REPODOC_MIN_CONFIDENCE"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &ConfigurationError{Field: "REPODOC_MIN_CONFIDENCE", Msg: fmt.Sprintf("not a number: %q", v)}
		}
		c.MinConfidence = parsed
	}
	return nil
}

// Validate checks invariants the rest of the system assumes.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Model) == "":
		return &ConfigurationError{Field: "model", Msg: "must not be empty"}
	case c.MaxIterations <= 0:
		return &ConfigurationError{Field: "max_iterations", Msg: "must be positive"}
	case c.MaxToolCalls <= 0:
		return &ConfigurationError{Field: "max_tool_calls", Msg: "must be positive"}
	case c.MinIterations < 0 || c.MinIterations > c.MaxIterations:
		return &ConfigurationError{Field: "min_iterations", Msg: "must be between 0 and max_iterations"}
	case c.StagnationThreshold <= 0:
		return &ConfigurationError{Field: "stagnation_threshold", Msg: "must be positive"}
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return &ConfigurationError{Field: "min_confidence", Msg: "must be within [0, 1]"}
	case c.ConcurrencyLimit <= 0:
		return &ConfigurationError{Field: "concurrency_limit", Msg: "must be positive"}
	case c.ToolTimeoutSeconds <= 0:
		return &ConfigurationError{Field: "tool_timeout_seconds", Msg: "must be positive"}
	case c.ToolRetries <= 0:
		return &ConfigurationError{Field: "tool_retries", Msg: "must be positive"}
	case c.MaxTokens <= 0:
		return &ConfigurationError{Field: "max_tokens", Msg: "must be positive"}
	case c.Temperature < 0 || c.Temperature > 2:
		return &ConfigurationError{Field: "temperature", Msg: "must be within [0, 2]"}
	case strings.TrimSpace(c.OutputDir) == "":
		return &ConfigurationError{Field: "output_dir", Msg: "must not be empty"}
	}

	if _, err := llm.ProviderForModel(c.Model); err != nil {
		return &ConfigurationError{Field: "model", Msg: err.Error()}
	}

	seen := make(map[string]bool)
	for _, s := range c.Sections {
		if strings.TrimSpace(s.ID) == "" || strings.TrimSpace(s.Title) == "" {
			return &ConfigurationError{Field: "sections", Msg: "every section needs an id and a title"}
		}
		if seen[s.ID] {
			return &ConfigurationError{Field: "sections", Msg: fmt.Sprintf("duplicate section id %q", s.ID)}
		}
		seen[s.ID] = true
	}
	return nil
}

// ToolTimeout returns the per-tool-call timeout as a duration.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSeconds) * time.Second
}

// Provider resolves the provider type for the configured model.
func (c *Config) Provider() (llm.ProviderType, error) {
	return llm.ProviderForModel(c.Model)
}

// RequireAPIKey verifies the provider's API key is present in the
// environment. Returns a ConfigurationError when it is not: the run must
// fail at startup, not mid-exploration.
func (c *Config) RequireAPIKey() error {
	provider, err := c.Provider()
	if err != nil {
		return &ConfigurationError{Field: "model", Msg: err.Error()}
	}
	if os.Getenv(provider.EnvVar()) == "" {
		return &ConfigurationError{Field: provider.EnvVar(), Msg: "environment variable not set"}
	}
	return nil
}

// SectionSpecs returns the configured section list, falling back to the
// document package defaults.
func (c *Config) SectionSpecs() []document.SectionSpec {
	if len(c.Sections) > 0 {
		return c.Sections
	}
	return document.DefaultSections()
}

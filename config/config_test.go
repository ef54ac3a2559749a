package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxIterations != Default().MaxIterations {
		t.Errorf("max iterations = %d", cfg.MaxIterations)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repodoc.yaml")
	content := `
model: gpt-5.2
max_iterations: 30
stagnation_threshold: 5
intermediate_output: false
sections:
  - id: intro
    title: Introduction
    topics: [overview]
  - id: internals
    title: Internals
    topics: [structure, components]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "gpt-5.2" || cfg.MaxIterations != 30 || cfg.StagnationThreshold != 5 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.IntermediateOutput {
		t.Error("intermediate_output should be false")
	}
	if len(cfg.Sections) != 2 || cfg.Sections[1].ID != "internals" {
		t.Errorf("sections = %+v", cfg.Sections)
	}
	// Untouched fields keep their defaults.
	if cfg.MaxToolCalls != Default().MaxToolCalls {
		t.Errorf("max tool calls = %d", cfg.MaxToolCalls)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("model: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REPODOC_MODEL", "deepseek-v3.2")
	t.Setenv("REPODOC_MAX_ITERATIONS", "50")
	t.Setenv("REPODOC_MIN_CONFIDENCE", "0.9")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "deepseek-v3.2" || cfg.MaxIterations != 50 || cfg.MinConfidence != 0.9 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestEnvOverrideInvalidInteger(t *testing.T) {
	t.Setenv("REPODOC_MAX_ITERATIONS", "lots")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-integer override")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty model", mutate: func(c *Config) { c.Model = "" }},
		{name: "unknown model family", mutate: func(c *Config) { c.Model = "llama-3" }},
		{name: "zero iterations", mutate: func(c *Config) { c.MaxIterations = 0 }},
		{name: "zero tool calls", mutate: func(c *Config) { c.MaxToolCalls = 0 }},
		{name: "min above max", mutate: func(c *Config) { c.MinIterations = 99 }},
		{name: "zero stagnation", mutate: func(c *Config) { c.StagnationThreshold = 0 }},
		{name: "confidence above one", mutate: func(c *Config) { c.MinConfidence = 1.5 }},
		{name: "zero concurrency", mutate: func(c *Config) { c.ConcurrencyLimit = 0 }},
		{name: "zero tool retries", mutate: func(c *Config) { c.ToolRetries = 0 }},
		{name: "zero max tokens", mutate: func(c *Config) { c.MaxTokens = 0 }},
		{name: "negative temperature", mutate: func(c *Config) { c.Temperature = -0.1 }},
		{name: "empty output dir", mutate: func(c *Config) { c.OutputDir = "" }},
		{
			name: "duplicate section ids",
			mutate: func(c *Config) {
				c.Sections = c.SectionSpecs()
				c.Sections = append(c.Sections, c.Sections[0])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Errorf("expected ConfigurationError, got %v", err)
			}
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Model = "gpt-5.2"

	t.Setenv("OPENAI_API_KEY", "")
	var ce *ConfigurationError
	if err := cfg.RequireAPIKey(); !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	if err := cfg.RequireAPIKey(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSectionSpecsFallback(t *testing.T) {
	cfg := Default()
	if len(cfg.SectionSpecs()) == 0 {
		t.Fatal("expected default sections")
	}
}

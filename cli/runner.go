// Command execution for CLI commands.
//
// Information Hiding:
// - Configuration resolution and flag overrides hidden
// - Provider, registry and orchestrator wiring hidden
// - Output formatting hidden

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/richinex/repodoc/agent"
	"github.com/richinex/repodoc/config"
	"github.com/richinex/repodoc/llm"
	"github.com/richinex/repodoc/output"
	"github.com/richinex/repodoc/storage"
	"github.com/richinex/repodoc/tools"
)

// Options holds CLI execution options. Zero values mean "use the config".
type Options struct {
	ConfigPath    string
	Model         string
	OutputDir     string
	MaxIterations int
	Verbose       bool
}

// Run documents one repository: load configuration, wire the provider and
// tools, run the orchestrator, print the outcome. A budget-forced partial
// document is still a success; only unrecoverable failures return an error.
func Run(ctx context.Context, repoPath string, opts Options) error {
	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	// A missing API key must fail here, not halfway through a run.
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	repoPath, err = filepath.Abs(repoPath)
	if err != nil {
		return err
	}
	info, err := os.Stat(repoPath)
	if err != nil {
		return fmt.Errorf("repository path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("repository path %s is not a directory", repoPath)
	}

	logger, err := newLogger(cfg.Verbose)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	providerType, err := cfg.Provider()
	if err != nil {
		return err
	}
	provider, err := providerType.Model(cfg.Model).
		MaxTokens(uint32(cfg.MaxTokens)).
		Temperature(float32(cfg.Temperature)).
		FromEnv()
	if err != nil {
		return err
	}
	client := llm.NewClient(provider)

	registry, err := tools.ForRepository(repoPath)
	if err != nil {
		return err
	}

	sink, err := output.NewSink(cfg.OutputDir, cfg.IntermediateOutput, logger)
	if err != nil {
		return err
	}

	orchestrator := agent.New(cfg, client, registry, sink, repoPath, logger)

	if cfg.TraceDB != "" {
		trace, err := storage.OpenTrace(cfg.TraceDB)
		if err != nil {
			return fmt.Errorf("open trace database: %w", err)
		}
		defer trace.Close()
		orchestrator.WithTrace(trace)
	}

	// Ctrl-C stops exploration; the orchestrator still writes a best-effort
	// document from whatever it has learned.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Documenting %s with %s...\n\n", repoPath, cfg.Model)

	result, err := orchestrator.Run(ctx)
	if err != nil {
		if result.DocumentPath != "" {
			fmt.Fprintf(os.Stderr, "Run interrupted: %v\nBest-effort document: %s\n", err, result.DocumentPath)
		}
		return err
	}

	printResult(result)
	return nil
}

// resolveConfig loads the configuration and applies flag overrides, then
// re-validates since the overrides bypass Load.
func resolveConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}

	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}
	if opts.MaxIterations > 0 {
		cfg.MaxIterations = opts.MaxIterations
	}
	if opts.Verbose {
		cfg.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func printResult(result agent.Result) {
	fmt.Printf("Document: %s\n", result.DocumentPath)
	fmt.Printf("Iterations: %d, tool calls: %d, knowledge entries: %d\n",
		result.Iterations, result.ToolCalls, result.KnowledgeEntries)
	fmt.Printf("Tokens: %d prompt, %d completion\n",
		result.Usage.PromptTokens, result.Usage.CompletionTokens)

	if result.Partial {
		fmt.Println("\nThe document is partial: exploration stopped on a budget or stagnation guard.")
		for _, part := range result.Assessment.MissingParts {
			fmt.Printf("  missing: %s\n", part)
		}
	}
}

// ListTools prints the read-only tool set the agent explores with. The
// registry is built against the current directory; tool metadata does not
// depend on the root.
func ListTools(verbose bool) error {
	registry, err := tools.ForRepository(".")
	if err != nil {
		return err
	}

	fmt.Println("Available tools:")
	fmt.Println()

	for _, meta := range registry.List() {
		fmt.Printf("  %s\n", meta.Name)
		fmt.Printf("    %s\n", meta.Description)

		if verbose && len(meta.Parameters) > 0 {
			fmt.Println("    Parameters:")
			for _, param := range meta.Parameters {
				req := ""
				if param.Required {
					req = "*"
				}
				fmt.Printf("      %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
			}
		}
		fmt.Println()
	}
	return nil
}

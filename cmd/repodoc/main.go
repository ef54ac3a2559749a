// Package main provides the repodoc CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/richinex/repodoc/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	model      string
	outputDir  string
	maxIter    int
	verbose    bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "repodoc",
		Short: "Autonomous repository documentation agent",
		Long: `repodoc points an LLM agent at a source repository and lets it explore
with read-only tools until it can write a complete requirements and design
document. Exploration is bounded: iteration and tool-call budgets, plus a
stagnation guard, guarantee the run terminates with a document even when the
model never declares itself done.`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&model, "model", "m", "", "Model name (provider inferred: gpt-*, claude-*, deepseek-*, gemini-*)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "Output directory for the document and report")
	rootCmd.PersistentFlags().IntVar(&maxIter, "max-iterations", 0, "Maximum exploration iterations (0 = config value)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	// Add commands
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(toolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [repository-path]",
		Short: "Explore a repository and write its design document",
		Long: `Explore a repository with read-only tools and write a requirements and
design document to the output directory.

The run always produces a document: if the exploration budget runs out or the
agent stops learning anything new, the best document compilable from the
knowledge gathered so far is written and marked partial. That still counts as
success; only unrecoverable failures (bad configuration, missing API key,
unwritable output) exit nonzero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cli.Options{
				ConfigPath:    configPath,
				Model:         model,
				OutputDir:     outputDir,
				MaxIterations: maxIter,
				Verbose:       verbose,
			}
			return cli.Run(context.Background(), args[0], opts)
		},
	}
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the read-only exploration tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(verboseTools)
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}

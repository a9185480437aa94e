package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fentz26/taskgrid/internal/config"
	"github.com/fentz26/taskgrid/internal/generator"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Turn a requirements document into a task plan with Claude",
	Long: `Sends a requirements document to Claude and converts the reply into task
drafts. The plan is written to --out, submitted to the daemon with --submit,
or printed.`,
	RunE: runGenerate,
}

var (
	prdPath    string
	planOut    string
	planSubmit bool
	genModel   string
	genTimeout time.Duration
)

func init() {
	generateCmd.Flags().StringVar(&prdPath, "prd", "", "Requirements document (required)")
	generateCmd.Flags().StringVarP(&planOut, "out", "o", "", "Write the generated plan to this file")
	generateCmd.Flags().BoolVar(&planSubmit, "submit", false, "Submit the generated plan to the daemon")
	generateCmd.Flags().StringVar(&genModel, "model", "", "Claude model (overrides config)")
	generateCmd.Flags().DurationVar(&genTimeout, "timeout", 5*time.Minute, "Generation timeout")
	generateCmd.MarkFlagRequired("prd")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	model := cfg.Generator.Model
	if genModel != "" {
		model = genModel
	}

	requirements, err := os.ReadFile(prdPath)
	if err != nil {
		return fmt.Errorf("read requirements: %w", err)
	}

	llm, err := generator.NewClaude("", model, cfg.Generator.MaxTokens)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), genTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "%s Generating tasks with %s...\n", Cyan("⚡"), model)
	drafts, edges, err := generator.New(llm).GenerateTasks(ctx, string(requirements))
	if err != nil {
		return err
	}
	plan := &Plan{Tasks: drafts, Edges: edges}
	fmt.Fprintf(os.Stderr, "%s Generated %d task(s)\n", Green("✓"), len(drafts))

	if planOut != "" {
		if err := writePlan(planOut, plan); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Plan written to %s\n", planOut)
	}
	if planSubmit {
		return submitPlan(plan)
	}
	if planOut == "" {
		return encodePlan(os.Stdout, plan)
	}
	return nil
}

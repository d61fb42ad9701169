package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pemstudy/internal/bundle"
	"pemstudy/internal/enhance"
	"pemstudy/internal/types"
)

var (
	enhanceBundlePath    string
	enhanceVariantName   string
	enhanceCheckpointDir string
	enhanceWorkers       int
)

// enhanceCmd runs one variant generator over the bundle collection.
var enhanceCmd = &cobra.Command{
	Use:   "enhance",
	Short: "Generate one variant's messages for every scenario lacking them",
	Long: `Runs a single variant generator over the bundle collection, one external
call per pending scenario, checkpointing after each success. Re-running is
idempotent: scenarios already holding the variant's message are skipped.
Exhausted retries mark the scenario failed for this variant without
blocking the rest.

Generated messages live in the checkpoint directory until "enhance merge"
folds them into the bundle collection.`,
	RunE: runEnhance,
}

// enhanceMergeCmd folds checkpoints back into the canonical collection.
var enhanceMergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Fold checkpointed messages back into the bundle collection",
	Long: `Applies the checkpoint directory's generated messages to the bundle
collection and rewrites it. A message already recorded in a bundle is never
overwritten: an identical checkpoint is a no-op, a differing one is
reported as a conflict and the bundle keeps its original.`,
	RunE: runEnhanceMerge,
}

func init() {
	for _, c := range []*cobra.Command{enhanceCmd, enhanceMergeCmd} {
		c.Flags().StringVar(&enhanceBundlePath, "bundles", "bundles.json", "Path to the scenario bundle collection")
		c.Flags().StringVar(&enhanceVariantName, "variant", "", "Variant to generate: tool, llm-error-only, llm-with-context (required)")
		c.Flags().StringVar(&enhanceCheckpointDir, "checkpoints", "checkpoints", "Directory for per-generation checkpoints")
		_ = c.MarkFlagRequired("variant")
	}
	enhanceCmd.Flags().IntVar(&enhanceWorkers, "workers", 0, "Parallel external calls (defaults to configuration)")

	enhanceCmd.AddCommand(enhanceMergeCmd)
}

func newGenerator(ctx context.Context, variant types.Variant) (enhance.Generator, error) {
	switch variant {
	case types.VariantTool:
		return enhance.NewToolGenerator(cfg.Tool.Binary, cfg.Tool.Args, cfg.ToolTimeout())
	case types.VariantLLMErrorOnly, types.VariantLLMWithContext:
		return enhance.NewGeminiGenerator(ctx, enhance.GeminiConfig{
			APIKey:       cfg.LLM.APIKey,
			Model:        cfg.LLM.Model,
			Timeout:      cfg.LLMTimeout(),
			MaxSourceLen: cfg.LLM.MaxSourceLen,
		}, variant)
	case types.VariantCompiler:
		return nil, fmt.Errorf("the compiler variant is recorded at materialization, not generated")
	default:
		return nil, fmt.Errorf("unknown variant %q", variant)
	}
}

func runEnhance(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	variant, err := types.ParseVariant(enhanceVariantName)
	if err != nil {
		return err
	}

	coll, err := bundle.Load(enhanceBundlePath)
	if err != nil {
		return err
	}

	gen, err := newGenerator(ctx, variant)
	if err != nil {
		return err
	}

	workers := enhanceWorkers
	if workers <= 0 {
		workers = cfg.Enhance.Workers
	}
	coordinator, err := enhance.NewCoordinator(gen, enhanceCheckpointDir, logger, enhance.Options{
		MaxAttempts: cfg.Enhance.MaxAttempts,
		BackoffBase: cfg.BackoffBase(),
		Workers:     workers,
	})
	if err != nil {
		return err
	}

	stats, err := coordinator.Run(ctx, coll)
	if err != nil {
		return err
	}

	for _, f := range stats.Failures {
		logger.Warn("failed for variant",
			zap.String("key", f.Key),
			zap.String("reason", f.Reason),
			zap.Int("attempts", f.Attempts))
	}
	fmt.Printf("variant %s: %d generated, %d skipped, %d failed (%d calls)\n",
		variant, stats.Generated, stats.Skipped, stats.Failed, stats.Calls)
	if stats.Failed > 0 {
		fmt.Println("re-run to retry the failed scenarios")
	}
	return nil
}

func runEnhanceMerge(cmd *cobra.Command, args []string) error {
	variant, err := types.ParseVariant(enhanceVariantName)
	if err != nil {
		return err
	}

	coll, err := bundle.Load(enhanceBundlePath)
	if err != nil {
		return err
	}

	stats, mergeErr := enhance.Merge(coll, enhanceCheckpointDir, variant, logger)
	if stats.Applied > 0 || stats.AlreadyPresent > 0 {
		if err := coll.Save(enhanceBundlePath); err != nil {
			return err
		}
	}

	fmt.Printf("variant %s: %d applied, %d already present, %d unmatched, %d conflicts\n",
		variant, stats.Applied, stats.AlreadyPresent, stats.Unmatched, len(stats.Conflicts))
	return mergeErr
}

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pemstudy/internal/index"
	"pemstudy/internal/sample"
)

var (
	sampleIndexPath   string
	sampleOutPath     string
	sampleSeed        int64
	samplePerCategory int
)

// sampleCmd draws the frozen stratified sample from the index.
var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Draw a seeded stratified sample of contexts per category",
	Long: `Draws min(per-category, available) contexts for each category, without
replacement, from a single seeded stream. The same index, seed, and target
size always reproduce the same sample in the same order. Output is a TSV
meant to be inspected before materialization commits to it.`,
	RunE: runSample,
}

func init() {
	sampleCmd.Flags().StringVar(&sampleIndexPath, "index", "index.json", "Path to the serialized index")
	sampleCmd.Flags().StringVar(&sampleOutPath, "out", "sample.tsv", "Path for the sample TSV")
	sampleCmd.Flags().Int64Var(&sampleSeed, "seed", 0, "Random seed (defaults to the configured study seed)")
	sampleCmd.Flags().IntVar(&samplePerCategory, "per-category", 0, "Target contexts per category (defaults to configuration)")
}

func runSample(cmd *cobra.Command, args []string) error {
	seed := sampleSeed
	if !cmd.Flags().Changed("seed") {
		seed = cfg.Seed
	}
	perCategory := samplePerCategory
	if perCategory <= 0 {
		perCategory = cfg.Sample.PerCategory
	}

	idx, err := index.Load(sampleIndexPath)
	if err != nil {
		return err
	}

	items := sample.Draw(idx, seed, perCategory)
	if err := sample.WriteFile(sampleOutPath, items); err != nil {
		return err
	}

	counts := sample.PerCategoryCounts(items)
	categories := make([]string, 0, len(counts))
	for cat := range counts {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	for _, cat := range categories {
		logger.Debug("sampled", zap.String("pem_category", cat), zap.Int("count", counts[cat]))
	}

	logger.Info("sample drawn",
		zap.Int64("seed", seed),
		zap.Int("per_category", perCategory),
		zap.Int("items", len(items)),
		zap.String("out", sampleOutPath))
	fmt.Printf("sample written to %s (%d items, seed %d)\n", sampleOutPath, len(items), seed)
	return nil
}

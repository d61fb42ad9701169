package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pemstudy/internal/index"
	"pemstudy/internal/store"
)

var (
	indexDBPath  string
	indexOutPath string
)

// indexCmd builds the deterministic category index over the eligible store.
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the category -> contexts index from the eligible store",
	Long: `Groups eligible records by PEM category into a serialized index. The
build is deterministic: indexing the same store twice yields byte-identical
output, which is what makes the downstream sample reproducible.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexDBPath, "db", "eligible.sqlite3", "Path to the eligible-record store")
	indexCmd.Flags().StringVar(&indexOutPath, "out", "index.json", "Path for the serialized index")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	eligible, err := store.OpenEligible(indexDBPath)
	if err != nil {
		return err
	}
	defer eligible.Close()

	idx, err := index.Build(ctx, eligible)
	if err != nil {
		return err
	}
	if err := idx.Save(indexOutPath); err != nil {
		return err
	}

	logger.Info("index built",
		zap.Int("categories", len(idx.Categories)),
		zap.Int("contexts", idx.TotalContexts()),
		zap.String("out", indexOutPath))
	fmt.Printf("index written to %s (%d categories, %d contexts)\n",
		indexOutPath, len(idx.Categories), idx.TotalContexts())
	return nil
}

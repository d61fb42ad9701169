package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pemstudy/internal/store"
)

var (
	filterRawPath string
	filterOutPath string
)

// filterCmd builds the eligible-record store from the raw error database.
var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Filter the raw error database into an eligible-record store",
	Long: `Reads the raw compiler-error database, keeps each unit's first reported
diagnostic when its category is in the study's top-category whitelist, and
writes the result to a fresh eligible store. Malformed rows are skipped and
counted; a schema mismatch aborts the run.`,
	RunE: runFilter,
}

func init() {
	filterCmd.Flags().StringVar(&filterRawPath, "raw", "", "Path to the raw error database (required)")
	filterCmd.Flags().StringVar(&filterOutPath, "out", "eligible.sqlite3", "Path for the eligible-record store")
	_ = filterCmd.MarkFlagRequired("raw")
}

func runFilter(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	raw, err := store.OpenRaw(filterRawPath)
	if err != nil {
		return err
	}
	defer raw.Close()

	eligible, err := store.CreateEligible(filterOutPath)
	if err != nil {
		return err
	}
	defer eligible.Close()

	stats, err := store.Filter(ctx, raw, eligible, logger)
	if err != nil {
		return err
	}

	logger.Info("filter complete",
		zap.Int("scanned", stats.Scanned),
		zap.Int("eligible", stats.Eligible),
		zap.String("out", filterOutPath))
	fmt.Printf("eligible store written to %s (%d of %d rows kept)\n",
		filterOutPath, stats.Eligible, stats.Scanned)
	return nil
}

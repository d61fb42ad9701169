package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pemstudy/internal/aggregate"
)

var (
	combineOutPath    string
	combineReportPath string
)

// combineCmd merges every rater's answers into one consolidated store.
var combineCmd = &cobra.Command{
	Use:   "combine [answer-store...]",
	Short: "Merge all raters' answer stores into one dataset",
	Long: `Reads each rater's answer store, verifies that no rater's file holds two
contradictory judgements for one key, and writes the union to a fresh
consolidated store. An existing output file is never overwritten. Pilot
scenarios judged differently by different raters are listed in the report
for the agreement analysis; they are expected, not errors.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCombine,
}

func init() {
	combineCmd.Flags().StringVar(&combineOutPath, "out", "answers.sqlite3", "Path for the consolidated answer store")
	combineCmd.Flags().StringVar(&combineReportPath, "report", "combine-report.json", "Path for the aggregation report")
}

func runCombine(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	report, combineErr := aggregate.Combine(ctx, args, combineOutPath, logger)
	if err := aggregate.WriteReport(combineReportPath, report); err != nil {
		return err
	}
	if combineErr != nil {
		return combineErr
	}

	fmt.Printf("combined %d answers from %d stores into %s (%d disagreements, see %s)\n",
		report.Answers, len(args), combineOutPath, len(report.Disagreements), combineReportPath)
	return nil
}

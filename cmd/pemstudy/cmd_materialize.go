package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pemstudy/internal/bundle"
	"pemstudy/internal/sample"
	"pemstudy/internal/store"
)

var (
	materializeDBPath     string
	materializeSamplePath string
	materializeOutPath    string
)

// materializeCmd assembles self-contained scenario bundles for the sample.
var materializeCmd = &cobra.Command{
	Use:   "materialize",
	Short: "Assemble scenario bundles for every sampled context",
	Long: `For each sampled (category, context) pair, fetches the unit's source and
eligible diagnostics and writes one self-contained scenario bundle. The
primary compiler message is recorded immediately; the generated variants
are filled in later by the enhance stage. A unit whose source can no
longer be resolved is dropped and logged, not fatal.`,
	RunE: runMaterialize,
}

func init() {
	materializeCmd.Flags().StringVar(&materializeDBPath, "db", "eligible.sqlite3", "Path to the eligible-record store")
	materializeCmd.Flags().StringVar(&materializeSamplePath, "sample", "sample.tsv", "Path to the sample TSV")
	materializeCmd.Flags().StringVar(&materializeOutPath, "out", "bundles.json", "Path for the scenario bundle collection")
}

func runMaterialize(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	eligible, err := store.OpenEligible(materializeDBPath)
	if err != nil {
		return err
	}
	defer eligible.Close()

	items, err := sample.ReadFile(materializeSamplePath)
	if err != nil {
		return err
	}

	m := bundle.NewMaterializer(eligible, bundle.StoreResolver{Eligible: eligible}, logger)
	coll, stats, err := m.Materialize(ctx, items)
	if err != nil {
		return err
	}
	if err := coll.Save(materializeOutPath); err != nil {
		return err
	}

	logger.Info("materialization complete",
		zap.Int("materialized", stats.Materialized),
		zap.Int("dropped", stats.Dropped),
		zap.String("out", materializeOutPath))
	fmt.Printf("bundles written to %s (%d scenarios, %d dropped)\n",
		materializeOutPath, stats.Materialized, stats.Dropped)
	return nil
}

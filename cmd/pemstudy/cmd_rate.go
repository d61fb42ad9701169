package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pemstudy/cmd/pemstudy/ui"
	"pemstudy/internal/assign"
	"pemstudy/internal/bundle"
	"pemstudy/internal/rating"
	"pemstudy/internal/store"
)

var (
	rateRater          string
	rateAssignmentPath string
	rateBundlePath     string
	rateAnswersPath    string
)

// rateCmd runs the interactive rating session for one rater.
var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Run the interactive rating session for one rater",
	Long: `Presents each assigned (scenario, variant) pair in turn: the unit's
source with the diagnostic position marked, the variant's message, and a
1-5 score prompt with an optional comment. Every judgement is written to
the rater's answer store before the next item appears, so quitting at any
point loses nothing: restarting resumes at the first unanswered item.`,
	RunE: runRate,
}

func init() {
	rateCmd.Flags().StringVar(&rateRater, "rater", "", "Rater name (required)")
	rateCmd.Flags().StringVar(&rateAssignmentPath, "assignment", "", "Path to the rater's assignment TSV (defaults to <rater>-assignments.tsv)")
	rateCmd.Flags().StringVar(&rateBundlePath, "bundles", "bundles.json", "Path to the enhanced bundle collection")
	rateCmd.Flags().StringVar(&rateAnswersPath, "answers", "", "Path to the rater's answer store (defaults to <rater>-answers.sqlite3)")
	_ = rateCmd.MarkFlagRequired("rater")
}

func runRate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	assignmentPath := rateAssignmentPath
	if assignmentPath == "" {
		assignmentPath = assign.FileName(rateRater)
	}
	answersPath := rateAnswersPath
	if answersPath == "" {
		answersPath = store.AnswersFileName(rateRater)
	}

	assignment, err := assign.ReadFile(assignmentPath)
	if err != nil {
		return err
	}
	if assignment.Rater != rateRater {
		return fmt.Errorf("%s belongs to rater %q, not %q", assignmentPath, assignment.Rater, rateRater)
	}
	items := assignment.Items
	coll, err := bundle.Load(rateBundlePath)
	if err != nil {
		return err
	}

	answers, err := store.OpenAnswers(answersPath)
	if err != nil {
		return err
	}
	defer answers.Close()

	answered, err := answers.AnsweredKeys(ctx)
	if err != nil {
		return err
	}
	session, err := rating.NewSession(rateRater, items, answered, answers)
	if err != nil {
		return err
	}

	logger.Info("rating session starting",
		zap.String("rater", rateRater),
		zap.Int("assigned", len(items)),
		zap.Int("remaining", session.Remaining()))

	if session.State() == rating.StateComplete {
		fmt.Printf("%s has answered all %d assigned items\n", rateRater, len(items))
		return nil
	}

	if err := ui.Run(ctx, session, coll); err != nil {
		return err
	}

	fmt.Printf("%d answered this session, %d remaining\n", session.Answered(), session.Remaining())
	return nil
}

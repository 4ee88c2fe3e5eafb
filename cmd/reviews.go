package main

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smartacus/probe-cli/internal/model"
	"github.com/smartacus/probe-cli/internal/reviews"
)

var (
	reviewsASINs string
	reviewsLimit int
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "Review-intelligence utilities",
}

// reviewsAnalyzeCmd re-runs the extractor over stored reviews outside a
// full pipeline run, writing fresh improvement profiles under a synthetic
// run id.
var reviewsAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Backfill improvement profiles from stored reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		var targets []model.ASIN
		for _, raw := range strings.Split(reviewsASINs, ",") {
			raw = strings.TrimSpace(raw)
			if raw != "" {
				targets = append(targets, model.ASIN(raw))
			}
		}
		if len(targets) == 0 {
			targets, err = st.TrackedASINs(ctx, reviewsLimit)
			if err != nil {
				return err
			}
		}

		runID := "backfill-" + uuid.New().String()
		extractor := reviews.NewExtractor(nil)
		analyzed := 0

		// The backfill run row keeps profile rows attached to a real run id.
		backfill := &model.PipelineRun{
			RunID:           runID,
			Status:          model.RunStatusRunning,
			StartedAt:       time.Now().UTC(),
			ShortlistFrozen: true,
		}
		if err := st.CreateRun(ctx, backfill); err != nil {
			return eris.Wrap(err, "create backfill run")
		}

		for _, asin := range targets {
			stored, err := st.ListReviews(ctx, asin, 500)
			if err != nil {
				zap.L().Warn("review load failed", zap.String("asin", string(asin)), zap.Error(err))
				continue
			}
			if len(stored) == 0 {
				continue
			}

			defects := extractor.ExtractDefects(stored)
			wishes := extractor.ExtractWishes(stored)
			negative := 0
			for _, r := range stored {
				if r.Rating <= 3 && r.Body != "" {
					negative++
				}
			}

			profile := reviews.BuildProfile(asin, runID, defects, wishes, len(stored), negative, time.Now().UTC())
			if err := st.SaveImprovementProfile(ctx, profile); err != nil {
				zap.L().Warn("profile save failed", zap.String("asin", string(asin)), zap.Error(err))
				continue
			}
			analyzed++
		}

		backfill.Status = model.RunStatusCompleted
		now := time.Now().UTC()
		backfill.EndedAt = &now
		backfill.ASINsTotal = len(targets)
		backfill.ASINsOK = analyzed
		if err := st.FinalizeRun(ctx, backfill); err != nil {
			zap.L().Warn("finalize backfill run failed", zap.Error(err))
		}

		zap.L().Info("review backfill complete",
			zap.String("run_id", runID),
			zap.Int("targets", len(targets)),
			zap.Int("profiles", analyzed),
		)
		return nil
	},
}

func init() {
	reviewsAnalyzeCmd.Flags().StringVar(&reviewsASINs, "asins", "", "comma-separated product ids (default: tracked products)")
	reviewsAnalyzeCmd.Flags().IntVar(&reviewsLimit, "limit", 200, "max tracked products when no explicit ids")
	reviewsCmd.AddCommand(reviewsAnalyzeCmd)
	rootCmd.AddCommand(reviewsCmd)
}

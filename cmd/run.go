package main

import (
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smartacus/probe-cli/internal/model"
	"github.com/smartacus/probe-cli/internal/pipeline"
	"github.com/smartacus/probe-cli/internal/resilience"
	"github.com/smartacus/probe-cli/pkg/keepa"
)

var (
	runMaxASINs      int
	runFreeze        bool
	runNoFreeze      bool
	runSkipDiscovery bool
	runASINs         string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one controlled pipeline run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if cfg.Keepa.Key == "" {
			return eris.New("keepa: api key is required (SMARTACUS_KEEPA_KEY)")
		}
		client := keepa.NewClient(cfg.Keepa.Key,
			keepa.WithBaseURL(cfg.Keepa.BaseURL),
			keepa.WithBucket(cfg.Keepa.BucketCapacity, cfg.Keepa.RefillPerMinute),
			keepa.WithCosts(cfg.Keepa.DiscoveryCost, cfg.Keepa.PerProductCost),
			keepa.WithRetry(resilience.DefaultRetryConfig()),
		)

		opts := pipeline.RunOptions{
			MaxProducts:   runMaxASINs,
			Freeze:        runFreeze && !runNoFreeze,
			SkipDiscovery: runSkipDiscovery,
		}
		for _, raw := range strings.Split(runASINs, ",") {
			raw = strings.TrimSpace(raw)
			if raw != "" {
				opts.ExplicitASINs = append(opts.ExplicitASINs, model.ASIN(raw))
			}
		}

		p := pipeline.New(cfg, st, client)

		start := time.Now()
		run, err := p.Run(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", run.RunID),
			zap.String("status", string(run.Status)),
			zap.Int("opportunities", run.OpportunitiesFound),
			zap.Int("tokens", run.TokensConsumed),
			zap.Duration("elapsed", time.Since(start)),
		)

		exitCode = run.ExitCode()
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runMaxASINs, "max-asins", 0, "max products to process (default from config)")
	runCmd.Flags().BoolVar(&runFreeze, "freeze", true, "score only, do not promote a new shortlist")
	runCmd.Flags().BoolVar(&runNoFreeze, "no-freeze", false, "allow shortlist promotion")
	runCmd.Flags().BoolVar(&runSkipDiscovery, "skip-discovery", false, "use tracked products instead of category discovery")
	runCmd.Flags().StringVar(&runASINs, "asins", "", "comma-separated explicit product ids (skips discovery)")
	rootCmd.AddCommand(runCmd)
}

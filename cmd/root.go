package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smartacus/probe-cli/internal/config"
)

var (
	cfg     *config.Config
	logFile string
	verbose bool

	// exitCode carries the run-status exit contract (0 completed,
	// 2 degraded, 3 failed, 130 cancelled) out of RunE.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "probe-cli",
	Short: "Economic-opportunity probe over a marketplace product niche",
	Long:  "Ingests per-product market observations, detects deterministic economic events, scores opportunities, and maintains a ranked shortlist with an immutable audit trail.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		logCfg := cfg.Log
		if verbose {
			logCfg.Level = "debug"
		}
		if err := config.InitLogger(logCfg, logFile); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	code := 0
	if err := rootCmd.Execute(); err != nil {
		code = 1
	}
	if exitCode != 0 {
		code = exitCode
	}
	os.Exit(code)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "tee logs to this file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

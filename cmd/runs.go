package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smartacus/probe-cli/internal/model"
	"github.com/smartacus/probe-cli/internal/store"
)

var (
	runsLimit  int
	runsStatus string
	runsJSON   bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(runsStatus),
			Limit:  runsLimit,
		})
		if err != nil {
			return err
		}

		if runsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}

		if len(runs) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}

		fmt.Printf("%-36s  %-10s  %-20s  %6s  %6s  %6s  %5s\n",
			"RUN", "STATUS", "STARTED", "TOTAL", "FAILED", "OPPS", "DQ")
		for _, r := range runs {
			dq := "fail"
			if r.DataQuality.Passed {
				dq = "pass"
			}
			fmt.Printf("%-36s  %-10s  %-20s  %6d  %6d  %6d  %5s\n",
				r.RunID, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"),
				r.ASINsTotal, r.ASINsFailed, r.OpportunitiesFound, dq)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "max runs to list")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "JSON output")
	rootCmd.AddCommand(runsCmd)
}

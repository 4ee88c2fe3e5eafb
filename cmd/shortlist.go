package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	shortlistMax  int
	shortlistJSON bool
)

var shortlistCmd = &cobra.Command{
	Use:   "shortlist",
	Short: "Print the currently active shortlist",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, source, err := loadShortlist(ctx, st, shortlistMax, 0, 0)
		if err != nil {
			return err
		}

		if shortlistJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"source": source, "items": entries})
		}

		if source == "demo" {
			fmt.Println("no active shortlist snapshot; run the pipeline first")
			return nil
		}

		fmt.Printf("Active shortlist (run %s)\n\n", source)
		var total float64
		for _, e := range entries {
			fmt.Printf("%d. %s -> score %d -> %dd window -> $%.0f/yr\n   %s\n   %s\n\n",
				e.Rank, e.ASIN, e.Score, e.WindowDays, e.RiskAdjustedValue, e.Thesis, e.Action)
			total += e.RiskAdjustedValue
		}
		fmt.Printf("Total: %d opportunities, $%.0f/yr potential\n", len(entries), total)
		return nil
	},
}

func init() {
	shortlistCmd.Flags().IntVar(&shortlistMax, "max", 10, "max items to print")
	shortlistCmd.Flags().BoolVar(&shortlistJSON, "json", false, "JSON output")
	rootCmd.AddCommand(shortlistCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recentCmd = &cobra.Command{
	Use:     "recent",
	Short:   "Show the most recent log records",
	GroupID: "logs",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		source, _ := cmd.Flags().GetString("source")

		recs, err := bridgeClient.Recent(cmd.Context(), limit, source)
		if err != nil {
			return fmt.Errorf("listing recent logs: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, recs)
		}
		if len(recs) == 0 {
			fmt.Fprintln(out, "No records.")
			return nil
		}
		printRecords(out, recs, 0)
		return nil
	},
}

func init() {
	recentCmd.Flags().IntP("limit", "n", 20, "maximum number of records")
	recentCmd.Flags().String("source", "", "where to read from: memory (default) or db")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var guideCmd = &cobra.Command{
	Use:     "guide <city> <days>",
	Short:   "Request a travel guide through the upstream generator",
	GroupID: "logs",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := bridgeClient.Guide(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("requesting guide: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Output)
		return nil
	},
}

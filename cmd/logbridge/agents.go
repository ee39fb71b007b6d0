package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:     "agents",
	Short:   "List agents that have sent logs",
	GroupID: "logs",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stale, _ := cmd.Flags().GetDuration("stale")

		agents, err := bridgeClient.Agents(cmd.Context(), stale)
		if err != nil {
			return fmt.Errorf("listing agents: %w", err)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), agents)
		}
		printAgentTable(cmd.OutOrStdout(), agents, time.Now())
		return nil
	},
}

func init() {
	agentsCmd.Flags().Duration("stale", 0, "hide agents silent for longer than this (0 = show all)")
}

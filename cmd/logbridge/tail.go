package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alfredjeanlab/logbridge/internal/model"
	"github.com/alfredjeanlab/logbridge/internal/ui"
	"github.com/spf13/cobra"
)

var tailCmd = &cobra.Command{
	Use:     "tail",
	Short:   "Follow the live log stream",
	GroupID: "logs",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetUint64("since")
		full, _ := cmd.Flags().GetBool("full")
		agent, _ := cmd.Flags().GetString("agent")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		width := 0
		if ui.IsTerminal(os.Stdout) {
			width = ui.Width()
		}
		enc := json.NewEncoder(out)

		err := bridgeClient.Stream(ctx, since, func(rec model.Record) error {
			if agent != "" && rec.Agent != agent {
				return nil
			}
			switch {
			case jsonOutput:
				return enc.Encode(rec)
			case full:
				_, err := fmt.Fprint(out, rec.Text)
				return err
			default:
				_, err := fmt.Fprintln(out, formatRecordLine(rec, width))
				return err
			}
		})
		if err != nil {
			return fmt.Errorf("streaming logs: %w", err)
		}
		return nil
	},
}

func init() {
	tailCmd.Flags().Uint64("since", 0, "replay buffered records after this sequence number first")
	tailCmd.Flags().Bool("full", false, "print the full framed text block of each record")
	tailCmd.Flags().String("agent", "", "only show records from this agent")
}

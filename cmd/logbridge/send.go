package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send [message...]",
	Short: "Send a log message as an agent",
	Long: `Send a log message to the ingestion port.

The message is taken from the arguments, or read from stdin when none are
given. An empty message is accepted as a heartbeat and not broadcast.`,
	GroupID: "logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, _ := cmd.Flags().GetString("agent")

		content := strings.Join(args, " ")
		if len(args) == 0 {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			content = strings.TrimRight(string(data), "\n")
		}

		res, err := bridgeClient.Send(cmd.Context(), agent, content)
		if err != nil {
			return fmt.Errorf("sending log: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, map[string]any{"status": res.Status, "heartbeat": res.Heartbeat})
		}
		if res.Heartbeat {
			fmt.Fprintln(out, "heartbeat acknowledged")
		} else {
			fmt.Fprintf(out, "sent (%s)\n", res.Status)
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().StringP("agent", "a", defaultAgentName(), "agent name to log as")
}

func defaultAgentName() string {
	if s := os.Getenv("LOGBRIDGE_AGENT"); s != "" {
		return s
	}
	return ""
}

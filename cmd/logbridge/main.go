package main

import (
	"os"

	"github.com/alfredjeanlab/logbridge/internal/client"
	"github.com/alfredjeanlab/logbridge/internal/ui"
	"github.com/spf13/cobra"
)

var (
	httpURL    string
	ingestURL  string
	jsonOutput bool
	noColor    bool

	bridgeClient client.LogBridgeClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("LOGBRIDGE_HTTP_URL"); s != "" {
		return s
	}
	return "http://localhost:5173"
}

func defaultIngestURL() string {
	if s := os.Getenv("LOGBRIDGE_INGEST_URL"); s != "" {
		return s
	}
	return "http://localhost:9999"
}

var rootCmd = &cobra.Command{
	Use:           "logbridge <command>",
	Short:         "Relay agent log messages to live browser viewers",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		bridgeClient = client.NewHTTPClient(httpURL, ingestURL)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if bridgeClient != nil {
			bridgeClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "primary port URL (stream, guide, query API)")
	rootCmd.PersistentFlags().StringVar(&ingestURL, "ingest-url", defaultIngestURL(), "ingestion port URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "logs", Title: "Logs:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false

	// Logs
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(guideCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/logbridge/internal/client"
	"github.com/alfredjeanlab/logbridge/internal/server"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of a logbridge server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		grpcAddr, _ := cmd.Flags().GetString("grpc")
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		if grpcAddr != "" {
			return grpcHealth(ctx, cmd, grpcAddr)
		}

		status, err := bridgeClient.Health(ctx)
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), status); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s (%d viewers)\n", status.Status, status.Subscribers)
		}

		if status.Status != "ok" {
			return fmt.Errorf("unhealthy: %s", status.Status)
		}
		return nil
	},
}

func grpcHealth(ctx context.Context, cmd *cobra.Command, addr string) error {
	c, err := client.NewGRPCHealth(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer c.Close()

	status, err := c.Check(ctx, server.HealthService)
	if err != nil {
		return fmt.Errorf("checking health: %w", err)
	}
	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), map[string]string{"status": status}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", status)
	}
	if status != "SERVING" {
		return fmt.Errorf("unhealthy: %s", status)
	}
	return nil
}

func init() {
	healthCmd.Flags().String("grpc", "", "probe the gRPC health service at this address instead of HTTP")
}

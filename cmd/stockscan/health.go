package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aquaflora/stockscan/internal/client"
	"github.com/aquaflora/stockscan/internal/server"
	"github.com/aquaflora/stockscan/internal/ui"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the stockscan server",
	GroupID: "system",
	Long: `Check the health of the stockscan server.

By default the HTTP health endpoint is queried. With --grpc the standard
gRPC health service is checked instead, both overall and for the catalog,
which is SERVING only once a catalog has been loaded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		out := cmd.OutOrStdout()

		if addr, _ := cmd.Flags().GetString("grpc"); addr != "" {
			return grpcHealth(ctx, cmd, addr)
		}

		status, err := stockClient.Health(ctx)
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}
		if jsonOutput {
			if err := printJSON(out, map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			rendered := ui.RenderPass(status)
			if status != "ok" {
				rendered = ui.RenderFail(status)
			}
			fmt.Fprintf(out, "Health: %s\n", rendered)
		}
		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

func grpcHealth(ctx context.Context, cmd *cobra.Command, addr string) error {
	hc, err := client.NewHealthClient(addr, authToken)
	if err != nil {
		return err
	}
	defer hc.Close()

	statuses := map[string]string{}
	for _, svc := range []string{"", server.CatalogService} {
		status, err := hc.Check(ctx, svc)
		if err != nil {
			return fmt.Errorf("checking %s: %w", serviceLabel(svc), err)
		}
		statuses[serviceLabel(svc)] = status
	}

	if jsonOutput {
		if err := printJSON(cmd.OutOrStdout(), statuses); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Server:  %s\n", statuses["server"])
		fmt.Fprintf(cmd.OutOrStdout(), "Catalog: %s\n", statuses[server.CatalogService])
	}
	for name, status := range statuses {
		if status != "SERVING" {
			return fmt.Errorf("%s is %s", name, status)
		}
	}
	return nil
}

func serviceLabel(svc string) string {
	if svc == "" {
		return "server"
	}
	return svc
}

func init() {
	healthCmd.Flags().String("grpc", "", "check the gRPC health service at this address instead (host:port)")
}

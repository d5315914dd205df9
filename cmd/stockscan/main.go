package main

import (
	"os"

	"github.com/aquaflora/stockscan/internal/client"
	"github.com/aquaflora/stockscan/internal/ui"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	authToken  string
	jsonOutput bool
	noColor    bool

	stockClient client.StockClient
)

func defaultServer() string {
	if s := os.Getenv("STOCKSCAN_SERVER"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultToken() string {
	if t := os.Getenv("STOCKSCAN_TOKEN"); t != "" {
		return t
	}
	return activeRemoteToken()
}

var rootCmd = &cobra.Command{
	Use:           "stockscan <command>",
	Short:         "Barcode stock reconciliation against the product catalog",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupColor()
		stockClient = client.NewHTTPClient(serverURL, authToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if stockClient != nil {
			stockClient.Close()
		}
	},
}

func setupColor() {
	if noColor || !ui.ShouldUseColor() {
		ui.ForceNoColor()
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer(), "stockscan server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token for the server")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "scanning", Title: "Scanning:"},
		&cobra.Group{ID: "catalog", Title: "Catalog:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Scanning
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(tallyCmd)
	rootCmd.AddCommand(devicesCmd)

	// Catalog
	rootCmd.AddCommand(catalogCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

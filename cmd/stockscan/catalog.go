package main

import (
	"fmt"
	"os"
	"time"

	"github.com/aquaflora/stockscan/internal/catalog"
	"github.com/aquaflora/stockscan/internal/model"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	Short:   "Browse and maintain the product catalog",
	GroupID: "catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every product in the served catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := stockClient.GetCatalog(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), cat)
		}
		printProductTable(cmd.OutOrStdout(), cat.Products)
		return nil
	},
}

var catalogSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find products by SKU or name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		products, err := stockClient.SearchProducts(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), products)
		}
		printProductTable(cmd.OutOrStdout(), products)
		return nil
	},
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <sku>",
	Short: "Show one product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := stockClient.GetProduct(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		withHistory, _ := cmd.Flags().GetBool("history")
		if !withHistory {
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), p)
			}
			printProduct(cmd.OutOrStdout(), *p)
			return nil
		}

		history, err := stockClient.ProductHistory(cmd.Context(), args[0], 0)
		if err != nil {
			return fmt.Errorf("price history: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{"product": p, "history": history})
		}
		printProduct(cmd.OutOrStdout(), *p)
		printPriceHistory(cmd.OutOrStdout(), history)
		return nil
	},
}

var catalogStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog totals, or the inventory dashboard with --dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if dash, _ := cmd.Flags().GetBool("dashboard"); dash {
			d, err := stockClient.CatalogDashboard(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), d)
			}
			printDashboard(cmd.OutOrStdout(), *d)
			return nil
		}

		st, err := stockClient.CatalogStats(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		printStats(cmd.OutOrStdout(), *st)
		return nil
	},
}

var catalogReplenishCmd = &cobra.Command{
	Use:   "replenish",
	Short: "List products at or below a stock threshold",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, _ := cmd.Flags().GetInt("threshold")
		products, err := stockClient.Replenishment(cmd.Context(), threshold)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), products)
		}
		printProductTable(cmd.OutOrStdout(), products)
		return nil
	},
}

var catalogRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload the catalog from the server's backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := stockClient.RefreshCatalog(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), s)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "catalog refreshed: %d products (updated %s)\n", s.Products, formatTime(s.UpdatedAt))
		return nil
	},
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Replace the server's catalog with a JSON product list",
	Long: `Replace the server's catalog with a JSON product list.

The file has the catalog API shape, {"products": [...], "updated_at": ...}.
It is validated locally before anything is sent; the server replaces its
product table in a single transaction.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		products, err := readCatalogFile(args[0])
		if err != nil {
			return err
		}
		s, err := stockClient.ImportCatalog(cmd.Context(), products)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), s)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d products\n", s.Products)
		return nil
	},
}

// readCatalogFile decodes and validates a catalog document on disk.
func readCatalogFile(path string) ([]model.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cat, err := catalog.DecodeCatalog(f, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := model.ValidateProducts(cat.Products); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat.Products, nil
}

func init() {
	catalogSearchCmd.Flags().Int("limit", 20, "maximum number of results (0 = all)")
	catalogShowCmd.Flags().Bool("history", false, "also show the price at each of the last 10 imports")
	catalogStatsCmd.Flags().Bool("dashboard", false, "show stock value, low stock and top categories")
	catalogReplenishCmd.Flags().Int("threshold", catalog.LowStockThreshold, "stock level at or below which to reorder")

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogSearchCmd)
	catalogCmd.AddCommand(catalogShowCmd)
	catalogCmd.AddCommand(catalogStatsCmd)
	catalogCmd.AddCommand(catalogReplenishCmd)
	catalogCmd.AddCommand(catalogRefreshCmd)
	catalogCmd.AddCommand(catalogImportCmd)
}

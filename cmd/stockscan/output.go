package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aquaflora/stockscan/internal/catalog"
	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/scan"
	"github.com/aquaflora/stockscan/internal/ui"
	"github.com/shopspring/decimal"
)

const nameWidth = 40

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func printProductTable(w io.Writer, products []model.Product) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SKU\tNAME\tCATEGORY\tSTOCK\tPRICE")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			p.SKU,
			ui.Truncate(p.Name, nameWidth),
			p.Category,
			p.Stock,
			formatMoney(p.Price),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d products\n", len(products))
}

func printProduct(w io.Writer, p model.Product) {
	fmt.Fprintf(w, "SKU:       %s\n", p.SKU)
	fmt.Fprintf(w, "Name:      %s\n", p.Name)
	if p.Category != "" {
		fmt.Fprintf(w, "Category:  %s\n", p.Category)
	}
	if p.Brand != "" {
		fmt.Fprintf(w, "Brand:     %s\n", p.Brand)
	}
	stock := fmt.Sprintf("%d", p.Stock)
	if !p.InStock() {
		stock = ui.RenderFail(stock + " (out of stock)")
	}
	fmt.Fprintf(w, "Stock:     %s\n", stock)
	fmt.Fprintf(w, "Price:     %s\n", formatMoney(p.Price))
	if !p.Cost.IsZero() {
		fmt.Fprintf(w, "Cost:      %s\n", formatMoney(p.Cost))
	}
}

func printPriceHistory(w io.Writer, history []model.PricePoint) {
	fmt.Fprintln(w)
	if len(history) == 0 {
		fmt.Fprintln(w, "No price history.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IMPORTED\tPRICE")
	for _, pp := range history {
		fmt.Fprintf(tw, "%s\t%s\n", formatTime(pp.ImportedAt), formatMoney(pp.Price))
	}
	tw.Flush()
}

func printStats(w io.Writer, st catalog.Stats) {
	fmt.Fprintf(w, "Products:      %d\n", st.Total)
	fmt.Fprintf(w, "In stock:      %d\n", st.InStock)
	fmt.Fprintf(w, "Out of stock:  %d\n", st.OutOfStock)
	if len(st.Categories) > 0 {
		fmt.Fprintf(w, "Categories:    %s\n", strings.Join(st.Categories, ", "))
	}
}

func printDashboard(w io.Writer, d catalog.Dashboard) {
	fmt.Fprintf(w, "Items:         %d\n", d.TotalItems)
	fmt.Fprintf(w, "Units:         %d\n", d.TotalStock)
	fmt.Fprintf(w, "Stock value:   %s\n", formatMoney(d.TotalValue))
	fmt.Fprintf(w, "Low stock:     %s\n", ui.RenderWarn(fmt.Sprintf("%d", d.LowStock)))
	fmt.Fprintf(w, "Out of stock:  %s\n", ui.RenderFail(fmt.Sprintf("%d", d.OutOfStock)))
	if d.UpdatedAt != "" {
		fmt.Fprintf(w, "Updated:       %s\n", d.UpdatedAt)
	}
	if len(d.TopCategories) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tPRODUCTS")
		for _, c := range d.TopCategories {
			fmt.Fprintf(tw, "%s\t%d\n", c.Category, c.Count)
		}
		tw.Flush()
	}
}

func printTally(w io.Writer, entries []model.TallyEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "tally is empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SKU\tNAME\tSYSTEM\tCOUNTED\tVARIANCE\tLAST SCAN")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			e.SKU,
			ui.Truncate(e.Name, nameWidth),
			e.SystemStock,
			e.Count,
			ui.RenderVariance(scan.Variance(e)),
			formatTime(e.LastScannedAt),
		)
	}
	tw.Flush()
	printSummary(w, scan.Summarize(entries))
}

func printSummary(w io.Writer, s scan.Summary) {
	fmt.Fprintf(w, "\n%d products, %d units counted: %s matching, %s surplus, %s shortage (net %s)\n",
		s.Entries,
		s.Units,
		ui.RenderPass(fmt.Sprintf("%d", s.Matching)),
		ui.RenderWarn(fmt.Sprintf("%d", s.Surplus)),
		ui.RenderFail(fmt.Sprintf("%d", s.Shortage)),
		ui.FormatVariance(s.NetVariance),
	)
}

func printSessionStatus(w io.Writer, st model.SessionStatus) {
	fmt.Fprintf(w, "State:       %s\n", ui.RenderState(st.State))
	if st.ID != "" {
		fmt.Fprintf(w, "Session:     %s\n", st.ID)
	}
	if st.Mode != "" {
		fmt.Fprintf(w, "Mode:        %s\n", st.Mode)
	}
	if st.ActiveDevice != "" {
		fmt.Fprintf(w, "Device:      %s\n", st.ActiveDevice)
	}
	if len(st.Devices) > 1 {
		ids := make([]string, len(st.Devices))
		for i, d := range st.Devices {
			ids[i] = d.ID
		}
		fmt.Fprintf(w, "Devices:     %s\n", strings.Join(ids, ", "))
	}
	if st.StartedAt != nil {
		fmt.Fprintf(w, "Started:     %s\n", formatTime(*st.StartedAt))
	}
	fmt.Fprintf(w, "Entries:     %d\n", st.EntryCount)
	if st.DecodeErrors > 0 {
		fmt.Fprintf(w, "Bad frames:  %d\n", st.DecodeErrors)
	}
	if st.LastResult != nil {
		fmt.Fprintf(w, "Last scan:   %s\n", describeResult(*st.LastResult))
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "Last error:  %s\n", ui.RenderFail(st.LastError))
	}
}

// describeResult is the one-line feedback shown for each scanned code.
func describeResult(r model.ScanResult) string {
	switch r.Outcome {
	case model.OutcomeUnmatched:
		return fmt.Sprintf("%s %q", ui.RenderOutcome(r.Outcome), r.Text)
	case model.OutcomeFound:
		if r.Product == nil {
			return ui.RenderOutcome(r.Outcome)
		}
		return fmt.Sprintf("%s %s %s (stock %d, %s)", ui.RenderOutcome(r.Outcome), r.Product.SKU, r.Product.Name, r.Product.Stock, formatMoney(r.Product.Price))
	}
	if r.Entry == nil {
		return ui.RenderOutcome(r.Outcome)
	}
	e := *r.Entry
	return fmt.Sprintf("%s %s %s: counted %d of %d (%s)",
		ui.RenderOutcome(r.Outcome), e.SKU, e.Name, e.Count, e.SystemStock, ui.RenderVariance(scan.Variance(e)))
}

func printDevices(w io.Writer, devices []model.Device, selected int) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "no capture devices")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tLABEL")
	for i, d := range devices {
		marker := "  "
		if i == selected {
			marker = "* "
		}
		fmt.Fprintf(tw, "%s%s\t%s\n", marker, d.ID, d.Label)
	}
	tw.Flush()
}

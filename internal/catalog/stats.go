package catalog

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aquaflora/stockscan/internal/model"
)

// LowStockThreshold is the default ceiling for "low stock" and replenishment.
const LowStockThreshold = 3

// Stats is a summary of the catalog.
type Stats struct {
	Total      int      `json:"total"`
	InStock    int      `json:"in_stock"`
	OutOfStock int      `json:"out_of_stock"`
	Categories []string `json:"categories"`
}

// CategoryCount is the number of products in one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Dashboard holds the headline inventory figures.
type Dashboard struct {
	TotalItems    int             `json:"total_items"`
	TotalStock    int             `json:"total_stock_count"`
	TotalValue    decimal.Decimal `json:"total_value"`
	LowStock      int             `json:"low_stock"`
	OutOfStock    int             `json:"out_of_stock"`
	TopCategories []CategoryCount `json:"top_categories"`
	UpdatedAt     string          `json:"updated_at,omitempty"`
}

// Stats summarises the snapshot. Categories are sorted and exclude blanks.
func (s *Snapshot) Stats() Stats {
	st := Stats{Total: len(s.products), Categories: []string{}}
	seen := make(map[string]bool)
	for _, p := range s.products {
		if p.InStock() {
			st.InStock++
		} else {
			st.OutOfStock++
		}
		if p.Category != "" && !seen[p.Category] {
			seen[p.Category] = true
			st.Categories = append(st.Categories, p.Category)
		}
	}
	sort.Strings(st.Categories)
	return st
}

// Dashboard computes inventory totals. TotalValue is the sum of stock times
// price, negative stock included.
func (s *Snapshot) Dashboard() Dashboard {
	d := Dashboard{TotalItems: len(s.products), TotalValue: decimal.Zero}
	counts := make(map[string]int)
	for _, p := range s.products {
		d.TotalStock += p.Stock
		d.TotalValue = d.TotalValue.Add(p.Price.Mul(decimal.NewFromInt(int64(p.Stock))))
		switch {
		case p.Stock <= 0:
			d.OutOfStock++
		case p.Stock <= LowStockThreshold:
			d.LowStock++
		}
		if p.Category != "" {
			counts[p.Category]++
		}
	}
	d.TopCategories = topCategories(counts, 5)
	if !s.updatedAt.IsZero() {
		d.UpdatedAt = s.updatedAt.Format("2006-01-02 15:04:05")
	}
	return d
}

// Replenishment lists products with stock at or below threshold, ordered by
// category then name.
func (s *Snapshot) Replenishment(threshold int) []model.Product {
	out := []model.Product{}
	for _, p := range s.products {
		if p.Stock <= threshold {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func topCategories(counts map[string]int, n int) []CategoryCount {
	out := make([]CategoryCount, 0, len(counts))
	for c, k := range counts {
		out = append(out, CategoryCount{Category: c, Count: k})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

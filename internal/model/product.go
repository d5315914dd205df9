package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a single catalog record as of the last successful refresh.
// Stock is the system baseline for variance and is never mutated by a
// reconciliation session.
type Product struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Category string          `json:"category,omitempty"`
	Brand    string          `json:"brand,omitempty"`
	Stock    int             `json:"stock"`
	Price    decimal.Decimal `json:"price"`
	Cost     decimal.Decimal `json:"cost"`
}

// PricePoint is a product's price as of one catalog import.
type PricePoint struct {
	Price      decimal.Decimal `json:"price"`
	ImportedAt time.Time       `json:"imported_at"`
}

// InStock reports whether the system believes at least one unit is on hand.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// Catalog is the wire shape of the catalog refresh API: the full product
// list plus the backend's last-updated timestamp.
type Catalog struct {
	Products  []Product `json:"products"`
	UpdatedAt time.Time `json:"updated_at"`
}

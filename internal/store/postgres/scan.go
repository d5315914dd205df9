package postgres

import (
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/aquaflora/stockscan/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanProduct scans a single row into a model.Product.
// The row must contain columns in the order defined by productColumns.
func scanProduct(row scannable) (*model.Product, error) {
	var p model.Product
	var (
		category sql.NullString
		brand    sql.NullString
		price    decimal.NullDecimal
		cost     decimal.NullDecimal
	)

	err := row.Scan(
		&p.SKU,
		&p.Name,
		&category,
		&brand,
		&p.Stock,
		&price,
		&cost,
	)
	if err != nil {
		return nil, err
	}

	p.Category = category.String
	p.Brand = brand.String
	if price.Valid {
		p.Price = price.Decimal
	}
	if cost.Valid {
		p.Cost = cost.Decimal
	}
	return &p, nil
}

// Package store defines persistence for the product catalog.
package store

import (
	"context"
	"time"

	"github.com/aquaflora/stockscan/internal/catalog"
	"github.com/aquaflora/stockscan/internal/model"
)

// Store defines the persistence interface for products. Lookups of a missing
// SKU return sql.ErrNoRows.
type Store interface {
	// Products
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, sku string) (*model.Product, error)
	UpsertProduct(ctx context.Context, p *model.Product) error
	DeleteProduct(ctx context.Context, sku string) error

	// ReplaceProducts swaps the whole catalog for products, keeping their order.
	ReplaceProducts(ctx context.Context, products []model.Product) error

	// PriceHistory returns the price of sku at each of the last limit
	// catalog imports that carried it, oldest first.
	PriceHistory(ctx context.Context, sku string, limit int) ([]model.PricePoint, error)

	// CatalogUpdatedAt is the time of the most recent product write.
	CatalogUpdatedAt(ctx context.Context) (time.Time, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}

// Source exposes a Store as a catalog.Source. Products and timestamp are
// read in one transaction so they describe the same catalog version.
func Source(s Store) catalog.Source {
	return catalog.SourceFunc(func(ctx context.Context) (*model.Catalog, error) {
		var cat model.Catalog
		err := s.RunInTransaction(ctx, func(tx Store) error {
			products, err := tx.ListProducts(ctx)
			if err != nil {
				return err
			}
			updated, err := tx.CatalogUpdatedAt(ctx)
			if err != nil {
				return err
			}
			cat = model.Catalog{Products: products, UpdatedAt: updated}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &cat, nil
	})
}

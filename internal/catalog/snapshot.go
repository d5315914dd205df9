// Package catalog holds the in-memory product catalog used to resolve
// scanned codes.
//
// A Snapshot is immutable once built. The Store swaps snapshots wholesale on
// every successful refresh, so a caller holding a *Snapshot keeps a stable
// view even while a refresh replaces the store's current one.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/textutil"
)

// Snapshot is an immutable, ordered view of the catalog.
type Snapshot struct {
	products  []model.Product
	bySKU     map[string]int
	updatedAt time.Time
	fetchedAt time.Time
}

// NewSnapshot validates and copies products into a new snapshot. Product
// order is preserved; it is the tie-break for name matching.
func NewSnapshot(products []model.Product, updatedAt, fetchedAt time.Time) (*Snapshot, error) {
	if err := model.ValidateProducts(products); err != nil {
		return nil, fmt.Errorf("malformed catalog: %w", err)
	}
	s := &Snapshot{
		products:  make([]model.Product, len(products)),
		bySKU:     make(map[string]int, len(products)),
		updatedAt: updatedAt,
		fetchedAt: fetchedAt,
	}
	copy(s.products, products)
	for i, p := range s.products {
		s.bySKU[p.SKU] = i
	}
	return s, nil
}

// emptySnapshot is served before the first successful refresh.
func emptySnapshot() *Snapshot {
	return &Snapshot{bySKU: map[string]int{}}
}

// Len returns the number of products.
func (s *Snapshot) Len() int { return len(s.products) }

// UpdatedAt is the backend's last-updated timestamp for this catalog.
func (s *Snapshot) UpdatedAt() time.Time { return s.updatedAt }

// FetchedAt is when this snapshot was loaded. Zero for the initial empty snapshot.
func (s *Snapshot) FetchedAt() time.Time { return s.fetchedAt }

// Loaded reports whether the snapshot came from a successful refresh.
func (s *Snapshot) Loaded() bool { return !s.fetchedAt.IsZero() }

// Products returns a copy of the products in catalog order.
func (s *Snapshot) Products() []model.Product {
	out := make([]model.Product, len(s.products))
	copy(out, s.products)
	return out
}

// Catalog returns the snapshot in the wire shape of the refresh API.
func (s *Snapshot) Catalog() model.Catalog {
	return model.Catalog{Products: s.Products(), UpdatedAt: s.updatedAt}
}

// BySKU returns the product with exactly the given SKU.
func (s *Snapshot) BySKU(sku string) (model.Product, bool) {
	i, ok := s.bySKU[sku]
	if !ok {
		return model.Product{}, false
	}
	return s.products[i], true
}

// Resolve applies the scan matching rule (see Resolve) to this snapshot.
func (s *Snapshot) Resolve(text string) (model.Product, bool) {
	return Resolve(text, s.products)
}

// Search returns products whose SKU or name contains query, ignoring case,
// in catalog order. A limit <= 0 returns every match.
func (s *Snapshot) Search(query string, limit int) []model.Product {
	q := textutil.FoldKey(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []model.Product
	for _, p := range s.products {
		if strings.Contains(textutil.FoldKey(p.SKU), q) || strings.Contains(textutil.FoldKey(p.Name), q) {
			out = append(out, p)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aquaflora/stockscan/internal/model"
)

// maxCatalogBytes caps a catalog document read from a file or object store.
const maxCatalogBytes = 64 << 20

// DecodeCatalog reads a catalog document in the refresh API shape. When the
// document carries no updated_at, fallback is used instead.
func DecodeCatalog(r io.Reader, fallback time.Time) (*model.Catalog, error) {
	var cat model.Catalog
	dec := json.NewDecoder(io.LimitReader(r, maxCatalogBytes))
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if cat.UpdatedAt.IsZero() {
		cat.UpdatedAt = fallback
	}
	return &cat, nil
}

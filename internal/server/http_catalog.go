package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aquaflora/stockscan/internal/catalog"
	"github.com/aquaflora/stockscan/internal/events"
	"github.com/aquaflora/stockscan/internal/model"
)

// handleGetCatalog handles GET /v1/catalog. The body is the catalog refresh
// shape, so another stockscan instance can use this server as its source.
func (s *StockServer) handleGetCatalog(w http.ResponseWriter, _ *http.Request) {
	snap := s.catalog.Current()
	if !snap.Loaded() {
		writeError(w, http.StatusServiceUnavailable, "catalog not loaded")
		return
	}
	writeJSON(w, http.StatusOK, snap.Catalog())
}

// handleSearchCatalog handles GET /v1/catalog/search?q=...&limit=N.
func (s *StockServer) handleSearchCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	products := s.catalog.Current().Search(q, limit)
	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

// handleGetProduct handles GET /v1/catalog/products/{sku}.
func (s *StockServer) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	p, ok := s.catalog.Current().BySKU(sku)
	if !ok {
		writeError(w, http.StatusNotFound, "product not found: "+sku)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// priceHistoryLimit is the number of imports GET .../history returns by
// default.
const priceHistoryLimit = 10

// handlePriceHistory handles GET /v1/catalog/products/{sku}/history?limit=N:
// the SKU's price at each of its last N imports, oldest first. A SKU that
// was never imported has an empty history.
func (s *StockServer) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	if s.Products == nil {
		writeError(w, http.StatusNotImplemented, "price history requires a database")
		return
	}
	limit, err := intParam(r, "limit", priceHistoryLimit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if limit == 0 {
		limit = priceHistoryLimit
	}
	sku := r.PathValue("sku")
	points, err := s.Products.PriceHistory(r.Context(), sku, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sku": sku, "history": points})
}

// handleCatalogStats handles GET /v1/catalog/stats.
func (s *StockServer) handleCatalogStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Current().Stats())
}

// handleCatalogDashboard handles GET /v1/catalog/dashboard.
func (s *StockServer) handleCatalogDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Current().Dashboard())
}

// handleReplenishment handles GET /v1/catalog/replenishment?threshold=N.
func (s *StockServer) handleReplenishment(w http.ResponseWriter, r *http.Request) {
	threshold, err := intParam(r, "threshold", catalog.LowStockThreshold)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	products := s.catalog.Current().Replenishment(threshold)
	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"threshold": threshold, "products": products})
}

// handleRefreshCatalog handles POST /v1/catalog/refresh. A failed refresh
// keeps serving the previous snapshot and answers 502.
func (s *StockServer) handleRefreshCatalog(w http.ResponseWriter, r *http.Request) {
	snap, err := s.catalog.Refresh(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, catalogSummary(snap))
}

// handleImportCatalog handles POST /v1/catalog/import. The body is a
// catalog document; its products replace the stored catalog in one
// transaction and the served snapshot is swapped immediately.
func (s *StockServer) handleImportCatalog(w http.ResponseWriter, r *http.Request) {
	if s.Products == nil {
		writeError(w, http.StatusNotImplemented, "catalog import requires a database")
		return
	}
	cat, err := catalog.DecodeCatalog(r.Body, time.Time{})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := model.ValidateProducts(cat.Products); err != nil {
		writeServiceError(w, err)
		return
	}

	ctx := r.Context()
	if err := s.Products.ReplaceProducts(ctx, cat.Products); err != nil {
		writeServiceError(w, err)
		return
	}
	updated, err := s.Products.CatalogUpdatedAt(ctx)
	if err != nil {
		slog.Warn("import: reading catalog timestamp", "error", err)
		updated = time.Now().UTC()
	}
	snap, err := s.catalog.Replace(model.Catalog{Products: cat.Products, UpdatedAt: updated})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.Notify(events.TopicCatalogImported, events.CatalogImported{Products: snap.Len()})
	writeJSON(w, http.StatusOK, catalogSummary(snap))
}

func catalogSummary(snap *catalog.Snapshot) map[string]any {
	return map[string]any{
		"products":   snap.Len(),
		"updated_at": snap.UpdatedAt(),
		"fetched_at": snap.FetchedAt(),
	}
}

// intParam parses an optional non-negative integer query parameter.
func intParam(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, inputError(name + " must be a non-negative integer")
	}
	return n, nil
}

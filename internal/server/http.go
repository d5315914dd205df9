package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aquaflora/stockscan/internal/catalog"
	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/scan"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *StockServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/catalog", s.handleGetCatalog)
	mux.HandleFunc("GET /v1/catalog/search", s.handleSearchCatalog)
	mux.HandleFunc("GET /v1/catalog/products/{sku}", s.handleGetProduct)
	mux.HandleFunc("GET /v1/catalog/products/{sku}/history", s.handlePriceHistory)
	mux.HandleFunc("GET /v1/catalog/stats", s.handleCatalogStats)
	mux.HandleFunc("GET /v1/catalog/dashboard", s.handleCatalogDashboard)
	mux.HandleFunc("GET /v1/catalog/replenishment", s.handleReplenishment)
	mux.HandleFunc("POST /v1/catalog/refresh", s.handleRefreshCatalog)
	mux.HandleFunc("POST /v1/catalog/import", s.handleImportCatalog)
	mux.HandleFunc("GET /v1/session", s.handleGetSession)
	mux.HandleFunc("POST /v1/session/lookup", s.handleStartLookup)
	mux.HandleFunc("POST /v1/session/reconcile", s.handleStartReconcile)
	mux.HandleFunc("POST /v1/session/switch", s.handleSwitchDevice)
	mux.HandleFunc("POST /v1/session/stop", s.handleStopSession)
	mux.HandleFunc("GET /v1/tally", s.handleGetTally)
	mux.HandleFunc("GET /v1/tally/{sku}", s.handleGetTallyEntry)
	mux.HandleFunc("GET /v1/reports/tally", s.handleTallyReport)
	mux.HandleFunc("GET /v1/devices", s.handleListDevices)
	mux.HandleFunc("GET /v1/devices/roster", s.handleDeviceRoster)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return LoggingMiddleware(AuthMiddleware(authToken, mux))
}

// handleHealth handles GET /v1/health.
func (s *StockServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.catalog.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"catalog_loaded": snap.Loaded(),
		"products":       snap.Len(),
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps engine errors to HTTP statuses. A device that
// cannot be enumerated is unavailable (503); one that cannot be opened is
// held elsewhere (409).
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		derr *scan.DeviceError
		rerr *catalog.RefreshError
		verr *model.ValidationError
		ierr inputError
	)
	switch {
	case errors.As(err, &derr) && derr.Kind == scan.KindEnumeration:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &derr):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scan.ErrSessionCancelled):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &rerr):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &verr), errors.As(err, &ierr):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aquaflora/stockscan/internal/presence"
	"github.com/aquaflora/stockscan/internal/scan"
)

// handleListDevices handles GET /v1/devices.
// Returns the devices the adapter can open right now.
func (s *StockServer) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.controller.Devices(r.Context())
	if err != nil {
		writeServiceError(w, &scan.DeviceError{Kind: scan.KindEnumeration, Cause: err})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices":  devices,
		"selected": scan.SelectDevice(devices),
	})
}

// handleDeviceRoster handles GET /v1/devices/roster.
// Returns the live gateway roster from the presence tracker.
func (s *StockServer) handleDeviceRoster(w http.ResponseWriter, r *http.Request) {
	if s.Presence == nil {
		writeJSON(w, http.StatusOK, map[string]any{"devices": []any{}})
		return
	}

	// Parse optional stale_threshold_secs query param.
	staleThreshold := s.RosterStaleAfter
	if v := r.URL.Query().Get("stale_threshold_secs"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			staleThreshold = time.Duration(secs) * time.Second
		}
	}

	entries := s.Presence.Roster(staleThreshold)
	if entries == nil {
		entries = []presence.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": entries})
}

package server

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/report"
	"github.com/aquaflora/stockscan/internal/scan"
)

// handleGetSession handles GET /v1/session.
func (s *StockServer) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleStartLookup handles POST /v1/session/lookup.
func (s *StockServer) handleStartLookup(w http.ResponseWriter, r *http.Request) {
	s.startSession(w, r, model.ModeSingleLookup)
}

// handleStartReconcile handles POST /v1/session/reconcile.
func (s *StockServer) handleStartReconcile(w http.ResponseWriter, r *http.Request) {
	s.startSession(w, r, model.ModeReconciliation)
}

func (s *StockServer) startSession(w http.ResponseWriter, r *http.Request, mode model.ScanMode) {
	if err := s.controller.Start(r.Context(), mode); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleSwitchDevice handles POST /v1/session/switch.
func (s *StockServer) handleSwitchDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.SwitchDevice(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// handleStopSession handles POST /v1/session/stop.
func (s *StockServer) handleStopSession(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Stop(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Status())
}

// tallyResponse is the body of GET /v1/tally.
type tallyResponse struct {
	Entries []model.TallyEntry `json:"entries"`
	Summary scan.Summary       `json:"summary"`
}

// handleGetTally handles GET /v1/tally.
func (s *StockServer) handleGetTally(w http.ResponseWriter, _ *http.Request) {
	entries := s.controller.Tally()
	if entries == nil {
		entries = []model.TallyEntry{}
	}
	writeJSON(w, http.StatusOK, tallyResponse{Entries: entries, Summary: scan.Summarize(entries)})
}

// handleGetTallyEntry handles GET /v1/tally/{sku}.
func (s *StockServer) handleGetTallyEntry(w http.ResponseWriter, r *http.Request) {
	sku := r.PathValue("sku")
	entry, ok := s.controller.TallyEntry(sku)
	if !ok {
		writeError(w, http.StatusNotFound, "no tally entry for "+sku)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleTallyReport handles GET /v1/reports/tally?format=xlsx|jsonl and
// returns the current tally as a downloadable report.
func (s *StockServer) handleTallyReport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep := s.tallyReport()
	var buf bytes.Buffer
	if err := report.Write(&buf, rep, format); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rep.FileName(format)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

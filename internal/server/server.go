package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aquaflora/stockscan/internal/catalog"
	"github.com/aquaflora/stockscan/internal/decoder"
	"github.com/aquaflora/stockscan/internal/events"
	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/presence"
	"github.com/aquaflora/stockscan/internal/report"
	"github.com/aquaflora/stockscan/internal/scan"
	"github.com/aquaflora/stockscan/internal/store"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// CatalogService is the gRPC health service name that reports SERVING once a
// catalog snapshot has been loaded.
const CatalogService = "stockscan.Catalog"

// StockServer exposes the scan controller and the catalog over HTTP, SSE
// and gRPC health.
type StockServer struct {
	controller *scan.Controller
	catalog    *catalog.Store
	publisher  events.Publisher
	sseHub     *sseHub
	health     *health.Server

	mu           sync.Mutex
	tallySession string // ID of the reconciliation session the tally belongs to

	// Products, when set, backs POST /v1/catalog/import.
	Products store.Store
	// Presence, when set, backs GET /v1/devices/roster.
	Presence *presence.Tracker
	// RosterStaleAfter is the default staleness threshold of the roster.
	RosterStaleAfter time.Duration
	// Archiver, when set, receives the tally of every reconciliation session
	// that stops or fails with at least one entry.
	Archiver *report.Archiver
}

// NewStockServer creates the server and the scan controller it drives. The
// controller's events and the catalog's refresh results are fanned out to
// the publisher and to SSE clients; cat.OnRefresh is taken over for this.
func NewStockServer(adapter decoder.Adapter, cat *catalog.Store, p events.Publisher, opts scan.Options) *StockServer {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	s := &StockServer{
		catalog:          cat,
		publisher:        p,
		sseHub:           newSSEHub(),
		health:           health.NewServer(),
		RosterStaleAfter: 30 * time.Second,
	}
	opts.Notify = s.Notify
	s.controller = scan.NewController(adapter, cat, opts)
	cat.OnRefresh = s.catalogRefreshed
	s.setCatalogHealth(cat.Current())
	return s
}

// Controller returns the scan controller owned by the server.
func (s *StockServer) Controller() *scan.Controller {
	return s.controller
}

// Notify publishes an event and broadcasts it to SSE clients. Failures are
// logged and never block the caller.
func (s *StockServer) Notify(topic string, event any) {
	switch ev := event.(type) {
	case events.SessionStarted:
		if ev.Mode == model.ModeReconciliation {
			s.mu.Lock()
			s.tallySession = ev.SessionID
			s.mu.Unlock()
		}
	case events.SessionStopped:
		s.archiveTally(ev.SessionID, ev.Mode, ev.Entries)
	case events.SessionFailed:
		s.archiveTally(ev.SessionID, ev.Mode, ev.Entries)
	}

	if err := s.publisher.Publish(context.Background(), topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
	s.broadcastEvent(topic, event)
}

// archiveTally archives the tally of a reconciliation session that ended,
// whether stopped or failed, with at least one entry.
func (s *StockServer) archiveTally(sessionID string, mode model.ScanMode, entries int) {
	if mode != model.ModeReconciliation || entries == 0 || s.Archiver == nil {
		return
	}
	s.Archiver.ArchiveAsync(report.New(sessionID, s.controller.Tally(), time.Now()))
}

// DeviceLost is a presence.ReaperConfig.OnLost hook.
func (s *StockServer) DeviceLost(deviceID, label string) {
	s.Notify(events.TopicDeviceLost, events.DeviceLost{DeviceID: deviceID, Label: label})
}

func (s *StockServer) catalogRefreshed(snap *catalog.Snapshot, err error) {
	if err != nil {
		current := s.catalog.Current()
		slog.Warn("catalog refresh failed", "error", err, "serving_products", current.Len())
		s.Notify(events.TopicCatalogRefreshFailed, events.CatalogRefreshFailed{
			Error:           err.Error(),
			ServingProducts: current.Len(),
		})
		return
	}
	s.setCatalogHealth(snap)
	s.Notify(events.TopicCatalogRefreshed, events.CatalogRefreshed{
		Products:  snap.Len(),
		UpdatedAt: snap.UpdatedAt(),
	})
}

func (s *StockServer) setCatalogHealth(snap *catalog.Snapshot) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if snap.Loaded() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(CatalogService, st)
}

// tallyReport snapshots the current tally as a report.
func (s *StockServer) tallyReport() report.Report {
	s.mu.Lock()
	id := s.tallySession
	s.mu.Unlock()
	return report.New(id, s.controller.Tally(), time.Now())
}

// Shutdown marks every gRPC health service NOT_SERVING, ends the scan
// session and waits for pending report archives.
func (s *StockServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	err := s.controller.Stop(ctx)
	if s.Archiver != nil {
		s.Archiver.Wait()
	}
	return err
}

// inputError indicates invalid user input.
// Transport layers map this to 400.
type inputError string

func (e inputError) Error() string { return string(e) }

// Package client provides a transport-agnostic interface for the stockscan
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"
	"io"
	"time"

	"github.com/aquaflora/stockscan/internal/catalog"
	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/presence"
	"github.com/aquaflora/stockscan/internal/scan"
)

// StockClient is the interface that stockscan CLI commands use to
// communicate with a running server. It is implemented by HTTPClient.
type StockClient interface {
	// Catalog
	GetCatalog(ctx context.Context) (*model.Catalog, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]model.Product, error)
	GetProduct(ctx context.Context, sku string) (*model.Product, error)
	ProductHistory(ctx context.Context, sku string, limit int) ([]model.PricePoint, error)
	CatalogStats(ctx context.Context) (*catalog.Stats, error)
	CatalogDashboard(ctx context.Context) (*catalog.Dashboard, error)
	Replenishment(ctx context.Context, threshold int) ([]model.Product, error)
	RefreshCatalog(ctx context.Context) (*CatalogSummary, error)
	ImportCatalog(ctx context.Context, products []model.Product) (*CatalogSummary, error)

	// Session
	GetSession(ctx context.Context) (*model.SessionStatus, error)
	StartSession(ctx context.Context, mode model.ScanMode) (*model.SessionStatus, error)
	SwitchDevice(ctx context.Context) (*model.SessionStatus, error)
	StopSession(ctx context.Context) (*model.SessionStatus, error)

	// Tally
	GetTally(ctx context.Context) (*TallyResponse, error)
	GetTallyEntry(ctx context.Context, sku string) (*model.TallyEntry, error)
	DownloadTallyReport(ctx context.Context, format string, w io.Writer) (string, error)

	// Devices
	ListDevices(ctx context.Context) (*DevicesResponse, error)
	DeviceRoster(ctx context.Context, staleAfter time.Duration) ([]presence.Entry, error)

	// Events
	StreamEvents(ctx context.Context, topics []string, lastEventID string, fn func(Event) error) error

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// CatalogSummary is returned by refresh and import.
type CatalogSummary struct {
	Products  int       `json:"products"`
	UpdatedAt time.Time `json:"updated_at"`
	FetchedAt time.Time `json:"fetched_at"`
}

// TallyResponse holds the current tally and its totals.
type TallyResponse struct {
	Entries []model.TallyEntry `json:"entries"`
	Summary scan.Summary       `json:"summary"`
}

// DevicesResponse lists the server's capture devices. Selected is the index
// a new session would open, or -1 when there are none.
type DevicesResponse struct {
	Devices  []model.Device `json:"devices"`
	Selected int            `json:"selected"`
}

// Event is one server-sent event.
type Event struct {
	ID    string
	Topic string
	Data  []byte
}

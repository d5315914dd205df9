// Package events defines the typed events emitted by the scan engine and
// the transports that carry them.
package events

import (
	"context"
	"time"

	"github.com/aquaflora/stockscan/internal/model"
)

// Event topic constants
const (
	// Session lifecycle
	TopicSessionStarted        = "stock.session.started"
	TopicSessionStopped        = "stock.session.stopped"
	TopicSessionDeviceSwitched = "stock.session.device_switched"
	TopicSessionFailed         = "stock.session.failed"

	// Scan results
	TopicScanRecorded   = "stock.scan.recorded"
	TopicScanUnmatched  = "stock.scan.unmatched"
	TopicLookupResolved = "stock.lookup.resolved"

	// Catalog
	TopicCatalogRefreshed     = "stock.catalog.refreshed"
	TopicCatalogRefreshFailed = "stock.catalog.refresh_failed"
	TopicCatalogImported      = "stock.catalog.imported"

	// Devices
	TopicDeviceLost = "stock.device.lost"
)

// Event types

type SessionStarted struct {
	SessionID string         `json:"session_id"`
	Mode      model.ScanMode `json:"mode"`
	DeviceID  string         `json:"device_id"`
	Devices   []model.Device `json:"devices"`
}

type SessionStopped struct {
	SessionID string         `json:"session_id"`
	Mode      model.ScanMode `json:"mode"`
	Reason    string         `json:"reason,omitempty"`
	Entries   int            `json:"entries"`
}

type SessionDeviceSwitched struct {
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

type SessionFailed struct {
	SessionID string         `json:"session_id,omitempty"`
	Mode      model.ScanMode `json:"mode,omitempty"`
	Kind      string         `json:"kind"`
	DeviceID  string         `json:"device_id,omitempty"`
	Error     string         `json:"error"`
	Entries   int            `json:"entries"`
}

type ScanRecorded struct {
	SessionID string             `json:"session_id"`
	Outcome   model.MatchOutcome `json:"outcome"`
	Entry     *model.TallyEntry  `json:"entry"`
}

type ScanUnmatched struct {
	SessionID string         `json:"session_id"`
	Mode      model.ScanMode `json:"mode"`
	Text      string         `json:"text"`
}

type LookupResolved struct {
	SessionID string         `json:"session_id"`
	Text      string         `json:"text"`
	Product   *model.Product `json:"product"`
}

type CatalogRefreshed struct {
	Products  int       `json:"products"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CatalogRefreshFailed struct {
	Error           string `json:"error"`
	ServingProducts int    `json:"serving_products"`
}

type CatalogImported struct {
	Products int `json:"products"`
}

type DeviceLost struct {
	DeviceID string `json:"device_id"`
	Label    string `json:"label,omitempty"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Package presence tracks which remote capture devices are alive.
//
// Camera gateways announce each device with periodic heartbeats. The Tracker
// keeps the last heartbeat per device in memory; a background reaper marks
// devices lost when their heartbeats stop and evicts them later.
package presence

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aquaflora/stockscan/internal/model"
)

// Entry is one device's live presence state.
type Entry struct {
	DeviceID       string    `json:"device_id"`
	Label          string    `json:"label,omitempty"`
	Gateway        string    `json:"gateway,omitempty"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	IdleSecs       float64   `json:"idle_secs"`
	HeartbeatCount int64     `json:"heartbeat_count"`
	Lost           bool      `json:"lost,omitempty"`
	LostAt         time.Time `json:"lost_at,omitempty"`
}

// Heartbeat is the payload a gateway publishes for each device it serves.
type Heartbeat struct {
	DeviceID string `json:"device_id"`
	Label    string `json:"label,omitempty"`
	Gateway  string `json:"gateway,omitempty"`
	// Offline is set by a gateway shutting down cleanly.
	Offline bool `json:"offline,omitempty"`
}

// ReaperConfig configures the background lost-device reaper.
type ReaperConfig struct {
	// LostAfter is how long a device may go without a heartbeat before it is
	// marked lost. Default: 30 seconds.
	LostAfter time.Duration

	// EvictAfter is how long a lost device stays in the map before removal.
	// Default: 10 minutes.
	EvictAfter time.Duration

	// SweepInterval is how often the reaper scans. Default: 5 seconds.
	SweepInterval time.Duration

	// OnLost is called for each device newly marked lost, outside the lock.
	OnLost func(deviceID, label string)
}

// Tracker maintains an in-memory roster of capture devices.
type Tracker struct {
	mu      sync.RWMutex
	devices map[string]*deviceState
	now     func() time.Time

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type deviceState struct {
	label     string
	gateway   string
	firstSeen time.Time
	lastSeen  time.Time
	count     int64
	lost      bool
	lostAt    time.Time
}

// New creates a new presence tracker.
func New() *Tracker {
	return &Tracker{
		devices: make(map[string]*deviceState),
		now:     time.Now,
	}
}

// RecordHeartbeat updates the presence state for a device. An Offline
// heartbeat removes the device immediately.
func (t *Tracker) RecordHeartbeat(hb Heartbeat) {
	if hb.DeviceID == "" {
		return
	}

	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()

	if hb.Offline {
		delete(t.devices, hb.DeviceID)
		return
	}

	state, ok := t.devices[hb.DeviceID]
	if !ok {
		state = &deviceState{firstSeen: now}
		t.devices[hb.DeviceID] = state
	}
	if state.lost {
		slog.Info("presence: device back", "device", hb.DeviceID)
		state.lost = false
		state.lostAt = time.Time{}
	}

	state.lastSeen = now
	state.count++
	if hb.Label != "" {
		state.label = hb.Label
	}
	if hb.Gateway != "" {
		state.gateway = hb.Gateway
	}
}

// Roster returns all tracked devices, most recently seen first. Devices idle
// longer than staleThreshold are excluded; pass 0 to include everything.
func (t *Tracker) Roster(staleThreshold time.Duration) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	entries := make([]Entry, 0, len(t.devices))
	for id, state := range t.devices {
		idle := now.Sub(state.lastSeen)
		if staleThreshold > 0 && idle > staleThreshold {
			continue
		}
		entries = append(entries, Entry{
			DeviceID:       id,
			Label:          state.label,
			Gateway:        state.gateway,
			FirstSeen:      state.firstSeen,
			LastSeen:       state.lastSeen,
			IdleSecs:       idle.Seconds(),
			HeartbeatCount: state.count,
			Lost:           state.lost,
			LostAt:         state.lostAt,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen.After(entries[j].LastSeen)
	})
	return entries
}

// Devices returns the live (not lost, not stale) devices ordered by ID, so
// that device indexes stay stable between enumerations.
func (t *Tracker) Devices(staleThreshold time.Duration) []model.Device {
	var out []model.Device
	for _, e := range t.Roster(staleThreshold) {
		if e.Lost {
			continue
		}
		out = append(out, model.Device{ID: e.DeviceID, Label: e.Label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StartReaper launches a background goroutine that periodically marks silent
// devices as lost. Call Stop() to shut it down.
func (t *Tracker) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.LostAfter == 0 {
		cfg.LostAfter = 30 * time.Second
	}
	if cfg.EvictAfter == 0 {
		cfg.EvictAfter = 10 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 5 * time.Second
	}

	t.reaperStop = make(chan struct{})
	t.reaperDone = make(chan struct{})

	go t.reapLoop(cfg)
	slog.Info("presence: reaper started",
		"lost_after", cfg.LostAfter,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine.
func (t *Tracker) Stop() {
	if t.reaperStop != nil {
		close(t.reaperStop)
		<-t.reaperDone
		t.reaperStop = nil
		t.reaperDone = nil
	}
}

func (t *Tracker) reapLoop(cfg *ReaperConfig) {
	defer close(t.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.reaperStop:
			return
		case <-ticker.C:
			t.sweep(cfg)
		}
	}
}

func (t *Tracker) sweep(cfg *ReaperConfig) {
	now := t.now()

	type lostDevice struct{ id, label string }
	var newlyLost []lostDevice

	t.mu.Lock()
	for id, state := range t.devices {
		if state.lost {
			if now.Sub(state.lostAt) > cfg.EvictAfter {
				delete(t.devices, id)
			}
			continue
		}
		if now.Sub(state.lastSeen) > cfg.LostAfter {
			state.lost = true
			state.lostAt = now
			newlyLost = append(newlyLost, lostDevice{id: id, label: state.label})
		}
	}
	t.mu.Unlock()

	for _, d := range newlyLost {
		slog.Info("presence: device lost", "device", d.id, "lost_after", cfg.LostAfter)
		if cfg.OnLost != nil {
			cfg.OnLost(d.id, d.label)
		}
	}
}

package scan

import (
	"sort"
	"sync"
	"time"

	"github.com/aquaflora/stockscan/internal/catalog"
	"github.com/aquaflora/stockscan/internal/model"
)

// Tally accumulates physical counts per SKU for one reconciliation session.
// It is safe for concurrent use.
type Tally struct {
	mu      sync.Mutex
	entries map[string]*tallyEntry
	seq     uint64
	now     func() time.Time
}

type tallyEntry struct {
	model.TallyEntry
	// touched orders entries by most recent update; timestamps from devices
	// can tie or go backwards.
	touched uint64
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{entries: make(map[string]*tallyEntry), now: time.Now}
}

// RecordScan resolves text against snap and counts the match. Unmatched
// codes leave the tally untouched.
func (t *Tally) RecordScan(text string, snap *catalog.Snapshot) model.ScanResult {
	return t.recordAt(text, snap, time.Time{})
}

func (t *Tally) recordAt(text string, snap *catalog.Snapshot, at time.Time) model.ScanResult {
	if at.IsZero() {
		at = t.now()
	}
	res := model.ScanResult{Text: text, At: at}

	p, ok := snap.Resolve(text)
	if !ok {
		res.Outcome = model.OutcomeUnmatched
		return res
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	e, exists := t.entries[p.SKU]
	if exists {
		e.Count++
		e.LastScannedAt = at
		e.touched = t.seq
		res.Outcome = model.OutcomeIncremented
	} else {
		e = &tallyEntry{
			TallyEntry: model.TallyEntry{
				SKU:            p.SKU,
				Name:           p.Name,
				SystemStock:    p.Stock,
				Count:          1,
				FirstScannedAt: at,
				LastScannedAt:  at,
			},
			touched: t.seq,
		}
		t.entries[p.SKU] = e
		res.Outcome = model.OutcomeNewEntry
	}

	entry := e.snapshot()
	res.Entry = &entry
	res.Product = &p
	return res
}

// Entries returns a copy of the tally, most recently updated first.
func (t *Tally) Entries() []model.TallyEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := make([]*tallyEntry, 0, len(t.entries))
	for _, e := range t.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].touched > list[j].touched })

	out := make([]model.TallyEntry, len(list))
	for i, e := range list {
		out[i] = e.snapshot()
	}
	return out
}

// Get returns the entry for sku.
func (t *Tally) Get(sku string) (model.TallyEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[sku]
	if !ok {
		return model.TallyEntry{}, false
	}
	return e.snapshot(), true
}

// Variance returns count minus system stock for sku. ok is false when the
// SKU has not been scanned since the last Reset.
func (t *Tally) Variance(sku string) (v int, ok bool) {
	e, ok := t.Get(sku)
	if !ok {
		return 0, false
	}
	return e.Variance, true
}

// Len returns the number of distinct SKUs counted.
func (t *Tally) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Reset discards every entry.
func (t *Tally) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*tallyEntry)
	t.seq = 0
}

func (e *tallyEntry) snapshot() model.TallyEntry {
	out := e.TallyEntry
	out.Variance = Variance(out)
	return out
}

// Variance is the physical count minus the system stock.
func Variance(e model.TallyEntry) int {
	return e.Count - e.SystemStock
}

// VarianceKind classifies a variance for display.
type VarianceKind string

const (
	VarianceMatch    VarianceKind = "match"
	VarianceSurplus  VarianceKind = "surplus"
	VarianceShortage VarianceKind = "shortage"
)

// Classify maps a variance to its kind.
func Classify(v int) VarianceKind {
	switch {
	case v > 0:
		return VarianceSurplus
	case v < 0:
		return VarianceShortage
	default:
		return VarianceMatch
	}
}

// Summary aggregates a tally for reporting.
type Summary struct {
	Entries     int `json:"entries"`
	Units       int `json:"units"`
	Matching    int `json:"matching"`
	Surplus     int `json:"surplus"`
	Shortage    int `json:"shortage"`
	NetVariance int `json:"net_variance"`
}

// Summarize totals entries by variance kind.
func Summarize(entries []model.TallyEntry) Summary {
	s := Summary{Entries: len(entries)}
	for _, e := range entries {
		s.Units += e.Count
		v := Variance(e)
		s.NetVariance += v
		switch Classify(v) {
		case VarianceSurplus:
			s.Surplus++
		case VarianceShortage:
			s.Shortage++
		default:
			s.Matching++
		}
	}
	return s
}

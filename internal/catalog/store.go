package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aquaflora/stockscan/internal/model"
)

// Source fetches the full catalog from a backend.
type Source interface {
	Fetch(ctx context.Context) (*model.Catalog, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (*model.Catalog, error)

// Fetch calls f(ctx).
func (f SourceFunc) Fetch(ctx context.Context) (*model.Catalog, error) { return f(ctx) }

// ErrNoSource is returned by Refresh on a store built without a source.
var ErrNoSource = errors.New("catalog: no source configured")

// RefreshError reports a failed refresh. The store keeps serving the
// snapshot it had before the attempt.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string { return "catalog refresh: " + e.Err.Error() }

func (e *RefreshError) Unwrap() error { return e.Err }

// Store holds the current catalog snapshot and replaces it wholesale on
// refresh. Reads never block on a refresh in progress.
type Store struct {
	source Source
	now    func() time.Time

	current atomic.Pointer[Snapshot]
	// refreshMu serialises Refresh and Replace so snapshots are swapped in
	// the order they were fetched.
	refreshMu sync.Mutex

	// OnRefresh, if set, is called after every refresh attempt with the new
	// snapshot (nil on failure) and the error (nil on success).
	OnRefresh func(snap *Snapshot, err error)
}

// NewStore creates a store reading from src. src may be nil for a store that
// is only ever filled through Replace.
func NewStore(src Source) *Store {
	s := &Store{source: src, now: time.Now}
	s.current.Store(emptySnapshot())
	return s
}

// Current returns the snapshot in effect. Never nil.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Refresh fetches the catalog from the source and swaps it in. On any
// failure, including malformed data, the previous snapshot is kept and a
// *RefreshError is returned.
func (s *Store) Refresh(ctx context.Context) (*Snapshot, error) {
	if s.source == nil {
		return nil, &RefreshError{Err: ErrNoSource}
	}
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	cat, err := s.source.Fetch(ctx)
	if err == nil && cat == nil {
		err = errors.New("source returned no catalog")
	}
	if err != nil {
		return nil, s.fail(err)
	}
	snap, err := NewSnapshot(cat.Products, cat.UpdatedAt, s.now())
	if err != nil {
		return nil, s.fail(err)
	}
	s.current.Store(snap)
	s.notify(snap, nil)
	return snap, nil
}

// Replace installs cat directly, bypassing the source. Used when the catalog
// has just been written (import) and for local sessions fed from a file.
func (s *Store) Replace(cat model.Catalog) (*Snapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	snap, err := NewSnapshot(cat.Products, cat.UpdatedAt, s.now())
	if err != nil {
		return nil, fmt.Errorf("replace catalog: %w", err)
	}
	s.current.Store(snap)
	s.notify(snap, nil)
	return snap, nil
}

func (s *Store) fail(err error) error {
	rerr := &RefreshError{Err: err}
	s.notify(nil, rerr)
	return rerr
}

func (s *Store) notify(snap *Snapshot, err error) {
	if s.OnRefresh != nil {
		s.OnRefresh(snap, err)
	}
}

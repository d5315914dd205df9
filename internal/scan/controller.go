// Package scan turns decoded scanner payloads into a reconciliation tally
// while managing the lifecycle of the capture device.
//
// The Controller is an explicit state machine (Idle, Starting, Scanning,
// Stopping). Every device open gets a new generation number; decode
// callbacks carry the generation they were opened with and are dropped when
// it is no longer current. This is what makes late callbacks from a device
// that has already been closed or switched away from harmless.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aquaflora/stockscan/internal/catalog"
	"github.com/aquaflora/stockscan/internal/decoder"
	"github.com/aquaflora/stockscan/internal/events"
	"github.com/aquaflora/stockscan/internal/idgen"
	"github.com/aquaflora/stockscan/internal/model"
)

// CatalogView supplies the catalog snapshot a decode is resolved against.
type CatalogView interface {
	Current() *catalog.Snapshot
}

// Notifier receives controller events (see the events.Topic* constants).
// It is called outside the controller lock, possibly from adapter goroutines.
type Notifier func(topic string, event any)

// Options configures a Controller. Zero values take defaults.
type Options struct {
	// OpenTimeout bounds device enumeration plus open. 0 means no timeout.
	OpenTimeout time.Duration
	Notify      Notifier
	Logger      *slog.Logger
	NewID       func() (string, error)
	Now         func() time.Time
}

// Stop reasons reported in SessionStopped events.
const (
	ReasonRequested = "requested"
	ReasonRestart   = "restart"
	ReasonLookup    = "lookup_complete"
	ReasonCancelled = "cancelled"
)

// Controller owns the scan session.
type Controller struct {
	adapter     decoder.Adapter
	catalog     CatalogView
	notify      Notifier
	logger      *slog.Logger
	newID       func() (string, error)
	now         func() time.Time
	openTimeout time.Duration

	// transMu serialises device transitions (open, close, switch) so no two
	// capture handles are ever open at once. It is never taken by decode
	// callbacks.
	transMu sync.Mutex

	mu         sync.Mutex
	state      model.SessionState
	mode       model.ScanMode
	gen        uint64
	session    *session
	cancelOpen context.CancelFunc
	lastResult *model.ScanResult
	lastErr    string

	tally *Tally
}

// session is the per-start value; it is discarded on stop.
type session struct {
	id           string
	mode         model.ScanMode
	devices      []model.Device
	active       int
	startedAt    time.Time
	decodeErrors int64
	// lookupDone is set when a single lookup has consumed its code.
	lookupDone bool
}

func (s *session) activeDevice() model.Device {
	if s.active < 0 || s.active >= len(s.devices) {
		return model.Device{}
	}
	return s.devices[s.active]
}

// NewController creates an idle controller.
func NewController(adapter decoder.Adapter, cat CatalogView, opts Options) *Controller {
	c := &Controller{
		adapter:     adapter,
		catalog:     cat,
		notify:      opts.Notify,
		logger:      opts.Logger,
		newID:       opts.NewID,
		now:         opts.Now,
		openTimeout: opts.OpenTimeout,
		state:       model.StateIdle,
		tally:       NewTally(),
	}
	if c.notify == nil {
		c.notify = func(string, any) {}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.newID == nil {
		c.newID = idgen.Session
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.tally.now = c.now
	return c
}

// Start begins a session in mode. Starting again in the mode already running
// is a no-op; starting in a different mode restarts the session. On device
// failure a *DeviceError is returned and the controller is Idle again.
func (c *Controller) Start(ctx context.Context, mode model.ScanMode) error {
	if !mode.IsValid() {
		return fmt.Errorf("unknown scan mode %q", mode)
	}

	c.transMu.Lock()
	defer c.transMu.Unlock()

	c.mu.Lock()
	if c.state == model.StateScanning && c.mode == mode && !c.session.lookupDone {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.stopLocked(ctx, nil, ReasonRestart); err != nil {
		c.logger.Warn("scan: closing previous session", "err", err)
	}

	id, err := c.newID()
	if err != nil {
		return err
	}

	openCtx, cancel := c.openContext(ctx)
	defer cancel()

	c.mu.Lock()
	c.gen++
	gen := c.gen
	sess := &session{id: id, mode: mode, active: -1, startedAt: c.now()}
	c.session = sess
	c.state = model.StateStarting
	c.mode = mode
	c.lastErr = ""
	c.lastResult = nil
	c.cancelOpen = cancel
	if mode == model.ModeReconciliation {
		c.tally.Reset()
	}
	c.mu.Unlock()

	devices, err := c.adapter.ListDevices(openCtx)
	if c.cancelled(gen) {
		return c.abandon(ctx, sess, false)
	}
	if err != nil {
		return c.fail(sess, &DeviceError{Kind: KindEnumeration, Cause: err})
	}
	if len(devices) == 0 {
		return c.fail(sess, &DeviceError{Kind: KindEnumeration, Cause: ErrNoDevices})
	}

	idx := SelectDevice(devices)
	c.mu.Lock()
	sess.devices = devices
	sess.active = idx
	c.mu.Unlock()

	dev := devices[idx]
	err = c.adapter.Open(openCtx, dev.ID, c.decodeHandler(gen), c.decodeErrorHandler(gen))
	if c.cancelled(gen) {
		return c.abandon(ctx, sess, err == nil)
	}
	if err != nil {
		return c.fail(sess, &DeviceError{Kind: KindOpen, DeviceID: dev.ID, Cause: err})
	}

	c.mu.Lock()
	c.state = model.StateScanning
	c.cancelOpen = nil
	c.mu.Unlock()

	c.logger.Info("scan: session started", "session", id, "mode", mode, "device", dev.ID, "devices", len(devices))
	c.notify(events.TopicSessionStarted, events.SessionStarted{
		SessionID: id,
		Mode:      mode,
		DeviceID:  dev.ID,
		Devices:   devices,
	})
	return nil
}

// Stop ends the session. It is safe to call in any state and any number of
// times; the device is closed at most once per open. A Stop that arrives
// while a device is still being opened cancels the open, and the device is
// closed as soon as the open returns.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == model.StateStarting {
		c.gen++
		c.state = model.StateStopping
		if c.cancelOpen != nil {
			c.cancelOpen()
		}
	}
	c.mu.Unlock()

	c.transMu.Lock()
	defer c.transMu.Unlock()
	return c.stopLocked(ctx, nil, ReasonRequested)
}

// SwitchDevice moves the session to the next device in the list, wrapping
// around. It does nothing unless a session is Scanning with at least two
// devices. The current device is fully closed before the next one is opened.
func (c *Controller) SwitchDevice(ctx context.Context) error {
	c.transMu.Lock()
	defer c.transMu.Unlock()

	c.mu.Lock()
	sess := c.session
	if c.state != model.StateScanning || sess == nil || len(sess.devices) < 2 {
		c.mu.Unlock()
		return nil
	}
	from := sess.activeDevice()
	next := (sess.active + 1) % len(sess.devices)
	to := sess.devices[next]

	openCtx, cancel := c.openContext(ctx)
	defer cancel()

	c.gen++
	gen := c.gen
	c.state = model.StateStarting
	c.cancelOpen = cancel
	c.mu.Unlock()

	if err := c.adapter.Close(ctx); err != nil {
		c.logger.Warn("scan: closing device for switch", "device", from.ID, "err", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return c.abandon(ctx, sess, false)
	}
	sess.active = next
	c.mu.Unlock()

	err := c.adapter.Open(openCtx, to.ID, c.decodeHandler(gen), c.decodeErrorHandler(gen))
	if c.cancelled(gen) {
		return c.abandon(ctx, sess, err == nil)
	}
	if err != nil {
		return c.fail(sess, &DeviceError{Kind: KindOpen, DeviceID: to.ID, Cause: err})
	}

	c.mu.Lock()
	c.state = model.StateScanning
	c.cancelOpen = nil
	c.mu.Unlock()

	c.logger.Info("scan: device switched", "session", sess.id, "from", from.ID, "to", to.ID)
	c.notify(events.TopicSessionDeviceSwitched, events.SessionDeviceSwitched{
		SessionID: sess.id,
		From:      from.ID,
		To:        to.ID,
	})
	return nil
}

// Status returns a point-in-time view of the controller.
func (c *Controller) Status() model.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := model.SessionStatus{
		State:      c.state,
		Generation: c.gen,
		LastError:  c.lastErr,
		EntryCount: c.tally.Len(),
	}
	if c.lastResult != nil {
		r := *c.lastResult
		st.LastResult = &r
	}
	if s := c.session; s != nil {
		st.ID = s.id
		st.Mode = s.mode
		st.ActiveDevice = s.activeDevice().ID
		st.Devices = append([]model.Device(nil), s.devices...)
		started := s.startedAt
		st.StartedAt = &started
		st.DecodeErrors = s.decodeErrors
	}
	return st
}

// Tally returns the current counts, most recently updated first. The tally
// survives Stop and is reset when the next reconciliation session starts.
func (c *Controller) Tally() []model.TallyEntry {
	return c.tally.Entries()
}

// TallyEntry returns the count for one SKU.
func (c *Controller) TallyEntry(sku string) (model.TallyEntry, bool) {
	return c.tally.Get(sku)
}

// Variance returns count minus system stock for sku; see Tally.Variance.
func (c *Controller) Variance(sku string) (int, bool) {
	return c.tally.Variance(sku)
}

// LastResult returns the outcome of the most recent decode, if any.
func (c *Controller) LastResult() (model.ScanResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastResult == nil {
		return model.ScanResult{}, false
	}
	return *c.lastResult, true
}

// Devices enumerates the adapter's devices without touching the session.
func (c *Controller) Devices(ctx context.Context) ([]model.Device, error) {
	return c.adapter.ListDevices(ctx)
}

// stopLocked closes the device of target (or of the current session when
// target is nil). Caller holds transMu.
func (c *Controller) stopLocked(ctx context.Context, target *session, reason string) error {
	c.mu.Lock()
	sess := c.session
	if sess == nil || (target != nil && sess != target) ||
		(c.state != model.StateScanning && c.state != model.StateStopping) {
		c.mu.Unlock()
		return nil
	}
	c.state = model.StateStopping
	c.gen++
	c.mu.Unlock()

	err := c.adapter.Close(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.state = model.StateIdle
	c.session = nil
	c.mu.Unlock()

	c.logger.Info("scan: session stopped", "session", sess.id, "reason", reason)
	c.notify(events.TopicSessionStopped, events.SessionStopped{
		SessionID: sess.id,
		Mode:      sess.mode,
		Reason:    reason,
		Entries:   c.tally.Len(),
	})
	if err != nil {
		return fmt.Errorf("close device: %w", err)
	}
	return nil
}

// cancelled reports whether gen has been superseded, i.e. Stop was called
// while the device was being acquired.
func (c *Controller) cancelled(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen != gen
}

// abandon finishes a start or switch that Stop cancelled. opened says the
// adapter reported a successful open that now has to be undone. Caller holds
// transMu.
func (c *Controller) abandon(ctx context.Context, sess *session, opened bool) error {
	if opened {
		if err := c.adapter.Close(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("scan: closing cancelled device", "session", sess.id, "err", err)
		}
	}
	c.mu.Lock()
	if c.session == sess {
		c.session = nil
		c.state = model.StateIdle
		c.cancelOpen = nil
	}
	c.mu.Unlock()

	c.notify(events.TopicSessionStopped, events.SessionStopped{
		SessionID: sess.id,
		Mode:      sess.mode,
		Reason:    ReasonCancelled,
		Entries:   c.tally.Len(),
	})
	return ErrSessionCancelled
}

// fail returns the controller to Idle after a device error. Caller holds
// transMu.
func (c *Controller) fail(sess *session, derr *DeviceError) error {
	c.mu.Lock()
	if c.session == sess {
		c.session = nil
		c.state = model.StateIdle
		c.cancelOpen = nil
		c.gen++
	}
	c.lastErr = derr.Error()
	c.mu.Unlock()

	c.logger.Warn("scan: device error", "session", sess.id, "kind", derr.Kind, "device", derr.DeviceID, "err", derr.Cause)
	c.notify(events.TopicSessionFailed, events.SessionFailed{
		SessionID: sess.id,
		Mode:      sess.mode,
		Kind:      string(derr.Kind),
		DeviceID:  derr.DeviceID,
		Error:     derr.Error(),
		Entries:   c.tally.Len(),
	})
	return derr
}

func (c *Controller) openContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.openTimeout > 0 {
		return context.WithTimeout(ctx, c.openTimeout)
	}
	return context.WithCancel(ctx)
}

// live returns the session a callback of generation gen should be routed
// to, or nil if the callback is stale. Starting is accepted because a device
// may deliver before Open has returned; a Stop during Starting bumps the
// generation, so those callbacks are still rejected. Caller holds mu.
func (c *Controller) live(gen uint64) *session {
	if c.gen != gen || c.session == nil || c.session.lookupDone {
		return nil
	}
	if c.state != model.StateScanning && c.state != model.StateStarting {
		return nil
	}
	return c.session
}

func (c *Controller) decodeHandler(gen uint64) decoder.DecodeFunc {
	return func(text string, capturedAt time.Time) {
		c.mu.Lock()
		sess := c.live(gen)
		if sess == nil {
			c.mu.Unlock()
			c.logger.Debug("scan: dropped stale decode", "generation", gen)
			return
		}

		snap := c.catalog.Current()
		var res model.ScanResult
		if sess.mode == model.ModeSingleLookup {
			res = lookup(text, snap, capturedAt, c.now)
			// The first code ends a lookup; later frames are dropped.
			sess.lookupDone = true
		} else {
			res = c.tally.recordAt(text, snap, capturedAt)
		}
		c.lastResult = &res
		c.mu.Unlock()

		c.emitResult(sess, res)

		if sess.mode == model.ModeSingleLookup {
			go c.finishLookup(sess)
		}
	}
}

func (c *Controller) decodeErrorHandler(gen uint64) decoder.DecodeErrorFunc {
	return func(err error) {
		c.mu.Lock()
		if sess := c.live(gen); sess != nil {
			sess.decodeErrors++
		}
		c.mu.Unlock()
	}
}

// finishLookup releases the device after a single lookup resolved. It does
// nothing if the session has already been stopped or replaced.
func (c *Controller) finishLookup(sess *session) {
	c.transMu.Lock()
	defer c.transMu.Unlock()
	if err := c.stopLocked(context.Background(), sess, ReasonLookup); err != nil {
		c.logger.Warn("scan: closing device after lookup", "session", sess.id, "err", err)
	}
}

func (c *Controller) emitResult(sess *session, res model.ScanResult) {
	switch {
	case res.Outcome == model.OutcomeUnmatched:
		c.notify(events.TopicScanUnmatched, events.ScanUnmatched{
			SessionID: sess.id,
			Mode:      sess.mode,
			Text:      res.Text,
		})
	case res.Outcome == model.OutcomeFound:
		c.notify(events.TopicLookupResolved, events.LookupResolved{
			SessionID: sess.id,
			Text:      res.Text,
			Product:   res.Product,
		})
	default:
		c.notify(events.TopicScanRecorded, events.ScanRecorded{
			SessionID: sess.id,
			Outcome:   res.Outcome,
			Entry:     res.Entry,
		})
	}
}

// lookup resolves a code without tallying it.
func lookup(text string, snap *catalog.Snapshot, at time.Time, now func() time.Time) model.ScanResult {
	if at.IsZero() {
		at = now()
	}
	res := model.ScanResult{Text: text, At: at}
	p, ok := snap.Resolve(text)
	if !ok {
		res.Outcome = model.OutcomeUnmatched
		return res
	}
	res.Outcome = model.OutcomeFound
	res.Product = &p
	return res
}

// IsDeviceError reports whether err is a *DeviceError.
func IsDeviceError(err error) bool {
	var derr *DeviceError
	return errors.As(err, &derr)
}

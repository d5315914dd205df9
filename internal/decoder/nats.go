package decoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/presence"
)

// Subjects used by remote camera gateways. <id> is the device ID.
const (
	SubjectHeartbeats = "stock.scanner.*.heartbeat"
	subjectPrefix     = "stock.scanner."
)

// HeartbeatSubject returns the subject a gateway announces deviceID on.
func HeartbeatSubject(deviceID string) string { return subjectPrefix + deviceID + ".heartbeat" }

// OpenSubject is the request subject that asks a gateway to start capture.
func OpenSubject(deviceID string) string { return subjectPrefix + deviceID + ".open" }

// CloseSubject tells a gateway to stop capture.
func CloseSubject(deviceID string) string { return subjectPrefix + deviceID + ".close" }

// FramesSubject carries decode results while the device is open.
func FramesSubject(deviceID string) string { return subjectPrefix + deviceID + ".frames" }

// Frame is one decode result published by a gateway. A non-empty Error marks
// a failed decode.
type Frame struct {
	Text       string    `json:"text,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	Error      string    `json:"error,omitempty"`
}

// OpenReply is the gateway's answer to an open request.
type OpenReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NATSAdapter drives camera gateways over NATS. The device list is the set of
// devices that have sent a heartbeat within StaleAfter.
type NATSAdapter struct {
	conn       *nats.Conn
	tracker    *presence.Tracker
	staleAfter time.Duration

	hbSub *nats.Subscription

	mu     sync.Mutex
	openID string
	frames *nats.Subscription
}

// NewNATSAdapter subscribes to gateway heartbeats and feeds them to tracker.
func NewNATSAdapter(nc *nats.Conn, tracker *presence.Tracker, staleAfter time.Duration) (*NATSAdapter, error) {
	a := &NATSAdapter{conn: nc, tracker: tracker, staleAfter: staleAfter}
	sub, err := nc.Subscribe(SubjectHeartbeats, a.handleHeartbeat)
	if err != nil {
		return nil, fmt.Errorf("subscribing to heartbeats: %w", err)
	}
	if err := nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flushing heartbeat subscription: %w", err)
	}
	a.hbSub = sub
	return a, nil
}

func (a *NATSAdapter) handleHeartbeat(msg *nats.Msg) {
	var hb presence.Heartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		slog.Debug("decoder: bad heartbeat", "subject", msg.Subject, "err", err)
		return
	}
	if hb.DeviceID == "" {
		hb.DeviceID = deviceFromSubject(msg.Subject)
	}
	a.tracker.RecordHeartbeat(hb)
}

// ListDevices returns the live devices in stable ID order.
func (a *NATSAdapter) ListDevices(ctx context.Context) ([]model.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !a.conn.IsConnected() {
		return nil, fmt.Errorf("list devices: %w", nats.ErrConnectionClosed)
	}
	return a.tracker.Devices(a.staleAfter), nil
}

// Open subscribes to the device's frames and asks its gateway to start
// capture. The subscription is made first so no early frame is missed.
func (a *NATSAdapter) Open(ctx context.Context, deviceID string, onDecode DecodeFunc, onDecodeError DecodeErrorFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.openID != "" {
		return ErrBusy
	}

	sub, err := a.conn.Subscribe(FramesSubject(deviceID), func(msg *nats.Msg) {
		var f Frame
		if err := json.Unmarshal(msg.Data, &f); err != nil {
			onDecodeError(fmt.Errorf("bad frame: %w", err))
			return
		}
		if f.Error != "" {
			onDecodeError(errors.New(f.Error))
			return
		}
		if f.Text == "" {
			onDecodeError(ErrEmptyFrame)
			return
		}
		onDecode(f.Text, f.CapturedAt)
	})
	if err != nil {
		return fmt.Errorf("subscribing to frames: %w", err)
	}

	reply, err := a.conn.RequestWithContext(ctx, OpenSubject(deviceID), nil)
	if err != nil {
		_ = sub.Unsubscribe()
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
		}
		a.releaseGateway(deviceID)
		return fmt.Errorf("open %s: %w", deviceID, err)
	}
	var r OpenReply
	if err := json.Unmarshal(reply.Data, &r); err != nil {
		_ = sub.Unsubscribe()
		a.releaseGateway(deviceID)
		return fmt.Errorf("open %s: bad reply: %w", deviceID, err)
	}
	if !r.OK {
		_ = sub.Unsubscribe()
		a.releaseGateway(deviceID)
		return fmt.Errorf("open %s: %s", deviceID, r.Error)
	}

	a.openID = deviceID
	a.frames = sub
	return nil
}

// releaseGateway tells a gateway to stop capture after an open that did not
// end in an OK reply. The gateway may have started capture after the request
// timed out on this side.
func (a *NATSAdapter) releaseGateway(deviceID string) {
	if err := a.conn.Publish(CloseSubject(deviceID), nil); err != nil {
		slog.Debug("decoder: release after failed open", "device", deviceID, "err", err)
		return
	}
	_ = a.conn.Flush()
}

// Close stops frame delivery and tells the gateway to release the device.
func (a *NATSAdapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.openID == "" {
		return nil
	}
	id := a.openID
	a.openID = ""
	sub := a.frames
	a.frames = nil

	var errs []error
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		errs = append(errs, fmt.Errorf("unsubscribe frames: %w", err))
	}
	if err := a.conn.Publish(CloseSubject(id), nil); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		errs = append(errs, fmt.Errorf("close %s: %w", id, err))
	}
	return errors.Join(errs...)
}

// Shutdown closes any open device and stops listening for heartbeats.
func (a *NATSAdapter) Shutdown(ctx context.Context) error {
	err := a.Close(ctx)
	if a.hbSub != nil {
		_ = a.hbSub.Unsubscribe()
	}
	return err
}

// deviceFromSubject extracts <id> from stock.scanner.<id>.heartbeat.
func deviceFromSubject(subject string) string {
	const suffix = ".heartbeat"
	if len(subject) <= len(subjectPrefix)+len(suffix) {
		return ""
	}
	return subject[len(subjectPrefix) : len(subject)-len(suffix)]
}

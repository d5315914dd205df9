package decoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aquaflora/stockscan/internal/model"
)

// LineDevice is a line-oriented input, such as a keyboard-wedge scanner on
// stdin or a serial HID scanner exposed as a character device.
type LineDevice struct {
	ID     string
	Label  string
	Reader io.Reader
}

// LineAdapter turns line-oriented inputs into capture devices: each line is
// one decode and a blank line is a decode error. Readers are consumed by a
// single goroutine per device, started on first Open; lines read while the
// device is closed are dropped.
type LineAdapter struct {
	devices []LineDevice
	now     func() time.Time

	mu       sync.Mutex
	openID   string
	onDecode DecodeFunc
	onError  DecodeErrorFunc
	started  map[string]bool
	pending  int
	done     chan struct{}
	doneOnce sync.Once
}

// NewLineAdapter creates an adapter over the given devices.
func NewLineAdapter(devices ...LineDevice) *LineAdapter {
	return &LineAdapter{
		devices: devices,
		now:     time.Now,
		started: make(map[string]bool),
		done:    make(chan struct{}),
	}
}

// Done is closed when the last running reader reaches EOF or fails. For a
// single stdin device that is the end of input.
func (a *LineAdapter) Done() <-chan struct{} {
	return a.done
}

// ListDevices returns the configured devices in order.
func (a *LineAdapter) ListDevices(ctx context.Context) ([]model.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.Device, len(a.devices))
	for i, d := range a.devices {
		out[i] = model.Device{ID: d.ID, Label: d.Label}
	}
	return out, nil
}

// Open attaches the callbacks to deviceID, starting its reader if needed.
func (a *LineAdapter) Open(ctx context.Context, deviceID string, onDecode DecodeFunc, onDecodeError DecodeErrorFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dev, ok := a.lookup(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.openID != "" {
		return ErrBusy
	}
	a.openID = deviceID
	a.onDecode = onDecode
	a.onError = onDecodeError
	if !a.started[deviceID] {
		a.started[deviceID] = true
		a.pending++
		go a.read(dev)
	}
	return nil
}

// Close detaches the open device, if any.
func (a *LineAdapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.openID = ""
	a.onDecode = nil
	a.onError = nil
	return nil
}

func (a *LineAdapter) lookup(id string) (LineDevice, bool) {
	for _, d := range a.devices {
		if d.ID == id {
			return d, true
		}
	}
	return LineDevice{}, false
}

func (a *LineAdapter) read(dev LineDevice) {
	defer a.finished()

	sc := bufio.NewScanner(dev.Reader)
	for sc.Scan() {
		line := sc.Text()
		onDecode, onError := a.handlers(dev.ID)
		if strings.TrimSpace(line) == "" {
			if onError != nil {
				onError(ErrEmptyFrame)
			}
			continue
		}
		if onDecode != nil {
			onDecode(line, a.now())
		}
	}
	if err := sc.Err(); err != nil {
		if _, onError := a.handlers(dev.ID); onError != nil {
			onError(fmt.Errorf("read %s: %w", dev.ID, err))
		}
	}
}

// handlers returns the callbacks if id is the open device. Callbacks are
// invoked outside the adapter lock.
func (a *LineAdapter) handlers(id string) (DecodeFunc, DecodeErrorFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.openID != id {
		return nil, nil
	}
	return a.onDecode, a.onError
}

func (a *LineAdapter) finished() {
	a.mu.Lock()
	a.pending--
	last := a.pending == 0
	a.mu.Unlock()
	if last {
		a.doneOnce.Do(func() { close(a.done) })
	}
}

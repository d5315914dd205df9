// Package decoder defines the contract between the scan controller and a
// capture device that turns frames into decoded text.
//
// Implementations deliver callbacks on their own goroutines and may keep
// delivering for a short while after Close returns; the controller is
// responsible for discarding stale callbacks.
package decoder

import (
	"context"
	"errors"
	"time"

	"github.com/aquaflora/stockscan/internal/model"
)

// DecodeFunc receives one successfully decoded payload.
type DecodeFunc func(text string, capturedAt time.Time)

// DecodeErrorFunc receives a frame that failed to decode. These are frequent
// and expected (no code in view) and carry no diagnostic weight.
type DecodeErrorFunc func(err error)

// Adapter is a source of capture devices.
type Adapter interface {
	// ListDevices enumerates the devices currently available.
	ListDevices(ctx context.Context) ([]model.Device, error)
	// Open starts capture on deviceID. Only one device may be open at a time.
	Open(ctx context.Context, deviceID string, onDecode DecodeFunc, onDecodeError DecodeErrorFunc) error
	// Close stops capture. It is safe to call when nothing is open.
	Close(ctx context.Context) error
}

var (
	// ErrUnknownDevice is returned by Open for an ID not in the device list.
	ErrUnknownDevice = errors.New("decoder: unknown device")
	// ErrBusy is returned by Open while another device is still open.
	ErrBusy = errors.New("decoder: a device is already open")
	// ErrEmptyFrame is the decode error for a frame with no payload.
	ErrEmptyFrame = errors.New("decoder: empty frame")
)

package scan

import (
	"errors"
	"fmt"
)

// DeviceErrorKind says which step of acquiring a device failed.
type DeviceErrorKind string

const (
	KindEnumeration DeviceErrorKind = "device_enumeration"
	KindOpen        DeviceErrorKind = "device_open"
)

var (
	// ErrDeviceEnumeration matches any *DeviceError of kind KindEnumeration.
	ErrDeviceEnumeration = errors.New("could not enumerate capture devices")
	// ErrDeviceOpen matches any *DeviceError of kind KindOpen.
	ErrDeviceOpen = errors.New("could not open capture device")
	// ErrNoDevices is the cause when enumeration succeeds but finds nothing.
	ErrNoDevices = errors.New("no capture devices found")
	// ErrSessionCancelled is returned by Start or SwitchDevice when Stop
	// arrives while a device is being opened.
	ErrSessionCancelled = errors.New("session stopped while opening device")
)

// DeviceError reports a failure to acquire a capture device. The session is
// back to Idle when one is returned, so the operator can simply retry.
type DeviceError struct {
	Kind     DeviceErrorKind
	DeviceID string
	Cause    error
}

func (e *DeviceError) Error() string {
	var base string
	switch e.Kind {
	case KindEnumeration:
		base = ErrDeviceEnumeration.Error()
	default:
		base = ErrDeviceOpen.Error()
	}
	if e.DeviceID != "" {
		base = fmt.Sprintf("%s %q", base, e.DeviceID)
	}
	if e.Cause != nil {
		return base + ": " + e.Cause.Error()
	}
	return base
}

func (e *DeviceError) Unwrap() error { return e.Cause }

// Is matches the kind sentinels, so errors.Is(err, ErrDeviceOpen) works on a
// wrapped *DeviceError.
func (e *DeviceError) Is(target error) bool {
	switch target {
	case ErrDeviceEnumeration:
		return e.Kind == KindEnumeration
	case ErrDeviceOpen:
		return e.Kind == KindOpen
	}
	return false
}

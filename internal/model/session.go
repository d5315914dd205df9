package model

import "time"

// SessionState is the lifecycle state of a scan session.
type SessionState string

const (
	StateIdle     SessionState = "idle"
	StateStarting SessionState = "starting"
	StateScanning SessionState = "scanning"
	StateStopping SessionState = "stopping"
	// StateFailed is part of the wire vocabulary for clients. The controller
	// reports device failures as Idle with LastError set so the operator can
	// retry immediately.
	StateFailed SessionState = "failed"
)

// String returns the string representation of the state.
func (s SessionState) String() string {
	return string(s)
}

// IsValid checks whether the state is a known value.
func (s SessionState) IsValid() bool {
	switch s {
	case StateIdle, StateStarting, StateScanning, StateStopping, StateFailed:
		return true
	}
	return false
}

// Active reports whether the state holds (or is acquiring) a capture device.
func (s SessionState) Active() bool {
	return s == StateStarting || s == StateScanning
}

// ScanMode decides where decoded codes are routed.
type ScanMode string

const (
	ModeSingleLookup   ScanMode = "lookup"
	ModeReconciliation ScanMode = "reconcile"
)

// String returns the string representation of the mode.
func (m ScanMode) String() string {
	return string(m)
}

// IsValid checks whether the mode is a known value.
func (m ScanMode) IsValid() bool {
	switch m {
	case ModeSingleLookup, ModeReconciliation:
		return true
	}
	return false
}

// DecodeEvent is one successful decode delivered by a capture device.
// Generation identifies the device-open lifetime that produced it.
type DecodeEvent struct {
	Text       string    `json:"text"`
	CapturedAt time.Time `json:"captured_at"`
	DeviceID   string    `json:"device_id,omitempty"`
	Generation uint64    `json:"generation"`
}

// TallyEntry is the physical count accumulated for one product in a session.
// Name and SystemStock are copied from the catalog at first match and do not
// follow later catalog refreshes.
type TallyEntry struct {
	SKU            string    `json:"sku"`
	Name           string    `json:"name"`
	SystemStock    int       `json:"system_stock"`
	Count          int       `json:"count"`
	Variance       int       `json:"variance"`
	FirstScannedAt time.Time `json:"first_scanned_at"`
	LastScannedAt  time.Time `json:"last_scanned_at"`
}

// MatchOutcome classifies the result of feeding one code into a session.
type MatchOutcome string

const (
	OutcomeNewEntry    MatchOutcome = "new_entry"
	OutcomeIncremented MatchOutcome = "incremented"
	OutcomeUnmatched   MatchOutcome = "unmatched"
	// OutcomeFound is used by single-lookup sessions, which never tally.
	OutcomeFound MatchOutcome = "found"
)

// String returns the string representation of the outcome.
func (o MatchOutcome) String() string {
	return string(o)
}

// ScanResult describes what happened to one decoded code, so callers can
// render feedback without re-reading the tally.
type ScanResult struct {
	Outcome MatchOutcome `json:"outcome"`
	Text    string       `json:"text"`
	Product *Product     `json:"product,omitempty"`
	Entry   *TallyEntry  `json:"entry,omitempty"`
	At      time.Time    `json:"at"`
}

// Matched reports whether the code resolved to a catalog product.
func (r ScanResult) Matched() bool {
	return r.Outcome != OutcomeUnmatched
}

// SessionStatus is a point-in-time view of the scan controller.
type SessionStatus struct {
	ID           string       `json:"id,omitempty"`
	State        SessionState `json:"state"`
	Mode         ScanMode     `json:"mode,omitempty"`
	ActiveDevice string       `json:"active_device,omitempty"`
	Devices      []Device     `json:"devices,omitempty"`
	Generation   uint64       `json:"generation"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	LastResult   *ScanResult  `json:"last_result,omitempty"`
	LastError    string       `json:"last_error,omitempty"`
	DecodeErrors int64        `json:"decode_errors"`
	EntryCount   int          `json:"entry_count"`
}

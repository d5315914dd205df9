package model

// Device is a capture device as enumerated by a decoder adapter. Label is a
// best-effort human-readable name and is not authoritative.
type Device struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

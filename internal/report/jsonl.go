package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aquaflora/stockscan/internal/scan"
)

// header is the first JSONL record written by WriteJSONL.
type header struct {
	Version    string       `json:"version"`
	Type       string       `json:"type"`
	SessionID  string       `json:"session_id,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
	EntryCount int          `json:"entry_count"`
	Summary    scan.Summary `json:"summary"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WriteJSONL writes a header line followed by one "entry" record per tally
// entry, in tally order.
func WriteJSONL(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		SessionID:  r.SessionID,
		Timestamp:  r.GeneratedAt,
		EntryCount: len(r.Entries),
		Summary:    r.Summary,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, e := range r.Entries {
		if err := enc.Encode(record{Type: "entry", Data: e}); err != nil {
			return fmt.Errorf("encode entry %s: %w", e.SKU, err)
		}
	}
	return nil
}

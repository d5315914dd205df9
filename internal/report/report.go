// Package report renders a reconciliation tally as an XLSX workbook or a
// JSONL stream and archives the result to one or more destinations.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/scan"
)

// Format is a report encoding.
type Format string

const (
	FormatXLSX  Format = "xlsx"
	FormatJSONL Format = "jsonl"
)

// ParseFormat accepts "xlsx" or "jsonl", ignoring case. Empty means XLSX.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatXLSX, nil
	case FormatXLSX, FormatJSONL:
		return f, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// ContentType is the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatJSONL {
		return "application/x-ndjson"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Report is the tally of one reconciliation session at a point in time.
type Report struct {
	SessionID   string
	Mode        model.ScanMode
	GeneratedAt time.Time
	Entries     []model.TallyEntry
	Summary     scan.Summary
}

// New builds a report over entries, computing the summary.
func New(sessionID string, entries []model.TallyEntry, at time.Time) Report {
	return Report{
		SessionID:   sessionID,
		Mode:        model.ModeReconciliation,
		GeneratedAt: at.UTC(),
		Entries:     entries,
		Summary:     scan.Summarize(entries),
	}
}

// FileName is the archive name for the report, e.g.
// "tally-ss-V1StGXR8-20260301T120000Z.xlsx".
func (r Report) FileName(f Format) string {
	ts := r.GeneratedAt.UTC().Format("20060102T150405Z")
	if r.SessionID == "" {
		return fmt.Sprintf("tally-%s.%s", ts, f)
	}
	return fmt.Sprintf("tally-%s-%s.%s", r.SessionID, ts, f)
}

// Write encodes r to w in the given format.
func Write(w io.Writer, r Report, f Format) error {
	switch f {
	case FormatXLSX:
		return WriteXLSX(w, r)
	case FormatJSONL:
		return WriteJSONL(w, r)
	}
	return fmt.Errorf("unknown report format %q", f)
}

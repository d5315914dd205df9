package report

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/aquaflora/stockscan/internal/model"
)

var reportTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleReport() Report {
	entries := []model.TallyEntry{
		{SKU: "A1", Name: "Filtro X", SystemStock: 5, Count: 3, Variance: -2, FirstScannedAt: reportTime, LastScannedAt: reportTime.Add(time.Minute)},
		{SKU: "B2", Name: "Bomba Y", SystemStock: 0, Count: 1, Variance: 1, FirstScannedAt: reportTime, LastScannedAt: reportTime},
		{SKU: "C3", Name: "Cabo Z", SystemStock: 2, Count: 2, Variance: 0, FirstScannedAt: reportTime, LastScannedAt: reportTime},
	}
	return New("ss-abc", entries, reportTime)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatXLSX, false},
		{"xlsx", FormatXLSX, false},
		{" JSONL ", FormatJSONL, false},
		{"csv", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_Summary(t *testing.T) {
	r := sampleReport()
	s := r.Summary
	if s.Entries != 3 || s.Units != 6 {
		t.Errorf("entries/units = %d/%d, want 3/6", s.Entries, s.Units)
	}
	if s.Matching != 1 || s.Surplus != 1 || s.Shortage != 1 {
		t.Errorf("summary = %+v", s)
	}
	if s.NetVariance != -1 {
		t.Errorf("NetVariance = %d, want -1", s.NetVariance)
	}
	if r.Mode != model.ModeReconciliation {
		t.Errorf("Mode = %q", r.Mode)
	}
}

func TestFileName(t *testing.T) {
	r := sampleReport()
	if got := r.FileName(FormatXLSX); got != "tally-ss-abc-20260301T120000Z.xlsx" {
		t.Errorf("FileName = %q", got)
	}
	r.SessionID = ""
	if got := r.FileName(FormatJSONL); got != "tally-20260301T120000Z.jsonl" {
		t.Errorf("FileName without session = %q", got)
	}
}

func TestWriteJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleReport(), FormatJSONL); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var lines []string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4 (header + 3 entries)", len(lines))
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("decoding header: %v", err)
	}
	if h.Type != "header" || h.EntryCount != 3 || h.SessionID != "ss-abc" {
		t.Errorf("header = %+v", h)
	}
	if h.Summary.NetVariance != -1 {
		t.Errorf("header summary = %+v", h.Summary)
	}

	var rec struct {
		Type string           `json:"type"`
		Data model.TallyEntry `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("decoding entry: %v", err)
	}
	if rec.Type != "entry" || rec.Data.SKU != "A1" || rec.Data.Variance != -2 {
		t.Errorf("first entry = %+v", rec)
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleReport(), FormatXLSX); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(tallySheet)
	if err != nil {
		t.Fatalf("GetRows(Tally) error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}
	if rows[0][0] != "SKU" || rows[0][4] != "Variance" {
		t.Errorf("header row = %v", rows[0])
	}
	if rows[1][0] != "A1" || rows[1][3] != "3" || rows[1][4] != "-2" || rows[1][5] != "shortage" {
		t.Errorf("A1 row = %v", rows[1])
	}
	if rows[2][5] != "surplus" || rows[3][5] != "match" {
		t.Errorf("status column = %q, %q", rows[2][5], rows[3][5])
	}

	net, err := f.GetCellValue(summarySheet, "B8")
	if err != nil {
		t.Fatalf("GetCellValue(Summary!B8) error = %v", err)
	}
	if net != "-1" {
		t.Errorf("net variance = %q, want -1", net)
	}
}

func TestWriteXLSX_EmptyTally(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, New("", nil, reportTime)); err != nil {
		t.Fatalf("WriteXLSX() error = %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(tallySheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows, want header only", len(rows))
	}
}

func TestDirDestination(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	d, err := NewDirDestination(dir)
	if err != nil {
		t.Fatalf("NewDirDestination() error = %v", err)
	}
	if err := d.Write(context.Background(), "tally.jsonl", FormatJSONL.ContentType(), []byte("{}\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "tally.jsonl"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "{}\n" {
		t.Errorf("data = %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1 (no temp files left)", len(entries))
	}
}

func TestS3Destination_Key(t *testing.T) {
	d := &S3Destination{bucket: "b", prefix: "reports/"}
	if got := d.Key("tally.xlsx"); got != "reports/tally.xlsx" {
		t.Errorf("Key = %q", got)
	}
	d.prefix = ""
	if got := d.Key("tally.xlsx"); got != "tally.xlsx" {
		t.Errorf("Key without prefix = %q", got)
	}
}

// mockDestination records calls to Write.
type mockDestination struct {
	mu          sync.Mutex
	names       []string
	contentType string
	last        []byte
	err         error
}

func (d *mockDestination) Write(_ context.Context, name, contentType string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.names = append(d.names, name)
	d.contentType = contentType
	d.last = append([]byte(nil), data...)
	return nil
}

func (d *mockDestination) writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.names)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestArchiver_MultipleDestinations(t *testing.T) {
	dest1 := &mockDestination{}
	dest2 := &mockDestination{}
	a := NewArchiver([]Destination{dest1, dest2}, FormatJSONL, testLogger())

	if err := a.Archive(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	for i, d := range []*mockDestination{dest1, dest2} {
		if d.writes() != 1 {
			t.Fatalf("dest%d writes = %d, want 1", i+1, d.writes())
		}
		if d.names[0] != "tally-ss-abc-20260301T120000Z.jsonl" {
			t.Errorf("dest%d name = %q", i+1, d.names[0])
		}
		if d.contentType != "application/x-ndjson" {
			t.Errorf("dest%d content type = %q", i+1, d.contentType)
		}
		if !strings.HasPrefix(string(d.last), `{"version":"1","type":"header"`) {
			t.Errorf("dest%d data = %q", i+1, d.last)
		}
	}
}

func TestArchiver_FailingDestinationDoesNotStopOthers(t *testing.T) {
	boom := errors.New("bucket unavailable")
	bad := &mockDestination{err: boom}
	good := &mockDestination{}
	a := NewArchiver([]Destination{bad, good}, FormatXLSX, testLogger())

	err := a.Archive(context.Background(), sampleReport())
	if !errors.Is(err, boom) {
		t.Fatalf("Archive() error = %v, want %v", err, boom)
	}
	if good.writes() != 1 {
		t.Errorf("good destination writes = %d, want 1", good.writes())
	}
}

func TestArchiver_LogsOnlyWrittenDestinations(t *testing.T) {
	boom := errors.New("bucket unavailable")
	tests := []struct {
		name      string
		dests     []Destination
		wantLevel string
		wantMsg   string
	}{
		{"all failed", []Destination{&mockDestination{err: boom}, &mockDestination{err: boom}}, "level=WARN", "every destination failed"},
		{"one written", []Destination{&mockDestination{err: boom}, &mockDestination{}}, "level=INFO", "destinations=1 failed=1"},
		{"none configured", nil, "level=WARN", "no destinations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			a := NewArchiver(tt.dests, FormatJSONL, slog.New(slog.NewTextHandler(&buf, nil)))
			_ = a.Archive(context.Background(), sampleReport())

			var last string
			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				if !strings.Contains(line, "destination write failed") {
					last = line
				}
			}
			if !strings.Contains(last, tt.wantLevel) || !strings.Contains(last, tt.wantMsg) {
				t.Errorf("summary log = %q, want %s with %q", last, tt.wantLevel, tt.wantMsg)
			}
			if tt.wantLevel == "level=WARN" && strings.Contains(buf.String(), `msg="report archived"`) {
				t.Errorf("success logged when nothing was written:\n%s", buf.String())
			}
		})
	}
}

func TestArchiver_Async(t *testing.T) {
	dest := &mockDestination{}
	a := NewArchiver([]Destination{dest}, FormatXLSX, testLogger())

	a.ArchiveAsync(sampleReport())
	a.Wait()

	if dest.writes() != 1 {
		t.Fatalf("writes = %d, want 1", dest.writes())
	}
	if _, err := excelize.OpenReader(bytes.NewReader(dest.last)); err != nil {
		t.Errorf("archived data is not a workbook: %v", err)
	}
}

func TestArchiver_WaitWithoutArchive(t *testing.T) {
	a := NewArchiver(nil, FormatXLSX, nil)
	// Wait without ArchiveAsync should return immediately.
	a.Wait()
}

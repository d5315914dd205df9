package hooks

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aquaflora/stockscan/internal/events"
	"github.com/aquaflora/stockscan/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRun_MatchingHookGetsEventEnv(t *testing.T) {
	h := NewHandler([]Hook{{
		Topic:   events.TopicSessionStopped,
		Command: `printf '%s|%s|%s|%s' "$STOCKSCAN_TOPIC" "$STOCKSCAN_SESSION_ID" "$STOCKSCAN_MODE" "$STOCKSCAN_ENTRIES"`,
	}}, testLogger())

	results, err := h.Run(context.Background(), events.TopicSessionStopped, events.SessionStopped{
		SessionID: "ss-abc",
		Mode:      model.ModeReconciliation,
		Entries:   12,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("hook failed: %v", results[0].Err)
	}
	want := "stock.session.stopped|ss-abc|reconcile|12"
	if results[0].Output != want {
		t.Errorf("output = %q, want %q", results[0].Output, want)
	}
}

func TestRun_PayloadIsJSON(t *testing.T) {
	h := NewHandler([]Hook{{Topic: "stock.scan.*", Command: `printf '%s' "$STOCKSCAN_EVENT"`}}, testLogger())
	results, err := h.Run(context.Background(), events.TopicScanUnmatched, events.ScanUnmatched{
		SessionID: "ss-1",
		Mode:      model.ModeReconciliation,
		Text:      "zz-9",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0].Output, `"text":"zz-9"`) {
		t.Errorf("results = %+v", results)
	}
}

func TestRun_NonMatchingTopicSkipped(t *testing.T) {
	h := NewHandler([]Hook{{Topic: events.TopicDeviceLost, Command: "exit 1"}}, testLogger())
	results, err := h.Run(context.Background(), events.TopicSessionStarted, events.SessionStarted{SessionID: "ss-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no hooks to run, got %d", len(results))
	}
}

func TestRun_FailureReported(t *testing.T) {
	h := NewHandler([]Hook{
		{Topic: "stock.>", Command: "echo broken >&2; exit 3", OnFailure: OnFailureWarn},
		{Topic: "stock.>", Command: "exit 1", OnFailure: OnFailureIgnore},
	}, testLogger())
	results, err := h.Run(context.Background(), events.TopicDeviceLost, events.DeviceLost{DeviceID: "gun-1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Err == nil || results[0].Output != "broken" {
		t.Errorf("first result = %+v, want error with stderr output", results[0])
	}
	if results[1].Err == nil {
		t.Error("ignored failure should still be reported in the result")
	}
}

func TestExecute_Timeout(t *testing.T) {
	start := time.Now()
	res := Execute(context.Background(), "sleep 5", 100*time.Millisecond, nil)
	if res.Err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
}

func TestPublish_RunsInBackground(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	h := NewHandler([]Hook{{
		Topic:   events.TopicSessionStopped,
		Command: `printf '%s' "$STOCKSCAN_SESSION_ID" > '` + out + `'`,
	}}, testLogger())

	if err := h.Publish(context.Background(), events.TopicSessionStopped, events.SessionStopped{SessionID: "ss-bg"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("hook did not run: %v", err)
	}
	if string(data) != "ss-bg" {
		t.Errorf("got %q, want %q", data, "ss-bg")
	}
}

func TestHookTimeout(t *testing.T) {
	tests := []struct {
		secs int
		want time.Duration
	}{
		{0, DefaultTimeout},
		{-5, DefaultTimeout},
		{10, 10 * time.Second},
		{10000, MaxTimeout},
	}
	for _, tc := range tests {
		if got := (Hook{TimeoutS: tc.secs}).Timeout(); got != tc.want {
			t.Errorf("Timeout(%d) = %v, want %v", tc.secs, got, tc.want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hooks.toml")
	content := `
[[hook]]
topic = "stock.session.stopped"
command = "/usr/local/bin/post-count"
timeout = 60

[[hook]]
topic = "stock.device.*"
command = "logger scanner lost"
on_failure = "ignore"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	hooks, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(hooks) != 2 {
		t.Fatalf("got %d hooks, want 2", len(hooks))
	}
	if hooks[0].Timeout() != time.Minute || hooks[1].OnFailure != OnFailureIgnore {
		t.Errorf("hooks = %+v", hooks)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		hook    Hook
		wantErr string
	}{
		{"ok", Hook{Topic: "stock.>", Command: "true"}, ""},
		{"no command", Hook{Topic: "stock.>", Command: "  "}, "command is required"},
		{"unknown topic", Hook{Topic: "stock.nothing", Command: "true"}, "matches no event"},
		{"bad on_failure", Hook{Topic: "stock.>", Command: "true", OnFailure: "block"}, "on_failure"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate([]Hook{tc.hook})
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

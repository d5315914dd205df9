package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aquaflora/stockscan/internal/catalog"
	"github.com/aquaflora/stockscan/internal/decoder"
	"github.com/aquaflora/stockscan/internal/events"
	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/report"
	"github.com/aquaflora/stockscan/internal/scan"
	"github.com/aquaflora/stockscan/internal/ui"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:     "reconcile",
	Short:   "Count stock by scanning codes from stdin",
	GroupID: "scanning",
	Long: `Count stock by scanning codes from stdin.

Each line read from stdin is one scanned code, as typed by a keyboard-wedge
scanner or piped from a file. Codes are matched against the catalog (exact
SKU first, then product name) and tallied. The tally and its variance
against system stock are printed when input ends or on Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLocalSession(cmd, model.ModeReconciliation)
	},
}

var lookupCmd = &cobra.Command{
	Use:     "lookup",
	Short:   "Scan one code from stdin and show its product",
	GroupID: "scanning",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLocalSession(cmd, model.ModeSingleLookup)
	},
}

// localSession drives a scan controller over stdin and renders its events.
type localSession struct {
	out  io.Writer
	json bool

	mu        sync.Mutex
	sessionID string
	results   []model.ScanResult
	stopped   chan struct{}
	stopOnce  sync.Once
}

func (l *localSession) notify(topic string, event any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var res *model.ScanResult
	switch ev := event.(type) {
	case events.SessionStarted:
		l.sessionID = ev.SessionID
	case events.SessionStopped:
		l.stopOnce.Do(func() { close(l.stopped) })
	case events.ScanRecorded:
		res = &model.ScanResult{Outcome: ev.Outcome, Entry: ev.Entry}
		if ev.Entry != nil {
			res.Text = ev.Entry.SKU
		}
	case events.ScanUnmatched:
		res = &model.ScanResult{Outcome: model.OutcomeUnmatched, Text: ev.Text}
	case events.LookupResolved:
		res = &model.ScanResult{Outcome: model.OutcomeFound, Text: ev.Text, Product: ev.Product}
	}
	if res == nil {
		return
	}
	l.results = append(l.results, *res)
	if !l.json {
		fmt.Fprintln(l.out, describeResult(*res))
	}
}

func runLocalSession(cmd *cobra.Command, mode model.ScanMode) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	cat, err := loadLocalCatalog(ctx, cmd)
	if err != nil {
		return err
	}

	adapter := decoder.NewLineAdapter(decoder.LineDevice{
		ID:     "stdin",
		Label:  "Keyboard scanner",
		Reader: cmd.InOrStdin(),
	})
	sess := &localSession{out: out, json: jsonOutput, stopped: make(chan struct{})}
	ctrl := scan.NewController(adapter, cat, scan.Options{
		Notify: sess.notify,
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})

	if err := ctrl.Start(ctx, mode); err != nil {
		return err
	}
	if !jsonOutput && ui.StdinIsTerminal() {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s scanning against %d products; Ctrl-D to finish\n",
			ui.RenderAccent(string(mode)), cat.Current().Len())
	}

	// A lookup ends itself after the first code; a reconciliation runs
	// until input ends or the operator interrupts.
	select {
	case <-adapter.Done():
	case <-sess.stopped:
	case <-ctx.Done():
	}
	if err := ctrl.Stop(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	if mode == model.ModeSingleLookup {
		return finishLookup(out, sess)
	}
	return finishReconcile(cmd, ctrl, sess)
}

func finishLookup(out io.Writer, sess *localSession) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.results) == 0 {
		return fmt.Errorf("no code scanned")
	}
	res := sess.results[0]
	if jsonOutput {
		return printJSON(out, res)
	}
	if res.Product != nil {
		fmt.Fprintln(out)
		printProduct(out, *res.Product)
	}
	if !res.Matched() {
		return fmt.Errorf("%q is not in the catalog", res.Text)
	}
	return nil
}

func finishReconcile(cmd *cobra.Command, ctrl *scan.Controller, sess *localSession) error {
	out := cmd.OutOrStdout()
	entries := ctrl.Tally()

	sess.mu.Lock()
	id := sess.sessionID
	sess.mu.Unlock()
	rep := report.New(id, entries, time.Now())

	if export, _ := cmd.Flags().GetString("export"); export != "" {
		if err := exportLocalReport(export, rep); err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Fprintf(out, "report saved to %s\n", ui.RenderAccent(export))
		}
	}

	if jsonOutput {
		if entries == nil {
			entries = []model.TallyEntry{}
		}
		return printJSON(out, map[string]any{
			"session_id": id,
			"entries":    entries,
			"summary":    rep.Summary,
		})
	}
	fmt.Fprintln(out)
	printTally(out, entries)
	return nil
}

func exportLocalReport(path string, rep report.Report) error {
	format, err := report.ParseFormat(formatFromPath(path))
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.Write(f, rep, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// loadLocalCatalog reads --catalog-file when given, otherwise the catalog
// served by --server.
func loadLocalCatalog(ctx context.Context, cmd *cobra.Command) (*catalog.Store, error) {
	var src catalog.Source = catalog.SourceFunc(stockClient.GetCatalog)
	if path, _ := cmd.Flags().GetString("catalog-file"); path != "" {
		src = catalog.FileSource{Path: path}
	}
	st := catalog.NewStore(src)
	if _, err := st.Refresh(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func init() {
	for _, c := range []*cobra.Command{reconcileCmd, lookupCmd} {
		c.Flags().String("catalog-file", "", "JSON catalog to match against instead of the server's")
	}
	reconcileCmd.Flags().String("export", "", "write the tally report to this .xlsx or .jsonl file")
}

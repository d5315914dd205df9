package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Archiver renders reports and writes them to every destination.
type Archiver struct {
	destinations []Destination
	format       Format
	timeout      time.Duration
	logger       *slog.Logger

	wg sync.WaitGroup
}

// NewArchiver creates an archiver that writes reports in format to the given
// destinations.
func NewArchiver(destinations []Destination, format Format, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		destinations: destinations,
		format:       format,
		timeout:      time.Minute,
		logger:       logger,
	}
}

// Archive renders r once and writes it to each destination. A failing
// destination does not stop the others; their errors are joined.
func (a *Archiver) Archive(ctx context.Context, r Report) error {
	var buf bytes.Buffer
	if err := Write(&buf, r, a.format); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	data := buf.Bytes()
	name := r.FileName(a.format)

	var errs []error
	for i, dest := range a.destinations {
		if err := dest.Write(ctx, name, a.format.ContentType(), data); err != nil {
			a.logger.Error("report destination write failed", "destination", fmt.Sprintf("%d", i), "report", name, "err", err)
			errs = append(errs, err)
		}
	}

	written := len(a.destinations) - len(errs)
	switch {
	case len(a.destinations) == 0:
		a.logger.Warn("report not archived: no destinations", "report", name)
	case written == 0:
		a.logger.Warn("report not archived: every destination failed", "report", name, "failed", len(errs))
	default:
		a.logger.Info("report archived", "report", name, "destinations", written, "failed", len(errs), "bytes", len(data))
	}
	return errors.Join(errs...)
}

// ArchiveAsync archives r in the background. Errors are logged.
func (a *Archiver) ArchiveAsync(r Report) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		_ = a.Archive(ctx, r)
	}()
}

// Wait blocks until every background archive has finished.
func (a *Archiver) Wait() {
	a.wg.Wait()
}

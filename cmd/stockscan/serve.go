package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aquaflora/stockscan/internal/catalog"
	"github.com/aquaflora/stockscan/internal/client"
	"github.com/aquaflora/stockscan/internal/config"
	"github.com/aquaflora/stockscan/internal/decoder"
	"github.com/aquaflora/stockscan/internal/events"
	"github.com/aquaflora/stockscan/internal/hooks"
	"github.com/aquaflora/stockscan/internal/presence"
	"github.com/aquaflora/stockscan/internal/report"
	"github.com/aquaflora/stockscan/internal/scan"
	"github.com/aquaflora/stockscan/internal/server"
	"github.com/aquaflora/stockscan/internal/store"
	"github.com/aquaflora/stockscan/internal/store/postgres"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the stockscan server",
	GroupID: "system",
	Long: `Start the stockscan server.

Configuration is read from STOCKSCAN_* environment variables. With
STOCKSCAN_NATS_URL set, remote scanners announce themselves over NATS and
events are published there; otherwise stdin is the only scanner.`,
	// Override PersistentPreRunE so we don't create an HTTP client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		var hookList []hooks.Hook
		if cfg.HooksFile != "" {
			if hookList, err = hooks.LoadFile(cfg.HooksFile); err != nil {
				return err
			}
		}
		ctx := context.Background()

		// Catalog source.
		var products store.Store
		var src catalog.Source
		switch cfg.Source() {
		case config.SourceDatabase:
			pg, err := postgres.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			products = pg
			src = store.Source(pg)
		case config.SourceS3:
			s3src, err := catalog.NewS3Source(ctx, cfg.CatalogS3Bucket, cfg.CatalogS3Key, cfg.CatalogS3Region, cfg.CatalogS3Endpoint)
			if err != nil {
				return err
			}
			src = s3src
		case config.SourceURL:
			src = client.NewHTTPClient(cfg.CatalogURL, cfg.AuthToken)
		case config.SourceFile:
			src = catalog.FileSource{Path: cfg.CatalogFile}
		}
		logger.Info("catalog source", "source", cfg.Source())
		cat := catalog.NewStore(src)

		// Scanners and event transport.
		var (
			nc        *nats.Conn
			publisher events.Publisher = &events.NoopPublisher{}
			tracker   *presence.Tracker
			adapter   decoder.Adapter
			natsScan  *decoder.NATSAdapter
		)
		if cfg.NATSURL != "" {
			nc, err = events.Connect(cfg.NATSURL,
				nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
					logger.Warn("nats disconnected", "err", err)
				}),
				nats.ReconnectHandler(func(_ *nats.Conn) {
					logger.Info("nats reconnected")
				}),
			)
			if err != nil {
				closeStore(products, logger)
				return err
			}
			publisher = events.NewNATSPublisherConn(nc)
			tracker = presence.New()
			natsScan, err = decoder.NewNATSAdapter(nc, tracker, cfg.DeviceStaleAfter)
			if err != nil {
				nc.Close()
				closeStore(products, logger)
				return err
			}
			adapter = natsScan
			logger.Info("remote scanners enabled", "nats_url", cfg.NATSURL)
		} else {
			adapter = decoder.NewLineAdapter(decoder.LineDevice{
				ID:     "stdin",
				Label:  "Keyboard scanner",
				Reader: os.Stdin,
			})
			logger.Info("remote scanners disabled (STOCKSCAN_NATS_URL not set), reading stdin")
		}

		if len(hookList) > 0 {
			publisher = events.MultiPublisher{publisher, hooks.NewHandler(hookList, logger)}
			logger.Info("event hooks enabled", "file", cfg.HooksFile, "hooks", len(hookList))
		}

		srv := server.NewStockServer(adapter, cat, publisher, scan.Options{
			OpenTimeout: cfg.DeviceTimeout,
			Logger:      logger,
		})
		srv.Products = products
		srv.Presence = tracker
		srv.RosterStaleAfter = cfg.DeviceStaleAfter
		if cfg.ArchivesReports() {
			srv.Archiver, err = newArchiver(ctx, cfg, logger)
			if err != nil {
				logger.Error("report archiving disabled", "err", err)
			}
		}
		if tracker != nil {
			tracker.StartReaper(&presence.ReaperConfig{
				LostAfter: cfg.DeviceStaleAfter,
				OnLost:    srv.DeviceLost,
			})
		}

		// A failed first load is not fatal: the server reports NOT_SERVING
		// for the catalog until a later refresh succeeds.
		if snap, err := cat.Refresh(ctx); err != nil {
			logger.Error("initial catalog load failed", "err", err)
		} else {
			logger.Info("catalog loaded", "products", snap.Len())
		}
		var scheduler *catalog.Scheduler
		if cfg.RefreshInterval > 0 {
			scheduler = catalog.NewScheduler(cat, cfg.RefreshInterval, logger)
			scheduler.Start()
			logger.Info("catalog refresh scheduler started", "interval", cfg.RefreshInterval)
		}

		grpcServer := server.NewGRPCServer(srv, cfg.AuthToken)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			if scheduler != nil {
				scheduler.Stop()
			}
			if tracker != nil {
				tracker.Stop()
			}
			publisher.Close()
			if nc != nil {
				nc.Close()
			}
			closeStore(products, logger)
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           srv.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		logger.Info("stockscan server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if scheduler != nil {
			scheduler.Stop()
		}
		if tracker != nil {
			tracker.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// End the session before the listeners so its tally is archived.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("scan session shutdown error", "err", err)
		}
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if natsScan != nil {
			if err := natsScan.Shutdown(shutdownCtx); err != nil {
				logger.Error("error closing scanner subscriptions", "err", err)
			}
		}
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if nc != nil {
			nc.Close()
		}
		closeStore(products, logger)

		logger.Info("shutdown complete")
		return nil
	},
}

// newArchiver builds the report archiver from the configured destinations.
func newArchiver(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*report.Archiver, error) {
	format, err := report.ParseFormat(cfg.ReportFormat)
	if err != nil {
		return nil, err
	}
	var dests []report.Destination
	if cfg.ReportDir != "" {
		d, err := report.NewDirDestination(cfg.ReportDir)
		if err != nil {
			return nil, fmt.Errorf("report directory: %w", err)
		}
		dests = append(dests, d)
		logger.Info("report directory destination enabled", "dir", cfg.ReportDir)
	}
	if cfg.ReportS3Bucket != "" {
		d, err := report.NewS3Destination(ctx, cfg.ReportS3Bucket, cfg.ReportS3Prefix, cfg.CatalogS3Region, cfg.CatalogS3Endpoint)
		if err != nil {
			return nil, fmt.Errorf("report S3 destination: %w", err)
		}
		dests = append(dests, d)
		logger.Info("report S3 destination enabled", "bucket", cfg.ReportS3Bucket, "prefix", cfg.ReportS3Prefix)
	}
	return report.NewArchiver(dests, format, logger), nil
}

func closeStore(s store.Store, logger *slog.Logger) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		logger.Error("error closing store", "err", err)
	}
}

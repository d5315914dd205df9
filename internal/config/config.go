package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	HTTPAddr  string // STOCKSCAN_HTTP_ADDR (default ":8080")
	GRPCAddr  string // STOCKSCAN_GRPC_ADDR (default ":9090")
	NATSURL   string // STOCKSCAN_NATS_URL (optional, empty = no events, no remote scanners)
	AuthToken string // STOCKSCAN_AUTH_TOKEN (optional, empty = auth disabled)

	// Catalog sources; at least one is required. When several are set the
	// first in this order wins: database, S3, URL, file.
	DatabaseURL       string // STOCKSCAN_DATABASE_URL (enables import)
	CatalogS3Bucket   string // STOCKSCAN_CATALOG_S3_BUCKET (enables S3 when set)
	CatalogS3Key      string // STOCKSCAN_CATALOG_S3_KEY (default "catalog/latest.json")
	CatalogS3Region   string // STOCKSCAN_CATALOG_S3_REGION (default "us-east-1")
	CatalogS3Endpoint string // STOCKSCAN_CATALOG_S3_ENDPOINT (custom endpoint for MinIO)
	CatalogURL        string // STOCKSCAN_CATALOG_URL (another stockscan server)
	CatalogFile       string // STOCKSCAN_CATALOG_FILE (JSON catalog on disk)

	RefreshInterval  time.Duration // STOCKSCAN_CATALOG_REFRESH_INTERVAL (default 5m; 0 = disabled)
	DeviceTimeout    time.Duration // STOCKSCAN_DEVICE_TIMEOUT (default 10s)
	DeviceStaleAfter time.Duration // STOCKSCAN_DEVICE_STALE_AFTER (default 30s)

	// Tally reports archived when a reconciliation session stops. Both
	// destinations are optional; S3 reuses the catalog region and endpoint.
	ReportDir      string // STOCKSCAN_REPORT_DIR
	ReportS3Bucket string // STOCKSCAN_REPORT_S3_BUCKET
	ReportS3Prefix string // STOCKSCAN_REPORT_S3_PREFIX (default "reports/")
	ReportFormat   string // STOCKSCAN_REPORT_FORMAT (default "xlsx"; or "jsonl")

	HooksFile string // STOCKSCAN_HOOKS_FILE (TOML [[hook]] commands run on events)
}

// CatalogSource names the catalog source Load selected.
type CatalogSource string

const (
	SourceDatabase CatalogSource = "database"
	SourceS3       CatalogSource = "s3"
	SourceURL      CatalogSource = "url"
	SourceFile     CatalogSource = "file"
)

func Load() (*Config, error) {
	c := &Config{
		HTTPAddr:          envOrDefault("STOCKSCAN_HTTP_ADDR", ":8080"),
		GRPCAddr:          envOrDefault("STOCKSCAN_GRPC_ADDR", ":9090"),
		NATSURL:           os.Getenv("STOCKSCAN_NATS_URL"),
		AuthToken:         os.Getenv("STOCKSCAN_AUTH_TOKEN"),
		DatabaseURL:       os.Getenv("STOCKSCAN_DATABASE_URL"),
		CatalogS3Bucket:   os.Getenv("STOCKSCAN_CATALOG_S3_BUCKET"),
		CatalogS3Key:      envOrDefault("STOCKSCAN_CATALOG_S3_KEY", "catalog/latest.json"),
		CatalogS3Region:   envOrDefault("STOCKSCAN_CATALOG_S3_REGION", "us-east-1"),
		CatalogS3Endpoint: os.Getenv("STOCKSCAN_CATALOG_S3_ENDPOINT"),
		CatalogURL:        os.Getenv("STOCKSCAN_CATALOG_URL"),
		CatalogFile:       os.Getenv("STOCKSCAN_CATALOG_FILE"),
		ReportDir:         os.Getenv("STOCKSCAN_REPORT_DIR"),
		ReportS3Bucket:    os.Getenv("STOCKSCAN_REPORT_S3_BUCKET"),
		ReportS3Prefix:    envOrDefault("STOCKSCAN_REPORT_S3_PREFIX", "reports/"),
		ReportFormat:      envOrDefault("STOCKSCAN_REPORT_FORMAT", "xlsx"),
		HooksFile:         os.Getenv("STOCKSCAN_HOOKS_FILE"),
	}
	if c.Source() == "" {
		return nil, fmt.Errorf("a catalog source is required: set STOCKSCAN_DATABASE_URL, STOCKSCAN_CATALOG_S3_BUCKET, STOCKSCAN_CATALOG_URL or STOCKSCAN_CATALOG_FILE")
	}

	var err error
	if c.RefreshInterval, err = envDuration("STOCKSCAN_CATALOG_REFRESH_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if c.DeviceTimeout, err = envDuration("STOCKSCAN_DEVICE_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if c.DeviceStaleAfter, err = envDuration("STOCKSCAN_DEVICE_STALE_AFTER", "30s"); err != nil {
		return nil, err
	}
	if c.DeviceTimeout <= 0 {
		return nil, fmt.Errorf("STOCKSCAN_DEVICE_TIMEOUT must be positive")
	}
	if c.ReportFormat != "xlsx" && c.ReportFormat != "jsonl" {
		return nil, fmt.Errorf("STOCKSCAN_REPORT_FORMAT: unknown format %q", c.ReportFormat)
	}

	return c, nil
}

// ArchivesReports reports whether any report destination is configured.
func (c *Config) ArchivesReports() bool {
	return c.ReportDir != "" || c.ReportS3Bucket != ""
}

// Source returns the catalog source in effect, or "" if none is configured.
func (c *Config) Source() CatalogSource {
	switch {
	case c.DatabaseURL != "":
		return SourceDatabase
	case c.CatalogS3Bucket != "":
		return SourceS3
	case c.CatalogURL != "":
		return SourceURL
	case c.CatalogFile != "":
		return SourceFile
	}
	return ""
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

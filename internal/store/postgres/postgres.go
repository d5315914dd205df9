// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// connectTimeout bounds the initial ping so a wrong DSN fails fast.
const connectTimeout = 10 * time.Second

// PostgresStore is the product catalog kept in PostgreSQL. Writes go through
// RunInTransaction so the catalog timestamp moves with the rows it covers.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*PostgresStore)(nil)

// New connects to databaseURL and migrates the catalog schema to the latest
// version.
func New(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The catalog is read on refresh and written on import; a small pool is
	// plenty.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := migrateUp(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("catalog schema ready", "version", version)
	return newWithDB(db), nil
}

func newWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// migrateUp applies the embedded migrations and returns the resulting
// schema version.
func migrateUp(db *sql.DB) (uint, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "stockscan_schema_migrations"})
	if err != nil {
		return 0, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrating catalog schema: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("catalog schema version %d is dirty", version)
	}
	return version, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	return queryListProducts(ctx, s.db)
}

func (s *PostgresStore) GetProduct(ctx context.Context, sku string) (*model.Product, error) {
	return queryGetProduct(ctx, s.db, sku)
}

func (s *PostgresStore) UpsertProduct(ctx context.Context, p *model.Product) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.UpsertProduct(ctx, p)
	})
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, sku string) error {
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.DeleteProduct(ctx, sku)
	})
}

func (s *PostgresStore) ReplaceProducts(ctx context.Context, products []model.Product) error {
	if err := model.ValidateProducts(products); err != nil {
		return err
	}
	return s.RunInTransaction(ctx, func(tx store.Store) error {
		return tx.ReplaceProducts(ctx, products)
	})
}

func (s *PostgresStore) PriceHistory(ctx context.Context, sku string, limit int) ([]model.PricePoint, error) {
	return queryPriceHistory(ctx, s.db, sku, limit)
}

func (s *PostgresStore) CatalogUpdatedAt(ctx context.Context) (time.Time, error) {
	return queryCatalogUpdatedAt(ctx, s.db)
}

// RunInTransaction runs fn against a store bound to one transaction and
// commits if fn succeeds.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx, now: s.now}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore is the store seen inside RunInTransaction. Every write also
// touches the catalog timestamp.
type txStore struct {
	tx  *sql.Tx
	now func() time.Time
}

var _ store.Store = (*txStore)(nil)

func (s *txStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	return queryListProducts(ctx, s.tx)
}

func (s *txStore) GetProduct(ctx context.Context, sku string) (*model.Product, error) {
	return queryGetProduct(ctx, s.tx, sku)
}

func (s *txStore) UpsertProduct(ctx context.Context, p *model.Product) error {
	if err := model.ValidateProduct(p); err != nil {
		return err
	}
	now := s.now()
	if err := queryUpsertProduct(ctx, s.tx, p, now); err != nil {
		return err
	}
	return queryTouchCatalog(ctx, s.tx, now)
}

func (s *txStore) DeleteProduct(ctx context.Context, sku string) error {
	if err := queryDeleteProduct(ctx, s.tx, sku); err != nil {
		return err
	}
	return queryTouchCatalog(ctx, s.tx, s.now())
}

func (s *txStore) ReplaceProducts(ctx context.Context, products []model.Product) error {
	now := s.now()
	if err := queryReplaceProducts(ctx, s.tx, products, now); err != nil {
		return err
	}
	return queryTouchCatalog(ctx, s.tx, now)
}

func (s *txStore) PriceHistory(ctx context.Context, sku string, limit int) ([]model.PricePoint, error) {
	return queryPriceHistory(ctx, s.tx, sku, limit)
}

func (s *txStore) CatalogUpdatedAt(ctx context.Context) (time.Time, error) {
	return queryCatalogUpdatedAt(ctx, s.tx)
}

// RunInTransaction reuses the open transaction.
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *txStore) Close() error { return nil }

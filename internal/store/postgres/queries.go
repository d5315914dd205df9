package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aquaflora/stockscan/internal/model"
)

// productColumns is the column list used for SELECT statements on the products table.
const productColumns = `sku, name, category, brand, stock, price, cost`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryListProducts(ctx context.Context, db executor) ([]model.Product, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY position, sku`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func queryGetProduct(ctx context.Context, db executor, sku string) (*model.Product, error) {
	row := db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
	return scanProduct(row)
}

// queryUpsertProduct inserts p at the end of the catalog order, or updates
// it in place.
func queryUpsertProduct(ctx context.Context, db executor, p *model.Product, now time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO products (sku, position, name, category, brand, stock, price, cost, updated_at)
		VALUES ($1, (SELECT COALESCE(MAX(position) + 1, 0) FROM products), $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (sku) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			brand = EXCLUDED.brand,
			stock = EXCLUDED.stock,
			price = EXCLUDED.price,
			cost = EXCLUDED.cost,
			updated_at = EXCLUDED.updated_at`,
		p.SKU, p.Name, p.Category, p.Brand, p.Stock, p.Price, p.Cost, now,
	)
	return err
}

func queryDeleteProduct(ctx context.Context, db executor, sku string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM products WHERE sku = $1`, sku)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// queryReplaceProducts deletes every product and inserts products with their
// slice index as position, then records each price under now. Callers run it
// inside a transaction.
func queryReplaceProducts(ctx context.Context, db executor, products []model.Product, now time.Time) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return fmt.Errorf("clear products: %w", err)
	}
	for i, p := range products {
		_, err := db.ExecContext(ctx, `
			INSERT INTO products (sku, position, name, category, brand, stock, price, cost, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.SKU, i, p.Name, p.Category, p.Brand, p.Stock, p.Price, p.Cost, now,
		)
		if err != nil {
			return fmt.Errorf("insert product %q: %w", p.SKU, err)
		}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO product_price_history (sku, price, imported_at)
		SELECT sku, price, $1 FROM products
		ON CONFLICT (sku, imported_at) DO UPDATE SET price = EXCLUDED.price`, now)
	if err != nil {
		return fmt.Errorf("record price history: %w", err)
	}
	return nil
}

// queryPriceHistory returns the newest limit prices of sku in chronological
// order.
func queryPriceHistory(ctx context.Context, db executor, sku string, limit int) ([]model.PricePoint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT price, imported_at FROM (
			SELECT price, imported_at FROM product_price_history
			WHERE sku = $1 ORDER BY imported_at DESC LIMIT $2
		) recent ORDER BY imported_at`, sku, limit)
	if err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}
	defer rows.Close()

	points := []model.PricePoint{}
	for rows.Next() {
		var pp model.PricePoint
		if err := rows.Scan(&pp.Price, &pp.ImportedAt); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		points = append(points, pp)
	}
	return points, rows.Err()
}

func queryTouchCatalog(ctx context.Context, db executor, now time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO catalog_meta (id, updated_at) VALUES (TRUE, $1)
		ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at`, now)
	return err
}

func queryCatalogUpdatedAt(ctx context.Context, db executor) (time.Time, error) {
	var updated sql.NullTime
	err := db.QueryRowContext(ctx, `SELECT updated_at FROM catalog_meta WHERE id`).Scan(&updated)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("catalog updated_at: %w", err)
	}
	return updated.Time, nil
}

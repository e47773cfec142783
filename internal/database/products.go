package database

import (
	"context"

	"github.com/google/uuid"
)

const productColumns = `id, name, price, after_tax_price, stock_quantity`

func scanProduct(row interface{ Scan(dest ...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.AfterTaxPrice, &p.StockQuantity)
	return p, err
}

const getProduct = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

func (q *Queries) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, getProduct, id))
}

const adjustProductStock = `UPDATE products
SET stock_quantity = GREATEST(stock_quantity - $2, 0)
WHERE id = $1
RETURNING ` + productColumns

// AdjustProductStock decrements stock, flooring at zero. Shortfall is
// the caller's business to report; the sale itself is never blocked.
func (q *Queries) AdjustProductStock(ctx context.Context, id uuid.UUID, quantity int32) (Product, error) {
	return scanProduct(q.db.QueryRow(ctx, adjustProductStock, id, quantity))
}

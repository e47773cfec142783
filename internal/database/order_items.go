package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderItemColumns = `id, order_id, product_id, quantity, unit_price, discount, total, notes, created_at`

func scanOrderItem(row interface{ Scan(dest ...any) error }) (OrderItem, error) {
	var it OrderItem
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice,
		&it.Discount, &it.Total, &it.Notes, &it.CreatedAt,
	)
	return it, err
}

type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	UnitPrice pgtype.Numeric
	Discount  pgtype.Numeric
	Total     pgtype.Numeric
	Notes     pgtype.Text
}

const createOrderItem = `INSERT INTO order_items (
	order_id, product_id, quantity, unit_price, discount, total, notes
) VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + orderItemColumns

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.ProductID, arg.Quantity, arg.UnitPrice,
		arg.Discount, arg.Total, arg.Notes,
	)
	return scanOrderItem(row)
}

// ListOrderItemsByOrder returns an order's items in insertion order.
// This ordering is the canonical one the discount distribution relies
// on, so it must stay (created_at, id) ascending.
const listOrderItemsByOrder = `SELECT ` + orderItemColumns + ` FROM order_items
WHERE order_id = $1
ORDER BY created_at ASC, id ASC`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const getOrderItem = `SELECT ` + orderItemColumns + ` FROM order_items
WHERE id = $1 AND order_id = $2`

func (q *Queries) GetOrderItem(ctx context.Context, id, orderID uuid.UUID) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, getOrderItem, id, orderID))
}

type UpdateOrderItemParams struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	Quantity  int32
	UnitPrice pgtype.Numeric
	Discount  pgtype.Numeric
	Total     pgtype.Numeric
	Notes     pgtype.Text
}

const updateOrderItem = `UPDATE order_items
SET quantity = $3, unit_price = $4, discount = $5, total = $6, notes = $7
WHERE id = $1 AND order_id = $2
RETURNING ` + orderItemColumns

func (q *Queries) UpdateOrderItem(ctx context.Context, arg UpdateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, updateOrderItem,
		arg.ID, arg.OrderID, arg.Quantity, arg.UnitPrice,
		arg.Discount, arg.Total, arg.Notes,
	)
	return scanOrderItem(row)
}

type UpdateOrderItemDiscountParams struct {
	ID       uuid.UUID
	Discount pgtype.Numeric
	Total    pgtype.Numeric
}

const updateOrderItemDiscount = `UPDATE order_items
SET discount = $2, total = $3
WHERE id = $1
RETURNING ` + orderItemColumns

// UpdateOrderItemDiscount is used by discount redistribution, which
// rewrites every item's share in one pass.
func (q *Queries) UpdateOrderItemDiscount(ctx context.Context, arg UpdateOrderItemDiscountParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, updateOrderItemDiscount, arg.ID, arg.Discount, arg.Total)
	return scanOrderItem(row)
}

const deleteOrderItem = `DELETE FROM order_items WHERE id = $1 AND order_id = $2`

func (q *Queries) DeleteOrderItem(ctx context.Context, id, orderID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteOrderItem, id, orderID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

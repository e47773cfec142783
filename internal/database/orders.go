package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, table_id, status, customer_name, customer_count,
	subtotal, tax, discount, total, payment_method, payment_status, sales_channel,
	paid_at, version, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.TableID, &o.Status, &o.CustomerName, &o.CustomerCount,
		&o.Subtotal, &o.Tax, &o.Discount, &o.Total, &o.PaymentMethod, &o.PaymentStatus,
		&o.SalesChannel, &o.PaidAt, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

const getNextOrderSeq = `SELECT COALESCE(MAX(order_seq), 0) + 1 FROM orders`

// GetNextOrderSeq returns the next order sequence number. Concurrent
// transactions can read the same value; the unique constraint on
// order_seq surfaces the race and the service retries.
func (q *Queries) GetNextOrderSeq(ctx context.Context) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, getNextOrderSeq).Scan(&n)
	return n, err
}

type CreateOrderParams struct {
	OrderNumber   string
	OrderSeq      int32
	TableID       pgtype.UUID
	CustomerName  pgtype.Text
	CustomerCount int32
	Subtotal      pgtype.Numeric
	Tax           pgtype.Numeric
	Discount      pgtype.Numeric
	Total         pgtype.Numeric
	PaymentMethod pgtype.Text
	SalesChannel  SalesChannel
}

const createOrder = `INSERT INTO orders (
	order_number, order_seq, table_id, status, customer_name, customer_count,
	subtotal, tax, discount, total, payment_method, payment_status, sales_channel
) VALUES ($1, $2, $3, 'PENDING', $4, $5, $6, $7, $8, $9, $10, 'UNPAID', $11)
RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber, arg.OrderSeq, arg.TableID, arg.CustomerName, arg.CustomerCount,
		arg.Subtotal, arg.Tax, arg.Discount, arg.Total, arg.PaymentMethod, arg.SalesChannel,
	)
	return scanOrder(row)
}

const getOrder = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

type ListOrdersParams struct {
	Status NullOrderStatus
	Limit  int32
	Offset int32
}

// NullOrderStatus is an optional status filter.
type NullOrderStatus struct {
	OrderStatus OrderStatus
	Valid       bool
}

const listOrders = `SELECT ` + orderColumns + ` FROM orders
WHERE ($1::text IS NULL OR status = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	var status *string
	if arg.Status.Valid {
		s := string(arg.Status.OrderStatus)
		status = &s
	}
	rows, err := q.db.Query(ctx, listOrders, status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type UpdateOrderTotalsParams struct {
	ID       uuid.UUID
	Subtotal pgtype.Numeric
	Tax      pgtype.Numeric
	Discount pgtype.Numeric
	Total    pgtype.Numeric
	Version  int32
}

const updateOrderTotals = `UPDATE orders
SET subtotal = $2, tax = $3, discount = $4, total = $5,
	version = version + 1, updated_at = now()
WHERE id = $1 AND version = $6
RETURNING ` + orderColumns

// UpdateOrderTotals writes recomputed figures with a compare-and-swap
// on version; pgx.ErrNoRows means the row moved under us.
func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderTotals,
		arg.ID, arg.Subtotal, arg.Tax, arg.Discount, arg.Total, arg.Version)
	return scanOrder(row)
}

type UpdateOrderStatusParams struct {
	ID      uuid.UUID
	Status  OrderStatus
	Version int32
}

const updateOrderStatus = `UPDATE orders
SET status = $2,
	payment_status = CASE WHEN $2 = 'PAID' THEN 'PAID' ELSE payment_status END,
	paid_at = CASE WHEN $2 = 'PAID' THEN now() ELSE paid_at END,
	version = version + 1, updated_at = now()
WHERE id = $1 AND version = $3
RETURNING ` + orderColumns

// UpdateOrderStatus persists a status transition with a version CAS.
// Transitioning to PAID also stamps paid_at and settles payment_status.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.Version)
	return scanOrder(row)
}

const countActiveOrdersOnTable = `SELECT COUNT(*) FROM orders
WHERE table_id = $1 AND status = ANY($2::text[])`

// CountActiveOrdersOnTable counts orders on the table whose status is
// in the non-terminal set.
func (q *Queries) CountActiveOrdersOnTable(ctx context.Context, tableID uuid.UUID) (int64, error) {
	statuses := make([]string, len(NonTerminalStatuses))
	for i, s := range NonTerminalStatuses {
		statuses[i] = string(s)
	}
	var n int64
	err := q.db.QueryRow(ctx, countActiveOrdersOnTable, tableID, statuses).Scan(&n)
	return n, err
}

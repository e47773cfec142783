package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Order is a persisted order row. Money columns are NUMERIC; amounts
// are whole currency units (VND), scale kept for safety.
type Order struct {
	ID            uuid.UUID
	OrderNumber   string
	TableID       pgtype.UUID
	Status        OrderStatus
	CustomerName  pgtype.Text
	CustomerCount int32
	Subtotal      pgtype.Numeric
	Tax           pgtype.Numeric
	Discount      pgtype.Numeric
	Total         pgtype.Numeric
	PaymentMethod pgtype.Text
	PaymentStatus PaymentStatus
	SalesChannel  SalesChannel
	PaidAt        pgtype.Timestamptz
	Version       int32
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem is a persisted line item. UnitPrice is always the pre-tax
// unit price; Discount is this item's share of the order discount.
type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int32
	UnitPrice pgtype.Numeric
	Discount  pgtype.Numeric
	Total     pgtype.Numeric
	Notes     pgtype.Text
	CreatedAt time.Time
}

// Product is read-only to the order core. AfterTaxPrice NULL means the
// product is untaxed.
type Product struct {
	ID            uuid.UUID
	Name          string
	Price         pgtype.Numeric
	AfterTaxPrice pgtype.Numeric
	StockQuantity int32
}

// DiningTable is a physical table whose occupancy the lifecycle
// manager maintains.
type DiningTable struct {
	ID        uuid.UUID
	Name      string
	Status    TableStatus
	UpdatedAt time.Time
}

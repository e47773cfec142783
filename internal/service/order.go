package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/saigon-pos/api/internal/database"
	"github.com/saigon-pos/api/internal/pricing"
)

const maxOrderNumberRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyItems       = errors.New("items are required")
	ErrInvalidQuantity  = errors.New("quantity must be > 0")
	ErrInvalidProductID = errors.New("invalid product_id")
	ErrInvalidUnitPrice = errors.New("invalid unit_price")
	ErrNegativeDiscount = errors.New("discount must be >= 0")
	ErrInvalidDiscount  = errors.New("invalid discount")
	ErrInvalidChannel   = errors.New("invalid sales_channel")
	ErrInvalidTableID   = errors.New("invalid table_id")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrTerminalOrder    = errors.New("order is in a terminal status")
	ErrOrderNotFound    = errors.New("order not found")
	ErrItemNotFound     = errors.New("order item not found")
	ErrTableNotFound    = errors.New("table not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrVersionConflict  = errors.New("order was modified concurrently, please retry")
	ErrQueryTimeout     = errors.New("query against the tenant database timed out")
)

// storeErr wraps a store failure with its operation name. Deadline
// expiry is surfaced as ErrQueryTimeout so callers can distinguish a
// slow tenant database from a broken one.
func storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrQueryTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// TxBeginner starts a database transaction. Satisfied by
// *pgxpool.Pool; handlers pass the tenant's pool per request.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods the lifecycle manager needs.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetNextOrderSeq(ctx context.Context) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	CountActiveOrdersOnTable(ctx context.Context, tableID uuid.UUID) (int64, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	GetOrderItem(ctx context.Context, id, orderID uuid.UUID) (database.OrderItem, error)
	UpdateOrderItem(ctx context.Context, arg database.UpdateOrderItemParams) (database.OrderItem, error)
	UpdateOrderItemDiscount(ctx context.Context, arg database.UpdateOrderItemDiscountParams) (database.OrderItem, error)
	DeleteOrderItem(ctx context.Context, id, orderID uuid.UUID) (int64, error)
	GetProduct(ctx context.Context, id uuid.UUID) (database.Product, error)
	AdjustProductStock(ctx context.Context, id uuid.UUID, quantity int32) (database.Product, error)
	GetTable(ctx context.Context, id uuid.UUID) (database.DiningTable, error)
	UpdateTableStatus(ctx context.Context, id uuid.UUID, status database.TableStatus) (database.DiningTable, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// EventPublisher receives order events for broadcast. Best-effort;
// failures never abort the request.
type EventPublisher interface {
	Publish(subdomain, eventType string, payload any)
}

// OrderService owns the order status state machine and orchestrates
// persistence of order and item rows with figures from the pricing
// engine. The database handle arrives per call because every tenant
// has its own pool.
type OrderService struct {
	newStore NewOrderStore
	events   EventPublisher
}

// NewOrderService creates an OrderService. events may be nil.
func NewOrderService(newStore NewOrderStore, events EventPublisher) *OrderService {
	return &OrderService{newStore: newStore, events: events}
}

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	Tenant        string
	TableID       string
	CustomerName  string
	CustomerCount int32
	Discount      string
	PaymentMethod string
	SalesChannel  string
	Items         []ItemRequest
}

// ItemRequest is a single line item. UnitPrice, when set, overrides
// the product's pre-tax price; the engine computes the rest.
type ItemRequest struct {
	ProductID string
	Quantity  int32
	UnitPrice string
	Notes     string
}

// OrderResult is the outcome of a lifecycle operation. Pending is set
// for synthesized placeholder responses, where no row was written.
type OrderResult struct {
	Order    database.Order
	Items    []database.OrderItem
	Table    *database.DiningTable
	Warnings []string

	Pending       bool
	PendingRef    string
	PendingStatus database.OrderStatus
}

// preparedItem is a line item with its product resolved, ready for
// pricing and insertion.
type preparedItem struct {
	productID uuid.UUID
	product   database.Product
	quantity  int32
	unitPrice decimal.Decimal
	notes     string
}

// CreateOrder validates, prices and persists a new order atomically.
// A table-bound order marks its table OCCUPIED. Stock shortfalls are
// collected as warnings and never block the sale. Retries on
// order_seq unique violations, where concurrent transactions read the
// same MAX.
func (s *OrderService) CreateOrder(ctx context.Context, db TxBeginner, req CreateOrderRequest) (*OrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	channel, err := resolveChannel(req.SalesChannel, req.TableID)
	if err != nil {
		return nil, err
	}

	discount, err := parseDiscount(req.Discount)
	if err != nil {
		return nil, err
	}

	var tableID pgtype.UUID
	if req.TableID != "" {
		tid, err := uuid.Parse(req.TableID)
		if err != nil {
			return nil, ErrInvalidTableID
		}
		tableID = pgtype.UUID{Bytes: tid, Valid: true}
	}

	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, db, req, channel, discount, tableID)
		if err == nil {
			s.publish(req.Tenant, "order.created", result.Order)
			return result, nil
		}
		if isOrderSeqConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (s *OrderService) createOrderTx(ctx context.Context, db TxBeginner, req CreateOrderRequest,
	channel database.SalesChannel, discount decimal.Decimal, tableID pgtype.UUID) (*OrderResult, error) {

	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	seq, err := store.GetNextOrderSeq(ctx)
	if err != nil {
		return nil, storeErr("get next order seq", err)
	}
	orderNumber := fmt.Sprintf("ORD-%05d", seq)

	// Resolve products and unit prices up front.
	prepared, err := s.prepareItems(ctx, store, req.Items)
	if err != nil {
		return nil, err
	}

	totals := pricing.ComputeTotals(toLineItems(prepared), discount)

	customerCount := req.CustomerCount
	if customerCount <= 0 {
		customerCount = 1
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber:   orderNumber,
		OrderSeq:      seq,
		TableID:       tableID,
		CustomerName:  textOrNull(req.CustomerName),
		CustomerCount: customerCount,
		Subtotal:      decimalToNumeric(totals.Subtotal),
		Tax:           decimalToNumeric(totals.Tax),
		Discount:      decimalToNumeric(discount),
		Total:         decimalToNumeric(totals.Total),
		PaymentMethod: textOrNull(req.PaymentMethod),
		SalesChannel:  channel,
	})
	if err != nil {
		return nil, storeErr("create order", err)
	}

	var warnings []string
	stock := make(stockTracker)
	items := make([]database.OrderItem, 0, len(prepared))
	for i, pi := range prepared {
		item, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:   order.ID,
			ProductID: pi.productID,
			Quantity:  pi.quantity,
			UnitPrice: decimalToNumeric(pi.unitPrice),
			Discount:  decimalToNumeric(totals.ItemDiscount[i]),
			Total:     decimalToNumeric(itemTotal(pi, totals, i)),
			Notes:     textOrNull(pi.notes),
		})
		if err != nil {
			return nil, storeErr("create order item", err)
		}
		items = append(items, item)

		// Stock bookkeeping gaps never block a sale; shortfall is
		// reported and the counter floors at zero.
		if have, short := stock.take(pi.productID, pi.product.StockQuantity, pi.quantity); short {
			warning := fmt.Sprintf("insufficient stock for %s: have %d, need %d",
				pi.product.Name, have, pi.quantity)
			warnings = append(warnings, warning)
			logrus.WithFields(logrus.Fields{
				"order":   order.OrderNumber,
				"product": pi.productID,
			}).Warn(warning)
		}
		if _, err := store.AdjustProductStock(ctx, pi.productID, pi.quantity); err != nil {
			return nil, storeErr("adjust stock", err)
		}
	}

	var table *database.DiningTable
	if tableID.Valid {
		tid := uuid.UUID(tableID.Bytes)
		if _, err := store.GetTable(ctx, tid); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrTableNotFound
			}
			return nil, storeErr("get table", err)
		}
		t, err := store.UpdateTableStatus(ctx, tid, database.TableStatusOccupied)
		if err != nil {
			return nil, storeErr("occupy table", err)
		}
		table = &t
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit tx", err)
	}

	return &OrderResult{
		Order:    order,
		Items:    items,
		Table:    table,
		Warnings: warnings,
	}, nil
}

// prepareItems parses and resolves request items against products,
// preserving request order.
func (s *OrderService) prepareItems(ctx context.Context, store OrderStore, items []ItemRequest) ([]preparedItem, error) {
	prepared := make([]preparedItem, 0, len(items))
	for i, item := range items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidProductID)
		}

		product, err := store.GetProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("item[%d]: %w", i, ErrProductNotFound)
			}
			return nil, storeErr(fmt.Sprintf("item[%d]: get product", i), err)
		}

		// The caller's asserted unit price wins over the catalog; the
		// engine only offers the computation.
		unitPrice := numericToDecimal(product.Price)
		if item.UnitPrice != "" {
			up, err := decimal.NewFromString(item.UnitPrice)
			if err != nil || up.IsNegative() {
				return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidUnitPrice)
			}
			unitPrice = up
		}

		prepared = append(prepared, preparedItem{
			productID: productID,
			product:   product,
			quantity:  item.Quantity,
			unitPrice: unitPrice,
			notes:     item.Notes,
		})
	}
	return prepared, nil
}

// --- Helpers ---

// stockTracker keeps a running per-product stock figure across one
// request's lines, so a product repeated on several lines is checked
// against what earlier lines already consumed, not the snapshot read
// before the first line.
type stockTracker map[uuid.UUID]int32

// take consumes qty of the product's running stock, seeding it from
// snapshot on first sight. have is the stock available to this line;
// short reports a shortfall. The running figure floors at zero,
// mirroring the persisted counter.
func (st stockTracker) take(id uuid.UUID, snapshot, qty int32) (have int32, short bool) {
	have, ok := st[id]
	if !ok {
		have = snapshot
	}
	remaining := have - qty
	if remaining < 0 {
		remaining = 0
	}
	st[id] = remaining
	return have, have < qty
}

func toLineItems(prepared []preparedItem) []pricing.LineItem {
	out := make([]pricing.LineItem, len(prepared))
	for i, pi := range prepared {
		out[i] = pricing.LineItem{
			ProductID:     pi.productID,
			Quantity:      pi.quantity,
			UnitPrice:     pi.unitPrice,
			AfterTaxPrice: afterTaxPrice(pi.product),
		}
	}
	return out
}

// itemTotal is the line's own figure: pre-tax line amount plus its
// floored tax minus its discount share, floored at zero.
func itemTotal(pi preparedItem, totals pricing.Totals, i int) decimal.Decimal {
	line := pi.unitPrice.Mul(decimal.NewFromInt32(pi.quantity)).
		Add(totals.ItemTax[i]).
		Sub(totals.ItemDiscount[i])
	if line.IsNegative() {
		return decimal.Zero
	}
	return line
}

func afterTaxPrice(p database.Product) decimal.NullDecimal {
	if !p.AfterTaxPrice.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: numericToDecimal(p.AfterTaxPrice), Valid: true}
}

func resolveChannel(channel, tableID string) (database.SalesChannel, error) {
	if channel == "" {
		if tableID != "" {
			return database.SalesChannelDineIn, nil
		}
		return database.SalesChannelDirectSale, nil
	}
	c := database.SalesChannel(channel)
	if !c.Valid() {
		return "", ErrInvalidChannel
	}
	return c, nil
}

func parseDiscount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidDiscount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeDiscount
	}
	return d, nil
}

// isOrderSeqConflict checks for a unique constraint violation on the
// order sequence (pgconn error code 23505).
func isOrderSeqConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_order_seq_key"
	}
	return false
}

func (s *OrderService) publish(tenant, eventType string, payload any) {
	if s.events != nil {
		s.events.Publish(tenant, eventType, payload)
	}
}

func uuidFromPg(u pgtype.UUID) uuid.UUID {
	return uuid.UUID(u.Bytes)
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

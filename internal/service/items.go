package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/saigon-pos/api/internal/database"
	"github.com/saigon-pos/api/internal/pricing"
)

// AddItems appends items to an order and recomputes subtotal, tax and
// total over the union of existing and new items, redistributing any
// active discount across the union. Existing items keep their
// insertion order; new items are appended after them, which fixes the
// "last item" of the distribution.
//
// A placeholder ref returns a synthesized success carrying the token
// unchanged; no row is written.
func (s *OrderService) AddItems(ctx context.Context, db TxBeginner, ref OrderRef, items []ItemRequest) (*OrderResult, error) {
	if !ref.Persisted() {
		return &OrderResult{Pending: true, PendingRef: ref.Token()}, nil
	}
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrder(ctx, ref.ID())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, storeErr("get order", err)
	}
	if order.Status.Terminal() {
		return nil, ErrTerminalOrder
	}

	existing, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, storeErr("list order items", err)
	}

	prepared, err := s.prepareItems(ctx, store, items)
	if err != nil {
		return nil, err
	}

	union, err := s.unionLineItems(ctx, store, existing, prepared)
	if err != nil {
		return nil, err
	}

	discount := numericToDecimal(order.Discount)
	totals := pricing.ComputeTotals(union, discount)

	// Rewrite existing items' discount shares and line totals.
	updated := make([]database.OrderItem, 0, len(union))
	for i, it := range existing {
		row, err := store.UpdateOrderItemDiscount(ctx, database.UpdateOrderItemDiscountParams{
			ID:       it.ID,
			Discount: decimalToNumeric(totals.ItemDiscount[i]),
			Total:    decimalToNumeric(lineTotal(union[i], totals, i)),
		})
		if err != nil {
			return nil, storeErr("update item discount", err)
		}
		updated = append(updated, row)
	}

	// Insert the new items with their shares.
	var warnings []string
	stock := make(stockTracker)
	for j, pi := range prepared {
		i := len(existing) + j
		row, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
			OrderID:   order.ID,
			ProductID: pi.productID,
			Quantity:  pi.quantity,
			UnitPrice: decimalToNumeric(pi.unitPrice),
			Discount:  decimalToNumeric(totals.ItemDiscount[i]),
			Total:     decimalToNumeric(lineTotal(union[i], totals, i)),
			Notes:     textOrNull(pi.notes),
		})
		if err != nil {
			return nil, storeErr("create order item", err)
		}
		updated = append(updated, row)

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

	order, err = store.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:       order.ID,
		Subtotal: decimalToNumeric(totals.Subtotal),
		Tax:      decimalToNumeric(totals.Tax),
		Discount: decimalToNumeric(discount),
		Total:    decimalToNumeric(totals.Total),
		Version:  order.Version,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVersionConflict
		}
		return nil, storeErr("update order totals", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit tx", err)
	}

	return &OrderResult{Order: order, Items: updated, Warnings: warnings}, nil
}

// UpdateItemRequest is a partial item mutation. Nil fields are left
// untouched. Updating an item deliberately does not recompute the
// parent order's totals; that is RecomputeTotals' job.
type UpdateItemRequest struct {
	Quantity  *int32
	UnitPrice *string
	Discount  *string
	Notes     *string
}

// UpdateItem applies a partial update to a single item of a
// non-terminal order.
func (s *OrderService) UpdateItem(ctx context.Context, db database.DBTX, orderID, itemID uuid.UUID, req UpdateItemRequest) (database.OrderItem, error) {
	store := s.newStore(db)

	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.OrderItem{}, ErrOrderNotFound
		}
		return database.OrderItem{}, storeErr("get order", err)
	}
	if order.Status.Terminal() {
		return database.OrderItem{}, ErrTerminalOrder
	}

	item, err := store.GetOrderItem(ctx, itemID, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.OrderItem{}, ErrItemNotFound
		}
		return database.OrderItem{}, storeErr("get order item", err)
	}

	quantity := item.Quantity
	if req.Quantity != nil {
		if *req.Quantity <= 0 {
			return database.OrderItem{}, ErrInvalidQuantity
		}
		quantity = *req.Quantity
	}

	unitPrice := numericToDecimal(item.UnitPrice)
	if req.UnitPrice != nil {
		up, err := decimal.NewFromString(*req.UnitPrice)
		if err != nil || up.IsNegative() {
			return database.OrderItem{}, ErrInvalidUnitPrice
		}
		unitPrice = up
	}

	itemDiscount := numericToDecimal(item.Discount)
	if req.Discount != nil {
		d, err := decimal.NewFromString(*req.Discount)
		if err != nil {
			return database.OrderItem{}, ErrInvalidDiscount
		}
		if d.IsNegative() {
			return database.OrderItem{}, ErrNegativeDiscount
		}
		itemDiscount = d
	}

	notes := item.Notes
	if req.Notes != nil {
		notes = textOrNull(*req.Notes)
	}

	// The line total carries the same floored tax term the create and
	// recompute paths apply, so an edited line stays comparable to its
	// siblings.
	product, err := store.GetProduct(ctx, item.ProductID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.OrderItem{}, ErrProductNotFound
		}
		return database.OrderItem{}, storeErr("get product", err)
	}
	line := pricing.LineItem{
		ProductID:     item.ProductID,
		Quantity:      quantity,
		UnitPrice:     unitPrice,
		AfterTaxPrice: afterTaxPrice(product),
	}
	tax := pricing.ComputeTotals([]pricing.LineItem{line}, decimal.Zero).ItemTax[0]

	total := unitPrice.Mul(decimal.NewFromInt32(quantity)).Add(tax).Sub(itemDiscount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return store.UpdateOrderItem(ctx, database.UpdateOrderItemParams{
		ID:        itemID,
		OrderID:   orderID,
		Quantity:  quantity,
		UnitPrice: decimalToNumeric(unitPrice),
		Discount:  decimalToNumeric(itemDiscount),
		Total:     decimalToNumeric(total),
		Notes:     notes,
	})
}

// DeleteItem removes a single item from a non-terminal order. The
// parent's totals are not recomputed here.
func (s *OrderService) DeleteItem(ctx context.Context, db database.DBTX, orderID, itemID uuid.UUID) error {
	store := s.newStore(db)

	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrOrderNotFound
		}
		return storeErr("get order", err)
	}
	if order.Status.Terminal() {
		return ErrTerminalOrder
	}

	rows, err := store.DeleteOrderItem(ctx, itemID, orderID)
	if err != nil {
		return storeErr("delete order item", err)
	}
	if rows == 0 {
		return ErrItemNotFound
	}
	return nil
}

// RecomputeTotals reprices an order from its current items, rewriting
// every item's discount share and the order's figures. This is the
// explicit recompute that item-level edits rely on.
func (s *OrderService) RecomputeTotals(ctx context.Context, db TxBeginner, orderID uuid.UUID) (*OrderResult, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, storeErr("get order", err)
	}
	if order.Status.Terminal() {
		return nil, ErrTerminalOrder
	}

	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, storeErr("list order items", err)
	}

	union, err := s.unionLineItems(ctx, store, items, nil)
	if err != nil {
		return nil, err
	}

	discount := numericToDecimal(order.Discount)
	totals := pricing.ComputeTotals(union, discount)

	updated := make([]database.OrderItem, 0, len(items))
	for i, it := range items {
		row, err := store.UpdateOrderItemDiscount(ctx, database.UpdateOrderItemDiscountParams{
			ID:       it.ID,
			Discount: decimalToNumeric(totals.ItemDiscount[i]),
			Total:    decimalToNumeric(lineTotal(union[i], totals, i)),
		})
		if err != nil {
			return nil, storeErr("update item discount", err)
		}
		updated = append(updated, row)
	}

	order, err = store.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:       order.ID,
		Subtotal: decimalToNumeric(totals.Subtotal),
		Tax:      decimalToNumeric(totals.Tax),
		Discount: decimalToNumeric(discount),
		Total:    decimalToNumeric(totals.Total),
		Version:  order.Version,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVersionConflict
		}
		return nil, storeErr("update order totals", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit tx", err)
	}

	return &OrderResult{Order: order, Items: updated}, nil
}

// unionLineItems builds the pricing view: persisted rows first, in
// their stored (created_at, id) order, then newly prepared items.
// Product after-tax prices are looked up once per product.
func (s *OrderService) unionLineItems(ctx context.Context, store OrderStore,
	existing []database.OrderItem, prepared []preparedItem) ([]pricing.LineItem, error) {

	products := make(map[uuid.UUID]database.Product)
	lookup := func(id uuid.UUID) (database.Product, error) {
		if p, ok := products[id]; ok {
			return p, nil
		}
		p, err := store.GetProduct(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return database.Product{}, ErrProductNotFound
			}
			return database.Product{}, storeErr("get product", err)
		}
		products[id] = p
		return p, nil
	}

	union := make([]pricing.LineItem, 0, len(existing)+len(prepared))
	for _, it := range existing {
		p, err := lookup(it.ProductID)
		if err != nil {
			return nil, err
		}
		union = append(union, pricing.LineItem{
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			UnitPrice:     numericToDecimal(it.UnitPrice),
			AfterTaxPrice: afterTaxPrice(p),
		})
	}
	for _, pi := range prepared {
		union = append(union, pricing.LineItem{
			ProductID:     pi.productID,
			Quantity:      pi.quantity,
			UnitPrice:     pi.unitPrice,
			AfterTaxPrice: afterTaxPrice(pi.product),
		})
	}
	return union, nil
}

// lineTotal mirrors itemTotal for items already expressed as pricing
// line items.
func lineTotal(li pricing.LineItem, totals pricing.Totals, i int) decimal.Decimal {
	line := li.UnitPrice.Mul(decimal.NewFromInt32(li.Quantity)).
		Add(totals.ItemTax[i]).
		Sub(totals.ItemDiscount[i])
	if line.IsNegative() {
		return decimal.Zero
	}
	return line
}

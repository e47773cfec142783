package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/saigon-pos/api/internal/database"
)

// UpdateStatus persists a status transition. Transitioning into PAID
// stamps paid_at, settles payment_status, and — for a table-bound
// order — releases the table once no sibling order remains in a
// non-terminal status.
//
// Replaying the same terminal status is a no-op success on the order
// but still re-evaluates the table, so the call is idempotent.
// A placeholder ref returns a synthesized success carrying the token
// and target status; no row is written.
func (s *OrderService) UpdateStatus(ctx context.Context, db TxBeginner, tenantSub string, ref OrderRef, newStatus database.OrderStatus) (*OrderResult, error) {
	if !newStatus.Valid() {
		return nil, ErrInvalidStatus
	}
	if !ref.Persisted() {
		return &OrderResult{
			Pending:       true,
			PendingRef:    ref.Token(),
			PendingStatus: newStatus,
		}, nil
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

	var table *database.DiningTable
	changed := false

	switch {
	case order.Status.Terminal() && order.Status == newStatus:
		// Idempotent replay: the order row is untouched, the table
		// check below still runs.
	case order.Status.Terminal():
		return nil, ErrTerminalOrder
	case !order.Status.CanTransition(newStatus):
		return nil, ErrInvalidStatus
	default:
		order, err = store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
			ID:      order.ID,
			Status:  newStatus,
			Version: order.Version,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrVersionConflict
			}
			return nil, storeErr("update order status", err)
		}
		changed = true
	}

	// Table release: a table stays occupied exactly as long as one of
	// its orders is non-terminal. Evaluated whenever the order sits in
	// a terminal status, including replays.
	if order.Status.Terminal() && order.TableID.Valid {
		table, err = s.releaseTableIfIdle(ctx, store, order)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit tx", err)
	}

	if changed {
		s.publish(tenantSub, "order.status_changed", order)
	}

	return &OrderResult{Order: order, Table: table}, nil
}

// releaseTableIfIdle flips the order's table to AVAILABLE when no
// order on it remains in the non-terminal set. Deterministic and
// idempotent: re-running it against the same state is harmless.
func (s *OrderService) releaseTableIfIdle(ctx context.Context, store OrderStore, order database.Order) (*database.DiningTable, error) {
	tableID := uuidFromPg(order.TableID)

	active, err := store.CountActiveOrdersOnTable(ctx, tableID)
	if err != nil {
		return nil, storeErr("count active orders", err)
	}
	if active > 0 {
		t, err := store.GetTable(ctx, tableID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrTableNotFound
			}
			return nil, storeErr("get table", err)
		}
		return &t, nil
	}

	t, err := store.UpdateTableStatus(ctx, tableID, database.TableStatusAvailable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTableNotFound
		}
		return nil, storeErr("release table", err)
	}
	return &t, nil
}

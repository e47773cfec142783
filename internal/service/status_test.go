package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/saigon-pos/api/internal/database"
)

func tableBoundOrder(orderID, tableID uuid.UUID, status database.OrderStatus) database.Order {
	return database.Order{
		ID:      orderID,
		TableID: pgtype.UUID{Bytes: tableID, Valid: true},
		Status:  status,
		Version: 1,
	}
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	svc, pool := newTestService(defaultStore(uuid.New(), "100"))

	_, err := svc.UpdateStatus(context.Background(), pool, "store1",
		PersistedRef(uuid.New()), database.OrderStatus("SHIPPED"))
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got: %v", err)
	}
}

func TestUpdateStatus_OrderNotFound(t *testing.T) {
	store := defaultStore(uuid.New(), "100")
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{}, pgx.ErrNoRows
	}

	svc, pool := newTestService(store)
	_, err := svc.UpdateStatus(context.Background(), pool, "store1",
		PersistedRef(uuid.New()), database.OrderStatusPaid)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

func TestUpdateStatus_PlaceholderRefSynthesizesSuccess(t *testing.T) {
	store := defaultStore(uuid.New(), "100")
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		o := database.Order{}
		return o, errors.New("must not hit the database")
	}

	svc, pool := newTestService(store)
	result, err := svc.UpdateStatus(context.Background(), pool, "store1",
		ParseOrderRef("tmp-invoice-42"), database.OrderStatusPaid)
	if err != nil {
		t.Fatalf("placeholder ref must not fail: %v", err)
	}
	if !result.Pending || result.PendingRef != "tmp-invoice-42" {
		t.Fatalf("expected pending result echoing token, got %+v", result)
	}
	if result.PendingStatus != database.OrderStatusPaid {
		t.Fatalf("expected target status echoed, got %s", result.PendingStatus)
	}
}

func TestUpdateStatus_TerminalOrderRejectsNewTarget(t *testing.T) {
	orderID := uuid.New()
	store := defaultStore(uuid.New(), "100")
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{ID: orderID, Status: database.OrderStatusCancelled, Version: 1}, nil
	}

	svc, pool := newTestService(store)
	_, err := svc.UpdateStatus(context.Background(), pool, "store1",
		PersistedRef(orderID), database.OrderStatusPaid)
	if !errors.Is(err, ErrTerminalOrder) {
		t.Fatalf("expected ErrTerminalOrder, got: %v", err)
	}
}

func TestUpdateStatus_PaidReleasesTableWhenNoActiveSiblings(t *testing.T) {
	orderID, tableID := uuid.New(), uuid.New()
	store := defaultStore(uuid.New(), "100")
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return tableBoundOrder(orderID, tableID, database.OrderStatusServed), nil
	}
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		o := tableBoundOrder(orderID, tableID, arg.Status)
		o.Version = arg.Version + 1
		return o, nil
	}
	store.countActiveOrdersFn = func(ctx context.Context, tid uuid.UUID) (int64, error) {
		return 0, nil // sibling B already paid
	}

	var released *database.TableStatus
	store.updateTableStatusFn = func(ctx context.Context, id uuid.UUID, status database.TableStatus) (database.DiningTable, error) {
		released = &status
		return database.DiningTable{ID: id, Status: status}, nil
	}

	svc, pool := newTestService(store)
	result, err := svc.UpdateStatus(context.Background(), pool, "store1",
		PersistedRef(orderID), database.OrderStatusPaid)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}

	if released == nil || *released != database.TableStatusAvailable {
		t.Fatalf("table was not released: %v", released)
	}
	if result.Table == nil || result.Table.Status != database.TableStatusAvailable {
		t.Fatalf("result table = %+v, want AVAILABLE", result.Table)
	}
}

func TestUpdateStatus_PaidKeepsTableWithActiveSibling(t *testing.T) {
	orderID, tableID := uuid.New(), uuid.New()
	store := defaultStore(uuid.New(), "100")
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return tableBoundOrder(orderID, tableID, database.OrderStatusServed), nil
	}
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		o := tableBoundOrder(orderID, tableID, arg.Status)
		o.Version = arg.Version + 1
		return o, nil
	}
	store.countActiveOrdersFn = func(ctx context.Context, tid uuid.UUID) (int64, error) {
		return 1, nil // sibling B still served
	}
	store.getTableFn = func(ctx context.Context, id uuid.UUID) (database.DiningTable, error) {
		return database.DiningTable{ID: id, Status: database.TableStatusOccupied}, nil
	}
	store.updateTableStatusFn = func(ctx context.Context, id uuid.UUID, status database.TableStatus) (database.DiningTable, error) {
		d := database.DiningTable{}
		return d, errors.New("must not release an occupied table")
	}

	svc, pool := newTestService(store)
	result, err := svc.UpdateStatus(context.Background(), pool, "store1",
		PersistedRef(orderID), database.OrderStatusPaid)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if result.Table == nil || result.Table.Status != database.TableStatusOccupied {
		t.Fatalf("result table = %+v, want OCCUPIED", result.Table)
	}
}

func TestUpdateStatus_PaidReplayIsIdempotent(t *testing.T) {
	orderID, tableID := uuid.New(), uuid.New()
	store := defaultStore(uuid.New(), "100")
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return tableBoundOrder(orderID, tableID, database.OrderStatusPaid), nil
	}
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		o := database.Order{}
		return o, errors.New("replay must not rewrite the order row")
	}

	evaluated := false
	store.countActiveOrdersFn = func(ctx context.Context, tid uuid.UUID) (int64, error) {
		evaluated = true
		return 0, nil
	}

	svc, pool := newTestService(store)
	result, err := svc.UpdateStatus(context.Background(), pool, "store1",
		PersistedRef(orderID), database.OrderStatusPaid)
	if err != nil {
		t.Fatalf("paid replay must succeed: %v", err)
	}
	if result.Order.Status != database.OrderStatusPaid {
		t.Fatalf("order status = %s, want PAID", result.Order.Status)
	}
	if !evaluated {
		t.Fatal("replay must still re-evaluate the table")
	}
}

func TestUpdateStatus_CancelledAlsoReleasesTable(t *testing.T) {
	orderID, tableID := uuid.New(), uuid.New()
	store := defaultStore(uuid.New(), "100")
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return tableBoundOrder(orderID, tableID, database.OrderStatusPending), nil
	}
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		o := tableBoundOrder(orderID, tableID, arg.Status)
		return o, nil
	}

	var released *database.TableStatus
	store.updateTableStatusFn = func(ctx context.Context, id uuid.UUID, status database.TableStatus) (database.DiningTable, error) {
		released = &status
		return database.DiningTable{ID: id, Status: status}, nil
	}

	svc, pool := newTestService(store)
	if _, err := svc.UpdateStatus(context.Background(), pool, "store1",
		PersistedRef(orderID), database.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if released == nil || *released != database.TableStatusAvailable {
		t.Fatalf("cancelling the last active order must release the table: %v", released)
	}
}

func TestUpdateStatus_VersionConflict(t *testing.T) {
	orderID := uuid.New()
	store := defaultStore(uuid.New(), "100")
	store.getOrderFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{ID: orderID, Status: database.OrderStatusPending, Version: 1}, nil
	}
	store.updateOrderStatusFn = func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
		return database.Order{}, pgx.ErrNoRows
	}

	svc, pool := newTestService(store)
	_, err := svc.UpdateStatus(context.Background(), pool, "store1",
		PersistedRef(orderID), database.OrderStatusConfirmed)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got: %v", err)
	}
}

func TestParseOrderRef(t *testing.T) {
	id := uuid.New()
	if ref := ParseOrderRef(id.String()); !ref.Persisted() || ref.ID() != id {
		t.Fatalf("uuid string must parse as persisted ref: %+v", ref)
	}
	if ref := ParseOrderRef("temp-abc123"); ref.Persisted() || ref.Token() != "temp-abc123" {
		t.Fatalf("non-uuid must parse as placeholder: %+v", ref)
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saigon-pos/api/internal/database"
	"github.com/saigon-pos/api/internal/service"
	"github.com/saigon-pos/api/internal/tenant"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, db service.TxBeginner, req service.CreateOrderRequest) (*service.OrderResult, error)
	AddItems(ctx context.Context, db service.TxBeginner, ref service.OrderRef, items []service.ItemRequest) (*service.OrderResult, error)
	UpdateStatus(ctx context.Context, db service.TxBeginner, tenantSub string, ref service.OrderRef, newStatus database.OrderStatus) (*service.OrderResult, error)
	UpdateItem(ctx context.Context, db database.DBTX, orderID, itemID uuid.UUID, req service.UpdateItemRequest) (database.OrderItem, error)
	DeleteItem(ctx context.Context, db database.DBTX, orderID, itemID uuid.UUID) error
	RecomputeTotals(ctx context.Context, db service.TxBeginner, orderID uuid.UUID) (*service.OrderResult, error)
}

// OrderReader defines the database reads the order handlers perform
// directly. Satisfied by *database.Queries.
type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// NewOrderReader creates an OrderReader from a tenant's handle.
type NewOrderReader func(db database.DBTX) OrderReader

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc       OrderServicer
	newReader NewOrderReader
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, newReader NewOrderReader) *OrderHandler {
	return &OrderHandler{svc: svc, newReader: newReader}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside the tenant-scoped subrouter: /api/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/items", h.AddItems)
	r.Patch("/{id}/items/{itemID}", h.UpdateItem)
	r.Delete("/{id}/items/{itemID}", h.DeleteItem)
	r.Post("/{id}/recompute", h.Recompute)
}

// --- Request / Response types ---

type createOrderRequest struct {
	TableID       string             `json:"table_id"`
	CustomerName  string             `json:"customer_name"`
	CustomerCount int32              `json:"customer_count"`
	Discount      string             `json:"discount"`
	PaymentMethod string             `json:"payment_method"`
	SalesChannel  string             `json:"sales_channel"`
	Items         []orderItemRequest `json:"items"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Notes     string `json:"notes"`
}

type addItemsRequest struct {
	Items []orderItemRequest `json:"items"`
}

type updateItemRequest struct {
	Quantity  *int32  `json:"quantity"`
	UnitPrice *string `json:"unit_price"`
	Discount  *string `json:"discount"`
	Notes     *string `json:"notes"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type orderResponse struct {
	ID            uuid.UUID      `json:"id"`
	OrderNumber   string         `json:"order_number"`
	TableID       *uuid.UUID     `json:"table_id"`
	Status        string         `json:"status"`
	CustomerName  *string        `json:"customer_name"`
	CustomerCount int32          `json:"customer_count"`
	Subtotal      string         `json:"subtotal"`
	Tax           string         `json:"tax"`
	Discount      string         `json:"discount"`
	Total         string         `json:"total"`
	PaymentMethod *string        `json:"payment_method"`
	PaymentStatus string         `json:"payment_status"`
	SalesChannel  string         `json:"sales_channel"`
	PaidAt        *time.Time     `json:"paid_at"`
	Version       int32          `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Items         []itemResponse `json:"items,omitempty"`
	Table         *tableResponse `json:"table,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
}

type itemResponse struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Discount  string    `json:"discount"`
	Total     string    `json:"total"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

// pendingResponse is returned for operations against a placeholder
// reference: the write is acknowledged without a persisted row.
type pendingResponse struct {
	Pending bool   `json:"pending"`
	Ref     string `json:"ref"`
	Status  string `json:"status,omitempty"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

func dbOrderToResponse(o database.Order) orderResponse {
	return orderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		TableID:       uuidPtr(o.TableID),
		Status:        string(o.Status),
		CustomerName:  textPtr(o.CustomerName),
		CustomerCount: o.CustomerCount,
		Subtotal:      numericString(o.Subtotal),
		Tax:           numericString(o.Tax),
		Discount:      numericString(o.Discount),
		Total:         numericString(o.Total),
		PaymentMethod: textPtr(o.PaymentMethod),
		PaymentStatus: string(o.PaymentStatus),
		SalesChannel:  string(o.SalesChannel),
		PaidAt:        timePtr(o.PaidAt),
		Version:       o.Version,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func dbItemToResponse(it database.OrderItem) itemResponse {
	return itemResponse{
		ID:        it.ID,
		OrderID:   it.OrderID,
		ProductID: it.ProductID,
		Quantity:  it.Quantity,
		UnitPrice: numericString(it.UnitPrice),
		Discount:  numericString(it.Discount),
		Total:     numericString(it.Total),
		Notes:     textPtr(it.Notes),
		CreatedAt: it.CreatedAt,
	}
}

func toOrderResponse(result *service.OrderResult) orderResponse {
	resp := dbOrderToResponse(result.Order)
	resp.Items = make([]itemResponse, len(result.Items))
	for i, it := range result.Items {
		resp.Items[i] = dbItemToResponse(it)
	}
	if result.Table != nil {
		t := dbTableToResponse(*result.Table)
		resp.Table = &t
	}
	resp.Warnings = result.Warnings
	return resp
}

// --- Handlers ---

// Create handles POST /api/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	rt := tenant.FromContext(r.Context())
	if rt == nil {
		errorJSON(w, http.StatusNotFound, "unknown tenant")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Items) == 0 {
		errorJSON(w, http.StatusBadRequest, "items are required")
		return
	}
	for i, item := range req.Items {
		if item.ProductID == "" {
			errorJSON(w, http.StatusBadRequest, formatItemError(i, "product_id is required"))
			return
		}
		if item.Quantity <= 0 {
			errorJSON(w, http.StatusBadRequest, formatItemError(i, "quantity must be > 0"))
			return
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), rt.Pool, service.CreateOrderRequest{
		Tenant:        rt.Tenant.Subdomain,
		TableID:       req.TableID,
		CustomerName:  req.CustomerName,
		CustomerCount: req.CustomerCount,
		Discount:      req.Discount,
		PaymentMethod: req.PaymentMethod,
		SalesChannel:  req.SalesChannel,
		Items:         toServiceItems(req.Items),
	})
	if err != nil {
		respondServiceError(w, "create order", err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(result))
}

// List handles GET /api/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	rt := tenant.FromContext(r.Context())
	if rt == nil {
		errorJSON(w, http.StatusNotFound, "unknown tenant")
		return
	}

	// Parse pagination
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	params := database.ListOrdersParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := database.OrderStatus(s)
		if !status.Valid() {
			errorJSON(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		params.Status = database.NullOrderStatus{OrderStatus: status, Valid: true}
	}

	orders, err := h.newReader(rt.Pool).ListOrders(r.Context(), params)
	if err != nil {
		respondServiceError(w, "list orders", err)
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /api/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	rt := tenant.FromContext(r.Context())
	if rt == nil {
		errorJSON(w, http.StatusNotFound, "unknown tenant")
		return
	}

	ref := service.ParseOrderRef(chi.URLParam(r, "id"))
	if !ref.Persisted() {
		// A placeholder reference has no server-side row to show.
		writeJSON(w, http.StatusOK, pendingResponse{Pending: true, Ref: ref.Token()})
		return
	}

	reader := h.newReader(rt.Pool)
	order, err := reader.GetOrder(r.Context(), ref.ID())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "order not found")
			return
		}
		respondServiceError(w, "get order", err)
		return
	}

	items, err := reader.ListOrderItemsByOrder(r.Context(), order.ID)
	if err != nil {
		respondServiceError(w, "list order items", err)
		return
	}

	resp := dbOrderToResponse(order)
	resp.Items = make([]itemResponse, len(items))
	for i, it := range items {
		resp.Items[i] = dbItemToResponse(it)
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddItems handles POST /api/orders/{id}/items.
func (h *OrderHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	rt := tenant.FromContext(r.Context())
	if rt == nil {
		errorJSON(w, http.StatusNotFound, "unknown tenant")
		return
	}

	var req addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ref := service.ParseOrderRef(chi.URLParam(r, "id"))
	result, err := h.svc.AddItems(r.Context(), rt.Pool, ref, toServiceItems(req.Items))
	if err != nil {
		respondServiceError(w, "add items", err)
		return
	}
	if result.Pending {
		writeJSON(w, http.StatusAccepted, pendingResponse{Pending: true, Ref: result.PendingRef})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

// UpdateStatus handles PATCH /api/orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	rt := tenant.FromContext(r.Context())
	if rt == nil {
		errorJSON(w, http.StatusNotFound, "unknown tenant")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		errorJSON(w, http.StatusBadRequest, "status is required")
		return
	}

	ref := service.ParseOrderRef(chi.URLParam(r, "id"))
	result, err := h.svc.UpdateStatus(r.Context(), rt.Pool, rt.Tenant.Subdomain, ref, database.OrderStatus(req.Status))
	if err != nil {
		respondServiceError(w, "update order status", err)
		return
	}
	if result.Pending {
		writeJSON(w, http.StatusAccepted, pendingResponse{
			Pending: true,
			Ref:     result.PendingRef,
			Status:  string(result.PendingStatus),
		})
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

// UpdateItem handles PATCH /api/orders/{id}/items/{itemID}.
func (h *OrderHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	rt := tenant.FromContext(r.Context())
	if rt == nil {
		errorJSON(w, http.StatusNotFound, "unknown tenant")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid order ID")
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid item ID")
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.svc.UpdateItem(r.Context(), rt.Pool, orderID, itemID, service.UpdateItemRequest{
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		Discount:  req.Discount,
		Notes:     req.Notes,
	})
	if err != nil {
		respondServiceError(w, "update order item", err)
		return
	}

	writeJSON(w, http.StatusOK, dbItemToResponse(item))
}

// DeleteItem handles DELETE /api/orders/{id}/items/{itemID}.
func (h *OrderHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	rt := tenant.FromContext(r.Context())
	if rt == nil {
		errorJSON(w, http.StatusNotFound, "unknown tenant")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid order ID")
		return
	}
	itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid item ID")
		return
	}

	if err := h.svc.DeleteItem(r.Context(), rt.Pool, orderID, itemID); err != nil {
		respondServiceError(w, "delete order item", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Recompute handles POST /api/orders/{id}/recompute.
func (h *OrderHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	rt := tenant.FromContext(r.Context())
	if rt == nil {
		errorJSON(w, http.StatusNotFound, "unknown tenant")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	result, err := h.svc.RecomputeTotals(r.Context(), rt.Pool, orderID)
	if err != nil {
		respondServiceError(w, "recompute order totals", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(result))
}

func toServiceItems(items []orderItemRequest) []service.ItemRequest {
	out := make([]service.ItemRequest, len(items))
	for i, item := range items {
		out[i] = service.ItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Notes:     item.Notes,
		}
	}
	return out
}

func formatItemError(index int, msg string) string {
	return "items[" + strconv.Itoa(index) + "]: " + msg
}

package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/saigon-pos/api/internal/database"
	"github.com/saigon-pos/api/internal/tenant"
)

// TableReader defines the database reads the table handlers perform.
// Satisfied by *database.Queries.
type TableReader interface {
	GetTable(ctx context.Context, id uuid.UUID) (database.DiningTable, error)
	ListTables(ctx context.Context) ([]database.DiningTable, error)
}

// NewTableReader creates a TableReader from a tenant's handle.
type NewTableReader func(db database.DBTX) TableReader

// TableHandler handles dining table endpoints. Occupancy is written
// only by the order lifecycle; this surface is read-only.
type TableHandler struct {
	newReader NewTableReader
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(newReader NewTableReader) *TableHandler {
	return &TableHandler{newReader: newReader}
}

// RegisterRoutes registers table endpoints on the given Chi router.
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

type tableResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func dbTableToResponse(t database.DiningTable) tableResponse {
	return tableResponse{
		ID:        t.ID,
		Name:      t.Name,
		Status:    string(t.Status),
		UpdatedAt: t.UpdatedAt,
	}
}

// List handles GET /api/tables.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	rt := tenant.FromContext(r.Context())
	if rt == nil {
		errorJSON(w, http.StatusNotFound, "unknown tenant")
		return
	}

	tables, err := h.newReader(rt.Pool).ListTables(r.Context())
	if err != nil {
		logrus.WithError(err).Error("list tables")
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]tableResponse, len(tables))
	for i, t := range tables {
		resp[i] = dbTableToResponse(t)
	}
	writeJSON(w, http.StatusOK, map[string][]tableResponse{"tables": resp})
}

// Get handles GET /api/tables/{id}.
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	rt := tenant.FromContext(r.Context())
	if rt == nil {
		errorJSON(w, http.StatusNotFound, "unknown tenant")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid table ID")
		return
	}

	table, err := h.newReader(rt.Pool).GetTable(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			errorJSON(w, http.StatusNotFound, "table not found")
			return
		}
		logrus.WithError(err).Error("get table")
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, dbTableToResponse(table))
}

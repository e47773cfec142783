package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saigon-pos/api/internal/tenant"
)

// TenantHandler administers the tenant registry. Mounted outside the
// tenant-scoped group: these endpoints address the process, not one
// store.
type TenantHandler struct {
	registry *tenant.Registry
}

// NewTenantHandler creates a new TenantHandler.
func NewTenantHandler(registry *tenant.Registry) *TenantHandler {
	return &TenantHandler{registry: registry}
}

// RegisterRoutes registers tenant admin endpoints on the given router.
func (h *TenantHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Delete("/{subdomain}", h.Delete)
}

type tenantRequest struct {
	Subdomain  string `json:"subdomain"`
	ConnString string `json:"connection_string"`
	StoreName  string `json:"store_name"`
	Active     *bool  `json:"active"`
}

type tenantResponse struct {
	Subdomain string `json:"subdomain"`
	StoreName string `json:"store_name"`
	Active    bool   `json:"active"`
}

// List handles GET /api/admin/tenants. Connection strings carry
// credentials and are never echoed back.
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants := h.registry.Tenants()
	resp := make([]tenantResponse, len(tenants))
	for i, t := range tenants {
		resp[i] = tenantResponse{Subdomain: t.Subdomain, StoreName: t.StoreName, Active: t.Active}
	}
	writeJSON(w, http.StatusOK, map[string][]tenantResponse{"tenants": resp})
}

// Create handles POST /api/admin/tenants.
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subdomain == "" || req.ConnString == "" {
		errorJSON(w, http.StatusBadRequest, "subdomain and connection_string are required")
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	err := h.registry.Add(tenant.Tenant{
		Subdomain:  req.Subdomain,
		ConnString: req.ConnString,
		StoreName:  req.StoreName,
		Active:     active,
	})
	if err != nil {
		if errors.Is(err, tenant.ErrTenantExists) {
			errorJSON(w, http.StatusConflict, err.Error())
			return
		}
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, tenantResponse{
		Subdomain: req.Subdomain,
		StoreName: req.StoreName,
		Active:    active,
	})
}

// Delete handles DELETE /api/admin/tenants/{subdomain}. Removal is
// idempotent; the tenant's pool is drained and closed off-request.
func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	subdomain := chi.URLParam(r, "subdomain")
	if subdomain == "" {
		errorJSON(w, http.StatusBadRequest, "subdomain is required")
		return
	}

	h.registry.Remove(subdomain)
	w.WriteHeader(http.StatusNoContent)
}

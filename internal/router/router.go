package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/saigon-pos/api/internal/config"
	"github.com/saigon-pos/api/internal/database"
	"github.com/saigon-pos/api/internal/handler"
	mw "github.com/saigon-pos/api/internal/middleware"
	"github.com/saigon-pos/api/internal/service"
	"github.com/saigon-pos/api/internal/tenant"
	"github.com/saigon-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
// Tenant-scoped routes sit behind the resolver middleware; admin
// routes address the registry itself and are not tenant-scoped.
func New(cfg *config.Config, registry *tenant.Registry, hub *ws.Hub) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(mw.RequestLogger)
	r.Use(chimw.Recoverer)

	// CORS configuration. Stores run terminals on their own subdomains,
	// so origins cannot be enumerated up front.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Tenant"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket route (resolves the tenant internally before upgrading)
	r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, registry, w, r)
	})

	r.Route("/api", func(r chi.Router) {
		// Registry administration (not tenant-scoped)
		tenantHandler := handler.NewTenantHandler(registry)
		r.Route("/admin/tenants", tenantHandler.RegisterRoutes)

		// Tenant-scoped routes
		r.Group(func(r chi.Router) {
			r.Use(mw.ResolveTenant(registry))

			// Orders
			newStore := func(db database.DBTX) service.OrderStore {
				return database.New(db)
			}
			orderService := service.NewOrderService(newStore, hub)
			orderHandler := handler.NewOrderHandler(
				orderService,
				func(db database.DBTX) handler.OrderReader {
					return database.New(db)
				},
			)
			r.Route("/orders", orderHandler.RegisterRoutes)

			// Tables
			tableHandler := handler.NewTableHandler(
				func(db database.DBTX) handler.TableReader {
					return database.New(db)
				},
			)
			r.Route("/tables", tableHandler.RegisterRoutes)
		})
	})

	return r
}

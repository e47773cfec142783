package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/saigon-pos/api/internal/tenant"
)

// ResolveTenant resolves the store from the request's Host subdomain
// (or an X-Tenant header, which wins when present) and attaches the
// tenant plus its pooled database handle to the request context.
//
// An unresolvable token is a hard 404; there is no fallback store. A
// tenant whose database cannot be reached is a 503, kept distinct so
// callers can retry or report differently.
//
// The request context downstream carries the registry's operation
// deadline, so pool acquisition and query execution are bounded by the
// configured acquire timeout instead of hanging on a stalled database.
func ResolveTenant(registry *tenant.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Tenant")
			if token == "" {
				token = r.Host
			}
			if token == "" {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown tenant"})
				return
			}

			t, err := registry.Resolve(token)
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown tenant"})
				return
			}

			ctx, cancel := registry.OperationContext(r.Context())
			defer cancel()

			pool, err := registry.Pool(ctx, t.Subdomain)
			if err != nil {
				if errors.Is(err, tenant.ErrUnknownTenant) {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown tenant"})
					return
				}
				logrus.WithError(err).WithField("tenant", t.Subdomain).Error("tenant pool unavailable")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database unavailable"})
				return
			}

			ctx = tenant.NewContext(ctx, &tenant.RequestTenant{Tenant: t, Pool: pool})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

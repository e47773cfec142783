package tenant

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const tenantKey contextKey = "tenant"

// RequestTenant is the resolved tenant plus its pooled handle, carried
// through the request context by the middleware.
type RequestTenant struct {
	Tenant Tenant
	Pool   *pgxpool.Pool
}

// NewContext attaches a resolved tenant to ctx.
func NewContext(ctx context.Context, rt *RequestTenant) context.Context {
	return context.WithValue(ctx, tenantKey, rt)
}

// FromContext returns the tenant attached by the middleware, or nil.
func FromContext(ctx context.Context) *RequestTenant {
	rt, _ := ctx.Value(tenantKey).(*RequestTenant)
	return rt
}

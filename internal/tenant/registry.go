// Package tenant maps store subdomains to their configuration and
// database connection pools. The registry is an injected dependency,
// never package-level state, so tests can run isolated registries.
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Errors returned by the registry. Unknown tenant and unreachable
// database are distinct conditions; callers map them to different
// responses.
var (
	ErrUnknownTenant       = errors.New("unknown tenant")
	ErrDatabaseUnavailable = errors.New("database unavailable")
	ErrTenantExists        = errors.New("tenant already registered")
)

// Tenant is one store's configuration. Identity is the subdomain.
type Tenant struct {
	Subdomain  string `json:"subdomain"`
	ConnString string `json:"connection_string"`
	StoreName  string `json:"store_name"`
	Active     bool   `json:"active"`
}

// PoolConfig bounds every per-tenant connection pool.
type PoolConfig struct {
	MaxConns       int32
	ConnectTimeout time.Duration
	AcquireTimeout time.Duration
}

// Registry holds the tenant map and the cache of lazily-built pools,
// both keyed by subdomain. Pools are populated on first use, evicted
// on explicit removal, and never implicitly expire.
type Registry struct {
	cfg PoolConfig

	mu       sync.RWMutex
	tenants  map[string]Tenant
	pools    map[string]*pgxpool.Pool
	building map[string]*poolBuild
}

// poolBuild is an in-flight pool construction. The first request for a
// subdomain builds; concurrent requests for the same subdomain wait on
// done instead of dialing a second time.
type poolBuild struct {
	done chan struct{}
	pool *pgxpool.Pool
	err  error
}

// NewRegistry creates an empty registry with the given pool bounds.
func NewRegistry(cfg PoolConfig) *Registry {
	return &Registry{
		cfg:      cfg,
		tenants:  make(map[string]Tenant),
		pools:    make(map[string]*pgxpool.Pool),
		building: make(map[string]*poolBuild),
	}
}

// LoadFile reads tenant definitions from a JSON file.
func LoadFile(path string) ([]Tenant, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenants file: %w", err)
	}
	var tenants []Tenant
	if err := json.Unmarshal(data, &tenants); err != nil {
		return nil, fmt.Errorf("parse tenants file: %w", err)
	}
	return tenants, nil
}

// SubdomainFromHost extracts the tenant token from a Host header:
// "store1.pos.example.com:8081" resolves to "store1". A bare host
// without dots is used as-is.
func SubdomainFromHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		return host[:i]
	}
	return host
}

// Resolve looks up a tenant by subdomain or full host. An unknown or
// inactive subdomain is ErrUnknownTenant; there is no fallback store.
func (r *Registry) Resolve(hostOrSubdomain string) (Tenant, error) {
	sub := SubdomainFromHost(hostOrSubdomain)

	r.mu.RLock()
	t, ok := r.tenants[sub]
	r.mu.RUnlock()

	if !ok || !t.Active {
		return Tenant{}, fmt.Errorf("%w: %q", ErrUnknownTenant, sub)
	}
	return t, nil
}

// Pool returns the cached connection pool for subdomain, constructing
// and caching one on first use. Construction dials outside the
// registry lock, so a tenant with a slow or dead database never stalls
// lookups for the others; concurrent requests for the same subdomain
// share one dial attempt. Construction is bounded by the configured
// connect timeout and never hangs; failure surfaces as
// ErrDatabaseUnavailable.
func (r *Registry) Pool(ctx context.Context, subdomain string) (*pgxpool.Pool, error) {
	r.mu.RLock()
	pool, ok := r.pools[subdomain]
	r.mu.RUnlock()
	if ok {
		return pool, nil
	}

	r.mu.Lock()
	// Another request may have built it while we waited for the lock.
	if pool, ok := r.pools[subdomain]; ok {
		r.mu.Unlock()
		return pool, nil
	}
	if b, ok := r.building[subdomain]; ok {
		r.mu.Unlock()
		return r.awaitBuild(ctx, b)
	}
	t, ok := r.tenants[subdomain]
	if !ok || !t.Active {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownTenant, subdomain)
	}
	b := &poolBuild{done: make(chan struct{})}
	r.building[subdomain] = b
	r.mu.Unlock()

	// Detached from the first caller's cancellation: the build is
	// shared with waiters, and connect bounds it on its own.
	pool, err := r.connect(context.WithoutCancel(ctx), t)

	r.mu.Lock()
	delete(r.building, subdomain)
	if err == nil {
		if cur, ok := r.tenants[subdomain]; !ok || !cur.Active {
			// Tenant was removed or deactivated mid-dial.
			pool.Close()
			pool, err = nil, fmt.Errorf("%w: %q", ErrUnknownTenant, subdomain)
		} else {
			r.pools[subdomain] = pool
		}
	}
	b.pool, b.err = pool, err
	r.mu.Unlock()
	close(b.done)

	return pool, err
}

func (r *Registry) awaitBuild(ctx context.Context, b *poolBuild) (*pgxpool.Pool, error) {
	select {
	case <-b.done:
		return b.pool, b.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, ctx.Err())
	}
}

// OperationContext bounds a request's database work with the
// configured acquire timeout. A zero timeout leaves ctx untouched.
func (r *Registry) OperationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.AcquireTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.AcquireTimeout)
}

func (r *Registry) connect(ctx context.Context, t Tenant) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(t.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	poolCfg.MaxConns = r.cfg.MaxConns
	poolCfg.ConnConfig.ConnectTimeout = r.cfg.ConnectTimeout

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}

	logrus.WithField("tenant", t.Subdomain).Info("connection pool established")
	return pool, nil
}

// Add registers a tenant. Registering an existing subdomain is an
// error; use Remove first to replace a definition.
func (r *Registry) Add(t Tenant) error {
	if t.Subdomain == "" || t.ConnString == "" {
		return errors.New("tenant requires subdomain and connection string")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tenants[t.Subdomain]; ok {
		return fmt.Errorf("%w: %q", ErrTenantExists, t.Subdomain)
	}
	r.tenants[t.Subdomain] = t
	return nil
}

// Remove evicts a tenant and its cached pool. The pool is closed on a
// delay so requests already holding the handle can finish.
func (r *Registry) Remove(subdomain string) {
	r.mu.Lock()
	delete(r.tenants, subdomain)
	pool, ok := r.pools[subdomain]
	delete(r.pools, subdomain)
	r.mu.Unlock()

	if ok {
		go func() {
			time.Sleep(30 * time.Second)
			pool.Close()
		}()
	}
}

// Tenants returns a snapshot of all registered tenants.
func (r *Registry) Tenants() []Tenant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	return out
}

// Close shuts down every cached pool. Used at process shutdown and in
// tests.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sub, pool := range r.pools {
		pool.Close()
		delete(r.pools, sub)
	}
}

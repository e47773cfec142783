//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saigon-pos/api/internal/config"
	"github.com/saigon-pos/api/internal/database"
	"github.com/saigon-pos/api/internal/router"
	"github.com/saigon-pos/api/internal/tenant"
	"github.com/saigon-pos/api/internal/ws"
)

// TestIntegrationOrderLifecycle exercises the full stack against a real
// PostgreSQL database: create a table-bound order, walk it to PAID, and
// verify pricing figures and table release along the way.
func TestIntegrationOrderLifecycle(t *testing.T) {
	ctx := context.Background()

	connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	if err := database.Migrate(connStr); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	// One tenant, backed by the container.
	registry := tenant.NewRegistry(tenant.PoolConfig{
		MaxConns:       4,
		ConnectTimeout: 5 * time.Second,
	})
	defer registry.Close()
	if err := registry.Add(tenant.Tenant{
		Subdomain:  "store1",
		ConnString: connStr,
		StoreName:  "Integration Store",
		Active:     true,
	}); err != nil {
		t.Fatalf("register tenant: %v", err)
	}

	cfg := &config.Config{Port: "8081", Env: "test"}
	hub := ws.NewHub()
	// NOTE: hub.Run() goroutine leaks on test exit — Hub has no shutdown mechanism.
	// Acceptable for tests; production should add context-based shutdown.
	go hub.Run()

	server := httptest.NewServer(router.New(cfg, registry, hub))
	defer server.Close()

	// --- Seed catalog and a dining table ---
	tableID := uuid.New()
	productA := uuid.New() // 100 x2 = 200
	productB := uuid.New() // 50 x1 = 50
	mustExec(t, ctx, pool, `INSERT INTO tables (id, name, status) VALUES ($1, 'T1', 'AVAILABLE')`, tableID)
	mustExec(t, ctx, pool, `INSERT INTO products (id, name, price, stock_quantity) VALUES ($1, 'Pho Bo', 100, 10)`, productA)
	mustExec(t, ctx, pool, `INSERT INTO products (id, name, price, stock_quantity) VALUES ($1, 'Ca Phe', 50, 10)`, productB)

	// --- 1. Create a table-bound order with a 30 discount ---
	created := doJSON(t, server, http.MethodPost, "/api/orders/", map[string]any{
		"table_id": tableID.String(),
		"discount": "30",
		"items": []map[string]any{
			{"product_id": productA.String(), "quantity": 2},
			{"product_id": productB.String(), "quantity": 1},
		},
	}, http.StatusCreated)

	orderID := created["id"].(string)
	if got := created["subtotal"].(string); got != "250.00" {
		t.Fatalf("subtotal = %s, want 250.00", got)
	}
	if got := created["total"].(string); got != "220.00" {
		t.Fatalf("total = %s, want 220.00", got)
	}

	// Discount shares: 200/250*30 rounds to 24, the last item takes the
	// exact remainder 6.
	items := created["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	shareA := items[0].(map[string]any)["discount"].(string)
	shareB := items[1].(map[string]any)["discount"].(string)
	if shareA != "24.00" || shareB != "6.00" {
		t.Fatalf("discount shares = %s/%s, want 24.00/6.00", shareA, shareB)
	}

	// Table flips to OCCUPIED.
	tbl := doJSON(t, server, http.MethodGet, "/api/tables/"+tableID.String(), nil, http.StatusOK)
	if tbl["status"].(string) != "OCCUPIED" {
		t.Fatalf("table status = %s, want OCCUPIED", tbl["status"])
	}

	// --- 2. Walk the order to PAID ---
	for _, status := range []string{"CONFIRMED", "PREPARING", "READY", "SERVED", "PAID"} {
		doJSON(t, server, http.MethodPatch, "/api/orders/"+orderID+"/status",
			map[string]any{"status": status}, http.StatusOK)
	}

	paid := doJSON(t, server, http.MethodGet, "/api/orders/"+orderID, nil, http.StatusOK)
	if paid["status"].(string) != "PAID" {
		t.Fatalf("order status = %s, want PAID", paid["status"])
	}
	if paid["payment_status"].(string) != "PAID" {
		t.Fatalf("payment_status = %s, want PAID", paid["payment_status"])
	}
	if paid["paid_at"] == nil {
		t.Fatal("paid_at not stamped")
	}

	// Last active order paid: the table is released.
	tbl = doJSON(t, server, http.MethodGet, "/api/tables/"+tableID.String(), nil, http.StatusOK)
	if tbl["status"].(string) != "AVAILABLE" {
		t.Fatalf("table status = %s, want AVAILABLE", tbl["status"])
	}

	// --- 3. PAID replay is idempotent ---
	doJSON(t, server, http.MethodPatch, "/api/orders/"+orderID+"/status",
		map[string]any{"status": "PAID"}, http.StatusOK)

	// --- 4. Mutating a terminal order is rejected ---
	resp := rawJSON(t, server, http.MethodPatch, "/api/orders/"+orderID+"/status",
		map[string]any{"status": "CANCELLED"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("terminal mutation status = %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// --- 5. Stock was decremented ---
	var stock int32
	if err := pool.QueryRow(ctx, `SELECT stock_quantity FROM products WHERE id = $1`, productA).Scan(&stock); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	if stock != 8 {
		t.Fatalf("stock_quantity = %d, want 8", stock)
	}

	// --- 6. Unknown subdomain gets no fallback ---
	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/orders/", nil)
	req.Header.Set("X-Tenant", "nowhere")
	r2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer r2.Body.Close()
	if r2.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown tenant status = %d, want 404", r2.StatusCode)
	}
}

func setupPostgresContainer(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("pos_test"),
		tcpostgres.WithUsername("pos"),
		tcpostgres.WithPassword("pos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
	return connStr, cleanup
}

func mustExec(t *testing.T, ctx context.Context, pool *pgxpool.Pool, sql string, args ...any) {
	t.Helper()
	if _, err := pool.Exec(ctx, sql, args...); err != nil {
		t.Fatalf("exec %q: %v", sql, err)
	}
}

func rawJSON(t *testing.T, server *httptest.Server, method, path string, body map[string]any) *http.Response {
	t.Helper()

	var buf *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(data)
	} else {
		buf = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant", "store1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func doJSON(t *testing.T, server *httptest.Server, method, path string, body map[string]any, wantStatus int) map[string]any {
	t.Helper()

	resp := rawJSON(t, server, method, path, body)
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("%s %s: decode response: %v", method, path, err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status = %d, want %d: %v", method, path, resp.StatusCode, wantStatus, decoded)
	}
	return decoded
}

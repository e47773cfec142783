package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-wide settings. Tenant definitions live in the
// JSON file referenced by TenantsFile; everything else comes from env.
type Config struct {
	Port        string
	Env         string
	TenantsFile string

	// Per-tenant connection pool settings.
	PoolMaxConns       int32
	PoolConnectTimeout time.Duration
	PoolAcquireTimeout time.Duration
}

func Load() *Config {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	return &Config{
		Port:               getEnv("PORT", "8081"),
		Env:                getEnv("APP_ENV", "development"),
		TenantsFile:        getEnv("TENANTS_FILE", "tenants.json"),
		PoolMaxConns:       int32(getEnvInt("DB_POOL_MAX_CONNS", 10)),
		PoolConnectTimeout: getEnvDuration("DB_CONNECT_TIMEOUT", 5*time.Second),
		PoolAcquireTimeout: getEnvDuration("DB_ACQUIRE_TIMEOUT", 3*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

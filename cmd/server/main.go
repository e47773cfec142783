package main

import (
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/saigon-pos/api/internal/config"
	"github.com/saigon-pos/api/internal/database"
	"github.com/saigon-pos/api/internal/router"
	"github.com/saigon-pos/api/internal/tenant"
	"github.com/saigon-pos/api/internal/ws"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	registry := tenant.NewRegistry(tenant.PoolConfig{
		MaxConns:       cfg.PoolMaxConns,
		ConnectTimeout: cfg.PoolConnectTimeout,
		AcquireTimeout: cfg.PoolAcquireTimeout,
	})
	defer registry.Close()

	tenants, err := tenant.LoadFile(cfg.TenantsFile)
	if err != nil {
		logrus.WithError(err).Fatal("load tenants file")
	}
	for _, t := range tenants {
		if err := registry.Add(t); err != nil {
			logrus.WithError(err).WithField("tenant", t.Subdomain).Fatal("register tenant")
		}
	}
	logrus.WithField("count", len(tenants)).Info("tenants registered")

	// Every active store gets its schema migrated at boot. A store that
	// cannot be migrated aborts startup rather than serving stale DDL.
	for _, t := range tenants {
		if !t.Active {
			continue
		}
		if err := database.Migrate(t.ConnString); err != nil {
			logrus.WithError(err).WithField("tenant", t.Subdomain).Fatal("migrate tenant database")
		}
		logrus.WithField("tenant", t.Subdomain).Info("migrations applied")
	}

	hub := ws.NewHub()
	go hub.Run()

	r := router.New(cfg, registry, hub)

	addr := ":" + cfg.Port
	logrus.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("starting server")
	if err := http.ListenAndServe(addr, r); err != nil {
		logrus.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}

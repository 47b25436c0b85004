package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/jsvoboda/goaliesync/internal/api"
	"github.com/jsvoboda/goaliesync/internal/config"
	"github.com/jsvoboda/goaliesync/internal/identity"
	"github.com/jsvoboda/goaliesync/internal/importer"
	"github.com/jsvoboda/goaliesync/internal/lifecycle"
	"github.com/jsvoboda/goaliesync/internal/localstore"
	"github.com/jsvoboda/goaliesync/internal/metrics"
	"github.com/jsvoboda/goaliesync/internal/remote"
	"github.com/jsvoboda/goaliesync/internal/services"
	syncengine "github.com/jsvoboda/goaliesync/internal/sync"
	"github.com/jsvoboda/goaliesync/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	local, err := localstore.Open(localstore.Config{Path: cfg.Store.Path, Logger: logger})
	if err != nil {
		logger.Fatalf("open local store: %v", err)
	}
	defer local.Close()
	logger.Info("local store ready")

	// The remote side is optional: without a DSN the tracker runs fully
	// offline and sync calls short-circuit with a not-configured result.
	var remoteStore syncengine.RemoteStore
	if cfg.RemoteConfigured() {
		store, err := remote.Connect(cfg.Remote.DSN, logger)
		if err != nil {
			logger.Fatalf("connect remote store: %v", err)
		}
		if err := store.Migrate(); err != nil {
			logger.Fatalf("migrate remote store: %v", err)
		}
		remoteStore = store
		logger.Info("remote store connected and migrated")
	} else {
		logger.Warn("no remote DSN configured, running local-only")
	}

	metrics.Register()

	resolver, err := identity.NewResolver(local)
	if err != nil {
		logger.Fatalf("load identity mappings: %v", err)
	}
	machine := lifecycle.NewMachine(local, logger)
	engine := syncengine.NewEngine(local, remoteStore, resolver, machine, logger)
	tracker := services.NewTracker(local, machine, engine, logger)
	imp := importer.New(local, importer.PrefixCategoryMatcher{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Sync.Enabled && engine.Configured() {
		worker := &workers.SyncWorker{Engine: engine, Interval: cfg.Sync.Interval, Logger: logger}
		go worker.Run(ctx)
		logger.Infof("background sync every %s", cfg.Sync.Interval)
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	api.NewHandler(tracker, local, engine, imp, logger).Register(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Infof("goalie sync listening on %s", addr)
	if err := http.ListenAndServe(addr, corsMiddleware.Handler(r)); err != nil {
		logger.Fatalf("listener failed: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civicat/internal/catalog"
	cataloghandler "civicat/internal/catalog/handler"
	catalogmetrics "civicat/internal/catalog/metrics"
	"civicat/internal/docstore"
	"civicat/internal/geocode"
	"civicat/internal/ingest"
	ingesthandler "civicat/internal/ingest/handler"
	ingestmetrics "civicat/internal/ingest/metrics"
	"civicat/internal/platform/config"
	"civicat/internal/platform/httpserver"
	"civicat/internal/platform/logger"
	platformmetrics "civicat/internal/platform/metrics"
	"civicat/internal/platform/middleware"
	"civicat/internal/platform/redis"
)

// main wires dependencies and owns the server lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	var store docstore.Store
	if cfg.DatabaseURL != "" {
		pg, err := docstore.Open(cfg.DatabaseURL)
		if err != nil {
			log.Error("open postgres store", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
		log.Info("using postgres store")
	} else {
		store = docstore.NewInMemory()
		log.Warn("no database configured, using in-memory store")
	}

	var cache geocode.Cache
	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = geocode.NewRedisCache(redisClient, cfg.GeocodeCacheTTL, log)
		log.Info("geocode cache enabled")
	}

	var geocoder catalog.Geocoder
	if cfg.GeocodeAPIKey != "" {
		geocoder = geocode.New(cfg.GeocodeBaseURL, cfg.GeocodeAPIKey, cfg.GeocodeCountry, cfg.GeocodeLanguage, cache, log)
	} else {
		log.Warn("no geocode API key configured, address updates will not be geocoded")
	}

	catalogService := catalog.NewService(store, geocoder, log, catalogmetrics.New())

	aliasFile, err := os.Open(cfg.CityNamesPath)
	if err != nil {
		log.Error("open city names", "path", cfg.CityNamesPath, "error", err)
		os.Exit(1)
	}
	aliases, err := ingest.LoadAliasTable(aliasFile)
	aliasFile.Close()
	if err != nil {
		log.Error("load city names", "error", err)
		os.Exit(1)
	}
	log.Info("city whitelist loaded", "cities", aliases.Cities())

	ingestService := ingest.NewService(store, aliases, cfg.SourceURL, log, ingestmetrics.New())

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(platformmetrics.NewHTTP().Middleware)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ingesthandler.New(ingestService, log, cfg.IngestToken).Register(router)
	cataloghandler.New(catalogService, log).Register(router)

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

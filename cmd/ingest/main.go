package main

import (
	"context"
	"os"

	"civicat/internal/docstore"
	"civicat/internal/ingest"
	ingestmetrics "civicat/internal/ingest/metrics"
	"civicat/internal/platform/config"
	"civicat/internal/platform/logger"
)

// main runs one ingestion pass and exits, for cron or manual invocation.
// The same logic is reachable over HTTP through the server's /ingest/run.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	var store docstore.Store
	if cfg.DatabaseURL != "" {
		pg, err := docstore.Open(cfg.DatabaseURL)
		if err != nil {
			log.Error("open postgres store", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	} else {
		log.Error("CIVICAT_DATABASE_URL is required, an in-memory run would be discarded")
		os.Exit(1)
	}

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

	service := ingest.NewService(store, aliases, cfg.SourceURL, log, ingestmetrics.New())
	summary, err := service.Run(ctx, func(p ingest.Progress) {
		log.Info("ingestion progress",
			"processed", p.Processed,
			"loaded", p.Loaded,
			"dropped", p.Dropped,
			"workspaces", p.Workspaces,
		)
	})
	if err != nil {
		log.Error("ingestion run failed", "error", err)
		os.Exit(1)
	}
	log.Info("ingestion run finished",
		"processed", summary.Processed,
		"loaded", summary.Loaded,
		"dropped", summary.Dropped,
		"workspaces", summary.Workspaces,
	)
}

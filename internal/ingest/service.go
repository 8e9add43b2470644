package ingest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"civicat/internal/docstore"
	ingestmetrics "civicat/internal/ingest/metrics"
	dErrors "civicat/pkg/domain-errors"
)

// Service runs complete ingestion passes against the configured upstream
// dataset. It is safe for concurrent use; each run carries its own state.
type Service struct {
	reconciler *Reconciler
	client     *http.Client
	sourceURL  string
	logger     *slog.Logger
	metrics    *ingestmetrics.Metrics
}

func NewService(store docstore.Store, aliases *AliasTable, sourceURL string, logger *slog.Logger, metrics *ingestmetrics.Metrics) *Service {
	return &Service{
		reconciler: NewReconciler(store, aliases, logger, metrics),
		client:     &http.Client{Timeout: 10 * time.Minute},
		sourceURL:  sourceURL,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run fetches the upstream dataset and reconciles it into the store.
func (s *Service) Run(ctx context.Context, onProgress func(Progress)) (*Summary, error) {
	started := time.Now()

	src, closer, err := FetchSource(ctx, s.client, s.sourceURL)
	if err != nil {
		s.metrics.ObserveRun(started, "fetch_error")
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "fetch source dataset")
	}
	defer closer.Close()

	summary, err := s.reconciler.Run(ctx, src, onProgress)
	if err != nil {
		s.metrics.ObserveRun(started, "error")
		return nil, err
	}
	s.metrics.ObserveRun(started, "ok")
	return summary, nil
}

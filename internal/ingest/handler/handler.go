package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/go-chi/chi/v5"

	"civicat/internal/ingest"
	dErrors "civicat/pkg/domain-errors"
	"civicat/pkg/platform/httputil"
	"civicat/pkg/requestcontext"
)

// Service defines the ingestion operation exposed over HTTP.
type Service interface {
	Run(ctx context.Context, onProgress func(ingest.Progress)) (*ingest.Summary, error)
}

// Handler exposes ingestion runs as a token-guarded SSE endpoint so
// operators can watch a long run without polling.
type Handler struct {
	service Service
	logger  *slog.Logger
	token   string
}

func New(service Service, logger *slog.Logger, token string) *Handler {
	return &Handler{service: service, logger: logger, token: token}
}

// Register mounts ingestion endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/ingest/run", h.HandleRun)
}

// HandleRun handles POST /ingest/run. The response is a server-sent event
// stream: progress events while the run is in flight, then a single done
// event with the summary, or an error event on failure.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	if h.token == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Admin-Token")), []byte(h.token)) != 1 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "invalid ingestion token"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	emit := func(event string, data any) {
		if err := sse.Encode(w, sse.Event{Event: event, Data: data}); err != nil {
			h.logger.WarnContext(ctx, "sse write failed", "request_id", requestID, "error", err)
			return
		}
		flusher.Flush()
	}

	summary, err := h.service.Run(ctx, func(p ingest.Progress) {
		emit("progress", p)
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "ingestion run failed",
			"request_id", requestID,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		emit("error", map[string]string{"error": string(dErrors.CodeOf(err))})
		return
	}

	h.logger.InfoContext(ctx, "ingestion run completed",
		"request_id", requestID,
		"processed", summary.Processed,
		"loaded", summary.Loaded,
		"dropped", summary.Dropped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	emit("done", summary)
}

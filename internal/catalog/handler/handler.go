package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"civicat/internal/catalog"
	"civicat/internal/docstore"
	"civicat/pkg/platform/httputil"
	"civicat/pkg/requestcontext"
)

// Service defines the catalog operations the handler exposes.
type Service interface {
	CreateItem(ctx context.Context, workspace, secret string, payload map[string]any) (docstore.Document, error)
	GetWorkspace(ctx context.Context, workspace, secret string) (docstore.Document, error)
	UpdateWorkspace(ctx context.Context, workspace, secret string, metadata map[string]any) error
	ListItems(ctx context.Context, workspace, secret string, params catalog.ListParams) ([]docstore.Document, error)
	GetItem(ctx context.Context, workspace, itemID, secret, itemKey string) (docstore.Document, error)
	UpdateItem(ctx context.Context, workspace, itemID, secret, itemKey string, payload map[string]any) (docstore.Document, error)
	DeleteItem(ctx context.Context, workspace, itemID, secret string) error
	DeleteItems(ctx context.Context, workspace, secret string) (int, error)
}

// Handler wires catalog endpoints to the catalog service. The caller's
// workspace secret travels in the Authorization header; an item-level secret
// travels in the item-key query parameter.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a catalog handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts catalog endpoints on the router. The /items routes are
// registered alongside /{item}; the router prefers the static segment, so
// "items" is not an addressable item id.
func (h *Handler) Register(r chi.Router) {
	r.Post("/{workspace}", h.HandleCreateItem)
	r.Get("/{workspace}", h.HandleGetWorkspace)
	r.Put("/{workspace}", h.HandleUpdateWorkspace)
	r.Get("/{workspace}/items", h.HandleListItems)
	r.Delete("/{workspace}/items", h.HandleDeleteItems)
	r.Get("/{workspace}/{item}", h.HandleGetItem)
	r.Put("/{workspace}/{item}", h.HandleUpdateItem)
	r.Delete("/{workspace}/{item}", h.HandleDeleteItem)
}

func secret(r *http.Request) string {
	return r.Header.Get("Authorization")
}

// HandleCreateItem handles POST /{workspace} requests.
func (h *Handler) HandleCreateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspace := chi.URLParam(r, "workspace")

	payload, ok := httputil.DecodeJSON[map[string]any](w, r, h.logger)
	if !ok {
		return
	}

	created, err := h.service.CreateItem(ctx, workspace, secret(r), payload)
	if err != nil {
		h.writeError(ctx, w, "create item", workspace, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// HandleGetWorkspace handles GET /{workspace} requests.
func (h *Handler) HandleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspace := chi.URLParam(r, "workspace")

	view, err := h.service.GetWorkspace(ctx, workspace, secret(r))
	if err != nil {
		h.writeError(ctx, w, "get workspace", workspace, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleUpdateWorkspace handles PUT /{workspace} requests.
func (h *Handler) HandleUpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspace := chi.URLParam(r, "workspace")

	metadata, ok := httputil.DecodeJSON[map[string]any](w, r, h.logger)
	if !ok {
		return
	}
	if err := h.service.UpdateWorkspace(ctx, workspace, secret(r), metadata); err != nil {
		h.writeError(ctx, w, "update workspace", workspace, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Workspace updated"})
}

// HandleListItems handles GET /{workspace}/items requests.
func (h *Handler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspace := chi.URLParam(r, "workspace")
	start := time.Now()

	params := catalog.ListParams{
		Page:     intParam(r, "page", 0),
		PageSize: intParam(r, "page_size", 10),
		OrderBy:  r.URL.Query().Get("order_by"),
		Filters:  r.URL.Query().Get("filters"),
	}

	views, err := h.service.ListItems(ctx, workspace, secret(r), params)
	if err != nil {
		h.writeError(ctx, w, "list items", workspace, err)
		return
	}

	h.logger.InfoContext(ctx, "items listed",
		"request_id", requestcontext.RequestID(ctx),
		"workspace", workspace,
		"count", len(views),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, views)
}

// HandleGetItem handles GET /{workspace}/{item} requests.
func (h *Handler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspace := chi.URLParam(r, "workspace")
	itemID := chi.URLParam(r, "item")

	view, err := h.service.GetItem(ctx, workspace, itemID, secret(r), r.URL.Query().Get("item-key"))
	if err != nil {
		h.writeError(ctx, w, "get item", workspace, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleUpdateItem handles PUT /{workspace}/{item} requests.
func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspace := chi.URLParam(r, "workspace")
	itemID := chi.URLParam(r, "item")

	payload, ok := httputil.DecodeJSON[map[string]any](w, r, h.logger)
	if !ok {
		return
	}

	group, err := h.service.UpdateItem(ctx, workspace, itemID, secret(r), r.URL.Query().Get("item-key"), payload)
	if err != nil {
		h.writeError(ctx, w, "update item", workspace, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, group)
}

// HandleDeleteItem handles DELETE /{workspace}/{item} requests.
func (h *Handler) HandleDeleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspace := chi.URLParam(r, "workspace")
	itemID := chi.URLParam(r, "item")

	if err := h.service.DeleteItem(ctx, workspace, itemID, secret(r)); err != nil {
		h.writeError(ctx, w, "delete item", workspace, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Item deleted"})
}

// HandleDeleteItems handles DELETE /{workspace}/items requests.
func (h *Handler) HandleDeleteItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workspace := chi.URLParam(r, "workspace")

	deleted, err := h.service.DeleteItems(ctx, workspace, secret(r))
	if err != nil {
		h.writeError(ctx, w, "delete items", workspace, err)
		return
	}
	h.logger.InfoContext(ctx, "workspace items deleted",
		"request_id", requestcontext.RequestID(ctx),
		"workspace", workspace,
		"count", deleted,
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Items deleted"})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op, workspace string, err error) {
	h.logger.WarnContext(ctx, op+" failed",
		"request_id", requestcontext.RequestID(ctx),
		"workspace", workspace,
		"error", err,
	)
	httputil.WriteError(w, err)
}

func intParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

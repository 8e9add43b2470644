package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"civicat/internal/catalog"
	"civicat/internal/catalog/handler"
	"civicat/internal/docstore"
)

const (
	wsID        = "tel-aviv"
	adminSecret = "admin-secret"
	itemSecret  = "item-secret"
)

type HandlerSuite struct {
	suite.Suite
	store  *docstore.InMemory
	router *chi.Mux
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.store = docstore.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := catalog.NewService(s.store, nil, logger, nil)

	s.router = chi.NewRouter()
	handler.New(service, logger).Register(s.router)

	ctx := context.Background()
	s.Require().NoError(s.store.PutWorkspace(ctx, wsID, docstore.Document{
		"key":      adminSecret,
		"metadata": map[string]any{"city": "Tel Aviv"},
	}))
	s.Require().NoError(s.store.PutItem(ctx, wsID, "aaaa1111", docstore.Document{
		"key":      itemSecret,
		"info":     map[string]any{"_id": "k-1", "name": "Pool"},
		"official": []any{map[string]any{"year": float64(2024)}},
		"admin":    map[string]any{"_private_phone": "055"},
		"user":     map[string]any{},
	}))
}

func (s *HandlerSuite) do(method, path, secret string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if secret != "" {
		req.Header.Set("Authorization", secret)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *HandlerSuite) TestGetWorkspace() {
	rec := s.do(http.MethodGet, "/"+wsID, "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("Tel Aviv", s.decode(rec)["city"])

	rec = s.do(http.MethodGet, "/atlantis", "", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestUpdateWorkspaceRequiresAdmin() {
	rec := s.do(http.MethodPut, "/"+wsID, "wrong", map[string]any{"city": "Elsewhere"})
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPut, "/"+wsID, adminSecret, map[string]any{"city": "Tel Aviv", "motto": "x"})
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestCreateItem() {
	rec := s.do(http.MethodPost, "/"+wsID, adminSecret, map[string]any{"note": "manual"})
	s.Require().Equal(http.StatusCreated, rec.Code)
	created := s.decode(rec)
	s.NotEmpty(created["id"])
	s.NotEmpty(created["key"])
}

func (s *HandlerSuite) TestGetItemProjection() {
	rec := s.do(http.MethodGet, "/"+wsID+"/aaaa1111", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	view := s.decode(rec)
	s.NotContains(view, "key")
	s.NotContains(view["admin"].(map[string]any), "_private_phone")

	rec = s.do(http.MethodGet, "/"+wsID+"/aaaa1111", adminSecret, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(itemSecret, s.decode(rec)["key"])
}

func (s *HandlerSuite) TestGetItemWithItemKey() {
	rec := s.do(http.MethodGet, "/"+wsID+"/aaaa1111?item-key="+itemSecret, "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(float64(catalog.TierPrivateKey), s.decode(rec)[catalog.TierField])

	rec = s.do(http.MethodGet, "/"+wsID+"/aaaa1111?item-key=wrong", adminSecret, nil)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestListItemsRouteBeatsItemRoute() {
	rec := s.do(http.MethodGet, "/"+wsID+"/items", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var views []map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &views))
	s.Len(views, 1)
}

func (s *HandlerSuite) TestListItemsBadFilter() {
	rec := s.do(http.MethodGet, "/"+wsID+"/items?filters=broken", "", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestUpdateItem() {
	rec := s.do(http.MethodPut, "/"+wsID+"/aaaa1111", adminSecret, map[string]any{"status": "approved"})
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("approved", s.decode(rec)["status"])

	rec = s.do(http.MethodPut, "/"+wsID+"/aaaa1111", "", map[string]any{"status": "nope"})
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestDeleteItemProtected() {
	rec := s.do(http.MethodDelete, "/"+wsID+"/aaaa1111", adminSecret, nil)
	s.Equal(http.StatusForbidden, rec.Code, "items with official records cannot be deleted")
}

func (s *HandlerSuite) TestDeleteItems() {
	rec := s.do(http.MethodDelete, "/"+wsID+"/items", adminSecret, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	entries, err := s.store.ListItems(context.Background(), wsID, docstore.Query{})
	s.Require().NoError(err)
	s.Empty(entries)
}

//go:build integration

package docstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"civicat/internal/docstore"
	"civicat/pkg/platform/sentinel"
	"civicat/pkg/testutil/containers"
)

type PostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *docstore.Postgres
	ctx      context.Context
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = docstore.NewPostgres(s.postgres.DB,
		docstore.WithIndexes(docstore.Index{Fields: []string{"info.city-slug", "info.updated_at"}}))
	s.Require().NoError(s.store.EnsureSchema(s.ctx))
}

func (s *PostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "items", "workspaces"))
}

func (s *PostgresSuite) TestWorkspaceLifecycle() {
	_, err := s.store.GetWorkspace(s.ctx, "tel-aviv")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	doc := docstore.Document{"key": "K1", "metadata": map[string]any{"city": "Tel Aviv"}}
	s.Require().NoError(s.store.PutWorkspace(s.ctx, "tel-aviv", doc))

	got, err := s.store.GetWorkspace(s.ctx, "tel-aviv")
	s.Require().NoError(err)
	s.Equal("K1", got["key"])

	s.Require().NoError(s.store.MergeWorkspace(s.ctx, "tel-aviv",
		docstore.Document{"metadata": map[string]any{"city": "Tel Aviv", "population": float64(460000)}}))

	got, err = s.store.GetWorkspace(s.ctx, "tel-aviv")
	s.Require().NoError(err)
	s.Equal("K1", got["key"], "merge keeps untouched groups")
	meta := got["metadata"].(map[string]any)
	s.Equal(float64(460000), meta["population"])
}

func (s *PostgresSuite) TestItemMergeReplacesGroups() {
	doc := docstore.Document{
		"key":      "item-secret",
		"info":     map[string]any{"_id": "src-1", "stale": true},
		"official": []any{map[string]any{"n": float64(1)}},
		"admin":    map[string]any{"name": "Clinic A"},
		"user":     map[string]any{},
	}
	s.Require().NoError(s.store.PutItem(s.ctx, "tel-aviv", "abcd1234", doc))

	s.Require().NoError(s.store.MergeItem(s.ctx, "tel-aviv", "abcd1234", docstore.Document{
		"info":     map[string]any{"_id": "src-1"},
		"official": []any{},
	}))

	got, err := s.store.GetItem(s.ctx, "tel-aviv", "abcd1234")
	s.Require().NoError(err)
	s.NotContains(got["info"].(map[string]any), "stale", "jsonb || must replace the info group")
	s.Equal("item-secret", got["key"])
	s.Equal(map[string]any{"name": "Clinic A"}, got["admin"])
}

func (s *PostgresSuite) TestListQueryParity() {
	docs := map[string]docstore.Document{
		"item-a": {"info": map[string]any{"city-slug": "tel-aviv", "updated_at": "2026-01-03T00:00:00Z"}},
		"item-b": {"info": map[string]any{"city-slug": "tel-aviv", "updated_at": "2026-01-01T00:00:00Z"}},
		"item-c": {"info": map[string]any{"city-slug": "haifa", "updated_at": "2026-01-02T00:00:00Z"}},
	}
	for id, doc := range docs {
		s.Require().NoError(s.store.PutItem(s.ctx, "ws", id, doc))
	}

	entries, err := s.store.ListItems(s.ctx, "ws", docstore.Query{
		Filters:    []docstore.Filter{{Field: "info.city-slug", Op: "=", Value: "tel-aviv"}},
		OrderBy:    "info.updated_at",
		Descending: true,
	})
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal("item-a", entries[0].ID)
	s.Equal("item-b", entries[1].ID)
}

func (s *PostgresSuite) TestDeleteItem() {
	s.Require().NoError(s.store.PutItem(s.ctx, "ws", "dead0000", docstore.Document{"info": map[string]any{}}))
	s.Require().NoError(s.store.DeleteItem(s.ctx, "ws", "dead0000"))
	s.Require().ErrorIs(s.store.DeleteItem(s.ctx, "ws", "dead0000"), sentinel.ErrNotFound)
}

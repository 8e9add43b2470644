package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"civicat/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) TestWorkspaceRoundTrip() {
	s.Run("returns ErrNotFound for unknown workspace", func() {
		_, err := s.store.GetWorkspace(s.ctx, "nowhere")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("stores and retrieves a workspace", func() {
		doc := Document{"key": "K1", "metadata": map[string]any{"city": "Tel Aviv"}}
		s.Require().NoError(s.store.PutWorkspace(s.ctx, "tel-aviv", doc))

		got, err := s.store.GetWorkspace(s.ctx, "tel-aviv")
		s.Require().NoError(err)
		s.Equal("K1", got["key"])
	})

	s.Run("returned documents are copies", func() {
		s.Require().NoError(s.store.PutWorkspace(s.ctx, "haifa", Document{"key": "K2"}))
		got, err := s.store.GetWorkspace(s.ctx, "haifa")
		s.Require().NoError(err)
		got["key"] = "tampered"

		again, err := s.store.GetWorkspace(s.ctx, "haifa")
		s.Require().NoError(err)
		s.Equal("K2", again["key"])
	})
}

func (s *InMemorySuite) TestMergeReplacesTopLevelGroups() {
	doc := Document{
		"key":      "secret",
		"info":     map[string]any{"_id": "src-1", "city": "Tel Aviv", "stale": true},
		"official": []any{map[string]any{"n": float64(1)}},
		"admin":    map[string]any{"name": "Clinic A"},
	}
	s.Require().NoError(s.store.PutItem(s.ctx, "tel-aviv", "abcd1234", doc))

	patch := Document{
		"info":     map[string]any{"_id": "src-1", "city": "Tel Aviv"},
		"official": []any{},
	}
	s.Require().NoError(s.store.MergeItem(s.ctx, "tel-aviv", "abcd1234", patch))

	got, err := s.store.GetItem(s.ctx, "tel-aviv", "abcd1234")
	s.Require().NoError(err)

	info := got["info"].(map[string]any)
	s.NotContains(info, "stale", "merge must replace the info group, not deep-merge it")
	s.Equal("secret", got["key"], "untouched groups survive a merge")
	s.Equal(map[string]any{"name": "Clinic A"}, got["admin"])
	s.Empty(got["official"])
}

func (s *InMemorySuite) TestMergeCreatesMissingDocument() {
	s.Require().NoError(s.store.MergeItem(s.ctx, "tel-aviv", "ffff0000", Document{"info": map[string]any{"_id": "x"}}))
	got, err := s.store.GetItem(s.ctx, "tel-aviv", "ffff0000")
	s.Require().NoError(err)
	s.NotNil(got["info"])
}

func (s *InMemorySuite) TestDelete() {
	s.Require().NoError(s.store.PutItem(s.ctx, "tel-aviv", "dead0000", Document{"info": map[string]any{}}))
	s.Require().NoError(s.store.DeleteItem(s.ctx, "tel-aviv", "dead0000"))
	_, err := s.store.GetItem(s.ctx, "tel-aviv", "dead0000")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Run("deleting twice reports not found", func() {
		s.Require().ErrorIs(s.store.DeleteItem(s.ctx, "tel-aviv", "dead0000"), sentinel.ErrNotFound)
	})
}

func (s *InMemorySuite) seedItems() {
	docs := map[string]Document{
		"item-a": {"info": map[string]any{"city-slug": "tel-aviv", "updated_at": "2026-01-03T00:00:00Z", "beds": float64(12)}},
		"item-b": {"info": map[string]any{"city-slug": "tel-aviv", "updated_at": "2026-01-01T00:00:00Z", "beds": float64(3)}},
		"item-c": {"info": map[string]any{"city-slug": "haifa", "updated_at": "2026-01-02T00:00:00Z", "beds": float64(7)}},
	}
	for id, doc := range docs {
		s.Require().NoError(s.store.PutItem(s.ctx, "ws", id, doc))
	}
}

func (s *InMemorySuite) TestListFiltersAndOrders() {
	s.seedItems()

	s.Run("equality filter", func() {
		entries, err := s.store.ListItems(s.ctx, "ws", Query{
			Filters: []Filter{{Field: "info.city-slug", Op: "=", Value: "tel-aviv"}},
		})
		s.Require().NoError(err)
		s.Len(entries, 2)
	})

	s.Run("numeric inequality", func() {
		entries, err := s.store.ListItems(s.ctx, "ws", Query{
			Filters: []Filter{{Field: "info.beds", Op: ">=", Value: float64(7)}},
		})
		s.Require().NoError(err)
		s.Len(entries, 2)
	})

	s.Run("descending order on same field as filter needs no index", func() {
		entries, err := s.store.ListItems(s.ctx, "ws", Query{
			Filters:    []Filter{{Field: "info.updated_at", Op: ">", Value: "2026-01-01T00:00:00Z"}},
			OrderBy:    "info.updated_at",
			Descending: true,
		})
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.Equal("item-a", entries[0].ID)
	})
}

func (s *InMemorySuite) TestCompositeIndexEnforcement() {
	s.seedItems()
	q := Query{
		Filters:    []Filter{{Field: "info.city-slug", Op: "=", Value: "tel-aviv"}},
		OrderBy:    "info.updated_at",
		Descending: true,
	}

	s.Run("without a declared index the query fails distinguishably", func() {
		_, err := s.store.ListItems(s.ctx, "ws", q)
		s.Require().Error(err)
		var ixErr *IndexRequiredError
		s.Require().ErrorAs(err, &ixErr)
		s.Contains(ixErr.URL, "docs.civicat.dev/indexes")
	})

	s.Run("a covering index unlocks the query", func() {
		indexed := NewInMemory(WithIndexes(Index{Fields: []string{"info.city-slug", "info.updated_at"}}))
		for _, e := range s.mustListAll() {
			s.Require().NoError(indexed.PutItem(s.ctx, "ws", e.ID, e.Doc))
		}
		entries, err := indexed.ListItems(s.ctx, "ws", q)
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.Equal("item-a", entries[0].ID)
		s.Equal("item-b", entries[1].ID)
	})
}

func (s *InMemorySuite) mustListAll() []Entry {
	entries, err := s.store.ListItems(s.ctx, "ws", Query{})
	s.Require().NoError(err)
	return entries
}

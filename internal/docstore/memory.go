package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"civicat/pkg/platform/sentinel"
)

// InMemory keeps documents in maps behind a mutex. It intentionally favors
// clarity over performance and serves as the reference implementation for
// the merge and query semantics.
type InMemory struct {
	indexSet
	mu         sync.RWMutex
	workspaces map[string]Document
	items      map[string]map[string]Document
}

// Option configures a store instance.
type Option func(*indexSet)

// WithIndexes declares the composite indexes available to queries.
func WithIndexes(indexes ...Index) Option {
	return func(s *indexSet) {
		s.indexes = append(s.indexes, indexes...)
	}
}

func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		workspaces: make(map[string]Document),
		items:      make(map[string]map[string]Document),
	}
	for _, opt := range opts {
		opt(&s.indexSet)
	}
	return s
}

func (s *InMemory) GetWorkspace(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.workspaces[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *InMemory) PutWorkspace(_ context.Context, id string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[id] = copyDoc(doc)
	return nil
}

func (s *InMemory) MergeWorkspace(_ context.Context, id string, patch Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[id] = mergeTopLevel(s.workspaces[id], patch)
	return nil
}

func (s *InMemory) GetItem(_ context.Context, workspace, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.items[workspace][id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *InMemory) PutItem(_ context.Context, workspace, id string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partition(workspace)[id] = copyDoc(doc)
	return nil
}

func (s *InMemory) MergeItem(_ context.Context, workspace, id string, patch Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	part := s.partition(workspace)
	part[id] = mergeTopLevel(part[id], patch)
	return nil
}

func (s *InMemory) DeleteItem(_ context.Context, workspace, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[workspace][id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.items[workspace], id)
	return nil
}

func (s *InMemory) ListItems(_ context.Context, workspace string, q Query) ([]Entry, error) {
	if err := s.checkQuery(workspace, q); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries := make([]Entry, 0, len(s.items[workspace]))
	for id, doc := range s.items[workspace] {
		entries = append(entries, Entry{ID: id, Doc: copyDoc(doc)})
	}
	s.mu.RUnlock()

	// Stable id order before query ordering so unordered listings are
	// deterministic across runs.
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return applyQuery(entries, q), nil
}

func (s *InMemory) partition(workspace string) map[string]Document {
	part, ok := s.items[workspace]
	if !ok {
		part = make(map[string]Document)
		s.items[workspace] = part
	}
	return part
}

// mergeTopLevel replaces the patched top-level keys and keeps the rest,
// creating the document when absent. Field groups are owned wholesale by
// their writers, so no deep merging happens here.
func mergeTopLevel(existing, patch Document) Document {
	merged := copyDoc(existing)
	if merged == nil {
		merged = Document{}
	}
	for k, v := range copyDoc(patch) {
		merged[k] = v
	}
	return merged
}

// copyDoc deep-copies through a JSON round trip. Documents are JSON values
// by contract, so this also canonicalizes value types.
func copyDoc(doc Document) Document {
	if doc == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return Document{}
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		return Document{}
	}
	return out
}

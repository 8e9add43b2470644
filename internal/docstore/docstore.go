// Package docstore provides the document store used for workspace and item
// persistence. Documents are opaque JSON objects keyed by workspace slug and
// item id; the store offers per-document merge writes (top-level field-group
// replace) and a small query surface for listing items.
//
// Two implementations exist: an in-memory store for tests and single-node
// use, and a PostgreSQL store holding one JSONB row per document. Both apply
// queries with the shared engine in query.go, so filter and ordering
// behavior is identical.
package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Document is a JSON-shaped record. Values are the usual encoding/json
// types: string, float64, bool, nil, map[string]any, []any.
type Document = map[string]any

// Entry is a listed document together with its id.
type Entry struct {
	ID  string
	Doc Document
}

// Filter is a single `field op value` predicate. Field is a dotted path into
// the document (e.g. "info.updated_at").
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query selects and orders items within one workspace partition.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
}

// Store is the per-document KV surface the catalog and ingestion depend on.
// Merge writes replace the supplied top-level keys and leave the rest of the
// document untouched; a merge into a missing document creates it.
type Store interface {
	GetWorkspace(ctx context.Context, id string) (Document, error)
	PutWorkspace(ctx context.Context, id string, doc Document) error
	MergeWorkspace(ctx context.Context, id string, patch Document) error

	GetItem(ctx context.Context, workspace, id string) (Document, error)
	PutItem(ctx context.Context, workspace, id string, doc Document) error
	MergeItem(ctx context.Context, workspace, id string, patch Document) error
	DeleteItem(ctx context.Context, workspace, id string) error

	ListItems(ctx context.Context, workspace string, q Query) ([]Entry, error)
}

// Index declares a composite index over document field paths. Queries that
// touch more than one field need a covering index or they fail with
// IndexRequiredError, mirroring the backing store's planner.
type Index struct {
	Fields []string
}

// IndexRequiredError reports a query that cannot be served without a
// composite index. URL points at the remediation documentation.
type IndexRequiredError struct {
	Workspace string
	Fields    []string
	URL       string
}

func (e *IndexRequiredError) Error() string {
	return fmt.Sprintf("query on %s requires a composite index over (%s), see %s",
		e.Workspace, strings.Join(e.Fields, ", "), e.URL)
}

// indexBaseURL is where composite index remediation is documented.
const indexBaseURL = "https://docs.civicat.dev/indexes"

func remediationURL(workspace string, fields []string) string {
	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, workspace)
	for _, f := range fields {
		parts = append(parts, strings.ReplaceAll(f, ".", "-"))
	}
	return indexBaseURL + "#" + strings.Join(parts, "-")
}

// compositeFields returns the field set a composite index must cover, or nil
// when single-field indexes suffice. A composite is needed when ordering on
// a field other than a filtered one, or when an inequality filter is
// combined with any other field. Equality-only multi-field queries are
// served by merging single-field scans.
func (q Query) compositeFields() []string {
	fields := map[string]bool{}
	inequality := false
	for _, f := range q.Filters {
		fields[f.Field] = true
		if f.Op != "=" && f.Op != "==" {
			inequality = true
		}
	}

	needed := false
	if q.OrderBy != "" && len(fields) > 0 && !(len(fields) == 1 && fields[q.OrderBy]) {
		needed = true
	}
	if inequality && len(fields) > 1 {
		needed = true
	}
	if !needed {
		return nil
	}

	if q.OrderBy != "" {
		fields[q.OrderBy] = true
	}
	out := make([]string, 0, len(fields))
	for f := range fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// indexSet holds the declared composite indexes of a store instance.
type indexSet struct {
	indexes []Index
}

// Covers reports whether some declared index spans all required fields.
func (s indexSet) Covers(required []string) bool {
	for _, ix := range s.indexes {
		have := map[string]bool{}
		for _, f := range ix.Fields {
			have[f] = true
		}
		covered := true
		for _, f := range required {
			if !have[f] {
				covered = false
				break
			}
		}
		if covered {
			return true
		}
	}
	return false
}

// checkQuery returns an IndexRequiredError when q needs a composite index
// this store does not declare.
func (s indexSet) checkQuery(workspace string, q Query) error {
	required := q.compositeFields()
	if required == nil {
		return nil
	}
	if s.Covers(required) {
		return nil
	}
	return &IndexRequiredError{
		Workspace: workspace,
		Fields:    required,
		URL:       remediationURL(workspace, required),
	}
}

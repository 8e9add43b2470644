package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"civicat/pkg/platform/sentinel"
)

// Postgres persists one JSONB row per document. The jsonb || operator gives
// the same top-level merge semantics as the in-memory store; queries reuse
// the shared engine so both backends filter and order identically.
type Postgres struct {
	indexSet
	db *sql.DB
}

func NewPostgres(db *sql.DB, opts ...Option) *Postgres {
	s := &Postgres{db: db}
	for _, opt := range opts {
		opt(&s.indexSet)
	}
	return s
}

// Open connects to PostgreSQL and ensures the schema exists.
func Open(url string, opts ...Option) (*Postgres, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewPostgres(db, opts...)
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the document tables when missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id  TEXT PRIMARY KEY,
	doc JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS items (
	workspace_id TEXT NOT NULL,
	id           TEXT NOT NULL,
	doc          JSONB NOT NULL,
	PRIMARY KEY (workspace_id, id)
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

func (s *Postgres) GetWorkspace(ctx context.Context, id string) (Document, error) {
	return s.getDoc(ctx, `SELECT doc FROM workspaces WHERE id = $1`, id)
}

func (s *Postgres) PutWorkspace(ctx context.Context, id string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal workspace %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, doc) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`, id, raw)
	if err != nil {
		return fmt.Errorf("put workspace %s: %w", id, err)
	}
	return nil
}

func (s *Postgres) MergeWorkspace(ctx context.Context, id string, patch Document) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal workspace patch %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, doc) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET doc = workspaces.doc || EXCLUDED.doc`, id, raw)
	if err != nil {
		return fmt.Errorf("merge workspace %s: %w", id, err)
	}
	return nil
}

func (s *Postgres) GetItem(ctx context.Context, workspace, id string) (Document, error) {
	return s.getDoc(ctx, `SELECT doc FROM items WHERE workspace_id = $1 AND id = $2`, workspace, id)
}

func (s *Postgres) PutItem(ctx context.Context, workspace, id string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal item %s/%s: %w", workspace, id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (workspace_id, id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (workspace_id, id) DO UPDATE SET doc = EXCLUDED.doc`, workspace, id, raw)
	if err != nil {
		return fmt.Errorf("put item %s/%s: %w", workspace, id, err)
	}
	return nil
}

func (s *Postgres) MergeItem(ctx context.Context, workspace, id string, patch Document) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal item patch %s/%s: %w", workspace, id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (workspace_id, id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (workspace_id, id) DO UPDATE SET doc = items.doc || EXCLUDED.doc`, workspace, id, raw)
	if err != nil {
		return fmt.Errorf("merge item %s/%s: %w", workspace, id, err)
	}
	return nil
}

func (s *Postgres) DeleteItem(ctx context.Context, workspace, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE workspace_id = $1 AND id = $2`, workspace, id)
	if err != nil {
		return fmt.Errorf("delete item %s/%s: %w", workspace, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListItems(ctx context.Context, workspace string, q Query) ([]Entry, error) {
	if err := s.checkQuery(workspace, q); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, doc FROM items WHERE workspace_id = $1 ORDER BY id`, workspace)
	if err != nil {
		return nil, fmt.Errorf("list items %s: %w", workspace, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode item %s/%s: %w", workspace, id, err)
		}
		entries = append(entries, Entry{ID: id, Doc: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items %s: %w", workspace, err)
	}
	return applyQuery(entries, q), nil
}

func (s *Postgres) getDoc(ctx context.Context, query string, args ...any) (Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

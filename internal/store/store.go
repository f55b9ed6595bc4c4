// Package store implements the document store: persisted document
// metadata, latest Markdown/HTML snapshot, and opaque CRDT binary state,
// on top of Postgres via pgx.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/collab-docs/backend/internal/apperr"
	"github.com/collab-docs/backend/internal/logger"
	"github.com/collab-docs/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the database connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a pool against databaseURL. Prepared-statement caching is
// disabled (simple protocol) for PgBouncer/Supabase transaction-mode
// compatibility, which does not support server-side prepared statements.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	logger.Info("[store] connecting to database...")
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("[store] database connection established")
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	var html *string
	var crdtState []byte
	var metaJSON []byte
	err := row.Scan(&d.ID, &d.Title, &d.Markdown, &html, &d.RenderMode, &crdtState, &metaJSON, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if html != nil {
		d.HTML = *html
	}
	d.CRDTState = crdtState
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &d.Metadata)
	}
	return &d, nil
}

// Create inserts a new document row. Returns apperr.KindConflict if id
// already exists.
func (s *Store) Create(ctx context.Context, doc *models.Document) (*models.Document, error) {
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "encode metadata", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO documents (id, title, markdown, html, render_mode, metadata)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6::jsonb)
		RETURNING id, title, markdown, html, render_mode, crdt_state, metadata, created_at, updated_at
	`, doc.ID, doc.Title, doc.Markdown, doc.HTML, doc.RenderMode, metaJSON)

	created, err := scanDocument(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperr.New(apperr.KindConflict, fmt.Sprintf("document %q already exists", doc.ID))
		}
		return nil, apperr.Wrap(apperr.KindTransient, "create document", err)
	}
	return created, nil
}

// Get fetches a document by id. Returns apperr.KindNotFound if missing.
func (s *Store) Get(ctx context.Context, id string) (*models.Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, markdown, html, render_mode, crdt_state, metadata, created_at, updated_at
		FROM documents WHERE id = $1
	`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("document %q not found", id))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "get document", err)
	}
	return doc, nil
}

// ListFilter narrows a List call.
type ListFilter struct {
	Source string
	Tag    string
	Limit  int
	Offset int
}

// Summary is a listing row: the persisted fields minus crdt_state and the
// full markdown/html bodies.
type Summary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	RenderMode string    `json:"renderMode"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// List returns a page of document summaries ordered by most-recently
// updated first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Summary, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, render_mode, created_at, updated_at
		FROM documents
		WHERE ($1 = '' OR metadata->>'source' = $1)
		  AND ($2 = '' OR metadata->'tags' ? $2)
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4
	`, f.Source, f.Tag, limit, f.Offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "list documents", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.RenderMode, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindTransient, "scan document summary", err)
		}
		out = append(out, sum)
	}
	if out == nil {
		out = []Summary{}
	}
	return out, nil
}

// Update applies a partial patch. Unspecified fields are preserved; title
// changes only when patch.Title is non-nil.
func (s *Store) Update(ctx context.Context, id string, patch models.Patch) (*models.Document, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE documents SET
			title       = COALESCE($2, title),
			markdown    = COALESCE($3, markdown),
			html        = CASE WHEN $4::boolean THEN NULLIF($5, '') ELSE html END,
			render_mode = CASE WHEN $4::boolean THEN (CASE WHEN $5 = '' THEN 'markdown' ELSE 'html' END) ELSE render_mode END,
			metadata    = CASE WHEN $6::boolean THEN metadata || $7::jsonb ELSE metadata END,
			updated_at  = NOW()
		WHERE id = $1
		RETURNING id, title, markdown, html, render_mode, crdt_state, metadata, created_at, updated_at
	`, id, patch.Title, patch.Markdown, patch.HTML != nil, derefOrEmpty(patch.HTML),
		patch.Metadata != nil, metadataJSONOrEmpty(patch.Metadata))

	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("document %q not found", id))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "update document", err)
	}
	return doc, nil
}

// Delete removes the document row.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "delete document", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, fmt.Sprintf("document %q not found", id))
	}
	return nil
}

// LoadCRDT returns the stored crdt_state bytes, or nil if the document has
// never been edited collaboratively (or does not exist).
func (s *Store) LoadCRDT(ctx context.Context, id string) ([]byte, error) {
	var state []byte
	err := s.pool.QueryRow(ctx, `SELECT crdt_state FROM documents WHERE id = $1`, id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "load crdt state", err)
	}
	return state, nil
}

// SaveCRDT overwrites crdt_state with a full snapshot and optionally
// refreshes markdown from the CRDT's plain-text projection (see
// DESIGN.md for the markdown-refresh-on-debounce decision). It is a
// last-writer-wins write at the storage layer; ordering correctness is
// the hub's responsibility.
func (s *Store) SaveCRDT(ctx context.Context, id string, state []byte, refreshedMarkdown *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET
			crdt_state = $2,
			markdown   = COALESCE($3, markdown),
			updated_at = NOW()
		WHERE id = $1
	`, id, state, refreshedMarkdown)
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "save crdt state", err)
	}
	if tag.RowsAffected() == 0 {
		// Row was deleted underneath a draining live document; the save
		// is discarded, not re-created.
		return apperr.New(apperr.KindNotFound, fmt.Sprintf("document %q not found", id))
	}
	return nil
}

// EnsureBlank creates a blank document row if id does not yet exist, for
// the hub's "first WebSocket attach for an unknown id" path.
func (s *Store) EnsureBlank(ctx context.Context, id string) (*models.Document, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO documents (id, title, markdown, render_mode, metadata)
		VALUES ($1, $1, '', 'markdown', '{}'::jsonb)
		ON CONFLICT (id) DO UPDATE SET id = documents.id
		RETURNING id, title, markdown, html, render_mode, crdt_state, metadata, created_at, updated_at
	`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "ensure blank document", err)
	}
	return doc, nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func metadataJSONOrEmpty(m models.Metadata) []byte {
	if m == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}

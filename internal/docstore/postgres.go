package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Schema creates the JSONB documents table and the lookups the import pipeline runs.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_row_hash_idx ON documents (collection, (data->>'rowHash'));
CREATE INDEX IF NOT EXISTS documents_bulk_import_idx ON documents (collection, (data->>'bulkImportId'));
`

const (
	upsertSQL = `INSERT INTO documents (collection, id, data, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`
	mergeSQL = `INSERT INTO documents (collection, id, data, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (collection, id) DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = NOW()`
)

// PostgresStore keeps every collection in one JSONB table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open *sql.DB (driver "postgres").
func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

// EnsureSchema runs Schema.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`, collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	stmt, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Collection, err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", q.Collection, id, err)
		}
		out = append(out, Snapshot{ID: id, Data: doc})
	}
	return out, rows.Err()
}

// buildSelect renders q with field names passed as parameters to the -> operator.
func buildSelect(q Query) (string, []any, error) {
	var b strings.Builder
	args := []any{q.Collection}
	b.WriteString(`SELECT id, data FROM documents WHERE collection = $1`)

	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, f := range q.Filters {
		field := next(f.Field)
		switch f.Op {
		case OpIn:
			vals, _ := inValues(f.Value)
			enc := make([]string, len(vals))
			for i, v := range vals {
				raw, err := json.Marshal(sanitizeValue(v))
				if err != nil {
					return "", nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
				}
				enc[i] = string(raw)
			}
			fmt.Fprintf(&b, " AND data -> %s = ANY(%s::jsonb[])", field, next(pq.Array(enc)))
		default:
			raw, err := json.Marshal(sanitizeValue(f.Value))
			if err != nil {
				return "", nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
			}
			op := string(f.Op)
			if f.Op == OpEq {
				op = "="
			} else if f.Op == OpNotEq {
				op = "<>"
			}
			fmt.Fprintf(&b, " AND data -> %s %s %s::jsonb", field, op, next(string(raw)))
		}
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY data -> %s %s NULLS LAST", next(q.OrderBy), dir)
	} else {
		b.WriteString(" ORDER BY id")
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String(), args, nil
}

// CommitBatch writes every op inside one transaction.
func (s *PostgresStore) CommitBatch(ctx context.Context, writes []Write) error {
	if err := validateBatch(writes); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	for _, w := range writes {
		if err := execWrite(ctx, tx, w); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, collection string, doc Document) (string, error) {
	id := uuid.NewString()
	return id, s.Set(ctx, collection, id, doc, false)
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, doc Document, mergeFields bool) error {
	if collection == "" || id == "" {
		return ErrEmptyDocumentKey
	}
	kind := WriteSet
	if mergeFields {
		kind = WriteMerge
	}
	return execWrite(ctx, s.db, Write{Kind: kind, Collection: collection, ID: id, Data: doc})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execWrite(ctx context.Context, db execer, w Write) error {
	doc := Sanitize(w.Data)
	if doc == nil {
		doc = Document{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", w.Collection, w.ID, err)
	}
	stmt := upsertSQL
	if w.Kind == WriteMerge {
		stmt = mergeSQL
	}
	if _, err := db.ExecContext(ctx, stmt, w.Collection, w.ID, raw); err != nil {
		return fmt.Errorf("write %s/%s: %w", w.Collection, w.ID, err)
	}
	return nil
}

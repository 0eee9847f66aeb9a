package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/beniforreal/nbti-client/internal/errs"
	"github.com/beniforreal/nbti-client/internal/store"
)

// DocStore implements store.DocumentStore on a single documents table with
// a JSONB payload, keyed by (collection, id).
type DocStore struct{ db *DB }

var _ store.DocumentStore = (*DocStore)(nil)

// NewDocStore constructs a Postgres document store.
func NewDocStore(db *DB) *DocStore { return &DocStore{db: db} }

// fieldNameRe guards identifiers interpolated into JSONB path expressions.
var fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Get returns a single document by id.
func (s *DocStore) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	const q = `SELECT data, created_at, updated_at FROM documents WHERE collection=$1 AND id=$2`
	var (
		raw       []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := s.db.Pool.QueryRow(ctx, q, collection, id).Scan(&raw, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
	}
	return &store.Document{ID: id, Fields: fields, CreatedAt: createdAt, UpdatedAt: updatedAt}, nil
}

// GetAll returns documents matching the query. Filters compare the text
// representation of a top-level field; ordering supports the timestamp
// columns and top-level fields.
func (s *DocStore) GetAll(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	sql := `SELECT id, data, created_at, updated_at FROM documents WHERE collection=$1`
	args := []any{collection}

	if q.Filter != nil {
		if !fieldNameRe.MatchString(q.Filter.Field) {
			return nil, fmt.Errorf("%w: bad filter field %q", errs.ErrValidation, q.Filter.Field)
		}
		sql += fmt.Sprintf(` AND data->>'%s' = $2`, q.Filter.Field)
		args = append(args, fmt.Sprint(q.Filter.Value))
	}

	order := "created_at"
	if q.Order != nil {
		switch q.Order.Field {
		case "createdAt", "":
			order = "created_at"
		case "updatedAt":
			order = "updated_at"
		default:
			if !fieldNameRe.MatchString(q.Order.Field) {
				return nil, fmt.Errorf("%w: bad order field %q", errs.ErrValidation, q.Order.Field)
			}
			order = fmt.Sprintf(`data->>'%s'`, q.Order.Field)
		}
		if q.Order.Desc {
			order += " DESC"
		} else {
			order += " ASC"
		}
	}
	sql += " ORDER BY " + order

	rows, err := s.db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Document
	for rows.Next() {
		var (
			id        string
			raw       []byte
			createdAt time.Time
			updatedAt time.Time
		)
		if err := rows.Scan(&id, &raw, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		fields := map[string]any{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
		}
		out = append(out, store.Document{ID: id, Fields: fields, CreatedAt: createdAt, UpdatedAt: updatedAt})
	}
	return out, rows.Err()
}

// Add creates a document with a generated id.
func (s *DocStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	uid, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	id := uid.String()

	raw, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	const q = `
INSERT INTO documents (collection, id, data, created_at, updated_at)
VALUES ($1,$2,$3,now(),now())`
	if _, err := s.db.Pool.Exec(ctx, q, collection, id, raw); err != nil {
		return "", err
	}
	return id, nil
}

// Set creates or fully replaces a document by id.
func (s *DocStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	const q = `
INSERT INTO documents (collection, id, data, created_at, updated_at)
VALUES ($1,$2,$3,now(),now())
ON CONFLICT (collection, id)
DO UPDATE SET data=EXCLUDED.data, updated_at=now()`
	_, err = s.db.Pool.Exec(ctx, q, collection, id, raw)
	return err
}

// Update merges fields into an existing document and bumps updated_at.
func (s *DocStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	const q = `UPDATE documents SET data = data || $3::jsonb, updated_at=now() WHERE collection=$1 AND id=$2`
	tag, err := s.db.Pool.Exec(ctx, q, collection, id, raw)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a document by id.
func (s *DocStore) Delete(ctx context.Context, collection, id string) error {
	const q = `DELETE FROM documents WHERE collection=$1 AND id=$2`
	tag, err := s.db.Pool.Exec(ctx, q, collection, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

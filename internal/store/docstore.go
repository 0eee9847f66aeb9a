// Package store defines boundary interfaces for the hosted backend services:
// the document store, the blob store, and the identity provider. Everything
// behind these interfaces is an external collaborator reached over the network.
package store

import (
	"context"
	"time"
)

// Document is a JSON-like record in a named collection.
type Document struct {
	ID        string
	Fields    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter restricts a query to documents whose field equals the given value.
type Filter struct {
	Field string
	Value any
}

// Order sorts query results by a field.
type Order struct {
	Field string
	Desc  bool
}

// Query combines an optional equality filter with an optional ordering.
type Query struct {
	Filter *Filter
	Order  *Order
}

// DocumentStore is the hosted document database boundary.
type DocumentStore interface {
	// Get returns a single document by id, errs.ErrNotFound if absent.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// GetAll returns all documents matching the query.
	GetAll(ctx context.Context, collection string, q Query) ([]Document, error)
	// Add creates a document with a generated id and server timestamps.
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)
	// Set creates or fully replaces the document with the given id (upsert).
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	// Update merges fields into an existing document and bumps updatedAt.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete removes a document by id.
	Delete(ctx context.Context, collection, id string) error
}

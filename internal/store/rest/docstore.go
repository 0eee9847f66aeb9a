package rest

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/beniforreal/nbti-client/internal/store"
)

// DocStore talks to the hosted document database.
type DocStore struct {
	c *client
}

var _ store.DocumentStore = (*DocStore)(nil)

// NewDocStore constructs a document store client.
func NewDocStore(baseURL, apiKey string, hc *http.Client) *DocStore {
	return &DocStore{c: newClient(baseURL, apiKey, hc)}
}

// Wire shape for one document. Timestamps travel as epoch milliseconds.
type wireDoc struct {
	ID        string         `json:"id"`
	Fields    map[string]any `json:"fields"`
	CreatedAt int64          `json:"createdAt,omitempty"`
	UpdatedAt int64          `json:"updatedAt,omitempty"`
}

func (w wireDoc) document() store.Document {
	return store.Document{
		ID:        w.ID,
		Fields:    w.Fields,
		CreatedAt: time.UnixMilli(w.CreatedAt),
		UpdatedAt: time.UnixMilli(w.UpdatedAt),
	}
}

func docPath(collection, id string) string {
	p := "/v1/collections/" + url.PathEscape(collection) + "/docs"
	if id != "" {
		p += "/" + url.PathEscape(id)
	}
	return p
}

// Get returns a single document by id.
func (d *DocStore) Get(ctx context.Context, collection, id string) (*store.Document, error) {
	var w wireDoc
	if err := d.c.do(ctx, http.MethodGet, docPath(collection, id), nil, nil, &w); err != nil {
		return nil, err
	}
	doc := w.document()
	return &doc, nil
}

// GetAll returns documents matching the query.
func (d *DocStore) GetAll(ctx context.Context, collection string, q store.Query) ([]store.Document, error) {
	query := url.Values{}
	if q.Filter != nil {
		query.Set("filterField", q.Filter.Field)
		switch v := q.Filter.Value.(type) {
		case string:
			query.Set("filterValue", v)
		case bool:
			query.Set("filterValue", strconv.FormatBool(v))
		case int:
			query.Set("filterValue", strconv.Itoa(v))
		default:
			query.Set("filterValue", "")
		}
	}
	if q.Order != nil {
		query.Set("orderBy", q.Order.Field)
		if q.Order.Desc {
			query.Set("direction", "desc")
		} else {
			query.Set("direction", "asc")
		}
	}

	var body struct {
		Docs []wireDoc `json:"docs"`
	}
	if err := d.c.do(ctx, http.MethodGet, docPath(collection, ""), query, nil, &body); err != nil {
		return nil, err
	}
	out := make([]store.Document, 0, len(body.Docs))
	for _, w := range body.Docs {
		out = append(out, w.document())
	}
	return out, nil
}

// Add creates a document with a server-generated id and timestamps.
func (d *DocStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := d.c.do(ctx, http.MethodPost, docPath(collection, ""), nil, wireDoc{Fields: fields}, &out)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

// Set creates or fully replaces a document by id.
func (d *DocStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	return d.c.do(ctx, http.MethodPut, docPath(collection, id), nil, wireDoc{ID: id, Fields: fields}, nil)
}

// Update merges fields into an existing document.
func (d *DocStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return d.c.do(ctx, http.MethodPatch, docPath(collection, id), nil, wireDoc{ID: id, Fields: fields}, nil)
}

// Delete removes a document by id.
func (d *DocStore) Delete(ctx context.Context, collection, id string) error {
	return d.c.do(ctx, http.MethodDelete, docPath(collection, id), nil, nil, nil)
}

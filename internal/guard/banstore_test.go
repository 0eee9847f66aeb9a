package guard

import (
	"context"
	"testing"
	"time"

	"github.com/beniforreal/nbti-client/internal/errs"
	"github.com/beniforreal/nbti-client/internal/model"
	"github.com/beniforreal/nbti-client/internal/store"
)

// fakeDocStore is an in-memory store.DocumentStore for ban-record tests.
type fakeDocStore struct {
	docs map[string]map[string]map[string]any // collection -> id -> fields
	sets int
}

var _ store.DocumentStore = (*fakeDocStore)(nil)

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: map[string]map[string]map[string]any{}}
}

func (f *fakeDocStore) Get(_ context.Context, collection, id string) (*store.Document, error) {
	fields, ok := f.docs[collection][id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &store.Document{ID: id, Fields: fields}, nil
}

func (f *fakeDocStore) GetAll(context.Context, string, store.Query) ([]store.Document, error) {
	return nil, nil
}

func (f *fakeDocStore) Add(context.Context, string, map[string]any) (string, error) {
	return "", errs.ErrValidation
}

func (f *fakeDocStore) Set(_ context.Context, collection, id string, fields map[string]any) error {
	if f.docs[collection] == nil {
		f.docs[collection] = map[string]map[string]any{}
	}
	f.docs[collection][id] = fields
	f.sets++
	return nil
}

func (f *fakeDocStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	doc, ok := f.docs[collection][id]
	if !ok {
		return errs.ErrNotFound
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

func (f *fakeDocStore) Delete(_ context.Context, collection, id string) error {
	delete(f.docs[collection], id)
	return nil
}

func TestDocBanStore_RoundTrip(t *testing.T) {
	t.Parallel()
	docs := newFakeDocStore()
	bans := NewDocBanStore(docs)
	ctx := context.Background()

	banned := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &model.BanRecord{
		IP:        "1.2.3.4",
		IsActive:  true,
		Reason:    model.BanReasonRapidRefresh,
		BanCount:  5,
		UserAgent: "nbti-cli/1.0.0",
		BannedAt:  banned,
		ExpiresAt: banned.Add(30 * time.Minute),
	}
	if err := bans.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := bans.Get(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Reason != model.BanReasonRapidRefresh || got.BanCount != 5 || !got.IsActive {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.BannedAt.Equal(banned) || !got.ExpiresAt.Equal(banned.Add(30*time.Minute)) {
		t.Fatalf("timestamps mismatch: %+v", got)
	}
	if !got.UnbannedAt.IsZero() {
		t.Fatalf("unbannedAt must stay zero until an explicit unban")
	}
}

func TestDocBanStore_DecodeTolerantOfJSONNumbers(t *testing.T) {
	t.Parallel()
	docs := newFakeDocStore()
	// simulate a record written by another client and decoded from JSON,
	// where every number arrives as float64
	_ = docs.Set(context.Background(), BanCollection, "1.2.3.4", map[string]any{
		"isActive":     true,
		"banReason":    "RateLimitExceeded",
		"requestCount": float64(101),
		"bannedAt":     float64(1717243200000),
		"expiresAt":    float64(1717246800000),
	})

	got, err := NewDocBanStore(docs).Get(context.Background(), "1.2.3.4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.RequestCount != 101 {
		t.Fatalf("want requestCount 101, got %d", got.RequestCount)
	}
	if got.ExpiresAt.UnixMilli() != 1717246800000 {
		t.Fatalf("want expiry 1717246800000, got %d", got.ExpiresAt.UnixMilli())
	}
}

func TestDocBanStore_Deactivate(t *testing.T) {
	t.Parallel()
	docs := newFakeDocStore()
	bans := NewDocBanStore(docs)
	ctx := context.Background()

	exp := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	_ = bans.Put(ctx, &model.BanRecord{IP: "1.2.3.4", IsActive: true, ExpiresAt: exp})

	at := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	if err := bans.Deactivate(ctx, "1.2.3.4", at); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	got, err := bans.Get(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.IsActive {
		t.Fatalf("record must be deactivated")
	}
	if !got.UnbannedAt.Equal(at) {
		t.Fatalf("want unbannedAt %v, got %v", at, got.UnbannedAt)
	}
	if !got.ExpiresAt.Equal(exp) {
		t.Fatalf("expiresAt must be untouched, got %v", got.ExpiresAt)
	}
}

func TestDocBanStore_InitIsIdempotent(t *testing.T) {
	t.Parallel()
	docs := newFakeDocStore()
	bans := NewDocBanStore(docs)
	ctx := context.Background()

	if err := bans.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if docs.sets != 2 {
		t.Fatalf("want both security collections bootstrapped, got %d writes", docs.sets)
	}
	if err := bans.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if docs.sets != 2 {
		t.Fatalf("existing markers must not be rewritten, got %d writes", docs.sets)
	}
}

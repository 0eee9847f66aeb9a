package guard

import (
	"context"
	"time"

	"github.com/beniforreal/nbti-client/internal/model"
	"github.com/beniforreal/nbti-client/internal/store"
)

// Collections used by the security subsystem.
const (
	BanCollection = "banned_ips"
	LogCollection = "security_logs"
)

// BanStore persists ban records keyed by client IP.
type BanStore interface {
	// Init bootstraps the backing collections; best-effort.
	Init(ctx context.Context) error
	// Get returns the ban record for an IP, errs.ErrNotFound if absent.
	Get(ctx context.Context, ip string) (*model.BanRecord, error)
	// Put upserts the record under its IP (last writer wins).
	Put(ctx context.Context, rec *model.BanRecord) error
	// Deactivate sets isActive=false and stamps unbannedAt, leaving
	// expiresAt untouched. Records are never deleted.
	Deactivate(ctx context.Context, ip string, at time.Time) error
}

// DocBanStore stores ban records in the hosted document store.
type DocBanStore struct {
	docs store.DocumentStore
}

// NewDocBanStore constructs a document-store backed BanStore.
func NewDocBanStore(docs store.DocumentStore) *DocBanStore {
	return &DocBanStore{docs: docs}
}

// Init writes the _init marker documents that materialize the security
// collections on backends that create collections lazily.
func (s *DocBanStore) Init(ctx context.Context) error {
	for _, col := range []string{BanCollection, LogCollection} {
		if _, err := s.docs.Get(ctx, col, "_init"); err == nil {
			continue
		}
		if err := s.docs.Set(ctx, col, "_init", map[string]any{
			"_initialized": true,
			"description":  "Security collection initialized",
		}); err != nil {
			return err
		}
	}
	return nil
}

// Get loads and decodes the ban record for an IP.
func (s *DocBanStore) Get(ctx context.Context, ip string) (*model.BanRecord, error) {
	doc, err := s.docs.Get(ctx, BanCollection, ip)
	if err != nil {
		return nil, err
	}
	return decodeBan(ip, doc.Fields), nil
}

// Put upserts the record keyed by IP.
func (s *DocBanStore) Put(ctx context.Context, rec *model.BanRecord) error {
	return s.docs.Set(ctx, BanCollection, rec.IP, encodeBan(rec))
}

// Deactivate flips isActive and stamps unbannedAt.
func (s *DocBanStore) Deactivate(ctx context.Context, ip string, at time.Time) error {
	return s.docs.Update(ctx, BanCollection, ip, map[string]any{
		"isActive":   false,
		"unbannedAt": at.UnixMilli(),
	})
}

// Ban documents carry epoch-millisecond timestamps so the record is readable
// by every client regardless of platform time handling.
func encodeBan(rec *model.BanRecord) map[string]any {
	return map[string]any{
		"ip":           rec.IP,
		"isActive":     rec.IsActive,
		"banReason":    string(rec.Reason),
		"banCount":     rec.BanCount,
		"requestCount": rec.RequestCount,
		"userAgent":    rec.UserAgent,
		"bannedAt":     rec.BannedAt.UnixMilli(),
		"expiresAt":    rec.ExpiresAt.UnixMilli(),
	}
}

func decodeBan(ip string, fields map[string]any) *model.BanRecord {
	rec := &model.BanRecord{IP: ip}
	if v, ok := fields["ip"].(string); ok && v != "" {
		rec.IP = v
	}
	rec.IsActive, _ = fields["isActive"].(bool)
	if v, ok := fields["banReason"].(string); ok {
		rec.Reason = model.BanReason(v)
	}
	rec.BanCount = intField(fields, "banCount")
	rec.RequestCount = intField(fields, "requestCount")
	rec.UserAgent, _ = fields["userAgent"].(string)
	rec.BannedAt = millisField(fields, "bannedAt")
	rec.ExpiresAt = millisField(fields, "expiresAt")
	rec.UnbannedAt = millisField(fields, "unbannedAt")
	return rec
}

// intField tolerates the numeric types JSON decoding can produce.
func intField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func millisField(fields map[string]any, key string) time.Time {
	var ms int64
	switch v := fields[key].(type) {
	case int:
		ms = int64(v)
	case int64:
		ms = v
	case float64:
		ms = int64(v)
	default:
		return time.Time{}
	}
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Package service contains the data-access facade over the hosted backend:
// every domain operation validates and sanitizes its input, passes the abuse
// guard's admission check, performs a single store operation, and wraps any
// store fault so raw transport errors never reach the caller.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/beniforreal/nbti-client/internal/errs"
	"github.com/beniforreal/nbti-client/internal/model"
	"github.com/beniforreal/nbti-client/internal/store"
)

// Guard is the admission-control surface required by the facade.
type Guard interface {
	// CheckRateLimit records the attempt and reports whether it is admitted.
	CheckRateLimit(ctx context.Context) bool
	// Banned reports whether the session carries an enforced ban.
	Banned() bool
}

// maxUploadSize caps gallery uploads at 10 MB.
const maxUploadSize = 10 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// GuildService defines the domain operations over members, photos, and notices.
type GuildService interface {
	// LoadMembers returns approved roster entries in ranked order.
	LoadMembers(ctx context.Context) ([]model.Member, error)
	// LoadAllMembers returns every roster entry (admin view), ranked.
	LoadAllMembers(ctx context.Context) ([]model.Member, error)
	// AddMember creates a roster entry and returns its id.
	AddMember(ctx context.Context, m model.Member) (string, error)
	// UpdateMember merges sanitized fields into a roster entry.
	UpdateMember(ctx context.Context, id string, fields map[string]any) error
	// DeleteMember removes a roster entry.
	DeleteMember(ctx context.Context, id string) error
	// SaveProfile updates a member profile while preserving approval status.
	SaveProfile(ctx context.Context, userID string, fields map[string]any) (model.Status, error)
	// GetUserStatus returns the approval status for a member id.
	GetUserStatus(ctx context.Context, userID string) (model.Status, error)
	// IsAdmin reports whether the member holds a leader or deputy role.
	IsAdmin(ctx context.Context, userID string) bool
	// Stats aggregates roster and gallery counts.
	Stats(ctx context.Context) (model.Stats, error)

	// LoadPhotos returns gallery entries, newest first.
	LoadPhotos(ctx context.Context) ([]model.Photo, error)
	// AddPhoto creates a gallery entry and returns its id.
	AddPhoto(ctx context.Context, p model.Photo) (string, error)
	// DeletePhoto removes a gallery entry.
	DeletePhoto(ctx context.Context, id string) error
	// UploadImage validates and stores an image blob.
	UploadImage(ctx context.Context, r io.Reader, size int64, name, contentType, folder string) (store.UploadResult, error)
	// DeleteImage removes the blob behind a public URL.
	DeleteImage(ctx context.Context, publicURL string) error

	// LoadNotices returns announcements, newest first.
	LoadNotices(ctx context.Context) ([]model.Notice, error)
	// GetNotice returns one announcement by id.
	GetNotice(ctx context.Context, id string) (*model.Notice, error)
	// AddNotice creates an announcement and returns its id.
	AddNotice(ctx context.Context, n model.Notice) (string, error)
	// UpdateNotice merges sanitized fields into an announcement.
	UpdateNotice(ctx context.Context, id string, fields map[string]any) error
	// DeleteNotice removes an announcement.
	DeleteNotice(ctx context.Context, id string) error
}

type GuildServiceImpl struct {
	docs  store.DocumentStore
	blobs store.BlobStore
	guard Guard
	log   *zap.Logger
}

// NewGuildService constructs the facade with required collaborators.
func NewGuildService(docs store.DocumentStore, blobs store.BlobStore, g Guard, log *zap.Logger) *GuildServiceImpl {
	return &GuildServiceImpl{docs: docs, blobs: blobs, guard: g, log: log}
}

// admit runs the guard gate shared by every domain operation.
func (s *GuildServiceImpl) admit(ctx context.Context) error {
	if s.guard.Banned() {
		return errs.ErrBanned
	}
	if !s.guard.CheckRateLimit(ctx) {
		return errs.ErrRateLimited
	}
	return nil
}

// LoadMembers returns approved members ranked by role tier, explicit order,
// and creation time.
func (s *GuildServiceImpl) LoadMembers(ctx context.Context) ([]model.Member, error) {
	return s.loadMembers(ctx, &store.Filter{Field: "status", Value: string(model.StatusApproved)})
}

// LoadAllMembers returns the full roster including pending members.
func (s *GuildServiceImpl) LoadAllMembers(ctx context.Context) ([]model.Member, error) {
	return s.loadMembers(ctx, nil)
}

func (s *GuildServiceImpl) loadMembers(ctx context.Context, filter *store.Filter) ([]model.Member, error) {
	if err := s.admit(ctx); err != nil {
		return nil, err
	}
	docs, err := s.docs.GetAll(ctx, membersCollection, store.Query{
		Filter: filter,
		Order:  &store.Order{Field: "createdAt", Desc: true},
	})
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	members := make([]model.Member, 0, len(docs))
	for _, doc := range docs {
		members = append(members, decodeMember(doc))
	}
	return SortMembers(members), nil
}

// AddMember validates, sanitizes, and creates a roster entry.
func (s *GuildServiceImpl) AddMember(ctx context.Context, m model.Member) (string, error) {
	if strings.TrimSpace(m.Name) == "" {
		return "", fmt.Errorf("%w: empty member name", errs.ErrValidation)
	}
	fields, err := ValidateFields(memberFields(m))
	if err != nil {
		return "", err
	}
	if err := s.admit(ctx); err != nil {
		return "", err
	}
	id, err := s.docs.Add(ctx, membersCollection, fields)
	if err != nil {
		return "", fmt.Errorf("add member: %w", err)
	}
	return id, nil
}

// UpdateMember merges sanitized fields into an existing entry.
func (s *GuildServiceImpl) UpdateMember(ctx context.Context, id string, fields map[string]any) error {
	if id == "" {
		return fmt.Errorf("%w: empty member id", errs.ErrValidation)
	}
	clean, err := ValidateFields(fields)
	if err != nil {
		return err
	}
	if err := s.admit(ctx); err != nil {
		return err
	}
	if err := s.docs.Update(ctx, membersCollection, id, clean); err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	return nil
}

// DeleteMember removes a roster entry.
func (s *GuildServiceImpl) DeleteMember(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty member id", errs.ErrValidation)
	}
	if err := s.admit(ctx); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, membersCollection, id); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

// SaveProfile updates profile fields while keeping the member's existing
// approval status; callers cannot escalate themselves to approved.
func (s *GuildServiceImpl) SaveProfile(ctx context.Context, userID string, fields map[string]any) (model.Status, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}
	if err := s.admit(ctx); err != nil {
		return "", err
	}

	current := model.StatusPending
	if doc, err := s.docs.Get(ctx, membersCollection, userID); err == nil {
		if v, ok := doc.Fields["status"].(string); ok && v != "" {
			current = model.Status(v)
		}
	} else if !errors.Is(err, errs.ErrNotFound) {
		return "", fmt.Errorf("save profile: %w", err)
	}

	clean, err := ValidateFields(fields)
	if err != nil {
		return "", err
	}
	delete(clean, "status")
	clean["status"] = string(current)

	if err := s.docs.Update(ctx, membersCollection, userID, clean); err != nil {
		return "", fmt.Errorf("save profile: %w", err)
	}
	return current, nil
}

// GetUserStatus returns the approval status for a member id.
func (s *GuildServiceImpl) GetUserStatus(ctx context.Context, userID string) (model.Status, error) {
	if err := s.admit(ctx); err != nil {
		return "", err
	}
	doc, err := s.docs.Get(ctx, membersCollection, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return "", errs.ErrNotFound
		}
		return "", fmt.Errorf("user status: %w", err)
	}
	if v, ok := doc.Fields["status"].(string); ok && v != "" {
		return model.Status(v), nil
	}
	return model.StatusPending, nil
}

// IsAdmin reports whether the member holds a leader or deputy role. Lookup
// failures degrade to false rather than surfacing an error. It is an advisory
// check with no error channel and is not admission-gated: a denial could not
// be told apart from "not an admin".
func (s *GuildServiceImpl) IsAdmin(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	doc, err := s.docs.Get(ctx, membersCollection, userID)
	if err != nil {
		s.log.Debug("admin check failed", zap.String("userID", userID), zap.Error(err))
		return false
	}
	role, _ := doc.Fields["role"].(string)
	return role == string(model.RoleGuildMaster) || role == string(model.RoleDeputy)
}

// Stats aggregates roster and gallery counts.
func (s *GuildServiceImpl) Stats(ctx context.Context) (model.Stats, error) {
	members, err := s.LoadMembers(ctx)
	if err != nil {
		return model.Stats{}, err
	}
	photos, err := s.LoadPhotos(ctx)
	if err != nil {
		return model.Stats{}, err
	}
	return model.Stats{MemberCount: len(members), PhotoCount: len(photos)}, nil
}

// LoadPhotos returns gallery entries newest first.
func (s *GuildServiceImpl) LoadPhotos(ctx context.Context) ([]model.Photo, error) {
	if err := s.admit(ctx); err != nil {
		return nil, err
	}
	docs, err := s.docs.GetAll(ctx, photosCollection, store.Query{
		Order: &store.Order{Field: "createdAt", Desc: true},
	})
	if err != nil {
		return nil, fmt.Errorf("load photos: %w", err)
	}
	photos := make([]model.Photo, 0, len(docs))
	for _, doc := range docs {
		photos = append(photos, decodePhoto(doc))
	}
	return photos, nil
}

// AddPhoto creates a gallery entry.
func (s *GuildServiceImpl) AddPhoto(ctx context.Context, p model.Photo) (string, error) {
	if p.URL == "" {
		return "", fmt.Errorf("%w: empty photo url", errs.ErrValidation)
	}
	fields, err := ValidateFields(photoFields(p))
	if err != nil {
		return "", err
	}
	if err := s.admit(ctx); err != nil {
		return "", err
	}
	id, err := s.docs.Add(ctx, photosCollection, fields)
	if err != nil {
		return "", fmt.Errorf("add photo: %w", err)
	}
	return id, nil
}

// DeletePhoto removes a gallery entry.
func (s *GuildServiceImpl) DeletePhoto(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty photo id", errs.ErrValidation)
	}
	if err := s.admit(ctx); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, photosCollection, id); err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	return nil
}

// UploadImage validates size, content type, and file name before storing.
func (s *GuildServiceImpl) UploadImage(ctx context.Context, r io.Reader, size int64, name, contentType, folder string) (store.UploadResult, error) {
	if size > maxUploadSize {
		return store.UploadResult{}, fmt.Errorf("%w: file exceeds 10MB limit", errs.ErrValidation)
	}
	if !allowedImageTypes[contentType] {
		return store.UploadResult{}, fmt.Errorf("%w: content type %s not allowed", errs.ErrValidation, contentType)
	}
	if Sanitize(name) != name {
		return store.UploadResult{}, fmt.Errorf("%w: invalid file name", errs.ErrValidation)
	}
	if err := s.admit(ctx); err != nil {
		return store.UploadResult{}, err
	}
	res, err := s.blobs.Upload(ctx, r, folder, name, contentType)
	if err != nil {
		return store.UploadResult{}, fmt.Errorf("upload image: %w", err)
	}
	return res, nil
}

// DeleteImage resolves the object path behind a public URL and deletes it.
func (s *GuildServiceImpl) DeleteImage(ctx context.Context, publicURL string) error {
	const marker = "/object/public/"
	idx := strings.Index(publicURL, marker)
	if idx < 0 {
		return fmt.Errorf("%w: unrecognized storage url", errs.ErrValidation)
	}
	rest := publicURL[idx+len(marker):]
	// first segment is the bucket; the remainder is the object path
	slash := strings.IndexByte(rest, '/')
	if slash < 0 || slash == len(rest)-1 {
		return fmt.Errorf("%w: unrecognized storage url", errs.ErrValidation)
	}
	path := rest[slash+1:]

	if err := s.admit(ctx); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

// LoadNotices returns announcements newest first.
func (s *GuildServiceImpl) LoadNotices(ctx context.Context) ([]model.Notice, error) {
	if err := s.admit(ctx); err != nil {
		return nil, err
	}
	docs, err := s.docs.GetAll(ctx, noticesCollection, store.Query{
		Order: &store.Order{Field: "createdAt", Desc: true},
	})
	if err != nil {
		return nil, fmt.Errorf("load notices: %w", err)
	}
	notices := make([]model.Notice, 0, len(docs))
	for _, doc := range docs {
		notices = append(notices, decodeNotice(doc))
	}
	return notices, nil
}

// GetNotice returns one announcement by id.
func (s *GuildServiceImpl) GetNotice(ctx context.Context, id string) (*model.Notice, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty notice id", errs.ErrValidation)
	}
	if err := s.admit(ctx); err != nil {
		return nil, err
	}
	doc, err := s.docs.Get(ctx, noticesCollection, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("get notice: %w", err)
	}
	n := decodeNotice(*doc)
	return &n, nil
}

// AddNotice creates an announcement.
func (s *GuildServiceImpl) AddNotice(ctx context.Context, n model.Notice) (string, error) {
	if strings.TrimSpace(n.Title) == "" {
		return "", fmt.Errorf("%w: empty notice title", errs.ErrValidation)
	}
	fields, err := ValidateFields(noticeFields(n))
	if err != nil {
		return "", err
	}
	if err := s.admit(ctx); err != nil {
		return "", err
	}
	id, err := s.docs.Add(ctx, noticesCollection, fields)
	if err != nil {
		return "", fmt.Errorf("add notice: %w", err)
	}
	return id, nil
}

// UpdateNotice merges sanitized fields into an announcement.
func (s *GuildServiceImpl) UpdateNotice(ctx context.Context, id string, fields map[string]any) error {
	if id == "" {
		return fmt.Errorf("%w: empty notice id", errs.ErrValidation)
	}
	clean, err := ValidateFields(fields)
	if err != nil {
		return err
	}
	if err := s.admit(ctx); err != nil {
		return err
	}
	if err := s.docs.Update(ctx, noticesCollection, id, clean); err != nil {
		return fmt.Errorf("update notice: %w", err)
	}
	return nil
}

// DeleteNotice removes an announcement.
func (s *GuildServiceImpl) DeleteNotice(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty notice id", errs.ErrValidation)
	}
	if err := s.admit(ctx); err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, noticesCollection, id); err != nil {
		return fmt.Errorf("delete notice: %w", err)
	}
	return nil
}

package rest

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/beniforreal/nbti-client/internal/store"
)

// BlobClient talks to the hosted object storage.
type BlobClient struct {
	c      *client
	bucket string
	now    func() time.Time
}

var _ store.BlobStore = (*BlobClient)(nil)

// NewBlobClient constructs a blob store client for one bucket.
func NewBlobClient(baseURL, apiKey, bucket string, hc *http.Client) *BlobClient {
	return &BlobClient{c: newClient(baseURL, apiKey, hc), bucket: bucket, now: time.Now}
}

// GenerateName builds a collision-resistant object name:
// <epoch-ms>_<random-suffix><ext>.
func (b *BlobClient) GenerateName(origName string) string {
	ext := strings.ToLower(path.Ext(origName))
	u, err := uuid.NewV4()
	suffix := "00000000"
	if err == nil {
		suffix = hex.EncodeToString(u.Bytes()[:4])
	}
	return fmt.Sprintf("%d_%s%s", b.now().UnixMilli(), suffix, ext)
}

func (b *BlobClient) objectPath(p string) string {
	return "/storage/v1/object/" + url.PathEscape(b.bucket) + "/" + p
}

// Upload streams the blob under folder and returns its public location.
func (b *BlobClient) Upload(ctx context.Context, r io.Reader, folder, origName, contentType string) (store.UploadResult, error) {
	name := b.GenerateName(origName)
	objPath := path.Join(folder, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.c.base+b.objectPath(objPath), r)
	if err != nil {
		return store.UploadResult{}, fmt.Errorf("create upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if b.c.key != "" {
		req.Header.Set("Authorization", "Bearer "+b.c.key)
	}

	resp, err := b.c.http.Do(req)
	if err != nil {
		return store.UploadResult{}, fmt.Errorf("upload %s: %w", objPath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return store.UploadResult{}, b.c.statusError(resp)
	}

	return store.UploadResult{
		URL:  b.PublicURL(objPath),
		Name: name,
		Path: objPath,
	}, nil
}

// Delete removes the object at path.
func (b *BlobClient) Delete(ctx context.Context, p string) error {
	return b.c.do(ctx, http.MethodDelete, b.objectPath(p), nil, nil, nil)
}

// List returns metadata for objects under folder.
func (b *BlobClient) List(ctx context.Context, folder string) ([]store.BlobInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		b.c.base+"/storage/v1/object/list/"+url.PathEscape(b.bucket)+"?prefix="+url.QueryEscape(folder), nil)
	if err != nil {
		return nil, fmt.Errorf("create list request: %w", err)
	}
	if b.c.key != "" {
		req.Header.Set("Authorization", "Bearer "+b.c.key)
	}
	resp, err := b.c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, b.c.statusError(resp)
	}

	var entries []struct {
		Name      string `json:"name"`
		Size      int64  `json:"size"`
		UpdatedAt int64  `json:"updatedAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	out := make([]store.BlobInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, store.BlobInfo{
			Name:      e.Name,
			Path:      path.Join(folder, e.Name),
			Size:      e.Size,
			UpdatedAt: time.UnixMilli(e.UpdatedAt),
		})
	}
	return out, nil
}

// PublicURL returns the public retrieval URL for an object path.
func (b *BlobClient) PublicURL(p string) string {
	return b.c.base + "/storage/v1/object/public/" + url.PathEscape(b.bucket) + "/" + p
}

// Package ipinfo resolves the client's public IP through an external lookup
// service. Resolution failure is never an error: the guard degrades to the
// Unknown sentinel, which disables IP-keyed ban lookups for the session.
package ipinfo

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Unknown is the sentinel returned when the public IP cannot be resolved.
const Unknown = "unknown"

// DefaultEndpoint is an ipify-compatible lookup URL returning {"ip": "..."}.
const DefaultEndpoint = "https://api.ipify.org?format=json"

// Resolver queries a what-is-my-IP endpoint.
type Resolver struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

// New constructs a resolver; an empty endpoint selects DefaultEndpoint.
func New(endpoint string, log *zap.Logger) *Resolver {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Resolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

// Resolve returns the public IP, or Unknown on any failure.
func (r *Resolver) Resolve(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return Unknown
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Debug("ip lookup failed", zap.Error(err))
		return Unknown
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.log.Debug("ip lookup bad status", zap.Int("status", resp.StatusCode))
		return Unknown
	}
	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.IP == "" {
		return Unknown
	}
	return body.IP
}

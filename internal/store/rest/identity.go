package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beniforreal/nbti-client/internal/errs"
	"github.com/beniforreal/nbti-client/internal/model"
	"github.com/beniforreal/nbti-client/internal/store"
)

// Identity talks to the hosted identity provider and fans auth-state
// transitions out to subscribers.
type Identity struct {
	c *client

	mu      sync.Mutex
	current *model.User
	tokens  model.Tokens
	subs    map[int]func(*model.User)
	nextSub int
}

var _ store.IdentityProvider = (*Identity)(nil)

// NewIdentity constructs an identity provider client.
func NewIdentity(baseURL, apiKey string, hc *http.Client) *Identity {
	return &Identity{
		c:    newClient(baseURL, apiKey, hc),
		subs: map[int]func(*model.User){},
	}
}

type authResponse struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"` // seconds
}

// SignIn authenticates with email and password.
func (p *Identity) SignIn(ctx context.Context, email, password string) (*model.User, model.Tokens, error) {
	var resp authResponse
	err := p.c.do(ctx, http.MethodPost, "/v1/auth:signInWithPassword", nil,
		map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return nil, model.Tokens{}, err
	}
	return p.establish(resp), p.Tokens(), nil
}

// SignInFederated authenticates through a federated provider, mapping the
// provider's distinguished failure causes onto sentinels.
func (p *Identity) SignInFederated(ctx context.Context, provider string) (*model.User, model.Tokens, error) {
	var resp authResponse
	err := p.c.do(ctx, http.MethodPost, "/v1/auth:signInWithIdp", nil,
		map[string]string{"provider": provider}, &resp)
	if err != nil {
		return nil, model.Tokens{}, mapFederatedError(err)
	}
	return p.establish(resp), p.Tokens(), nil
}

func mapFederatedError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Message {
	case "auth/popup-blocked":
		return fmt.Errorf("%w: %s", errs.ErrPopupBlocked, apiErr.Message)
	case "auth/popup-closed-by-user":
		return fmt.Errorf("%w: %s", errs.ErrPopupClosed, apiErr.Message)
	case "auth/unauthorized-domain":
		return fmt.Errorf("%w: %s", errs.ErrUnauthorizedDomain, apiErr.Message)
	case "auth/operation-not-allowed":
		return fmt.Errorf("%w: %s", errs.ErrOperationNotAllowed, apiErr.Message)
	}
	return err
}

// establish records the session and notifies subscribers.
func (p *Identity) establish(resp authResponse) *model.User {
	user := &model.User{UID: resp.UID, Email: resp.Email, DisplayName: resp.DisplayName}

	p.mu.Lock()
	p.current = user
	p.tokens = model.Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    tokenExpiry(resp),
	}
	p.mu.Unlock()

	p.notify(user)
	return user
}

// tokenExpiry prefers the exp claim embedded in the access token, falling
// back to the advertised lifetime.
func tokenExpiry(resp authResponse) time.Time {
	var claims jwt.RegisteredClaims
	_, _ = jwt.ParseWithClaims(resp.AccessToken, &claims,
		func(*jwt.Token) (any, error) { return nil, nil },
		jwt.WithoutClaimsValidation(),
	)
	if claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	if resp.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return time.Now().Add(time.Hour)
}

// SignOut terminates the session and notifies subscribers with nil.
func (p *Identity) SignOut(ctx context.Context) error {
	err := p.c.do(ctx, http.MethodPost, "/v1/auth:signOut", nil, nil, nil)

	p.mu.Lock()
	p.current = nil
	p.tokens = model.Tokens{}
	p.mu.Unlock()
	p.notify(nil)

	return err
}

// RefreshToken renews the session token. Without force, a token with more
// than five minutes of life left is returned as-is.
func (p *Identity) RefreshToken(ctx context.Context, force bool) (model.Tokens, error) {
	p.mu.Lock()
	cur := p.tokens
	signedIn := p.current != nil
	p.mu.Unlock()

	if !signedIn {
		return model.Tokens{}, errs.ErrUnauthorized
	}
	if !force && time.Until(cur.ExpiresAt) > 5*time.Minute {
		return cur, nil
	}

	var resp authResponse
	err := p.c.do(ctx, http.MethodPost, "/v1/auth:token", nil,
		map[string]string{"grantType": "refresh_token", "refreshToken": cur.RefreshToken}, &resp)
	if err != nil {
		return model.Tokens{}, err
	}

	p.mu.Lock()
	p.tokens = model.Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    tokenExpiry(resp),
	}
	out := p.tokens
	p.mu.Unlock()
	return out, nil
}

// Subscribe registers an auth-state listener. The listener fires immediately
// with the current state and then on every transition; the returned func
// removes it.
func (p *Identity) Subscribe(fn func(*model.User)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	current := p.current
	p.mu.Unlock()

	fn(current)
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// CurrentUser returns the signed-in user or nil.
func (p *Identity) CurrentUser() *model.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Tokens returns a copy of the current token set.
func (p *Identity) Tokens() model.Tokens {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokens
}

func (p *Identity) notify(u *model.User) {
	p.mu.Lock()
	fns := make([]func(*model.User), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

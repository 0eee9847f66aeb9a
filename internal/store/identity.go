package store

import (
	"context"

	"github.com/beniforreal/nbti-client/internal/model"
)

// IdentityProvider is the hosted authentication boundary. Subscribe delivers
// the current user (or nil) on every auth transition; each consumer holds its
// own unsubscribe handle.
type IdentityProvider interface {
	// SignIn authenticates with email and password.
	SignIn(ctx context.Context, email, password string) (*model.User, model.Tokens, error)
	// SignInFederated authenticates through a federated provider. Failures
	// map to the distinguished causes in errs (popup blocked/closed,
	// unauthorized domain, operation not allowed).
	SignInFederated(ctx context.Context, provider string) (*model.User, model.Tokens, error)
	// SignOut terminates the current session.
	SignOut(ctx context.Context) error
	// RefreshToken renews the session token; force skips freshness checks.
	RefreshToken(ctx context.Context, force bool) (model.Tokens, error)
	// Subscribe registers an auth-state listener and returns its unsubscribe.
	Subscribe(fn func(*model.User)) (unsubscribe func())
	// CurrentUser returns the signed-in user or nil.
	CurrentUser() *model.User
}

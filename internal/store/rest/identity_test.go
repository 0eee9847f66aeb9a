package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beniforreal/nbti-client/internal/errs"
	"github.com/beniforreal/nbti-client/internal/model"
)

func authServer(t *testing.T, resp authResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

// signedToken builds an unsecured-but-parseable JWT with the given expiry.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSignIn(t *testing.T) {
	t.Parallel()
	exp := time.Now().Add(45 * time.Minute).Truncate(time.Second)
	srv := authServer(t, authResponse{
		UID:          "u1",
		Email:        "a@b.c",
		AccessToken:  signedToken(t, exp),
		RefreshToken: "r1",
	})
	defer srv.Close()

	p := NewIdentity(srv.URL, "", nil)
	user, tokens, err := p.SignIn(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if user.UID != "u1" || user.Email != "a@b.c" {
		t.Fatalf("unexpected user %+v", user)
	}
	if !tokens.ExpiresAt.Equal(exp) {
		t.Fatalf("expiry must come from the token's exp claim: want %v, got %v", exp, tokens.ExpiresAt)
	}
	if p.CurrentUser() == nil {
		t.Fatalf("CurrentUser must reflect the session")
	}
}

func TestTokenExpiry_FallsBackToExpiresIn(t *testing.T) {
	t.Parallel()
	srv := authServer(t, authResponse{
		UID:         "u1",
		AccessToken: "not-a-jwt",
		ExpiresIn:   3600,
	})
	defer srv.Close()

	p := NewIdentity(srv.URL, "", nil)
	before := time.Now()
	_, tokens, err := p.SignIn(context.Background(), "a@b.c", "pw")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	got := tokens.ExpiresAt.Sub(before)
	if got < 59*time.Minute || got > 61*time.Minute {
		t.Fatalf("want ~1h lifetime from expiresIn, got %v", got)
	}
}

func TestSignInFederated_ErrorCauses(t *testing.T) {
	t.Parallel()
	cases := []struct {
		message string
		want    error
	}{
		{"auth/popup-blocked", errs.ErrPopupBlocked},
		{"auth/popup-closed-by-user", errs.ErrPopupClosed},
		{"auth/unauthorized-domain", errs.ErrUnauthorizedDomain},
		{"auth/operation-not-allowed", errs.ErrOperationNotAllowed},
	}
	for _, tc := range cases {
		msg := tc.message
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"` + msg + `"}}`))
		}))

		p := NewIdentity(srv.URL, "", nil)
		_, _, err := p.SignInFederated(context.Background(), "google")
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: want %v, got %v", msg, tc.want, err)
		}
		srv.Close()
	}
}

func TestSubscribe(t *testing.T) {
	t.Parallel()
	srv := authServer(t, authResponse{UID: "u1", AccessToken: "t", ExpiresIn: 3600})
	defer srv.Close()

	p := NewIdentity(srv.URL, "", nil)

	var seen []*model.User
	unsubscribe := p.Subscribe(func(u *model.User) { seen = append(seen, u) })

	// fires immediately with the current (signed-out) state
	if len(seen) != 1 || seen[0] != nil {
		t.Fatalf("want immediate nil delivery, got %v", seen)
	}

	if _, _, err := p.SignIn(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if len(seen) != 2 || seen[1] == nil || seen[1].UID != "u1" {
		t.Fatalf("want sign-in delivery, got %v", seen)
	}

	unsubscribe()
	_ = p.SignOut(context.Background())
	if len(seen) != 2 {
		t.Fatalf("unsubscribed listener must not fire, got %d deliveries", len(seen))
	}
	if p.CurrentUser() != nil {
		t.Fatalf("sign-out must clear the session")
	}
}

func TestRefreshToken(t *testing.T) {
	t.Parallel()
	var refreshes int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/auth:token" {
			refreshes++
		}
		_ = json.NewEncoder(w).Encode(authResponse{UID: "u1", AccessToken: "t2", ExpiresIn: 3600})
	}))
	defer srv.Close()

	p := NewIdentity(srv.URL, "", nil)

	// refreshing a signed-out session is an error
	if _, err := p.RefreshToken(context.Background(), true); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}

	if _, _, err := p.SignIn(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	// a fresh token is returned as-is without force
	if _, err := p.RefreshToken(context.Background(), false); err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if refreshes != 0 {
		t.Fatalf("fresh token must short-circuit, got %d backend calls", refreshes)
	}

	// force always hits the backend
	tokens, err := p.RefreshToken(context.Background(), true)
	if err != nil {
		t.Fatalf("forced RefreshToken: %v", err)
	}
	if refreshes != 1 || tokens.AccessToken != "t2" {
		t.Fatalf("forced refresh must renew, got %d calls, token %q", refreshes, tokens.AccessToken)
	}
}

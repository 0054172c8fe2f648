package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubSessionLookup struct {
	active bool
	err    error
	calls  []string
}

func (s *stubSessionLookup) SessionActive(_ context.Context, username, token string) (bool, error) {
	s.calls = append(s.calls, username+"|"+token)
	return s.active, s.err
}

func newTestIssuer(t *testing.T, clock func() time.Time) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("session-secret"),
		Issuer:        "bookclub-auth",
		Audience:      "bookclub-api",
		TokenTTL:      time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	return issuer
}

func TestNewSessionValidatorRequiresDependencies(t *testing.T) {
	if _, err := NewSessionValidator(SessionValidatorConfig{Sessions: &stubSessionLookup{}}); !errors.Is(err, ErrMissingSessionTokens) {
		t.Fatalf("expected missing tokens error, got %v", err)
	}
	issuer := newTestIssuer(t, nil)
	if _, err := NewSessionValidator(SessionValidatorConfig{Tokens: issuer}); !errors.Is(err, ErrMissingSessionStore) {
		t.Fatalf("expected missing session store error, got %v", err)
	}
}

func TestSessionValidatorAcceptsActiveSession(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	sessions := &stubSessionLookup{active: true}
	validator, err := NewSessionValidator(SessionValidatorConfig{Tokens: issuer, Sessions: sessions})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	token, _, err := issuer.IssueToken(context.Background(), Identity{UserID: 10, Username: "member"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	request := httptest.NewRequest(http.MethodGet, "/api/notes", http.NoBody)
	request.Header.Set("Authorization", "Bearer "+token)

	identity, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("expected session to validate: %v", err)
	}
	if identity.UserID != 10 {
		t.Fatalf("unexpected user id %d", identity.UserID)
	}
	if len(sessions.calls) != 1 || sessions.calls[0] != "member|"+token {
		t.Fatalf("unexpected session lookups %v", sessions.calls)
	}
}

func TestSessionValidatorRejectsLoggedOutSession(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	validator, err := NewSessionValidator(SessionValidatorConfig{Tokens: issuer, Sessions: &stubSessionLookup{active: false}})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	token, _, err := issuer.IssueToken(context.Background(), Identity{UserID: 11, Username: "gone"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	_, err = validator.ValidateToken(context.Background(), token)
	if !errors.Is(err, ErrInactiveSession) {
		t.Fatalf("expected inactive session error, got %v", err)
	}
}

func TestSessionValidatorReportsLookupFailures(t *testing.T) {
	issuer := newTestIssuer(t, nil)
	lookupErr := errors.New("disk I/O error")
	validator, err := NewSessionValidator(SessionValidatorConfig{Tokens: issuer, Sessions: &stubSessionLookup{err: lookupErr}})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	token, _, err := issuer.IssueToken(context.Background(), Identity{UserID: 13, Username: "unlucky"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	_, err = validator.ValidateToken(context.Background(), token)
	if !errors.Is(err, ErrSessionLookupFailed) || !errors.Is(err, lookupErr) {
		t.Fatalf("expected lookup failure wrapping the cause, got %v", err)
	}
	if errors.Is(err, ErrInvalidSessionToken) || errors.Is(err, ErrInactiveSession) {
		t.Fatalf("lookup failure must not read as an auth rejection: %v", err)
	}
}

func TestSessionValidatorClassifiesTokenFailures(t *testing.T) {
	issuedAt := time.Unix(1700000000, 0)
	now := issuedAt
	issuer := newTestIssuer(t, func() time.Time { return now })
	validator, err := NewSessionValidator(SessionValidatorConfig{Tokens: issuer, Sessions: &stubSessionLookup{active: true}})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	token, _, err := issuer.IssueToken(context.Background(), Identity{UserID: 12, Username: "timer"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	now = issuedAt.Add(time.Hour)

	if _, err := validator.ValidateToken(context.Background(), token); !errors.Is(err, ErrExpiredSessionToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
	if _, err := validator.ValidateToken(context.Background(), "garbage"); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
	if _, err := validator.ValidateToken(context.Background(), "  "); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestTokenFromRequestPrefersAuthorizationHeader(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/api/activity/stream?access_token=query-token", http.NoBody)
	if token := TokenFromRequest(request); token != "query-token" {
		t.Fatalf("expected query token, got %q", token)
	}

	request.Header.Set("Authorization", "Bearer header-token")
	if token := TokenFromRequest(request); token != "header-token" {
		t.Fatalf("expected header token, got %q", token)
	}

	request.Header.Set("Authorization", "Basic abc")
	if token := TokenFromRequest(request); token != "" {
		t.Fatalf("expected no token for non-bearer scheme, got %q", token)
	}
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSessionTokens = errors.New("session validator: token validator required")
	ErrMissingSessionStore  = errors.New("session validator: session lookup required")
	ErrMissingSessionToken  = errors.New("session validator: token required")
	ErrInvalidSessionToken  = errors.New("session validator: invalid token")
	ErrExpiredSessionToken  = errors.New("session validator: token expired")
	ErrInactiveSession      = errors.New("session validator: session is not active")
	ErrSessionLookupFailed  = errors.New("session validator: session lookup failed")
)

const accessTokenQueryParameter = "access_token"

// TokenValidator parses an access token into the identity it was issued for.
type TokenValidator interface {
	ValidateToken(token string) (Identity, error)
}

// SessionLookup reports whether token is the live login of username.
type SessionLookup interface {
	SessionActive(ctx context.Context, username, token string) (bool, error)
}

// SessionValidatorConfig wires the token validator and the login session store.
type SessionValidatorConfig struct {
	Tokens   TokenValidator
	Sessions SessionLookup
}

// SessionValidator accepts a request only when it carries a valid token for a login that was not logged out.
type SessionValidator struct {
	tokens   TokenValidator
	sessions SessionLookup
}

// NewSessionValidator constructs a validator with the provided configuration.
func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if cfg.Tokens == nil {
		return nil, ErrMissingSessionTokens
	}
	if cfg.Sessions == nil {
		return nil, ErrMissingSessionStore
	}
	return &SessionValidator{tokens: cfg.Tokens, sessions: cfg.Sessions}, nil
}

// ValidateToken validates the token and checks the login session behind it.
func (v *SessionValidator) ValidateToken(ctx context.Context, tokenString string) (Identity, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return Identity{}, ErrMissingSessionToken
	}
	identity, err := v.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, fmt.Errorf("%w: %w", ErrExpiredSessionToken, err)
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	active, err := v.sessions.SessionActive(ctx, identity.Username, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrSessionLookupFailed, err)
	}
	if !active {
		return Identity{}, ErrInactiveSession
	}
	return identity, nil
}

// ValidateRequest extracts a bearer token, or the access_token query parameter
// used by event streams, and validates it.
func (v *SessionValidator) ValidateRequest(r *http.Request) (Identity, error) {
	if r == nil {
		return Identity{}, ErrMissingSessionToken
	}
	return v.ValidateToken(r.Context(), TokenFromRequest(r))
}

// TokenFromRequest returns the bearer token of r, if any.
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if header != "" {
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get(accessTokenQueryParameter))
}

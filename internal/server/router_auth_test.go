package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/bookclub/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubSessionValidator struct {
	identity auth.Identity
	err      error
}

func (s stubSessionValidator) ValidateRequest(*http.Request) (auth.Identity, error) {
	return s.identity, s.err
}

func newAuthContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/notes", http.NoBody)
	request.Header.Set("Authorization", "Bearer some-token")
	ctx.Request = request
	return ctx, recorder
}

func TestAuthorizeRequestLogsExpiredTokenAtInfoLevel(t *testing.T) {
	ctx, recorder := newAuthContext(t)

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{
			err: fmt.Errorf("%w: %w", auth.ErrExpiredSessionToken, jwt.ErrTokenExpired),
		},
		logger: zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusForbidden)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entry.Level)
	}
	if entry.Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), jwt.ErrTokenExpired) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired token error context, got %v", entry.Context)
	}
}

func TestAuthorizeRequestLogsUnexpectedTokenErrorAtWarnLevel(t *testing.T) {
	ctx, recorder := newAuthContext(t)

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{err: auth.ErrInvalidSessionToken},
		logger:   zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusForbidden {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusForbidden)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for unexpected error, got %s", entries[0].Level)
	}
}

func TestAuthorizeRequestRejectsMissingToken(t *testing.T) {
	ctx, recorder := newAuthContext(t)

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{err: auth.ErrMissingSessionToken},
		logger:   zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	if logs.Len() != 0 {
		t.Fatalf("expected no log entries for a missing token, got %d", logs.Len())
	}
}

func TestAuthorizeRequestStoresIdentity(t *testing.T) {
	ctx, recorder := newAuthContext(t)

	handler := &httpHandler{
		sessions: stubSessionValidator{identity: auth.Identity{UserID: 42, Username: "reader"}},
		logger:   zap.NewNop(),
	}

	handler.authorizeRequest(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected request to pass, got status %d", recorder.Code)
	}
	identity, ok := identityFrom(ctx)
	if !ok || identity.UserID != 42 {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestAuthorizeRequestReportsSessionLookupFailure(t *testing.T) {
	ctx, recorder := newAuthContext(t)

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessionValidator{
			err: fmt.Errorf("%w: %w", auth.ErrSessionLookupFailed, errors.New("disk I/O error")),
		},
		logger: zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusInternalServerError)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.ErrorLevel || entries[0].Message != "session lookup failed" {
		t.Fatalf("unexpected log entry %s %q", entries[0].Level, entries[0].Message)
	}
}

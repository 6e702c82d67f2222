package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func middlewareStatus(t *testing.T, auth *Authenticator, header, value string) (int, bool) {
	t.Helper()
	handlerCalled := false
	h := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/load/cpu/status", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, handlerCalled
}

func forgeToken(t *testing.T, key []byte) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "harness-service",
		Subject:   "api-client",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("signing forged token: %v", err)
	}
	return signed
}

func TestEmptySecretRejectsForgedTokens(t *testing.T) {
	t.Parallel()
	// With no secret configured the authenticator must not fall back to an
	// empty signing key, or a token signed with "" would verify.
	auth := NewAuthenticator("real-api-key", "", 8*time.Hour)

	forged := forgeToken(t, []byte(""))
	code, called := middlewareStatus(t, auth, "Authorization", "Bearer "+forged)
	if code != http.StatusUnauthorized || called {
		t.Fatalf("forged token admitted: status=%d handlerCalled=%v", code, called)
	}

	// Tokens the authenticator itself issues still pass.
	issued, _, err := auth.IssueToken("real-api-key")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	code, called = middlewareStatus(t, auth, "Authorization", "Bearer "+issued)
	if code != http.StatusOK || !called {
		t.Fatalf("issued token rejected: status=%d handlerCalled=%v", code, called)
	}
}

func TestPerBootSecretsDiffer(t *testing.T) {
	t.Parallel()
	a := NewAuthenticator("key", "", time.Hour)
	b := NewAuthenticator("key", "", time.Hour)

	token, _, err := a.IssueToken("key")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if b.validToken(token) {
		t.Error("token issued by one authenticator verified by another with a generated secret")
	}
}

func TestConfiguredSecretIsStable(t *testing.T) {
	t.Parallel()
	a := NewAuthenticator("key", "shared-secret", time.Hour)
	b := NewAuthenticator("key", "shared-secret", time.Hour)

	token, _, err := a.IssueToken("key")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if !b.validToken(token) {
		t.Error("token rejected across instances sharing a configured secret")
	}
}

package api

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"loadharness/internal/apperrors"
)

// Authenticator validates requests by X-API-Key header (timing-safe
// comparison) or by a bearer token it issued earlier. With no API key
// configured, authentication is disabled.
type Authenticator struct {
	apiKey      string
	tokenSecret []byte
	tokenTTL    time.Duration
}

// NewAuthenticator creates an authenticator. tokenSecret signs issued bearer
// tokens (HS256). When tokenSecret is empty a random per-boot secret is
// generated: tokens keep working within one process lifetime, and an empty
// signing key can never verify a forged token.
func NewAuthenticator(apiKey, tokenSecret string, tokenTTL time.Duration) *Authenticator {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	secret := []byte(tokenSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("generating token secret: %v", err))
		}
	}
	return &Authenticator{
		apiKey:      apiKey,
		tokenSecret: secret,
		tokenTTL:    tokenTTL,
	}
}

// Enabled reports whether authentication is configured.
func (a *Authenticator) Enabled() bool {
	return a.apiKey != ""
}

// IssueToken exchanges a valid API key for a signed bearer token.
func (a *Authenticator) IssueToken(apiKey string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, apperrors.Unauthorized("authentication is disabled")
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(a.apiKey)) != 1 {
		return "", time.Time{}, apperrors.Unauthorized("Invalid API key")
	}

	now := time.Now()
	expiresAt := now.Add(a.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "harness-service",
		Subject:   "api-client",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString(a.tokenSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// validToken verifies a bearer token's signature and expiry.
func (a *Authenticator) validToken(tokenString string) bool {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return a.tokenSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil && token.Valid
}

// validAPIKey compares a provided key in constant time.
func (a *Authenticator) validAPIKey(provided string) bool {
	return provided != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(a.apiKey)) == 1
}

// Middleware authenticates requests. A request passes with a valid X-API-Key
// header or an Authorization bearer token issued by /auth/token.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			if a.validAPIKey(r.Header.Get("X-API-Key")) {
				next.ServeHTTP(w, r)
				return
			}

			if auth := r.Header.Get("Authorization"); auth != "" {
				parts := strings.SplitN(auth, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && a.validToken(parts[1]) {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeUnauthorized(w)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"Unauthorized","message":"Valid API key required in X-API-Key header"}` + "\n"))
}

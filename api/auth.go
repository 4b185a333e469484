/*
auth.go - Bearer-token authentication boundary

PURPOSE:
  Resolves the authenticated principal from an HS256 bearer token and makes
  it available to handlers via the request context. Token issuance, refresh,
  and role administration live outside this module; this middleware only
  consumes tokens.

  The resolved principal's subject id is the ONLY source of subject identity
  for ingested scans - the request payload is never trusted for it.

CLAIMS:
  sub  subject id (required)
  typ  role ("student", "driver", "admin"); students may only read their
       own scan history
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/campuslink/scan-engine/ingest"
	"github.com/campuslink/scan-engine/scan"
)

type contextKey int

const principalKey contextKey = iota

// Authenticator returns middleware that rejects requests without a valid
// bearer token and stores the resolved principal in the request context.
func Authenticator(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := resolvePrincipal(r, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized", err)
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext returns the principal stored by Authenticator.
func PrincipalFromContext(ctx context.Context) (ingest.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(ingest.Principal)
	return principal, ok
}

func resolvePrincipal(r *http.Request, secret string) (ingest.Principal, error) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ingest.Principal{}, fmt.Errorf("missing bearer token")
	}
	raw := strings.TrimSpace(authz[len("bearer "):])

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return ingest.Principal{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return ingest.Principal{}, fmt.Errorf("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return ingest.Principal{}, fmt.Errorf("token missing subject")
	}
	role, _ := claims["typ"].(string)

	return ingest.Principal{SubjectID: scan.SubjectID(sub), Role: role}, nil
}

// SignToken mints an HS256 token for the given subject. Used by tests and
// the server's dev-token flag; production issuance is external.
func SignToken(secret string, subjectID scan.SubjectID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": string(subjectID),
		"typ": role,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

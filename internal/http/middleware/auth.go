package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/voice-agent-scheduling/internal/tenancy"
)

type contextKey string

const orgClaimsKey contextKey = "orgClaims"

// OrgClaims are the claims carried by organization API tokens.
type OrgClaims struct {
	OrgID string `json:"org_id"`
	jwt.RegisteredClaims
}

// OrgJWT enforces an HMAC-signed JWT with an org_id claim and places the
// organization id in the request context.
func OrgJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "organization auth disabled", http.StatusUnauthorized)
				return
			}
			tokenString, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			claims := &OrgClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			}, jwt.WithExpirationRequired())
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			orgID := strings.TrimSpace(claims.OrgID)
			if orgID == "" {
				http.Error(w, "token has no organization", http.StatusForbidden)
				return
			}
			ctx := tenancy.WithOrgID(r.Context(), orgID)
			ctx = context.WithValue(ctx, orgClaimsKey, *claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OrgClaimsFromContext returns the verified org token claims if present.
func OrgClaimsFromContext(ctx context.Context) (OrgClaims, bool) {
	claims, ok := ctx.Value(orgClaimsKey).(OrgClaims)
	return claims, ok
}

// BearerSecret guards machine-to-machine routes such as the cron trigger
// with a shared secret compared in constant time.
func BearerSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "endpoint disabled", http.StatusUnauthorized)
				return
			}
			got, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return tok, tok != ""
}

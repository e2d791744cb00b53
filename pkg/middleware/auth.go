package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/EcommerceGo/storefront/pkg/httputil"
)

// Claims are the token fields the storefront reads. UserID falls back to the
// registered subject when the token has no user_id claim.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator checks a raw bearer token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

const tokenLeeway = 30 * time.Second

type claimsKey struct{}

// HMACValidator accepts HS256, HS384 and HS512 tokens signed with secret.
func HMACValidator(secret string) TokenValidator {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(tokenLeeway),
	)
	keyFunc := func(*jwt.Token) (any, error) { return key, nil }

	return func(raw string) (*Claims, error) {
		claims := &Claims{}
		if _, err := parser.ParseWithClaims(raw, claims, keyFunc); err != nil {
			return nil, err
		}
		if claims.UserID == "" {
			claims.UserID = claims.Subject
		}
		return claims, nil
	}
}

// Auth rejects requests without a valid bearer token and stores the token's
// claims in the request context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, r, "missing or malformed bearer token")
				return
			}
			claims, err := validate(raw)
			if err != nil {
				unauthorized(w, r, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="storefront"`)
	httputil.WriteErrorCode(w, r, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// ClaimsFromContext returns the claims stored by Auth, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// UserIDFromContext returns the authenticated user id, or "".
func UserIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

// RoleFromContext returns the authenticated user's role, or "".
func RoleFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Role
	}
	return ""
}

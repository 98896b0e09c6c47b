// Package middleware holds the HTTP middleware chain: bearer authentication
// and request logging.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/TaxFlow/internal/config"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

type contextKey int

const claimsContextKey contextKey = iota

// Claims are the accepted JWT claims. The subject is recorded as the actor
// of every change made with the token.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*Claims, error)
}

// HMACValidator verifies HS256/384/512 tokens against a shared secret.
type HMACValidator struct {
	secret   []byte
	issuer   string
	audience string
}

func NewHMACValidator(cfg config.AuthConfig) (*HMACValidator, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.InvalidParam("jwt secret is required when auth is enabled")
	}
	return &HMACValidator{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer, audience: cfg.Audience}, nil
}

func (v *HMACValidator) ValidateToken(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.Unauthorized("token has no subject")
	}
	return claims, nil
}

// AuthMiddleware rejects requests without a valid bearer token.
type AuthMiddleware struct {
	validator TokenValidator
	skipPaths []string
	logger    logging.Logger
}

func NewAuthMiddleware(v TokenValidator, logger logging.Logger, skipPaths ...string) *AuthMiddleware {
	return &AuthMiddleware{validator: v, skipPaths: skipPaths, logger: logger}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.shouldSkip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		token := extractBearerToken(r)
		if token == "" {
			writeUnauthorized(w, errors.Unauthorized("authentication required"))
			return
		}
		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			m.logger.Warn("token validation failed", logging.String("path", r.URL.Path), logging.Err(err))
			writeUnauthorized(w, errors.Unauthorized("invalid or expired token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (m *AuthMiddleware) shouldSkip(path string) bool {
	for _, p := range m.skipPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func extractBearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, c)
}

// ContextGetClaims returns nil for unauthenticated requests.
func ContextGetClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsContextKey).(*Claims)
	return c
}

// ActorFromContext returns the token subject, or fallback when the request
// is unauthenticated.
func ActorFromContext(ctx context.Context, fallback string) string {
	if c := ContextGetClaims(ctx); c != nil {
		return c.Subject
	}
	return fallback
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("WWW-Authenticate", `Bearer realm="taxflow"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errors.ToPayload(err))
}

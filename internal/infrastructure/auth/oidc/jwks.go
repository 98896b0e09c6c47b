// Package oidc verifies tokens issued by an external OpenID Connect provider
// such as Keycloak and maps their roles to TaxFlow permissions.
package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/TaxFlow/internal/config"
	"github.com/turtacn/TaxFlow/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TaxFlow/internal/interfaces/http/middleware"
	"github.com/turtacn/TaxFlow/pkg/errors"
)

// providerClaims adds the Keycloak role containers to the accepted claims.
type providerClaims struct {
	middleware.Claims
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
	AuthorizedParty string `json:"azp,omitempty"`
}

type keySet struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// JWKSValidator verifies RS256/384/512 tokens against the provider's JWKS.
// Unknown key ids trigger a refresh, rate limited by minRefresh.
type JWKSValidator struct {
	url        string
	issuer     string
	audience   string
	httpClient *http.Client
	minRefresh time.Duration
	logger     logging.Logger

	mu  sync.RWMutex
	set keySet
}

// Option configures a JWKSValidator.
type Option func(*JWKSValidator)

func WithHTTPClient(c *http.Client) Option {
	return func(v *JWKSValidator) {
		if c != nil {
			v.httpClient = c
		}
	}
}

// WithMinRefreshInterval bounds how often an unknown kid may refetch the
// key set.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(v *JWKSValidator) { v.minRefresh = d }
}

func NewJWKSValidator(cfg config.AuthConfig, logger logging.Logger, opts ...Option) (*JWKSValidator, error) {
	if !strings.HasPrefix(cfg.JWKSURL, "http://") && !strings.HasPrefix(cfg.JWKSURL, "https://") {
		return nil, errors.InvalidParam("auth.jwks_url must be an http(s) url").WithDetail(cfg.JWKSURL)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	v := &JWKSValidator{
		url:        cfg.JWKSURL,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		minRefresh: 30 * time.Second,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Refresh fetches the key set now. Startup calls it so a misconfigured
// provider fails fast.
func (v *JWKSValidator) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to build jwks request")
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to fetch jwks")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.ExternalService("jwks endpoint answered " + resp.Status)
	}

	var doc struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "malformed jwks document")
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := rsaKey(k.N, k.E)
		if err != nil {
			v.logger.Warn("Skipping malformed JWK", logging.String("kid", k.Kid), logging.Err(err))
			continue
		}
		keys[k.Kid] = pub
	}

	v.mu.Lock()
	v.set = keySet{keys: keys, fetchedAt: time.Now()}
	v.mu.Unlock()
	v.logger.Debug("JWKS refreshed", logging.Int("keys", len(keys)))
	return nil
}

func rsaKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := 0
	for _, b := range eb {
		exp = exp<<8 | int(b)
	}
	if exp == 0 || len(nb) == 0 {
		return nil, fmt.Errorf("empty key material")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: exp}, nil
}

func (v *JWKSValidator) key(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	k, ok := v.set.keys[kid]
	stale := time.Since(v.set.fetchedAt) >= v.minRefresh
	v.mu.RUnlock()
	if ok {
		return k, nil
	}
	if !stale {
		return nil, errors.Unauthorized("unknown signing key").WithDetail(kid)
	}
	timeout := v.httpClient.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := v.Refresh(ctx); err != nil {
		return nil, err
	}
	v.mu.RLock()
	k, ok = v.set.keys[kid]
	v.mu.RUnlock()
	if !ok {
		return nil, errors.Unauthorized("unknown signing key").WithDetail(kid)
	}
	return k, nil
}

// ValidateToken implements middleware.TokenValidator. Realm roles and the
// roles of the audience client are merged into Claims.Roles.
func (v *JWKSValidator) ValidateToken(token string) (*middleware.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &providerClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.Unauthorized("token has no key id")
		}
		return v.key(kid)
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid token")
	}
	if v.audience != "" && !v.audienceMatches(claims) {
		return nil, errors.Unauthorized("token audience mismatch")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.Unauthorized("token has no subject")
	}

	out := claims.Claims
	out.Roles = mergeRoles(out.Roles, claims.RealmAccess.Roles)
	if ra, ok := claims.ResourceAccess[v.audience]; ok {
		out.Roles = mergeRoles(out.Roles, ra.Roles)
	}
	return &out, nil
}

// audienceMatches accepts either aud or Keycloak's authorized party.
func (v *JWKSValidator) audienceMatches(c *providerClaims) bool {
	for _, a := range c.Audience {
		if a == v.audience {
			return true
		}
	}
	return c.AuthorizedParty == v.audience
}

func mergeRoles(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, r := range dst {
		seen[r] = true
	}
	for _, r := range src {
		if !seen[r] {
			seen[r] = true
			dst = append(dst, r)
		}
	}
	return dst
}

var _ middleware.TokenValidator = (*JWKSValidator)(nil)

package finverse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/finverse-reconciler/internal/metrics"
)

// ExpiryMargin is how long a token must still live to be reused.
const ExpiryMargin = 5 * time.Second

// Credential is a Finverse bearer token. ExpiresAt mirrors the token's exp
// claim and is only used for store TTLs; validity is always decoded from
// AccessToken itself.
type Credential struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Exchanger obtains a fresh credential.
type Exchanger interface {
	ExchangeCredential(ctx context.Context) (*Credential, error)
}

// TokenExpiry reads the exp claim from a JWT without verifying it. Any decode
// failure, including a missing exp, returns ok=false.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	if token == "" {
		return time.Time{}, false
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}

	date, err := parsed.Claims.GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}

	return date.Time, true
}

// TokenCache decides whether a cached credential can be reused and refreshes it
// otherwise. It holds no credential itself; callers own persistence.
type TokenCache struct {
	exchanger Exchanger
	margin    time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewTokenCache(exchanger Exchanger, logger *slog.Logger) *TokenCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenCache{
		exchanger: exchanger,
		margin:    ExpiryMargin,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source.
func (c *TokenCache) WithClock(now func() time.Time) *TokenCache {
	c.now = now
	return c
}

// IsValid reports whether cred expires more than the margin after now.
func (c *TokenCache) IsValid(cred *Credential) bool {
	if cred == nil {
		return false
	}
	exp, ok := TokenExpiry(cred.AccessToken)
	if !ok {
		return false
	}
	return exp.Sub(c.now()) > c.margin
}

// EnsureValid returns cached unchanged when it is still valid, otherwise a
// freshly exchanged credential.
func (c *TokenCache) EnsureValid(ctx context.Context, cached *Credential) (*Credential, error) {
	if c.IsValid(cached) {
		return cached, nil
	}

	cred, err := c.exchanger.ExchangeCredential(ctx)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to refresh finverse token: %w", err)
	}

	metrics.TokenRefreshTotal.WithLabelValues("success").Inc()
	c.logger.Debug("finverse token refreshed", "had_cached", cached != nil)
	return cred, nil
}

// TokenSource combines a TokenCache with an externally owned TokenStore.
type TokenSource struct {
	cache  *TokenCache
	store  TokenStore
	logger *slog.Logger
}

func NewTokenSource(cache *TokenCache, store TokenStore, logger *slog.Logger) *TokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenSource{cache: cache, store: store, logger: logger}
}

// Token returns a live bearer token. Store failures only cost a refresh.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	cached, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("failed to load cached finverse token", "error", err)
		cached = nil
	}

	cred, err := s.cache.EnsureValid(ctx, cached)
	if err != nil {
		return "", err
	}

	if cred != cached {
		if err := s.store.Store(ctx, cred); err != nil {
			s.logger.Warn("failed to store finverse token", "error", err)
		}
	}

	return cred.AccessToken, nil
}

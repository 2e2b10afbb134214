// Package auth implements the OAuth token lifecycle for linked provider
// accounts: stored refresh tokens are exchanged for short-lived access
// tokens on demand.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"sync_server/core/domain"
	"sync_server/core/port/out"
	"sync_server/pkg/logger"
)

// refreshTokenSource deals out access tokens for a stored refresh token.
// Pluggable so tests can avoid real token endpoints.
type refreshTokenSource func(ctx context.Context, provider, refreshToken string) (*oauth2.Token, error)

// TokenManager resolves (user, provider) to a usable access token.
type TokenManager struct {
	accounts out.AccountRepository
	redis    *redis.Client // optional; nil disables the token cache
	configs  map[string]*oauth2.Config
	refresh  refreshTokenSource
}

// Config carries the OAuth client credentials per provider.
type Config struct {
	GoogleClientID        string
	GoogleClientSecret    string
	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftTenantID     string
}

// NewTokenManager creates a token manager. Pass a nil redis client to
// disable access-token caching.
func NewTokenManager(accounts out.AccountRepository, rdb *redis.Client, cfg *Config) *TokenManager {
	tenantID := cfg.MicrosoftTenantID
	if tenantID == "" {
		tenantID = "common"
	}

	configs := map[string]*oauth2.Config{
		domain.ProviderGmail: {
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
		},
		domain.ProviderOutlook: {
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			Endpoint:     microsoft.AzureADEndpoint(tenantID),
		},
	}

	m := &TokenManager{
		accounts: accounts,
		redis:    rdb,
		configs:  configs,
	}
	m.refresh = m.refreshViaEndpoint
	return m
}

// GetAccessToken returns an access token for (user, provider), or "" when no
// refresh token is on file (provider unavailable; caller tries the next one).
// A refresh rejected by the provider is returned as an error: once a refresh
// token is known to exist, there is no cheaper way to tell "no account" from
// "expired grant" than attempting the exchange.
func (m *TokenManager) GetAccessToken(ctx context.Context, userID, provider string) (string, error) {
	account, err := m.accounts.GetByProvider(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("account lookup failed: %w", err)
	}
	if account == nil || account.RefreshToken == "" {
		return "", nil
	}

	if token := m.cachedToken(ctx, userID, provider); token != "" {
		return token, nil
	}

	token, err := m.refresh(ctx, provider, account.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("token refresh rejected for %s: %w", provider, err)
	}

	m.cacheToken(ctx, userID, provider, token)
	return token.AccessToken, nil
}

func (m *TokenManager) refreshViaEndpoint(ctx context.Context, provider, refreshToken string) (*oauth2.Token, error) {
	config, ok := m.configs[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	src := config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

func (m *TokenManager) cachedToken(ctx context.Context, userID, provider string) string {
	if m.redis == nil {
		return ""
	}
	token, err := m.redis.Get(ctx, tokenCacheKey(userID, provider)).Result()
	if err != nil {
		return ""
	}
	return token
}

// cacheToken stores the access token with a TTL clamped below its expiry so
// a cached token is always still valid when served. Redis failures only cost
// a refresh round-trip next time.
func (m *TokenManager) cacheToken(ctx context.Context, userID, provider string, token *oauth2.Token) {
	if m.redis == nil || token.AccessToken == "" {
		return
	}

	ttl := 5 * time.Minute
	if !token.Expiry.IsZero() {
		ttl = time.Until(token.Expiry) - time.Minute
	}
	if ttl <= 0 {
		return
	}

	if err := m.redis.Set(ctx, tokenCacheKey(userID, provider), token.AccessToken, ttl).Err(); err != nil {
		logger.Warn("[auth] failed to cache access token: %v", err)
	}
}

func tokenCacheKey(userID, provider string) string {
	return fmt.Sprintf("token:%s:%s", userID, provider)
}

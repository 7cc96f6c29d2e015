package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/avolkov-go/pizzeria-bot/internal/errors"
	"github.com/avolkov-go/pizzeria-bot/pkg/redis"
)

const tokenCacheKey = "elasticpath:access_token"

// TokenSource fetches client-credentials access tokens and caches them in
// Redis for the backend-reported lifetime, so every process instance shares
// one token instead of re-authenticating per request.
type TokenSource struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	cache        *redis.Client
}

// NewTokenSource constructs a TokenSource backed by the shared Redis cache.
func NewTokenSource(baseURL, clientID, clientSecret string, httpClient *http.Client, cache *redis.Client) *TokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &TokenSource{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		cache:        cache,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token returns a valid access token, fetching a fresh one when the cached
// token has expired (the cache entry carries the token's own TTL).
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, tokenCacheKey)
		if err == nil && cached != "" {
			return cached, nil
		}
		if err != nil && !errors.Is(err, goredis.Nil) {
			return "", fmt.Errorf("read token cache: %w", err)
		}
	}

	form := url.Values{}
	form.Set("client_id", s.clientID)
	form.Set("client_secret", s.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", apperrors.NewBackendUnavailableError("commerce API", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewBackendRejectedError("commerce API", resp.StatusCode, "token request refused")
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", apperrors.NewBackendUnavailableError("commerce API", err)
	}

	if payload.AccessToken == "" {
		return "", apperrors.NewBackendRejectedError("commerce API", resp.StatusCode, "empty access token")
	}

	if s.cache != nil && payload.ExpiresIn > 0 {
		ttl := time.Duration(payload.ExpiresIn) * time.Second
		if err := s.cache.Set(ctx, tokenCacheKey, payload.AccessToken, ttl); err != nil {
			return "", fmt.Errorf("cache access token: %w", err)
		}
	}

	return payload.AccessToken, nil
}

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"FlowPull/pkg/cache"
	xhttp "FlowPull/pkg/http"
	"FlowPull/pkg/logger"
)

const (
	tokenPath = "/oauth2/token"
	// expiresLayout is the upstream token expiry format (yyyyMMddHHmmss).
	expiresLayout = "20060102150405"
	// refreshMargin forces a refresh this long before the token expires.
	refreshMargin = 10 * time.Minute
)

var tokenCacheKey = cache.GenerateKey("auth", "token")

// Provider issues and caches upstream bearer tokens. Tokens live in the cache
// service (memory + Redis in production) so restarts and sibling processes
// reuse them; the refresh path is mutex-guarded so concurrent walks trigger
// at most one token request.
type Provider struct {
	http      *xhttp.Client
	baseURL   string
	appKey    string
	secretKey string
	cache     cache.Service
	logger    *logger.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
}

// New creates a token provider.
func New(hc *xhttp.Client, baseURL, appKey, secretKey string, cacheSvc cache.Service, lgr *logger.Logger) *Provider {
	return &Provider{
		http:      hc,
		baseURL:   strings.TrimRight(baseURL, "/"),
		appKey:    appKey,
		secretKey: secretKey,
		cache:     cacheSvc,
		logger:    lgr,
	}
}

type cachedToken struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type tokenResponse struct {
	ReturnCode int    `json:"return_code"`
	ReturnMsg  string `json:"return_msg"`
	Token      string `json:"token"`
	TokenType  string `json:"token_type"`
	ExpiresDt  string `json:"expires_dt"`
}

// ValidToken returns a bearer token, refreshing when missing or near expiry.
func (p *Provider) ValidToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.usable(p.token, p.expires) {
		return p.token, nil
	}

	// Another process may have refreshed already.
	if p.cache != nil {
		var ct cachedToken
		if err := p.cache.Get(ctx, tokenCacheKey, &ct); err == nil && p.usable(ct.Token, ct.Expires) {
			p.token, p.expires = ct.Token, ct.Expires
			return p.token, nil
		}
	}

	token, expires, err := p.issue(ctx)
	if err != nil {
		return "", err
	}

	p.token, p.expires = token, expires
	if p.cache != nil {
		ttl := time.Until(expires) - refreshMargin
		if ttl > 0 {
			if err := p.cache.Set(ctx, tokenCacheKey, cachedToken{Token: token, Expires: expires}, ttl); err != nil {
				p.logger.Warn("token cache write failed", logger.Error(err))
			}
		}
	}

	return token, nil
}

// Invalidate drops the cached token so the next call refreshes.
func (p *Provider) Invalidate(ctx context.Context) error {
	p.mu.Lock()
	p.token = ""
	p.expires = time.Time{}
	p.mu.Unlock()

	if p.cache != nil {
		if err := p.cache.Delete(ctx, tokenCacheKey); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			return fmt.Errorf("drop cached token: %w", err)
		}
	}
	return nil
}

func (p *Provider) usable(token string, expires time.Time) bool {
	return token != "" && time.Now().Before(expires.Add(-refreshMargin))
}

func (p *Provider) issue(ctx context.Context) (string, time.Time, error) {
	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     p.appKey,
		"secretkey":  p.secretKey,
	}

	resp, err := p.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     p.baseURL + tokenPath,
		Headers: map[string]string{"Content-Type": "application/json;charset=UTF-8"},
		Body:    body,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", time.Time{}, fmt.Errorf("token request status %d: %s", resp.StatusCode, b)
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if parsed.ReturnCode != 0 || parsed.Token == "" {
		return "", time.Time{}, fmt.Errorf("token issue failed, return_code %d: %s", parsed.ReturnCode, parsed.ReturnMsg)
	}

	expires, err := time.ParseInLocation(expiresLayout, parsed.ExpiresDt, time.Local)
	if err != nil {
		// Missing or malformed expiry: assume a short-lived token.
		expires = time.Now().Add(time.Hour)
	}

	p.logger.Info("issued upstream token",
		logger.String("expires", expires.Format(time.RFC3339)))
	return parsed.Token, expires, nil
}

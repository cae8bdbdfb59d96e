package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/oceanhq/dregistry/internal/errs"
)

// HTTPManager is a concrete Manager that performs the standard Docker
// registry token exchange: a GET to the authorization endpoint it was
// constructed with (the challenge's realm is not consulted), carrying
// service and scope as query parameters and, when credentials are
// supplied, HTTP Basic auth.
//
// Concurrent requests for the same (service, scope, credentials) are
// collapsed into a single round trip via singleflight, and successful
// results are cached until they expire.
type HTTPManager struct {
	authURL url.URL
	client  *http.Client
	logger  *slog.Logger

	cache *tokenCache
	sf    singleflight.Group
}

// NewHTTPManager creates an HTTPManager that exchanges tokens against
// authURL. client defaults to http.DefaultClient when nil.
func NewHTTPManager(authURL url.URL, client *http.Client, logger *slog.Logger) *HTTPManager {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPManager{
		authURL: authURL,
		client:  client,
		logger:  logger,
		cache:   newTokenCache(defaultTokenCacheMaxSize),
	}
}

func (m *HTTPManager) log() *slog.Logger {
	if m.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m.logger
}

// GetToken implements Manager.
func (m *HTTPManager) GetToken(ctx context.Context, service, scope string, creds *Credentials) (Token, error) {
	key := cacheKey(service, scope, creds)
	if tok, ok := m.cache.get(key); ok {
		m.log().Debug("token cache hit", "service", service, "scope", scope)
		return tok, nil
	}

	result, err, _ := m.sf.Do(key, func() (any, error) {
		tok, err := m.exchange(ctx, service, scope, creds)
		if err != nil {
			return Token{}, err
		}
		m.cache.set(key, tok)
		return tok, nil
	})
	if err != nil {
		return Token{}, err
	}
	return result.(Token), nil //nolint:errcheck // singleflight always returns what exchange produced
}

func (m *HTTPManager) exchange(ctx context.Context, service, scope string, creds *Credentials) (Token, error) {
	u := m.authURL
	q := u.Query()
	q.Set("service", service)
	q.Set("scope", scope)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Token{}, fmt.Errorf("%w: build token request: %v", errs.ErrAuth, err)
	}
	if creds != nil {
		switch {
		case creds.Token != "":
			req.Header.Set("Authorization", "Bearer "+creds.Token)
		case creds.Username != "" || creds.Password != "":
			req.SetBasicAuth(creds.Username, creds.Password)
		}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Token{}, fmt.Errorf("%w: %v", errs.ErrTokenTimeout, err)
		}
		return Token{}, fmt.Errorf("%w: token exchange: %v", errs.ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("%w: read token response: %v", errs.ErrAuth, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("%w: token endpoint returned %d: %s", errs.ErrAuth, resp.StatusCode, body)
	}

	var payload struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Token{}, fmt.Errorf("%w: decode token response: %v", errs.ErrAuth, err)
	}

	raw := payload.Token
	if raw == "" {
		raw = payload.AccessToken
	}
	if raw == "" {
		return Token{}, fmt.Errorf("%w: token response has no token or access_token", errs.ErrAuth)
	}

	return Token{
		Raw:        raw,
		AcquiredAt: time.Now(),
		ExpiresIn:  time.Duration(payload.ExpiresIn) * time.Second,
		Scope:      scope,
	}, nil
}

func cacheKey(service, scope string, creds *Credentials) string {
	ident := ""
	if creds != nil {
		ident = creds.Username + "\x00" + creds.Token
	}
	return service + "\x00" + scope + "\x00" + ident
}

package saldo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// AccessManagerConfig configures the bearer-token manager.
type AccessManagerConfig struct {
	// TokenURL is the identity provider's token endpoint.
	TokenURL string
	// ClientID and ClientSecret are the client-credentials pair.
	ClientID     string
	ClientSecret string
	// RefreshThreshold refreshes tokens this long before expiry so callers
	// never receive a token about to lapse. Default: 60s.
	RefreshThreshold time.Duration
	// RequestTimeout bounds one token request. Default: 10s.
	RequestTimeout time.Duration
	// HTTPClient overrides the client used for token requests.
	HTTPClient *http.Client
}

type tokenRequest struct {
	GrantType    string `json:"grantType"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// AccessManager obtains and refreshes bearer tokens via the OAuth client
// credentials grant. A valid token is served from memory; when it is absent
// or expiring soon, exactly one refresh runs regardless of concurrent
// demand and every caller shares its outcome.
type AccessManager struct {
	config     AccessManagerConfig
	httpClient *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	onRefresh func(err error)

	group singleflight.Group
}

// NewAccessManager creates a token manager for the given credentials.
func NewAccessManager(config AccessManagerConfig) *AccessManager {
	if config.RefreshThreshold == 0 {
		config.RefreshThreshold = 60 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 10 * time.Second
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.RequestTimeout}
	}
	return &AccessManager{
		config:     config,
		httpClient: httpClient,
	}
}

// GetToken returns a bearer token valid beyond the refresh threshold,
// refreshing via single flight when needed. A caller whose ctx ends while
// waiting gets the context error; the shared refresh itself keeps running
// for the remaining waiters.
func (m *AccessManager) GetToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	token, expiresAt := m.token, m.expiresAt
	m.mu.RUnlock()

	now := time.Now()
	if token != "" && expiresAt.After(now.Add(m.config.RefreshThreshold)) {
		return token, nil
	}

	ch := m.group.DoChan("refresh", func() (interface{}, error) {
		return m.refresh()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the stored token so the next GetToken fetches a fresh
// one. Call it after the ledger rejects a request with 401.
func (m *AccessManager) Invalidate() {
	m.mu.Lock()
	m.token = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()
}

// Valid reports whether a usable token is currently stored.
func (m *AccessManager) Valid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != "" && m.expiresAt.After(time.Now())
}

// SetRefreshHook installs a callback invoked after every refresh with its
// outcome. Used by the client to feed refresh metrics and debug logs.
func (m *AccessManager) SetRefreshHook(fn func(err error)) {
	m.mu.Lock()
	m.onRefresh = fn
	m.mu.Unlock()
}

// refresh performs one token request and stores the result. It runs on its
// own deadline, detached from any single caller's context, because its
// outcome is shared by every waiter.
func (m *AccessManager) refresh() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.RequestTimeout)
	defer cancel()

	token, expiresAt, err := m.fetchToken(ctx)

	m.mu.Lock()
	if err != nil {
		m.token = ""
		m.expiresAt = time.Time{}
	} else {
		m.token = token
		m.expiresAt = expiresAt
	}
	hook := m.onRefresh
	m.mu.Unlock()

	if err != nil {
		cerr := &ClientError{
			Type:      ErrorTypeAuthentication,
			Message:   "token request failed",
			Cause:     err,
			Timestamp: time.Now(),
		}
		if hook != nil {
			hook(cerr)
		}
		return "", cerr
	}

	if hook != nil {
		hook(nil)
	}
	return token, nil
}

func (m *AccessManager) fetchToken(ctx context.Context) (string, time.Time, error) {
	payload, err := json.Marshal(tokenRequest{
		GrantType:    "client_credentials",
		ClientID:     m.config.ClientID,
		ClientSecret: m.config.ClientSecret,
	})
	if err != nil {
		return "", time.Time{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.TokenURL, bytes.NewReader(payload))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", time.Time{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", time.Time{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, ErrAuthFailed
	}

	now := time.Now()
	switch {
	case tr.ExpiresIn > 0:
		return tr.AccessToken, now.Add(time.Duration(tr.ExpiresIn) * time.Second), nil
	default:
		// Providers that omit expiresIn usually issue JWTs; fall back to
		// the exp claim, then to a conservative fixed lifetime.
		if exp, ok := tokenExpiry(tr.AccessToken); ok {
			return tr.AccessToken, exp, nil
		}
		return tr.AccessToken, now.Add(5 * time.Minute), nil
	}
}

// tokenExpiry reads the exp claim of a JWT without verifying its signature.
// The token came over the wire from the trusted identity provider; only the
// lifetime is of interest here.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leadwise/intel-server-go/internal/audit"
	"github.com/leadwise/intel-server-go/internal/config"
	apperrors "github.com/leadwise/intel-server-go/internal/errors"
)

// TokenManager owns the CRM OAuth credential lifecycle: it caches the
// access token and refreshes it single-flight. Duplicate refreshes against
// most OAuth providers invalidate previously issued tokens, so concurrent
// callers hitting an expired token wait for the one in-flight refresh.
type TokenManager struct {
	authBaseURL  string
	clientID     string
	clientSecret string
	refreshToken string
	client       *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	inflight  chan struct{} // non-nil while a refresh is running
	lastErr   error
}

func NewTokenManager(authBaseURL, clientID, clientSecret, refreshToken string, timeout time.Duration) *TokenManager {
	return &TokenManager{
		authBaseURL:  strings.TrimRight(authBaseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetValidToken returns a cached token while it is outside the safety
// margin of its expiry, refreshing otherwise. On refresh failure the stale
// token is kept (callers may fall back to it for one retry cycle) and
// CredentialsUnavailable is returned.
func (m *TokenManager) GetValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()

	if m.token != "" && time.Now().Before(m.expiresAt.Add(-config.TokenSafetyMargin)) {
		token := m.token
		m.mu.Unlock()
		return token, nil
	}

	if m.inflight != nil {
		// A refresh is already running; wait for its result.
		wait := m.inflight
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.lastErr != nil {
			return "", apperrors.CredentialsUnavailable(m.lastErr)
		}
		return m.token, nil
	}

	done := make(chan struct{})
	m.inflight = done
	m.mu.Unlock()

	token, expiresAt, err := m.refresh(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight = nil
	m.lastErr = err
	close(done)

	if err != nil {
		log.Error().Err(err).Msg("oauth token refresh failed")
		audit.Log(ctx, audit.Event{
			Type:    audit.EventTokenRefreshFail,
			Details: map[string]interface{}{"error": err.Error()},
		})
		return "", apperrors.CredentialsUnavailable(err)
	}

	m.token = token
	m.expiresAt = expiresAt
	log.Info().Time("expiresAt", expiresAt).Msg("oauth access token refreshed")
	return token, nil
}

// ForceRefresh invalidates the cached expiry so the next GetValidToken
// performs a refresh. Used by the CRM client after a 401/403.
func (m *TokenManager) ForceRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiresAt = time.Time{}
}

// StaleToken returns the cached token even when expired, or "" if none was
// ever issued.
func (m *TokenManager) StaleToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

func (m *TokenManager) refresh(ctx context.Context) (string, time.Time, error) {
	form := url.Values{
		"refresh_token": {m.refreshToken},
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.authBaseURL+"/oauth/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", time.Time{}, fmt.Errorf("refresh failed with status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", time.Time{}, fmt.Errorf("decode refresh response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("no access_token in refresh response (error=%q)", tr.Error)
	}

	expiresIn := time.Duration(tr.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = config.TokenDefaultExpiry
	}

	return tr.AccessToken, time.Now().Add(expiresIn), nil
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTokenSkew is the safety margin subtracted from a token's
// stated expiry before a proactive refresh is triggered.
const DefaultTokenSkew = 30 * time.Second

// AuthArtifacts is a portable snapshot of authentication state. It
// lets a host application persist a session and later resume it
// without storing the raw password.
type AuthArtifacts struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	BaseURL      string    `json:"base_url,omitempty"`
}

// ToMap flattens the artifacts into a plain string mapping suitable
// for any key-value store. Absent fields map to empty strings so the
// round-trip through ArtifactsFromMap is exact.
func (a AuthArtifacts) ToMap() map[string]string {
	expiresAt := ""
	if !a.ExpiresAt.IsZero() {
		expiresAt = a.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return map[string]string{
		"access_token":  a.AccessToken,
		"refresh_token": a.RefreshToken,
		"expires_at":    expiresAt,
		"user_id":       a.UserID,
		"base_url":      a.BaseURL,
	}
}

// ArtifactsFromMap restores artifacts previously produced by ToMap.
func ArtifactsFromMap(data map[string]string) (AuthArtifacts, error) {
	a := AuthArtifacts{
		AccessToken:  data["access_token"],
		RefreshToken: data["refresh_token"],
		UserID:       data["user_id"],
		BaseURL:      data["base_url"],
	}
	if a.AccessToken == "" {
		return AuthArtifacts{}, fmt.Errorf("missing access_token")
	}
	if raw := data["expires_at"]; raw != "" {
		expiresAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return AuthArtifacts{}, fmt.Errorf("failed to parse expires_at: %w", err)
		}
		a.ExpiresAt = expiresAt.UTC()
	}
	return a, nil
}

// session is the live counterpart of AuthArtifacts. It is owned
// exclusively by AuthManager and replaced as a whole on refresh, never
// mutated field by field, so an in-flight caller keeps using the old
// value until replacement completes.
type session struct {
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	userID       string
}

func (s *session) validFor(skew time.Duration) bool {
	if s == nil || s.accessToken == "" {
		return false
	}
	if s.expiresAt.IsZero() {
		return true
	}
	return time.Until(s.expiresAt) > skew
}

// AuthManager obtains and maintains a valid bearer credential. A
// caller never observes an expired token: Token refreshes proactively
// within the configured skew window, and concurrent refreshers
// converge on a single in-flight refresh call.
type AuthManager struct {
	transport Transport
	username  string
	password  string
	baseURL   string
	skew      time.Duration
	logger    *zap.Logger

	mu   sync.RWMutex
	sess *session

	refresh singleflight.Group
}

func newAuthManager(transport Transport, baseURL, username, password string, skew time.Duration, logger *zap.Logger) *AuthManager {
	if skew <= 0 {
		skew = DefaultTokenSkew
	}
	return &AuthManager{
		transport: transport,
		username:  username,
		password:  password,
		baseURL:   baseURL,
		skew:      skew,
		logger:    logger,
	}
}

// tokenResponse covers the field spellings the service uses across its
// login and refresh endpoints.
type tokenResponse struct {
	AccessToken  string          `json:"access_token"`
	Token        string          `json:"token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    json.Number     `json:"expires_in"`
	ExpiresInAlt json.Number     `json:"expiresIn"`
	ExpiresAt    string          `json:"expires_at"`
	ExpiresAtAlt string          `json:"expiresAt"`
	UserID       json.RawMessage `json:"user_id"`
	UserIDAlt    json.RawMessage `json:"userId"`
	Error        string          `json:"error"`
	Message      string          `json:"message"`
}

func (r *tokenResponse) accessToken() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

func (r *tokenResponse) userID() string {
	for _, raw := range []json.RawMessage{r.UserID, r.UserIDAlt} {
		if len(raw) == 0 {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func (r *tokenResponse) expiresAt(now time.Time) time.Time {
	for _, n := range []json.Number{r.ExpiresIn, r.ExpiresInAlt} {
		if n == "" {
			continue
		}
		if secs, err := n.Int64(); err == nil && secs > 0 {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}
	for _, raw := range []string{r.ExpiresAt, r.ExpiresAtAlt} {
		if raw == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

// Login performs the credential exchange and installs a fresh session.
func (m *AuthManager) Login(ctx context.Context) error {
	if m.username == "" || m.password == "" {
		return &AuthenticationError{Message: "username and password are required for login"}
	}

	payload := map[string]string{
		"username": m.username,
		"password": m.password,
	}

	data, err := m.transport.Request(ctx, "POST", "/auth/login", nil, payload, nil)
	if err != nil {
		return err
	}

	sess, err := sessionFromTokenResponse(data, "")
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sess = sess
	m.mu.Unlock()

	m.logger.Debug("logged in", zap.String("user_id", sess.userID))
	return nil
}

func sessionFromTokenResponse(data json.RawMessage, previousRefreshToken string) (*session, error) {
	var resp tokenResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &AuthenticationError{Message: "invalid token response"}
	}

	token := resp.accessToken()
	if token == "" {
		msg := resp.Error
		if msg == "" {
			msg = resp.Message
		}
		if msg == "" {
			msg = "no token in response"
		}
		return nil, &AuthenticationError{Message: msg}
	}

	refreshToken := resp.RefreshToken
	if refreshToken == "" {
		refreshToken = previousRefreshToken
	}

	return &session{
		accessToken:  token,
		refreshToken: refreshToken,
		expiresAt:    resp.expiresAt(time.Now().UTC()),
		userID:       resp.userID(),
	}, nil
}

// ImportArtifacts restores state from a previously exported snapshot.
// The token's validity is not checked until the next operation that
// needs it.
func (m *AuthManager) ImportArtifacts(a AuthArtifacts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = &session{
		accessToken:  a.AccessToken,
		refreshToken: a.RefreshToken,
		expiresAt:    a.ExpiresAt,
		userID:       a.UserID,
	}
}

// ExportArtifacts snapshots the current session for persistence. The
// second return value is false when there is no session to export.
func (m *AuthManager) ExportArtifacts() (AuthArtifacts, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil || m.sess.accessToken == "" {
		return AuthArtifacts{}, false
	}
	return AuthArtifacts{
		AccessToken:  m.sess.accessToken,
		RefreshToken: m.sess.refreshToken,
		ExpiresAt:    m.sess.expiresAt,
		UserID:       m.sess.userID,
		BaseURL:      m.baseURL,
	}, true
}

// Token returns a bearer token that is guaranteed to be valid for at
// least the configured skew. An expiring token is refreshed first;
// concurrent callers share a single refresh call.
func (m *AuthManager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	sess := m.sess
	m.mu.RUnlock()

	if sess == nil || sess.accessToken == "" {
		return "", &AuthenticationError{Message: "not authenticated"}
	}
	if sess.validFor(m.skew) {
		return sess.accessToken, nil
	}

	token, err, _ := m.refresh.Do("refresh", func() (any, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// doRefresh runs inside the single-flight group: at most one instance
// executes at a time, and late arrivals receive its result.
func (m *AuthManager) doRefresh(ctx context.Context) (string, error) {
	m.mu.RLock()
	sess := m.sess
	m.mu.RUnlock()

	// A refresh that completed while this caller was queued already
	// installed a valid session.
	if sess.validFor(m.skew) {
		return sess.accessToken, nil
	}

	if sess == nil || sess.refreshToken == "" {
		return "", &AuthenticationError{Message: "token expired and no refresh token available"}
	}

	payload := map[string]string{"refresh_token": sess.refreshToken}

	data, err := m.transport.Request(ctx, "POST", "/auth/refresh", nil, payload, nil)
	if err != nil {
		// Network failures leave the session untouched and surface
		// unchanged; a rejected refresh means the caller must re-login.
		var connErr *ConnectionError
		var timeoutErr *TimeoutError
		if errors.As(err, &connErr) || errors.As(err, &timeoutErr) {
			return "", err
		}
		return "", &AuthenticationError{Message: fmt.Sprintf("token refresh rejected: %v", err)}
	}

	fresh, err := sessionFromTokenResponse(data, sess.refreshToken)
	if err != nil {
		return "", err
	}
	if fresh.userID == "" {
		fresh.userID = sess.userID
	}

	m.mu.Lock()
	m.sess = fresh
	m.mu.Unlock()

	m.logger.Debug("token refreshed", zap.Time("expires_at", fresh.expiresAt))
	return fresh.accessToken, nil
}

// IsAuthenticated reports whether a non-expired token is held.
func (m *AuthManager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil || m.sess.accessToken == "" {
		return false
	}
	if m.sess.expiresAt.IsZero() {
		return true
	}
	return time.Now().Before(m.sess.expiresAt)
}

// UserID returns the authenticated user identifier, if known.
func (m *AuthManager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess == nil {
		return ""
	}
	return m.sess.userID
}

// Clear discards all authentication state.
func (m *AuthManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
}

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/sync/singleflight"
)

// Status is the boolean view of the session the UI branches on.
type Status struct {
	LoggedIn bool
	Admin    bool
}

// Manager owns the access-token lifecycle: it reads the store, refreshes
// through the storefront proxy when the token runs out, and clears the store
// when the refresh cookie is no longer good. The refresh cookie itself lives
// in the HTTP client's jar and is never inspected here.
type Manager struct {
	baseURL string
	store   Store
	http    *http.Client
	sf      singleflight.Group
}

func NewManager(baseURL string, store Store, hc *http.Client) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if hc == nil {
		jar, _ := cookiejar.New(nil)
		hc = &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
		}
	}
	return &Manager{baseURL: baseURL, store: store, http: hc}
}

// HTTPClient exposes the cookie-carrying client so the authenticated
// transport shares one jar with the refresher.
func (m *Manager) HTTPClient() *http.Client {
	return m.http
}

func (m *Manager) AccessToken() string {
	return m.store.Token()
}

func (m *Manager) Decode(token string) *Payload {
	return DecodePayload(token)
}

// Refresh exchanges the refresh cookie for a new access token. Concurrent
// callers share a single in-flight request; the refresh cookie is single-use
// on the backend, so issuing two would burn the session.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	v, err, _ := m.sf.Do("refresh", func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/auth/refresh", nil)
	if err != nil {
		m.store.Clear()
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		m.store.Clear()
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.store.Clear()
		return "", fmt.Errorf("refresh failed with status: %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		m.store.Clear()
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if body.AccessToken == "" {
		m.store.Clear()
		return "", fmt.Errorf("refresh response missing access token")
	}

	m.store.SetToken(body.AccessToken)
	return body.AccessToken, nil
}

// CheckLogin reports whether a usable session exists, refreshing once when
// the stored token is absent or expired. exp is compared in whole seconds
// with no clock-skew allowance.
func (m *Manager) CheckLogin(ctx context.Context) Status {
	payload := DecodePayload(m.store.Token())
	if payload == nil || payload.Exp <= time.Now().Unix() {
		token, err := m.Refresh(ctx)
		if err != nil {
			return Status{}
		}
		payload = DecodePayload(token)
		if payload == nil {
			return Status{}
		}
	}
	return Status{LoggedIn: true, Admin: payload.Admin()}
}

// Logout tells the proxy to invalidate the session, then clears the local
// token no matter what came back. Clearing the refresh cookie is the proxy's
// side of the contract.
func (m *Manager) Logout(ctx context.Context) error {
	token := m.store.Token()
	defer m.store.Clear()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/auth/logout", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("logout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("logout failed with status: %d", resp.StatusCode)
	}
	return nil
}

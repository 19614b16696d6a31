// Package client is the single call site for authenticated requests against
// the storefront proxy. It attaches the bearer token, carries cookies, and
// retries exactly once after a transparent refresh on 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/avadstore/storefront/pkg/session"
)

// ErrLoginRequired marks calls that failed authentication even after the
// refresh retry; the caller routes to the login view.
var ErrLoginRequired = errors.New("login required")

type Client struct {
	base    string
	http    *http.Client
	session *session.Manager
}

// New builds a client sharing the session manager's HTTP client, so the
// refresh cookie jar is common to both.
func New(base string, sess *session.Manager) *Client {
	return &Client{
		base:    strings.TrimRight(base, "/"),
		http:    sess.HTTPClient(),
		session: sess,
	}
}

// Do issues method path with an optional JSON body and returns the final
// response. A 401 triggers one refresh; on refresh success the request is
// repeated once with the new bearer, on refresh failure the stored token is
// already cleared and the original 401 comes back. Never more than two
// attempts per logical call.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
	}

	resp, err := c.attempt(ctx, method, path, payload, c.session.AccessToken())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	newToken, refreshErr := c.session.Refresh(ctx)
	if refreshErr != nil {
		return resp, nil
	}

	resp.Body.Close()
	return c.attempt(ctx, method, path, payload, newToken)
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, token string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

// DecodeJSON drains and closes the response body into v.
func DecodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ErrorText extracts the upstream error message from a non-2xx response:
// the "error" field of a JSON body when present, the raw text otherwise.
func ErrorText(resp *http.Response) string {
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || len(raw) == 0 {
		return resp.Status
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return string(raw)
}

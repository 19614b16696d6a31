package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avadstore/storefront/pkg/session"
)

// newEnv builds a client whose session manager points at the same test
// server, mirroring how the browser talks to a single proxy origin.
func newEnv(t *testing.T, handler http.Handler, token string) (*Client, *httptest.Server, session.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := session.NewMemoryStore()
	store.SetToken(token)
	sess := session.NewManager(srv.URL, store, nil)
	return New(srv.URL, sess), srv, store
}

func TestDo_AttachesBearerAndBody(t *testing.T) {
	t.Parallel()

	var sawAuth, sawCT, sawBody string
	c, _, _ := newEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		sawCT = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		sawBody = string(raw)
		w.WriteHeader(http.StatusCreated)
	}), "tok-1")

	resp, err := c.Do(context.Background(), http.MethodPost, "/api/orders", map[string]int{"x": 1})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Bearer tok-1", sawAuth)
	assert.Equal(t, "application/json", sawCT)
	assert.JSONEq(t, `{"x":1}`, sawBody)
}

func TestDo_RetriesOnceAfterRefresh(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	var bearers []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "tok-new"})
	})
	mux.HandleFunc("/api/me/carts", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		bearers = append(bearers, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer tok-new" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[]`))
	})

	c, _, store := newEnv(t, mux, "tok-old")

	resp, err := c.Do(context.Background(), http.MethodGet, "/api/me/carts", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, []string{"Bearer tok-old", "Bearer tok-new"}, bearers)
	assert.Equal(t, "tok-new", store.Token())
}

func TestDo_RefreshFailureReturnsOriginal401(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/me/carts", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	c, _, store := newEnv(t, mux, "tok-old")

	resp, err := c.Do(context.Background(), http.MethodGet, "/api/me/carts", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Empty(t, store.Token())
}

func TestDo_NoRetryOnNon401(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	c, _, _ := newEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}), "tok-1")

	resp, err := c.Do(context.Background(), http.MethodGet, "/api/products/1", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDo_NeverMoreThanTwoAttempts(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "tok-new"})
	})
	mux.HandleFunc("/api/me/carts", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	c, _, _ := newEnv(t, mux, "tok-old")

	resp, err := c.Do(context.Background(), http.MethodGet, "/api/me/carts", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The second 401 comes back as-is; no refresh loop.
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestErrorText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "json error field", body: `{"error":"out of stock"}`, want: "out of stock"},
		{name: "plain text", body: "upstream exploded", want: "upstream exploded"},
		{name: "json without error field", body: `{"message":"x"}`, want: `{"message":"x"}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := http.Get(srv.URL)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ErrorText(resp))
		})
	}
}

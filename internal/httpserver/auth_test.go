package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresh_RequiresCookie(t *testing.T) {
	edge := startEdge(t, &Deps{BackendURL: "http://127.0.0.1:1"})

	resp, err := http.Post(edge.URL+"/api/auth/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"error":"refresh token required"}`, string(body))
}

func TestRefresh_ForwardsCookieAndRelaysRotation(t *testing.T) {
	var sawCookie string
	up := startUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/refresh", r.URL.Path)
		sawCookie = r.Header.Get("Cookie")
		w.Header().Add("Set-Cookie", "refreshToken=r2; Path=/; HttpOnly; Max-Age=604800")
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "a-new"})
	})
	edge := startEdge(t, &Deps{BackendURL: up.URL})

	req, _ := http.NewRequest(http.MethodPost, edge.URL+"/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "r1"})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "refreshToken=r1", sawCookie)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"accessToken":"a-new"}`, string(body))

	cookies := resp.Header.Values("Set-Cookie")
	require.Len(t, cookies, 1)
	assert.Equal(t, "refreshToken=r2; Path=/; HttpOnly; Max-Age=604800", cookies[0])
}

func TestRefresh_UpstreamRejection(t *testing.T) {
	up := startUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("refresh token expired"))
	})
	edge := startEdge(t, &Deps{BackendURL: up.URL})

	req, _ := http.NewRequest(http.MethodPost, edge.URL+"/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "stale"})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"error":"refresh token expired"}`, string(body))
}

func TestLogout_RequiresBearer(t *testing.T) {
	edge := startEdge(t, &Deps{BackendURL: "http://127.0.0.1:1"})

	resp, err := http.Post(edge.URL+"/api/auth/logout", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogout_ClearsRefreshCookie(t *testing.T) {
	var sawAuth string
	up := startUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/logout", r.URL.Path)
		sawAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	})
	edge := startEdge(t, &Deps{BackendURL: up.URL})

	req, _ := http.NewRequest(http.MethodPost, edge.URL+"/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer tok-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer tok-1", sawAuth)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"message":"logged out"}`, string(body))

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	ck := cookies[0]
	assert.Equal(t, "refreshToken", ck.Name)
	assert.Empty(t, ck.Value)
	assert.Equal(t, "/", ck.Path)
	assert.Negative(t, ck.MaxAge) // Max-Age=0 on the wire: delete now
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
	assert.False(t, ck.Secure) // Secure only in production
}

func TestLogout_UpstreamFailureKeepsCookie(t *testing.T) {
	up := startUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("unknown session"))
	})
	edge := startEdge(t, &Deps{BackendURL: up.URL})

	req, _ := http.NewRequest(http.MethodPost, edge.URL+"/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer tok-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, resp.Cookies())
}

func TestOAuthCallback_MissingCode(t *testing.T) {
	edge := startEdge(t, &Deps{BackendURL: "http://127.0.0.1:1"})

	resp, err := noRedirect().Get(edge.URL + "/api/auth/oauth/kakao/callback")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	loc, _ := url.Parse(resp.Header.Get("Location"))
	assert.Equal(t, "/login", loc.Path)
	assert.NotEmpty(t, loc.Query().Get("error"))
}

func TestOAuthCallback_SignupRequired(t *testing.T) {
	var sawPath, sawCode string
	up := startUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		sawPath = r.URL.Path
		sawCode = r.URL.Query().Get("code")
		json.NewEncoder(w).Encode(map[string]any{
			"redirect": "/signup/kakao",
			"email":    "kim@example.com",
			"name":     "김민수",
			"kakaoId":  39201833, // bare number from the provider
		})
	})
	edge := startEdge(t, &Deps{BackendURL: up.URL})

	resp, err := noRedirect().Get(edge.URL + "/api/auth/oauth/kakao/callback?code=abc123")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "/api/auth/oauth/kakao/callback", sawPath)
	assert.Equal(t, "abc123", sawCode)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	loc, _ := url.Parse(resp.Header.Get("Location"))
	assert.Equal(t, "/signup/kakao", loc.Path)
	q := loc.Query()
	assert.Equal(t, "kim@example.com", q.Get("email"))
	assert.Equal(t, "김민수", q.Get("name"))
	assert.Equal(t, "39201833", q.Get("kakaoId"))
}

func TestOAuthCallback_LoginSuccess(t *testing.T) {
	up := startUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "refreshToken=r9; Path=/; HttpOnly")
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "tok-oauth"})
	})
	edge := startEdge(t, &Deps{BackendURL: up.URL})

	resp, err := noRedirect().Get(edge.URL + "/api/auth/oauth/kakao/callback?code=abc123")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	loc, _ := url.Parse(resp.Header.Get("Location"))
	assert.Equal(t, "/auth/kakao/callback", loc.Path)
	assert.Equal(t, "tok-oauth", loc.Query().Get("accessToken"))

	cookies := resp.Header.Values("Set-Cookie")
	require.Len(t, cookies, 1)
	assert.Equal(t, "refreshToken=r9; Path=/; HttpOnly", cookies[0])
}

func TestOAuthCallback_ExchangeRejected(t *testing.T) {
	up := startUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid authorization code"})
	})
	edge := startEdge(t, &Deps{BackendURL: up.URL})

	resp, err := noRedirect().Get(edge.URL + "/api/auth/oauth/kakao/callback?code=bad")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	loc, _ := url.Parse(resp.Header.Get("Location"))
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "invalid authorization code", loc.Query().Get("error"))
}

func TestFlexString(t *testing.T) {
	var v struct {
		ID flexString `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"id":12345}`), &v))
	assert.Equal(t, flexString("12345"), v.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"abc"}`), &v))
	assert.Equal(t, flexString("abc"), v.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id":null}`), &v))
	assert.Equal(t, flexString(""), v.ID)
}

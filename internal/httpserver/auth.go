package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	echo "github.com/labstack/echo/v4"

	"github.com/avadstore/storefront/internal/logging"
)

// signupRedirect is how the backend signals an OAuth account that is not
// linked to a member yet. Keeping the check in one place contains the
// coupling to the backend's payload shape.
const signupRedirect = "/signup/kakao"

type AuthHandler struct {
	Forwarder  *Forwarder
	Production bool
}

// clearedRefreshCookie is the only cookie the proxy synthesizes itself.
func clearedRefreshCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     "refreshToken",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Refresh exchanges the HTTP-only refresh cookie for a new access token. The
// browser never reads the cookie; it rides in here and is forwarded as a
// Cookie header upstream.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.refresh")

	ck, err := c.Request().Cookie("refreshToken")
	if err != nil || ck.Value == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh token required"})
	}

	header := http.Header{}
	header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	header.Set("Cookie", "refreshToken="+ck.Value)

	resp, err := h.Forwarder.roundTrip(ctx, http.MethodPost, "/api/auth/refresh", header, nil)
	if err != nil {
		l.Error("refresh_error", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	defer resp.Body.Close()

	relaySetCookies(c, resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		l.Warn("refresh_rejected", "status", resp.StatusCode)
		return c.JSON(resp.StatusCode, echo.Map{"error": string(bytes.TrimSpace(raw))})
	}

	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, raw)
}

// Logout forwards the bearer upstream and, on success, clears the refresh
// cookie so the browser session is fully gone.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.logout")

	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if auth == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "access token required"})
	}

	header := http.Header{}
	header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	header.Set(echo.HeaderAuthorization, auth)

	resp, err := h.Forwarder.roundTrip(ctx, http.MethodPost, "/api/auth/logout", header, nil)
	if err != nil {
		l.Error("logout_error", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	defer resp.Body.Close()

	relaySetCookies(c, resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		l.Warn("logout_rejected", "status", resp.StatusCode)
		return c.JSON(resp.StatusCode, echo.Map{"error": string(bytes.TrimSpace(raw))})
	}

	c.SetCookie(clearedRefreshCookie(h.Production))
	l.Info("logout_success")
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

type oauthExchange struct {
	Redirect    string     `json:"redirect"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	KakaoID     flexString `json:"kakaoId"`
	AccessToken string     `json:"accessToken"`
	Error       string     `json:"error"`
}

// OAuthCallback completes the provider code exchange. Three outcomes: an
// unlinked account bounces to signup with the profile fields as query
// params, a linked account lands on the front-end callback with the access
// token, and everything else goes back to login with an error message.
func (h *AuthHandler) OAuthCallback(c echo.Context) error {
	ctx := c.Request().Context()
	provider := c.Param("provider")
	l := logging.FromContext(ctx).With("handler", "auth.oauth_callback", "provider", provider)

	code := c.QueryParam("code")
	if code == "" {
		return c.Redirect(http.StatusFound, "/login?error="+url.QueryEscape("authorization code missing"))
	}

	upstream := "/api/auth/oauth/" + url.PathEscape(provider) + "/callback?code=" + url.QueryEscape(code)
	resp, err := h.Forwarder.roundTrip(ctx, http.MethodGet, upstream, nil, nil)
	if err != nil {
		l.Error("oauth_exchange_error", "error", err)
		return c.Redirect(http.StatusFound, "/login?error="+url.QueryEscape("oauth exchange failed"))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.Redirect(http.StatusFound, "/login?error="+url.QueryEscape("oauth exchange failed"))
	}

	var body oauthExchange
	_ = json.Unmarshal(raw, &body)

	if body.Redirect == signupRedirect {
		q := url.Values{}
		q.Set("email", body.Email)
		q.Set("name", body.Name)
		q.Set("kakaoId", string(body.KakaoID))
		l.Info("oauth_signup_required")
		return c.Redirect(http.StatusFound, signupRedirect+"?"+q.Encode())
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		relaySetCookies(c, resp)
		l.Info("oauth_login_success")
		return c.Redirect(http.StatusFound,
			"/auth/"+url.PathEscape(provider)+"/callback?accessToken="+url.QueryEscape(body.AccessToken))
	}

	msg := body.Error
	if msg == "" {
		msg = "oauth login failed"
	}
	l.Warn("oauth_rejected", "status", resp.StatusCode)
	return c.Redirect(http.StatusFound, "/login?error="+url.QueryEscape(msg))
}

// flexString accepts both JSON strings and bare numbers; provider user ids
// show up as either depending on the backend version.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(data)
	return nil
}

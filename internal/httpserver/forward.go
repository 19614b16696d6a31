package httpserver

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/avadstore/storefront/internal/logging"
)

// Forwarder is the single generic path between the browser-facing surface
// and the upstream backend. Per-route variation lives in the route table;
// body, Authorization, cookies and Set-Cookie relay are uniform.
type Forwarder struct {
	backend string
	client  *http.Client
}

func NewForwarder(backend string) *Forwarder {
	return &Forwarder{
		backend: strings.TrimRight(backend, "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        200,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
			// Redirects from the backend pass through to the browser.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (f *Forwarder) Client() *http.Client {
	return f.client
}

// roundTrip issues one upstream request. upstreamPath may carry a query
// string; header is copied verbatim.
func (f *Forwarder) roundTrip(ctx context.Context, method, upstreamPath string, header http.Header, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, f.backend+upstreamPath, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return f.client.Do(req)
}

// Handler returns the generic proxy handler for one route. The upstream
// pattern uses the same :param names as the public one.
func (f *Forwarder) Handler(upstreamPattern string) echo.HandlerFunc {
	return f.HandlerWithHook(upstreamPattern, nil)
}

// HandlerWithHook is Handler plus a callback invoked with the upstream body
// after a 2xx, for routes that fan out side effects.
func (f *Forwarder) HandlerWithHook(upstreamPattern string, onSuccess func(c echo.Context, body []byte)) echo.HandlerFunc {
	return func(c echo.Context) error {
		return f.forward(c, expandPath(upstreamPattern, c), onSuccess)
	}
}

func (f *Forwarder) forward(c echo.Context, upstreamPath string, onSuccess func(c echo.Context, body []byte)) error {
	req := c.Request()
	ctx := req.Context()
	l := logging.FromContext(ctx).With("proxy", upstreamPath)

	if q := req.URL.RawQuery; q != "" {
		upstreamPath += "?" + q
	}

	// JSON and multipart bodies pass through byte-for-byte (multipart keeps
	// its boundary in the Content-Type); urlencoded forms are re-serialized
	// from the parsed fields.
	var body io.Reader = req.Body
	contentType := req.Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEApplicationForm) {
		if err := req.ParseForm(); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid form body"})
		}
		body = strings.NewReader(req.PostForm.Encode())
	}

	header := http.Header{}
	if contentType != "" {
		header.Set(echo.HeaderContentType, contentType)
	}
	if auth := req.Header.Get(echo.HeaderAuthorization); auth != "" {
		header.Set(echo.HeaderAuthorization, auth)
	}
	if cookie := req.Header.Get("Cookie"); cookie != "" {
		header.Set("Cookie", cookie)
	}

	resp, err := f.roundTrip(ctx, req.Method, upstreamPath, header, body)
	if err != nil {
		l.Error("proxy_error", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	defer resp.Body.Close()

	relaySetCookies(c, resp)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		l.Error("proxy_read_error", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if onSuccess != nil {
			onSuccess(c, raw)
		}
		ct := resp.Header.Get(echo.HeaderContentType)
		if ct == "" {
			ct = echo.MIMEApplicationJSON
		}
		return c.Blob(resp.StatusCode, ct, raw)
	}

	l.Warn("proxy_upstream_error", "status", resp.StatusCode)
	return c.JSON(resp.StatusCode, echo.Map{"error": strings.TrimSpace(string(raw))})
}

// relaySetCookies copies every upstream Set-Cookie to the client response,
// unchanged and in order.
func relaySetCookies(c echo.Context, resp *http.Response) {
	for _, v := range resp.Header.Values(echo.HeaderSetCookie) {
		c.Response().Header().Add(echo.HeaderSetCookie, v)
	}
}

// expandPath substitutes :params of the pattern with the request's values.
func expandPath(pattern string, c echo.Context) string {
	if !strings.Contains(pattern, ":") {
		return pattern
	}
	segs := strings.Split(pattern, "/")
	for i, s := range segs {
		if strings.HasPrefix(s, ":") {
			segs[i] = url.PathEscape(c.Param(s[1:]))
		}
	}
	return strings.Join(segs, "/")
}

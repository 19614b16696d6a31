package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	ecM "github.com/labstack/echo/v4/middleware"

	"github.com/avadstore/storefront/internal/events"
	loggingmw "github.com/avadstore/storefront/internal/middleware/logging"
	"github.com/avadstore/storefront/internal/payments"
	"github.com/avadstore/storefront/pkg/metrics"
)

type Deps struct {
	BackendURL string
	Production bool

	Gateway *payments.Client
	Ledger  *payments.Ledger
	Events  *events.Producer

	Logger *slog.Logger
}

// Register wires the whole browser-facing surface: the generic route table,
// the auth specials, payment confirm, health and metrics.
func Register(e *echo.Echo, d *Deps) error {
	e.Use(ecM.Recover())
	e.Use(ecM.RequestID())
	e.Use(ecM.Secure())
	if d.Logger != nil {
		e.Use(loggingmw.RequestLogger(d.Logger))
	}
	e.Use(metrics.Middleware())

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/metrics", metrics.Handler())

	f := NewForwarder(d.BackendURL)

	auth := &AuthHandler{Forwarder: f, Production: d.Production}
	e.POST("/api/auth/refresh", auth.Refresh)
	e.POST("/api/auth/logout", auth.Logout)
	e.GET("/api/auth/oauth/:provider/callback", auth.OAuthCallback)

	confirm := &ConfirmHandler{
		Gateway: d.Gateway,
		Ledger:  d.Ledger,
		Events:  d.Events,
		Backend: strings.TrimRight(d.BackendURL, "/"),
		HTTP:    f.Client(),
	}
	e.POST("/api/confirm", confirm.Confirm)

	e.POST("/api/orders", f.HandlerWithHook("/api/orders", func(c echo.Context, body []byte) {
		var created struct {
			OrderID json.Number `json:"orderId"`
		}
		_ = json.Unmarshal(body, &created)
		_ = d.Events.PublishEvent(c.Request().Context(), events.TypeOrderCreated,
			created.OrderID.String(), json.RawMessage(body))
	}))

	for _, r := range proxyRoutes {
		h := f.Handler(r.upstreamPattern())
		if len(r.queryDefaults) > 0 {
			h = withQueryDefaults(r.queryDefaults, h)
		}
		e.Match(r.methods, r.path, h)
	}

	return nil
}

// withQueryDefaults fills in query parameters the caller left out, so the
// upstream always sees the full paging contract.
func withQueryDefaults(defaults map[string]string, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		q := c.Request().URL.Query()
		changed := false
		for k, v := range defaults {
			if q.Get(k) == "" {
				q.Set(k, v)
				changed = true
			}
		}
		if changed {
			c.Request().URL.RawQuery = q.Encode()
		}
		return next(c)
	}
}

// Package loggingmw carries the request-scoped logger for the storefront
// edge: every proxied call gets one completion line keyed by the public
// route, leveled by outcome. Liveness and metrics scrapes are not logged.
package loggingmw

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/avadstore/storefront/internal/logging"
)

func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if silent(c.Path()) {
				return next(c)
			}

			rid := c.Request().Header.Get(echo.HeaderXRequestID)

			l := base.With(
				"method", c.Request().Method,
				"route", c.Path(),
				"remote_ip", c.RealIP(),
			)
			if rid != "" {
				l = l.With("request_id", rid)
				c.Response().Header().Set(echo.HeaderXRequestID, rid)
			}

			req := c.Request().WithContext(logging.IntoContext(c.Request().Context(), l))
			c.SetRequest(req)

			start := time.Now()
			err := next(c)
			dur := time.Since(start)
			status := c.Response().Status

			if err != nil {
				c.Echo().HTTPErrorHandler(err, c)
				status = c.Response().Status
			}

			switch {
			case err != nil || status >= 500:
				l.Error("request", "status", status, "duration_ms", dur.Milliseconds(), "error", errStr(err))
			case status >= 400:
				l.Warn("request", "status", status, "duration_ms", dur.Milliseconds())
			default:
				l.Info("request", "status", status, "duration_ms", dur.Milliseconds(), "bytes_out", c.Response().Size)
			}
			return nil
		}
	}
}

// silent filters routes whose completion lines are pure noise.
func silent(route string) bool {
	return strings.HasPrefix(route, "/health/") || route == "/metrics"
}

func errStr(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%v", err)
}

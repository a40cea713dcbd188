package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger emits one structured line per request. Handlers may attach a
// document id under "document_id" so pipeline requests can be correlated
// with the stored result.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			evt := logger.Info()
			switch {
			case err != nil && status >= 500:
				evt = logger.Error().Err(err)
			case err != nil:
				evt = logger.Warn().Err(err)
			}

			route := c.Path()
			if route == "" {
				route = req.URL.Path
			}
			evt = evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("route", route).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())
			if docID, ok := c.Get("document_id").(string); ok && docID != "" {
				evt = evt.Str("document_id", docID)
			}
			if sub, ok := c.Get("auth_subject").(string); ok && sub != "" {
				evt = evt.Str("subject", sub)
			}
			evt.Msg("request")

			return err
		}
	}
}

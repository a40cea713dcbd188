package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout bounds each request with a context deadline. The document
// pipeline observes the request context, so an expired deadline also stops
// outstanding field extraction calls. Paths listed in skip are not bounded.
func RequestTimeout(timeout time.Duration, skip ...string) echo.MiddlewareFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			if _, ok := skipped[c.Request().URL.Path]; ok {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				if errors.Is(err, context.DeadlineExceeded) {
					return gatewayTimeout()
				}
				return err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return gatewayTimeout()
				}
				return ctx.Err()
			}
		}
	}
}

func gatewayTimeout() *echo.HTTPError {
	return echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit")
}

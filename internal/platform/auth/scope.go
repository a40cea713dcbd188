package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Scopes granted to API clients.
const (
	ScopeDocumentsRead  = "documents:read"
	ScopeDocumentsWrite = "documents:write"
	ScopeReconcile      = "reconcile"
	ScopeAll            = "visitrecon:*"
)

// RequireScope allows the request when the token carries scope or the
// wildcard. It is a no-op for requests that were not authenticated, so
// routes stay open when no verification key is configured.
func RequireScope(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, authed := c.Get(string(SubjectKey)).(string); !authed {
				return next(c)
			}
			for _, granted := range ScopesFromContext(c.Request().Context()) {
				if matchScope(granted, scope) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("required scope: %s", scope))
		}
	}
}

// matchScope supports "visitrecon:*" and prefix wildcards such as
// "documents:*".
func matchScope(granted, required string) bool {
	if granted == required || granted == ScopeAll {
		return true
	}
	if prefix, ok := strings.CutSuffix(granted, ":*"); ok {
		return strings.HasPrefix(required, prefix+":")
	}
	return false
}

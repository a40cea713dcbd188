package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication. These are infrastructure endpoints
// scraped by orchestrators and monitoring.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}

package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication. Paths are echo route patterns.
var publicPaths = map[string]bool{
	"/health":            true,
	"/health/db":         true,
	"/metrics":           true,
	"/api/auth/register": true,
	"/api/auth/login":    true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}

const accessTokenParam = "access_token"

// streamPaths may carry the session token in the access_token query
// parameter instead of the Authorization header.
var streamPaths = map[string]bool{
	"/api/notifications/stream": true,
	"/api/notifications/ws":     true,
}

func IsStreamPath(path string) bool {
	return streamPaths[path]
}

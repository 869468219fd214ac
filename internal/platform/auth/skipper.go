package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are infrastructure endpoints served without a session and kept
// out of request logs.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// PublicPaths lists the infrastructure endpoints.
func PublicPaths() []string {
	out := make([]string, 0, len(publicPaths))
	for p := range publicPaths {
		out = append(out, p)
	}
	return out
}

// IsPublicPath reports whether path is an infrastructure endpoint.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}

// Skipper is an echo middleware skipper for the infrastructure endpoints.
func Skipper(c echo.Context) bool {
	return IsPublicPath(c.Request().URL.Path)
}

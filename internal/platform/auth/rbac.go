// Package auth guards routes by the role of the signed-in session.
package auth

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medpredict/clinic/internal/domain/account"
	"github.com/medpredict/clinic/internal/platform/apperror"
	"github.com/medpredict/clinic/internal/platform/session"
)

// RequireRole rejects anonymous sessions with 401 and sessions signed in with
// any other role with 403.
func RequireRole(roles ...account.Role) echo.MiddlewareFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	denied := fmt.Sprintf("required role: %s", strings.Join(names, " or "))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := session.FromContext(c.Request().Context())
			if s == nil || !s.Authenticated() {
				return apperror.Unauthorized("login required")
			}
			for _, r := range roles {
				if s.Role == string(r) {
					return next(c)
				}
			}
			return apperror.Forbidden(denied)
		}
	}
}

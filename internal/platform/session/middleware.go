package session

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/medpredict/clinic/internal/platform/apperror"
)

type contextKey string

const sessionKey contextKey = "session"

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the session loaded by Middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	return s
}

// Middleware loads the session named by the bearer token. Requests without a
// token pass through with no session; a bad or expired token is a 401.
func Middleware(m *Manager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return next(c)
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return apperror.Unauthorized("authorization header must be a bearer token")
			}

			s, err := m.Load(c.Request().Context(), token)
			switch {
			case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrNotFound):
				return apperror.Unauthorized("session expired or unknown")
			case err != nil:
				return apperror.Store(err)
			}

			c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), s)))
			return next(c)
		}
	}
}

// Require rejects requests that carry no session.
func Require() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if FromContext(c.Request().Context()) == nil {
				return apperror.Unauthorized("session token required")
			}
			return next(c)
		}
	}
}

package dashboard

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medpredict/clinic/internal/domain/account"
	"github.com/medpredict/clinic/internal/platform/apperror"
	"github.com/medpredict/clinic/internal/platform/session"
	"github.com/medpredict/clinic/internal/platform/telemetry"
)

type sessionResponse struct {
	Token   string           `json:"token,omitempty"`
	Session *session.Session `json:"session"`
}

type registerResponse struct {
	User    *account.User    `json:"user"`
	Session *session.Session `json:"session"`
}

type navigateRequest struct {
	Page session.Page `json:"page"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StartSession opens an anonymous session. ?page=register lands on the
// registration page; anything else lands on login.
func (h *Handler) StartSession(c echo.Context) error {
	s, token, err := h.sessions.Start(c.Request().Context(), c.QueryParam("page"))
	if err != nil {
		return apperror.Store(err)
	}
	return c.JSON(http.StatusCreated, sessionResponse{Token: token, Session: s})
}

func (h *Handler) GetSession(c echo.Context) error {
	return c.JSON(http.StatusOK, sessionResponse{Session: current(c)})
}

func (h *Handler) Navigate(c echo.Context) error {
	var req navigateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	s := current(c)
	if err := s.Navigate(req.Page); err != nil {
		return apperror.Conflict(err.Error())
	}
	if err := h.save(c, s); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionResponse{Session: s})
}

// Register creates an account and sends the session to the login page.
func (h *Handler) Register(c echo.Context) error {
	s := current(c)
	if s.Authenticated() {
		return apperror.Conflict("log out before registering a new account")
	}

	var req account.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}

	u, err := h.accounts.Register(c.Request().Context(), req)
	switch {
	case errors.Is(err, account.ErrEmailExists):
		telemetry.ObserveAuth("register", "email_exists")
		return apperror.Conflict("email already exists")
	case err != nil:
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			if appErr.Kind == apperror.KindValidation {
				telemetry.ObserveAuth("register", "invalid")
			}
			return err
		}
		return apperror.Internal(err)
	}
	telemetry.ObserveAuth("register", "success")

	if err := s.RegisterSucceeded(); err != nil {
		return apperror.Conflict(err.Error())
	}
	if err := h.save(c, s); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, registerResponse{User: u, Session: s})
}

// Login signs the session in and rotates its token. Unknown emails and wrong
// passwords get the same response.
func (h *Handler) Login(c echo.Context) error {
	s := current(c)
	if s.Authenticated() {
		return apperror.Conflict(session.ErrAlreadySignedIn.Error())
	}

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.BadRequest("invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return apperror.Validation("email and password are required")
	}

	email := account.NormalizeEmail(req.Email)
	role, err := h.accounts.Authenticate(c.Request().Context(), email, req.Password)
	switch {
	case errors.Is(err, account.ErrUserNotFound):
		telemetry.ObserveAuth("login", "user_not_found")
		return apperror.Unauthorized("invalid credentials")
	case errors.Is(err, account.ErrBadPassword):
		telemetry.ObserveAuth("login", "bad_password")
		return apperror.Unauthorized("invalid credentials")
	case err != nil:
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return err
		}
		return apperror.Internal(err)
	}

	if err := s.LoginSucceeded(string(role), email); err != nil {
		return apperror.Conflict(err.Error())
	}
	token, err := h.sessions.Rotate(c.Request().Context(), s)
	if err != nil {
		return apperror.Store(err)
	}
	telemetry.ObserveAuth("login", "success")
	h.logger.Info().Str("role", string(role)).Msg("user logged in")
	return c.JSON(http.StatusOK, sessionResponse{Token: token, Session: s})
}

// Logout clears the session, drafts included, and rotates its token.
func (h *Handler) Logout(c echo.Context) error {
	s := current(c)
	wasSignedIn := s.Authenticated()
	s.Logout()
	token, err := h.sessions.Rotate(c.Request().Context(), s)
	if err != nil {
		return apperror.Store(err)
	}
	if wasSignedIn {
		telemetry.ObserveAuth("logout", "success")
	}
	return c.JSON(http.StatusOK, sessionResponse{Token: token, Session: s})
}

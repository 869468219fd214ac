// Package apperror defines the error kinds surfaced by the clinic API and
// maps them onto HTTP responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type Kind string

const (
	KindValidation Kind = "validation_error"
	KindAuth       Kind = "auth_error"
	KindConflict   Kind = "conflict"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindPrediction Kind = "prediction_error"
	KindStore      Kind = "store_error"
	KindRateLimit  Kind = "rate_limited"
	KindTimeout    Kind = "timeout"
	KindInternal   Kind = "internal_error"
)

// Error is an application error with a kind, a caller-facing message and an
// optional wrapped cause that is never rendered.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches structured details to the rendered error body.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message, HTTPStatus: http.StatusUnprocessableEntity}
}

func BadRequest(message string) *Error {
	return &Error{Kind: KindValidation, Message: message, HTTPStatus: http.StatusBadRequest}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindAuth, Message: message, HTTPStatus: http.StatusUnauthorized}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message, HTTPStatus: http.StatusConflict}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found", HTTPStatus: http.StatusNotFound}
}

func Prediction(message string, err error) *Error {
	return &Error{Kind: KindPrediction, Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
}

func Store(err error) *Error {
	return &Error{Kind: KindStore, Message: "storage unavailable", HTTPStatus: http.StatusServiceUnavailable, Err: err}
}

func TooManyRequests(message string) *Error {
	return &Error{Kind: KindRateLimit, Message: message, HTTPStatus: http.StatusTooManyRequests}
}

func Timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Message: "request timed out", HTTPStatus: http.StatusGatewayTimeout, Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", HTTPStatus: http.StatusInternalServerError, Err: err}
}

type body struct {
	Error bodyError `json:"error"`
}

type bodyError struct {
	Code    Kind           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Handler returns an echo.HTTPErrorHandler that renders *Error values and
// echo.HTTPError values in one JSON shape. Unknown errors become 500s and are
// logged with their cause.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var appErr *Error
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &appErr):
		case errors.As(err, &httpErr):
			appErr = fromHTTPError(httpErr)
		default:
			appErr = Internal(err)
		}

		rid, _ := c.Get("request_id").(string)
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("request_id", rid).Str("kind", string(appErr.Kind)).Msg("request failed")
		}

		resp := body{Error: bodyError{Code: appErr.Kind, Message: appErr.Message, Details: appErr.Details}}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(appErr.HTTPStatus)
			return
		}
		_ = c.JSON(appErr.HTTPStatus, resp)
	}
}

func fromHTTPError(he *echo.HTTPError) *Error {
	msg := http.StatusText(he.Code)
	if s, ok := he.Message.(string); ok && s != "" {
		msg = s
	}
	kind := KindInternal
	switch {
	case he.Code == http.StatusUnauthorized:
		kind = KindAuth
	case he.Code == http.StatusForbidden:
		kind = KindForbidden
	case he.Code == http.StatusNotFound:
		kind = KindNotFound
	case he.Code == http.StatusConflict:
		kind = KindConflict
	case he.Code == http.StatusTooManyRequests:
		kind = KindRateLimit
	case he.Code == http.StatusGatewayTimeout:
		kind = KindTimeout
	case he.Code < http.StatusInternalServerError:
		kind = KindValidation
	}
	return &Error{Kind: kind, Message: msg, HTTPStatus: he.Code, Err: he.Internal}
}

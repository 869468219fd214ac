package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medpredict/clinic/internal/platform/apperror"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func requestFrom(e *echo.Echo, ip string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5})(okHandler)

	for i := 0; i < 5; i++ {
		c, rec := requestFrom(e, "10.0.0.1")
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit '10', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})(okHandler)

	for i := 0; i < 2; i++ {
		c, _ := requestFrom(e, "10.0.0.1")
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	c, rec := requestFrom(e, "10.0.0.1")
	err := handler(c)

	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.Error, got %T", err)
	}
	if appErr.HTTPStatus != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", appErr.HTTPStatus)
	}
	retry, parseErr := strconv.Atoi(rec.Header().Get("Retry-After"))
	if parseErr != nil || retry < 1 {
		t.Errorf("expected positive Retry-After, got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	e := echo.New()
	handler := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})(okHandler)

	c, _ := requestFrom(e, "10.0.0.1")
	if err := handler(c); err != nil {
		t.Fatalf("first client first request: %v", err)
	}
	c, _ = requestFrom(e, "10.0.0.1")
	if err := handler(c); err == nil {
		t.Fatal("first client second request: expected rate limit error")
	}
	c, _ = requestFrom(e, "10.0.0.2")
	if err := handler(c); err != nil {
		t.Fatalf("second client: expected separate bucket, got %v", err)
	}
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	e := echo.New()
	handler := RateLimit(LoginRateLimitConfig(0))(okHandler)
	for i := 0; i < 50; i++ {
		c, _ := requestFrom(e, "10.0.0.1")
		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected limiter to be disabled, got %v", i+1, err)
		}
	}
}

func TestLoginRateLimitConfig(t *testing.T) {
	cfg := LoginRateLimitConfig(10)
	if cfg.BurstSize != 10 {
		t.Errorf("expected burst 10, got %d", cfg.BurstSize)
	}
	if cfg.RequestsPerSecond != 10.0/60 {
		t.Errorf("expected 10 per minute, got %f/s", cfg.RequestsPerSecond)
	}

	e := echo.New()
	handler := RateLimit(cfg)(okHandler)
	for i := 0; i < 10; i++ {
		c, _ := requestFrom(e, "10.0.0.9")
		if err := handler(c); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	c, rec := requestFrom(e, "10.0.0.9")
	if err := handler(c); err == nil {
		t.Fatal("expected eleventh attempt within a minute to be rejected")
	}
	if retry, _ := strconv.Atoi(rec.Header().Get("Retry-After")); retry < 5 {
		t.Errorf("expected Retry-After of several seconds, got %d", retry)
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond != 100 {
		t.Errorf("expected RequestsPerSecond 100, got %f", cfg.RequestsPerSecond)
	}
	if cfg.BurstSize != 200 {
		t.Errorf("expected BurstSize 200, got %d", cfg.BurstSize)
	}
}

func TestIPLimiters_EvictsIdleClients(t *testing.T) {
	store := newIPLimiters(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	start := time.Now()

	a := store.get("a", start)
	if store.get("a", start) != a {
		t.Error("expected same limiter for same key")
	}
	store.get("b", start)
	if store.len() != 2 {
		t.Fatalf("expected 2 clients, got %d", store.len())
	}

	store.get("c", start.Add(2*time.Minute))
	if store.len() != 1 {
		t.Errorf("expected idle clients to be evicted, got %d", store.len())
	}
}

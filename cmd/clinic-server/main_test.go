package main

import (
	"bytes"
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medpredict/clinic/internal/config"
	"github.com/medpredict/clinic/internal/domain/diagnosis"
	"github.com/medpredict/clinic/internal/domain/disease"
	"github.com/medpredict/clinic/internal/platform/db"
	"github.com/medpredict/clinic/internal/platform/middleware"
	"github.com/medpredict/clinic/migrations"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Env:                  "test",
		StorageDriver:        config.StorageDriverMemory,
		SessionStore:         config.SessionStoreMemory,
		SessionTTL:           time.Hour,
		CORSOrigins:          []string{"http://localhost:3000"},
		RateLimitRPS:         100,
		RateLimitBurst:       200,
		LoginRateLimitPerMin: 10,
		RequestTimeout:       5 * time.Second,
		BodyLimit:            "1M",
		ModelDir:             t.TempDir(),
		ReportDir:            t.TempDir(),
		ReportCacheEnabled:   true,
		MetricsEnabled:       true,
	}
}

func serve(t *testing.T, a *app, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	return rec
}

func TestBuildApp_MemoryDriver(t *testing.T) {
	a, err := buildApp(context.Background(), memoryConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	t.Cleanup(a.close)

	rec := serve(t, a, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), version) {
		t.Errorf("health body missing version: %s", rec.Body.String())
	}

	rec = serve(t, a, http.MethodGet, "/health/db", "")
	if rec.Code != http.StatusOK {
		t.Errorf("health/db: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "sessions") {
		t.Errorf("health/db should report the session store: %s", rec.Body.String())
	}

	rec = serve(t, a, http.MethodPost, "/api/v1/session", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("start session: expected 201, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
	if rec.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("expected the api group to be rate limited")
	}

	rec = serve(t, a, http.MethodGet, "/api/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("models: expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"available":true`) {
		t.Errorf("no model files were written, none should be available: %s", rec.Body.String())
	}

	rec = serve(t, a, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clinic_http_requests_total") {
		t.Error("expected request counter in metrics output")
	}
}

func TestBuildApp_ErrorShape(t *testing.T) {
	a, err := buildApp(context.Background(), memoryConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	t.Cleanup(a.close)

	rec := serve(t, a, http.MethodGet, "/api/v1/patient/drafts", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"auth_error"`) {
		t.Errorf("unexpected error body: %s", rec.Body.String())
	}
}

func TestBuildApp_MetricsDisabled(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.MetricsEnabled = false
	a, err := buildApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	t.Cleanup(a.close)

	if rec := serve(t, a, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 with metrics disabled, got %d", rec.Code)
	}
}

func TestSigningKey(t *testing.T) {
	cfg := &config.Config{SessionSigningKey: "0123456789abcdef0123456789abcdef"}
	key, err := signingKey(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(key) != cfg.SessionSigningKey {
		t.Error("expected the configured key to be used")
	}

	cfg.SessionSigningKey = ""
	a, _ := signingKey(cfg, zerolog.Nop())
	b, _ := signingKey(cfg, zerolog.Nop())
	if len(a) != 32 || bytes.Equal(a, b) {
		t.Error("expected distinct random 32-byte keys")
	}
}

func TestMigrationSource(t *testing.T) {
	if got := migrationSource(""); got != fs.FS(migrations.FS) {
		t.Error("empty dir should use the embedded migrations")
	}
	if got := migrationSource(filepath.Join(t.TempDir(), "missing")); got != fs.FS(migrations.FS) {
		t.Error("missing dir should use the embedded migrations")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001_x.sql"), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatal(err)
	}
	names, err := fs.Glob(migrationSource(dir), "*.sql")
	if err != nil || len(names) != 1 || names[0] != "001_x.sql" {
		t.Errorf("expected on-disk migrations, got %v (%v)", names, err)
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) < 2 {
		t.Errorf("expected embedded schema files, got %v", names)
	}
}

func TestPrintMigrationStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printMigrationStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "app_user", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "diagnosis_record"},
	})
	out := buf.String()
	if !strings.Contains(out, "2024-03-01 12:00:00") || !strings.Contains(out, "applied") {
		t.Errorf("applied row missing: %s", out)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("pending row missing: %s", out)
	}
}

func TestWriteReport(t *testing.T) {
	text := "Walk daily"
	rec := &diagnosis.Record{
		PatientName:    "Alice",
		Disease:        disease.Diabetes,
		Diagnosis:      "The person is diabetic",
		Recommendation: &text,
	}
	path := filepath.Join(t.TempDir(), "out.pdf")
	if err := writeReport(path, reportInput(rec)); err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("expected a PDF file")
	}
	if !bytes.Contains(data, []byte("Walk daily")) {
		t.Error("expected the recommendation in the report")
	}
}

func TestAPIRateLimit(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.RateLimitRPS, cfg.RateLimitBurst = 0, 0
	if got := apiRateLimit(cfg); got != middleware.DefaultRateLimitConfig() {
		t.Errorf("unset: got %+v, want defaults", got)
	}

	cfg.RateLimitRPS, cfg.RateLimitBurst = 5, 10
	got := apiRateLimit(cfg)
	if got.RequestsPerSecond != 5 || got.BurstSize != 10 {
		t.Errorf("configured: got %+v", got)
	}
	if got.IdleTTL != 10*time.Minute {
		t.Errorf("idle clients must still be evicted, IdleTTL = %v", got.IdleTTL)
	}
}

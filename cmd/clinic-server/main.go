package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medpredict/clinic/internal/config"
	"github.com/medpredict/clinic/internal/dashboard"
	"github.com/medpredict/clinic/internal/domain/account"
	"github.com/medpredict/clinic/internal/domain/diagnosis"
	"github.com/medpredict/clinic/internal/platform/apperror"
	"github.com/medpredict/clinic/internal/platform/auth"
	"github.com/medpredict/clinic/internal/platform/blobstore"
	"github.com/medpredict/clinic/internal/platform/db"
	"github.com/medpredict/clinic/internal/platform/middleware"
	"github.com/medpredict/clinic/internal/platform/prediction"
	"github.com/medpredict/clinic/internal/platform/session"
	"github.com/medpredict/clinic/internal/platform/telemetry"
	"github.com/medpredict/clinic/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Disease prediction clinic API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(reportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// migrationSource prefers an on-disk migrations directory and falls back to
// the SQL embedded in the binary.
func migrationSource(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	return migrations.FS
}

// signingKey returns the configured key, or a random one outside production.
// Validate has already rejected a missing key in production.
func signingKey(cfg *config.Config, logger zerolog.Logger) ([]byte, error) {
	if cfg.SessionSigningKey != "" {
		return []byte(cfg.SessionSigningKey), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate session signing key: %w", err)
	}
	logger.Warn().Msg("SESSION_SIGNING_KEY not set, using a random key; sessions will not survive a restart")
	return key, nil
}

// app is the assembled server plus whatever must be released on shutdown.
type app struct {
	echo    *echo.Echo
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

func newSessionStore(cfg *config.Config) (session.Store, func(), error) {
	if cfg.SessionStore == config.SessionStoreRedis {
		client, err := session.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return session.NewRedisStore(client, cfg.SessionTTL), func() { _ = client.Close() }, nil
	}
	store := session.NewMemoryStore(cfg.SessionTTL)
	return store, store.Close, nil
}

func newPredictor(cfg *config.Config, logger zerolog.Logger) *prediction.Invoker {
	if cfg.ModelServerURL != "" {
		logger.Info().Str("url", cfg.ModelServerURL).Msg("using remote model server")
		return prediction.NewRemote(prediction.NewRemoteClient(cfg.ModelServerURL, cfg.ModelTimeout), logger)
	}
	return prediction.LoadDir(cfg.ModelDir, logger)
}

// apiRateLimit is the per-client limit on /api/v1. Unset values keep the
// defaults, and idle clients are always evicted.
func apiRateLimit(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}

	// Storage
	var (
		users   account.UserRepository
		records diagnosis.RecordRepository
		pool    *pgxpool.Pool
	)
	if cfg.UsesPostgres() {
		var err error
		pool, err = openPool(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, pool.Close)
		logger.Info().Msg("connected to database")

		applied, err := db.NewMigrator(pool, migrationSource(cfg.MigrationsDir)).Up(ctx)
		if err != nil {
			return fail(fmt.Errorf("migrate: %w", err))
		}
		logger.Info().Int("applied", applied).Msg("migrations up to date")

		users = account.NewUserRepo(pool)
		records = diagnosis.NewRecordRepo(pool)
	} else {
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
		users = account.NewMemoryUserRepo()
		records = diagnosis.NewMemoryRecordRepo()
	}

	// Sessions
	store, closeStore, err := newSessionStore(cfg)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, closeStore)
	key, err := signingKey(cfg, logger)
	if err != nil {
		return fail(err)
	}
	sessions := session.NewManager(store, key, cfg.SessionTTL)

	// Report cache
	var reports blobstore.Store
	if cfg.ReportCacheEnabled {
		fsStore, err := blobstore.NewFileStore(cfg.ReportDir)
		if err != nil {
			return fail(fmt.Errorf("report cache: %w", err))
		}
		reports = fsStore
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.Handler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger, auth.PublicPaths()...))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders: []string{echo.HeaderContentDisposition, middleware.RequestIDHeader},
	}))
	e.Use(echomw.GzipWithConfig(echomw.GzipConfig{Skipper: auth.Skipper}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	if cfg.MetricsEnabled {
		e.Use(telemetry.Middleware())
	}

	// API groups
	apiV1 := e.Group("/api/v1")

	apiV1.Use(middleware.RateLimit(apiRateLimit(cfg)))

	var loginLimit echo.MiddlewareFunc
	if cfg.LoginRateLimitPerMin > 0 {
		loginLimit = middleware.RateLimit(middleware.LoginRateLimitConfig(cfg.LoginRateLimitPerMin))
	}

	handler := dashboard.NewHandler(dashboard.Deps{
		Accounts:   account.NewService(users, logger),
		Records:    diagnosis.NewService(records, logger),
		Predictor:  newPredictor(cfg, logger),
		Sessions:   sessions,
		Reports:    reports,
		LoginLimit: loginLimit,
		Logger:     logger,
	})
	handler.RegisterRoutes(apiV1)

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	deps := map[string]db.Pinger{"sessions": sessions}
	if pool != nil {
		deps["database"] = pool
	}
	e.GET("/health/db", db.HealthHandler(deps))
	if cfg.MetricsEnabled {
		if pool != nil {
			telemetry.RegisterPool(pool)
		}
		e.GET("/metrics", telemetry.Handler())
	}

	a.echo = e
	return a, nil
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		logger := newLogger(os.Getenv("ENV"))
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}
	logger := newLogger(cfg.Env)

	a, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.close()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

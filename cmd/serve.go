package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/isearch-project/musebag/internal/api"
	"github.com/isearch-project/musebag/internal/config"
	"github.com/isearch-project/musebag/internal/log"
	"github.com/isearch-project/musebag/internal/mqf"
	"github.com/isearch-project/musebag/internal/observability"
	"github.com/isearch-project/musebag/internal/profile"
	"github.com/isearch-project/musebag/internal/query"
	"github.com/isearch-project/musebag/internal/session"
	"github.com/isearch-project/musebag/internal/weather"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // media uploads need headroom
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MuseBag HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes the collaborator clients and runs the HTTP server
// until the process receives SIGINT or SIGTERM.
func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level: parseLogLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	logger.Info("starting musebag", "version", AppVersion, "config", cfg)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces", "error", err)
		}
	}()

	store, pool, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	if err := os.MkdirAll(cfg.TmpDir, 0o750); err != nil {
		return fmt.Errorf("creating tmp directory: %w", err)
	}

	var fetcher query.WeatherFetcher
	if cfg.WeatherServiceURL != "" {
		fetcher = weather.NewClient(cfg.WeatherServiceURL, nil, logger)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:     logger,
		Sessions:   session.NewManager(store, cfg.DevMode, logger),
		Profiles:   profile.NewClient(cfg.ProfileServiceURL, nil, logger),
		Formulator: mqf.NewClient(cfg.QueryFormulatorURL, cfg.TmpURL, nil, logger),
		Composer:   query.NewComposer(fetcher, logger),
		Pool:       pool,
		TmpDir:     cfg.TmpDir,
		IsDev:      cfg.DevMode,
		TrustProxy: cfg.TrustProxy,
		RateRPS:    cfg.RateLimitRPS,
		RateBurst:  cfg.RateLimitBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           observability.Middleware(apiServer.Handler()),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.ListenAddr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

// openSessionStore builds the configured session backend. The returned
// pool is nil for the in-memory backend.
func openSessionStore(ctx context.Context, cfg *config.Config, logger log.Logger) (session.Store, *pgxpool.Pool, error) {
	if cfg.SessionBackend != config.SessionBackendPostgres {
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(), nil, nil
	}

	if err := session.Migrate(cfg.DatabaseURL); err != nil {
		return nil, nil, fmt.Errorf("migrating session schema: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging postgres: %w", err)
	}

	logger.Info("using postgres session store")
	return session.NewPostgresStore(pool, logger), pool, nil
}

// parseLogLevel maps the configured level name to a slog level.
// Unknown names fall back to info.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

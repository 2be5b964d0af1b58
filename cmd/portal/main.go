// Coffee staff portal server
//
// Serves the browser side of the portal: login and context selection,
// company administration, and the per-company media library. Session
// state lives in memory, Redis or PostgreSQL; metrics are served on a
// separate listener.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/coffeestaff/portal/internal/config"
	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/metrics"
	"github.com/coffeestaff/portal/internal/objects"
	"github.com/coffeestaff/portal/internal/store"
	"github.com/coffeestaff/portal/internal/store/postgres"
	"github.com/coffeestaff/portal/internal/store/redis"
	"github.com/coffeestaff/portal/internal/web"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		panic("dotenv error: " + err.Error())
	}
	cfg, err := config.LoadServer()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("portal server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("backend", cfg.BackendURL),
		zap.String("state", cfg.StateBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state, prune, err := openState(ctx, cfg)
	if err != nil {
		logging.Fatal("session state unavailable", zap.Error(err))
	}
	defer state.Close()

	opts := web.Options{
		BackendURL:     cfg.BackendURL,
		APITimeout:     cfg.APITimeout,
		SessionSecret:  []byte(cfg.SessionSecret),
		CookieSecure:   cfg.CookieSecure,
		CookieMaxAge:   cfg.SessionTTL,
		State:          state,
		PreviewRefresh: cfg.PreviewRefresh,
		MaxUploadSize:  cfg.MaxUploadSize,
	}
	if cfg.S3.Enabled() {
		lister, err := objects.NewS3Lister(ctx, cfg.S3)
		if err != nil {
			logging.Fatal("S3 lister init failed", zap.Error(err))
		}
		opts.Lister = lister
		logging.Info("listing folders from bucket",
			zap.String("endpoint", cfg.S3.Endpoint),
			zap.String("bucket", cfg.S3.Bucket))
	}

	srv := web.NewServer(opts)
	defer srv.Close()

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		httpServer.Shutdown(shutdownCtx)
		metricsServer.Close()
	}()

	// Idle browser sessions are dropped from memory; their state stays in
	// the store until the session TTL passes.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.Sweep(30 * time.Minute)
				if prune != nil {
					if n, err := prune(ctx); err != nil {
						logging.Warn("prune session state failed", zap.Error(err))
					} else if n > 0 {
						logging.Debug("pruned session state", zap.Int64("rows", n))
					}
				}
			}
		}
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("server error", zap.Error(err))
	}
	logging.Info("server stopped")
}

// openState opens the configured session state backend. prune is set for
// backends that do not expire entries on their own.
func openState(ctx context.Context, cfg *config.Server) (store.Store, func(context.Context) (int64, error), error) {
	switch cfg.StateBackend {
	case "redis":
		st, err := redis.New(ctx, redis.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: "portal:",
			TTL:       cfg.SessionTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil
	case "postgres":
		st, err := postgres.New(cfg.DatabaseURL, cfg.SessionTTL)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Prune, nil
	default:
		return store.NewMemory(), nil, nil
	}
}

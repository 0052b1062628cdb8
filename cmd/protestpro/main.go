// protestpro serves the property tax protest backend: signup, document
// generation, session relay and the administrator pipelines.
package main

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

	"github.com/d9705996/protestpro/internal/api"
	"github.com/d9705996/protestpro/internal/api/handler"
	"github.com/d9705996/protestpro/internal/app"
	"github.com/d9705996/protestpro/internal/config"
	"github.com/d9705996/protestpro/internal/db"
	"github.com/d9705996/protestpro/internal/health"
	"github.com/d9705996/protestpro/internal/observability"
	"github.com/d9705996/protestpro/internal/seed"
	"github.com/d9705996/protestpro/internal/version"
	"github.com/d9705996/protestpro/internal/worker"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load .env file if it exists (optional - fails silently if not found)
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability -------------------------------------------------------
	obs, log, err := observability.New(ctx, &observability.Config{
		ServiceName:    "protestpro",
		ServiceVersion: version.Version,
		LogLevel:       cfg.Log.Level,
		LogFormat:      cfg.Log.Format,
		OTLPEndpoint:   cfg.OTel.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer obs.Shutdown(context.Background())
	slog.SetDefault(log)
	log.Info("starting protestpro", "version", version.Version, "commit", version.Commit,
		"db_driver", cfg.DB.Driver, "storage", cfg.Storage.Driver, "identity", cfg.Identity.Provider)

	// --- Services ------------------------------------------------------------
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	log.Info("database ready", "driver", cfg.DB.Driver)

	// River migrations only run when Postgres is available and must be
	// applied before the queue starts.
	if a.Pool != nil {
		if err := worker.MigrateRiver(ctx, a.Pool); err != nil {
			return fmt.Errorf("river migrations: %w", err)
		}
		log.Info("river migrations applied")
	}

	// --- Seed admin ----------------------------------------------------------
	if a.Accounts != nil {
		if err := seed.EnsureAdmin(ctx, a.DB, a.Accounts, seed.AdminOptions{
			Email:        cfg.App.SeedAdminEmail,
			SeedPassword: cfg.App.SeedAdminPassword,
		}, log); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	}

	// --- Worker queue --------------------------------------------------------
	if err := a.Queue.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Queue.Stop(stopCtx); err != nil {
			log.Error("worker stop error", "err", err)
		}
	}()

	// --- HTTP routes ---------------------------------------------------------
	var deps []health.Dependency
	if a.Redis != nil {
		deps = append(deps, health.Dependency{Name: "redis", Pinger: health.PingFunc(func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		})})
	}
	h := api.Handlers{
		Health:    health.New(db.NewPinger(a.DB), deps...),
		Relay:     handler.NewRelayHandler(a.Relay, cfg.JWT.Secret),
		Signup:    handler.NewSignupHandler(a.Signup, log),
		Documents: handler.NewDocumentsHandler(a.Documents, a.Checker, log),
		Admin:     handler.NewAdminHandler(a.Eraser, a.Exporter, log),
	}
	if a.Accounts != nil {
		h.Auth = handler.NewAuthHandler(a.Accounts, a.Sessions, log)
	}
	if a.DBStore != nil {
		h.Storage = handler.NewStorageHandler(a.DBStore, log)
	}

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, h, a.Checker, cfg.JWT.Secret)
	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", promhttp.Handler())
	// Callback and set-password pages, embedded from ui/pages.
	registerPages(mux, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // exports stream a full archive build
		IdleTimeout:  60 * time.Second,
	}

	// --- Start server --------------------------------------------------------
	log.Info("http server listening", "addr", srv.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped cleanly")
	return nil
}

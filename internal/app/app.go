// Package app assembles the service graph shared by the server and the
// operator CLI from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/d9705996/protestpro/internal/audit"
	"github.com/d9705996/protestpro/internal/auth"
	"github.com/d9705996/protestpro/internal/authz"
	"github.com/d9705996/protestpro/internal/config"
	"github.com/d9705996/protestpro/internal/db"
	"github.com/d9705996/protestpro/internal/documents"
	"github.com/d9705996/protestpro/internal/erasure"
	"github.com/d9705996/protestpro/internal/export"
	"github.com/d9705996/protestpro/internal/forms"
	"github.com/d9705996/protestpro/internal/identity"
	"github.com/d9705996/protestpro/internal/identity/gotrue"
	"github.com/d9705996/protestpro/internal/pdf"
	"github.com/d9705996/protestpro/internal/relay"
	"github.com/d9705996/protestpro/internal/signup"
	"github.com/d9705996/protestpro/internal/storage"
	"github.com/d9705996/protestpro/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CallbackPath is where invite and recovery links land.
const CallbackPath = "/auth/callback"

// SetPasswordPath is the local set-password page.
const SetPasswordPath = "/auth/set-password"

// App holds every constructed service. Optional parts are nil when their
// driver is not configured.
type App struct {
	Config *config.Config
	Log    *slog.Logger

	DB   *gorm.DB
	Pool *pgxpool.Pool // postgres only

	Store   storage.Store
	DBStore *storage.DBStore // STORAGE_DRIVER=db only

	Provider identity.Provider
	Accounts *identity.LocalProvider // IDENTITY_PROVIDER=local only
	Sessions *auth.Sessions
	Inviter  identity.Inviter

	Checker    *authz.Checker
	Audit      audit.Publisher
	Redis      *redis.Client
	Documents  *documents.Generator
	Reconciler *identity.Reconciler
	Queue      worker.Queue
	Signup     *signup.Service
	Eraser     *erasure.Eraser
	Exporter   *export.Packager
	Relay      *relay.Coordinator
}

// New opens the database and builds every service. Close releases what it
// opened.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}
	var err error

	// db.New opens the connection, runs migrations (AutoMigrate for SQLite,
	// golang-migrate for Postgres), and returns the GORM handle plus an
	// optional pgxpool (non-nil only for postgres, used by River).
	a.DB, a.Pool, err = db.New(ctx, &cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, log := a.Config, a.Log
	timeout := cfg.App.ExternalCallTimeout
	var err error

	switch cfg.Storage.Driver {
	case "s3":
		a.Store, err = storage.NewS3Store(storage.S3Options{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
		})
	default:
		a.DBStore, err = storage.NewDBStore(a.DB, cfg.HTTP.PublicBaseURL, cfg.JWT.Secret)
		a.Store = a.DBStore
	}
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}

	a.Sessions = auth.NewSessions(a.DB, cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	switch cfg.Identity.Provider {
	case "gotrue":
		client, err := gotrue.New(cfg.Identity.GoTrueURL, cfg.Identity.ServiceKey, timeout)
		if err != nil {
			return fmt.Errorf("identity provider: %w", err)
		}
		a.Provider, a.Inviter = client, client
	default:
		a.Accounts = identity.NewLocalProvider(a.DB)
		a.Provider = a.Accounts
		a.Inviter = identity.NewLocalInviter(a.Accounts, a.Sessions, identity.LogMailer{Log: log})
	}

	if a.Checker, err = authz.NewChecker(a.DB); err != nil {
		return fmt.Errorf("authorizer: %w", err)
	}

	a.Audit = audit.LogPublisher{Log: log}
	if cfg.Redis.Addr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pub, err := audit.NewRedisPublisher(ctx, a.Redis)
		if err != nil {
			return fmt.Errorf("audit stream: %w", err)
		}
		a.Audit = pub
	}

	layouts, err := forms.LoadLayouts()
	if err != nil {
		return fmt.Errorf("load form layouts: %w", err)
	}
	filler := pdf.NewFiller(pdf.NewPDFCPU(), log)
	a.Documents = documents.New(a.DB, a.Store, filler, layouts, log, documents.WithCallTimeout(timeout))
	a.Reconciler = identity.NewReconciler(a.DB, a.Provider, log, cfg.Identity.ListPageSize)

	a.Queue, err = worker.New(ctx, a.Pool, cfg.DB.Driver, cfg.Worker.Concurrency, log, worker.Deps{
		Docs:              a.Documents,
		Reconciler:        a.Reconciler,
		ReconcileInterval: cfg.Worker.ReconcileInterval,
	})
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	prov := identity.NewProvisioner(a.DB, a.Provider, log, cfg.Identity.ListPageSize, timeout)
	a.Signup = signup.New(a.DB, prov, a.Documents, a.Queue, a.Inviter, log,
		cfg.HTTP.PublicBaseURL+CallbackPath, signup.WithCallTimeout(timeout))
	a.Eraser = erasure.New(a.DB, a.Store, a.Provider, a.Checker, a.Audit, log, timeout)
	a.Exporter = export.New(a.DB, a.Store, a.Checker, a.Audit, log,
		export.WithConcurrency(cfg.Export.Concurrency),
		export.WithURLTTL(cfg.Export.URLTTL),
		export.WithCallTimeout(timeout))

	r := relay.New(a.Checker, relay.Destinations{
		CustomerApp: cfg.Relay.CustomerAppURL,
		AdminApp:    cfg.Relay.AdminAppURL,
		SetPassword: cfg.HTTP.PublicBaseURL + SetPasswordPath,
		SignIn:      cfg.Relay.CustomerAppURL + "/login",
	}, log, timeout)
	a.Relay = relay.NewCoordinator(r, cfg.Relay.Timeout)
	return nil
}

// Close releases the connections opened by New.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

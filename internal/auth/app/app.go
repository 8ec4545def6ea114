package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/truecredit/authserver/internal/auth/domain"
	"github.com/truecredit/authserver/internal/auth/flow"
	httpapi "github.com/truecredit/authserver/internal/auth/http"
	"github.com/truecredit/authserver/internal/auth/metrics"
	"github.com/truecredit/authserver/internal/auth/policy"
	"github.com/truecredit/authserver/internal/auth/service"
	"github.com/truecredit/authserver/internal/auth/store"
	"github.com/truecredit/authserver/internal/auth/store/drivers/redis"
	"github.com/truecredit/authserver/internal/auth/store/drivers/sqlite"
	"github.com/truecredit/authserver/pkg/cryptox"
	"github.com/truecredit/authserver/pkg/jwtx"
	"github.com/truecredit/authserver/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags "-X ...".
var BuildVersion = "v0.1.0"

// TOTPIssuer labels enrolled authenticator entries.
const TOTPIssuer = "TrueCredit"

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db     *sqlite.Store
	ledger store.Tokens
	redis  *redis.Tokens // nil unless the redis ledger is configured
	keys   *jwtx.KeyManager

	// Services
	policies     *policy.Engine
	registry     *service.RegistryService
	users        *service.UserDirectory
	tokens       *service.TokenIssuer
	codes        *service.CodeService
	reconciler   *service.Reconciler
	flow         *flow.Controller
	metrics      *metrics.Metrics
	housekeeping *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// NewLogger builds the service logger from cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "auth-service",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// New validates cfg, loads keys, reconciles the bootstrap descriptors and
// prepares the HTTP server. Any failure is fatal.
func New(ctx context.Context, cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{cfg: cfg, logger: NewLogger(cfg)}
	ctx = slogx.WithContext(ctx, app.logger)

	if err := app.claimMap().Validate(); err != nil {
		return nil, err
	}

	db, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	app.db = db
	app.logger.Info("database migrations applied successfully")

	if err := app.init(ctx); err != nil {
		_ = app.close()
		return nil, err
	}
	return app, nil
}

func (app *Application) init(ctx context.Context) error {
	keys, err := LoadKeys(app.cfg, app.logger)
	if err != nil {
		return err
	}
	app.keys = keys

	if err := app.initLedger(ctx); err != nil {
		return err
	}

	app.initServices()

	if err := app.reconcile(ctx); err != nil {
		return err
	}
	if err := checkEncryptedAudiences(ctx, app.registry, app.keys); err != nil {
		return fmt.Errorf("startup check failed: %w", err)
	}

	app.initHTTP()
	return nil
}

// Handler exposes the configured router, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run serves until ctx is cancelled or the listener fails, then shuts down
// gracefully.
func (app *Application) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		app.housekeeping.Start()
		<-gctx.Done()
		app.housekeeping.Stop()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down auth service...")

		// Give outstanding requests a deadline for completion
		sctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
		defer cancel()

		if err := app.server.Shutdown(sctx); err != nil {
			app.logger.Error("graceful server shutdown failed", "error", err)
			if err := app.server.Close(); err != nil {
				app.logger.Error("error closing server", "error", err)
			}
		}
		return nil
	})

	runErr := g.Wait()
	if err := app.close(); err != nil && runErr == nil {
		runErr = err
	}
	app.logger.Info("auth service stopped")
	return runErr
}

func (app *Application) close() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStore opens the SQLite database and applies migrations.
func OpenStore(cfg Config) (*sqlite.Store, error) {
	db, err := sqlite.NewStore(sqlite.FileDSN(cfg.DatabaseFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return db, nil
}

// NewReconciler loads the bootstrap descriptors: the YAML file when
// configured, otherwise the built-in set.
func NewReconciler(cfg Config, registry *service.RegistryService, policies *policy.Engine) (*service.Reconciler, error) {
	data := service.DefaultBootstrapData(cfg.ResourceServerSecret)
	if cfg.BootstrapFile != "" {
		var err error
		if data, err = service.LoadBootstrapFile(cfg.BootstrapFile); err != nil {
			return nil, err
		}
	}
	return &service.Reconciler{Registry: registry, Policies: policies, Data: data}, nil
}

func (app *Application) initLedger(ctx context.Context) error {
	switch app.cfg.TokenLedger {
	case LedgerRedis:
		tokens, err := redis.New(ctx, app.cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize token ledger: %w", err)
		}
		app.redis = tokens
		app.ledger = tokens
	default:
		app.ledger = app.db.Tokens()
	}
	app.logger.Info("token ledger ready", "backend", app.cfg.TokenLedger)
	return nil
}

func (app *Application) claimMap() domain.ClaimMap { return domain.DefaultClaimMap() }

// initServices initializes all business logic services
func (app *Application) initServices() {
	hasher := cryptox.Hasher{Pepper: app.cfg.Pepper}

	app.policies = policy.Default()
	app.registry = &service.RegistryService{Store: app.db, Hasher: hasher}
	app.users = &service.UserDirectory{Store: app.db, Hasher: hasher, Issuer: TOTPIssuer}
	app.codes = &service.CodeService{Store: app.db.AuthorizationCodes(), TTL: app.cfg.CodeTTL}
	app.tokens = &service.TokenIssuer{
		Keys:        app.keys,
		Ledger:      app.ledger,
		Audiences:   app.registry,
		Issuer:      app.cfg.Issuer,
		Claims:      app.claimMap(),
		AccessTTL:   app.cfg.AccessTokenTTL,
		RefreshTTL:  app.cfg.RefreshTokenTTL,
		IdentityTTL: app.cfg.IdentityTokenTTL,
		SessionTTL:  app.cfg.SessionTTL,
	}
	app.metrics = metrics.New()

	app.flow = &flow.Controller{
		Registry:    app.registry,
		Credentials: app.users,
		Policies:    app.policies,
		Issuer:      app.tokens,
		Codes:       app.codes,
		Claims:      app.claimMap(),
		Observer:    app.metrics,
		Timeout:     app.cfg.FlowTimeout,
	}

	app.housekeeping = service.NewHousekeepingService(
		app.db.AuthorizationCodes(),
		app.ledger,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) reconcile(ctx context.Context) error {
	r, err := NewReconciler(app.cfg, app.registry, app.policies)
	if err != nil {
		return err
	}
	app.reconciler = r

	if err := r.Reconcile(ctx); err != nil {
		return err
	}
	return r.ValidateStoredScopes(ctx)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keys,
		app.cfg.Issuer,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.Flow = app.flow
	router.Tokens = app.tokens
	router.Registry = app.registry
	router.Users = app.users
	router.Metrics = app.metrics
	router.Limits = app.cfg.RateLimits
	if app.redis != nil {
		router.Ledger = app.redis
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/audit"
	httpapi "github.com/aussiebroadwan/shopauth/internal/auth/http"
	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/internal/auth/store"
	"github.com/aussiebroadwan/shopauth/internal/auth/store/drivers/postgres"
	redisstore "github.com/aussiebroadwan/shopauth/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/shopauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

const (
	// ServiceName tags every log line and is the default token issuer.
	ServiceName = "shopauth"

	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// NewLogger builds the process logger from the logging settings in cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: ServiceName,
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	sessions store.Sessions
	rdb      redis.UniversalClient // nil unless sessions live in redis
	events   audit.Publisher

	// Services
	credentials         *service.CredentialService
	housekeepingService *service.HousekeepingService
	housekeepingRunning bool

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg:    cfg,
		logger: NewLogger(cfg),
	}

	ctx := context.Background()
	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initSessions(ctx); err != nil {
		app.closeAll()
		return nil, err
	}
	if err := app.initAudit(); err != nil {
		app.closeAll()
		return nil, err
	}

	creds, err := InitCredentials(app.cfg, app.db.Shops(), app.sessions, app.events, app.logger)
	if err != nil {
		app.closeAll()
		return nil, err
	}
	app.credentials = creds

	app.housekeepingService = service.NewHousekeepingService(
		app.sessions,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	app.initHTTP()

	return app, nil
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()
	app.housekeepingRunning = true

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.housekeepingRunning {
		app.housekeepingService.Stop()
		app.housekeepingRunning = false
	}

	if err := app.closeAll(); err != nil {
		app.logger.Error("error releasing resources", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// closeAll releases the publisher, redis client and database, in that order.
func (app *Application) closeAll() error {
	var errs []error
	if app.events != nil {
		errs = append(errs, app.events.Close())
	}
	if app.rdb != nil {
		errs = append(errs, app.rdb.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	return errors.Join(errs...)
}

// initDatabase opens the shop store and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.DatabaseDriver {
	case DriverPostgres:
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseURL)
	default:
		db, err = sqlite.NewStore(sqliteDSN(app.cfg.DatabaseFile))
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		app.db = nil
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

func sqliteDSN(file string) string {
	if file == ":memory:" {
		return file
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", file)
}

// initSessions picks where sessions live. Shops always stay in the database.
func (app *Application) initSessions(ctx context.Context) error {
	if app.cfg.SessionBackend != SessionBackendRedis {
		app.sessions = app.db.Sessions()
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})

	sessions := redisstore.NewSessions(rdb, app.cfg.RedisPrefix)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sessions.Ping(pingCtx); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to reach redis at %s: %w", app.cfg.RedisAddr, err)
	}

	app.rdb = rdb
	app.sessions = sessions
	app.logger.Info("session store: redis", "addr", app.cfg.RedisAddr, "prefix", app.cfg.RedisPrefix)
	return nil
}

func (app *Application) initAudit() error {
	switch app.cfg.AuditSink {
	case AuditKafka:
		app.events = audit.NewKafkaPublisher(app.cfg.KafkaBrokers, app.cfg.KafkaTopic)
		app.logger.Info("audit events: kafka", "brokers", strings.Join(app.cfg.KafkaBrokers, ","), "topic", app.cfg.KafkaTopic)
	case AuditAMQP:
		p, err := audit.NewAMQPPublisher(app.cfg.AMQPURL, app.cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("failed to connect audit publisher: %w", err)
		}
		app.events = p
		app.logger.Info("audit events: amqp", "exchange", app.cfg.AMQPExchange)
	case AuditNone:
		app.events = audit.Nop{}
	default:
		app.events = audit.LogPublisher{Logger: app.logger.With("component", "audit")}
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.credentials, BuildVersion, httpapi.DefaultLimits(), app.logger)
	router.AddCheck("database", app.db)
	if p, ok := app.sessions.(httpapi.Pinger); ok && app.rdb != nil {
		router.AddCheck("sessions", p)
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

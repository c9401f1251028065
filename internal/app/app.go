package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"student-records/internal/auth"
	"student-records/internal/config"
	"student-records/internal/db"
	"student-records/internal/health"
	"student-records/internal/kafka"
	"student-records/internal/logger"
	"student-records/internal/messaging"
	"student-records/internal/metrics"
	"student-records/internal/middleware"
	"student-records/internal/student"
	"student-records/internal/telemetry"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/uptrace/bun"
)

type App struct {
	router    chi.Router
	server    *http.Server
	logger    *slog.Logger
	db        *bun.DB
	publisher publisher
	telemetry *telemetry.Provider
}

// publisher is a student.Publisher that owns a connection.
type publisher interface {
	student.Publisher
	Close() error
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slogLogger := logger.NewWithServiceContext(ServiceName, Version, cfg.Env)

	// Set as default logger so slog.Info() uses the same handler
	slog.SetDefault(slogLogger)

	slogLogger.Info("initializing application", "env", cfg.Env, "commit", GitCommit, "build_time", BuildTime)

	app := &App{logger: slogLogger}

	ctx := context.Background()

	app.telemetry, err = telemetry.Start(ctx, cfg.Telemetry, telemetry.Resource{
		ServiceName: ServiceName,
		Version:     Version,
		Environment: cfg.Env,
	}, slogLogger)
	if err != nil {
		slogLogger.Warn("failed to start metrics export, continuing without it", "error", err)
	}

	meter := app.telemetry.Meter(ServiceName)
	m, err := metrics.New(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	app.db, err = db.Open(ctx, cfg.Database, slogLogger)
	if err != nil {
		return nil, err
	}

	if err := m.Store.ObservePool(meter, app.db.DB.Stats); err != nil {
		slogLogger.Warn("failed to register database pool metrics", "error", err)
	}
	if err := m.Health.Register(meter, ServiceName, Version, cfg.Env, health.DatabaseDependency); err != nil {
		slogLogger.Warn("failed to register health metrics", "error", err)
	}
	if err := metrics.RegisterRuntimeMetrics(meter); err != nil {
		slogLogger.Warn("failed to register runtime metrics", "error", err)
	}

	if err := db.Migrate(ctx, app.db, slogLogger, (*student.Student)(nil)); err != nil {
		app.db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth)
	if err != nil {
		app.db.Close()
		return nil, err
	}
	if cfg.Auth.TokenMode == config.TokenModeUsername {
		slogLogger.Warn("login tokens are the plain username and grant no authority; set auth.token_mode=jwt for signed tokens")
	}

	app.publisher = newPublisher(cfg.Events, slogLogger, m)

	studentRepo := student.NewRepository(app.db, m)
	studentService := student.NewService(studentRepo, auth.NewBcryptHasher(cfg.Auth.BcryptCost), tokens, app.publisher, m, slogLogger)
	studentHandler := student.NewHandler(studentService, slogLogger, cfg.Server.ExposeInternalErrors)

	app.router = NewRouter(cfg.Server, slogLogger, health.NewHandler(app.db, m.Health, slogLogger), studentHandler)
	app.server = NewServer(cfg.Server, app.router)

	slogLogger.Info("application initialized successfully")

	return app, nil
}

// NewServer applies the configured address and timeouts to handler.
func NewServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.IdleTimeout) * time.Second,
	}
}

// NewRouter mounts the middleware chain, health checks and student routes.
func NewRouter(cfg config.ServerConfig, logger *slog.Logger, healthHandler *health.Handler, studentHandler *student.Handler) chi.Router {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.Recoverer)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	healthHandler.RegisterRoutes(router)
	studentHandler.RegisterRoutes(router)

	return router
}

// newPublisher returns nil when events are disabled or the broker is unreachable.
func newPublisher(cfg config.EventsConfig, logger *slog.Logger, m *metrics.Metrics) publisher {
	switch cfg.Driver {
	case config.EventsDriverNATS:
		producer, err := messaging.NewProducer(cfg.NATS.URL, cfg.NATS.Subject, logger, m.Events)
		if err != nil {
			logger.Warn("failed to initialize NATS producer, events disabled", "error", err)
			return nil
		}
		return producer
	case config.EventsDriverKafka:
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger, m.Events)
		if err != nil {
			logger.Warn("failed to initialize Kafka producer, events disabled", "error", err)
			return nil
		}
		return producer
	default:
		logger.Info("student events disabled")
		return nil
	}
}

func (a *App) Run() error {
	a.logger.Info("server starting", "addr", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down server")

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event publisher: %w", err))
		}
	}
	db.Close(a.db)
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

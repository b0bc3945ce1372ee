package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/utafrali/blossom-account/internal/auth"
	"github.com/utafrali/blossom-account/internal/config"
	"github.com/utafrali/blossom-account/internal/event"
	handler "github.com/utafrali/blossom-account/internal/handler/http"
	"github.com/utafrali/blossom-account/internal/notifier"
	"github.com/utafrali/blossom-account/internal/repository"
	"github.com/utafrali/blossom-account/internal/repository/memory"
	"github.com/utafrali/blossom-account/internal/repository/postgres"
	"github.com/utafrali/blossom-account/internal/service"
	"github.com/utafrali/blossom-account/migrations"
	"github.com/utafrali/blossom-account/pkg/database"
	"github.com/utafrali/blossom-account/pkg/health"
	pkgkafka "github.com/utafrali/blossom-account/pkg/kafka"
	"github.com/utafrali/blossom-account/pkg/middleware"
	"github.com/utafrali/blossom-account/pkg/tracing"
)

// ServiceName labels logs, traces and metrics of the HTTP API.
const ServiceName = "account"

// Version is reported in trace resources.
const Version = "0.1.0"

// App wires together all dependencies and runs the account service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	dispatcher     *notifier.Async
	registry       *prometheus.Registry
	handler        http.Handler
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

type stores struct {
	users    repository.UserRepository
	profiles repository.ProfileRepository
	terms    repository.TermsRepository
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		Insecure:       cfg.OTelInsecure,
		SampleRate:     cfg.OTelSampleRate,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Per-app collectors go on their own registry; package-level collectors
	// stay on the default one and both are served from /metrics.
	a := &App{
		cfg:            cfg,
		logger:         logger,
		registry:       prometheus.NewRegistry(),
		tracerShutdown: tracerShutdown,
	}
	healthHandler := health.NewHandler()

	st, err := a.openStores(ctx, healthHandler)
	if err != nil {
		a.release()
		return nil, err
	}

	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		a.release()
		return nil, fmt.Errorf("init password hasher: %w", err)
	}
	logger.Info("password hasher ready", slog.Int("bcrypt_cost", hasher.Cost()))
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:          cfg.SecretKey,
		Algorithm:       cfg.JWTAlgorithm,
		AccessTTL:       cfg.AccessTTL(),
		VerificationTTL: cfg.EmailVerificationTTL,
	})
	if err != nil {
		a.release()
		return nil, fmt.Errorf("init token service: %w", err)
	}

	next, err := a.newNotifier(healthHandler)
	if err != nil {
		a.release()
		return nil, err
	}
	a.dispatcher = notifier.NewAsync(next, cfg.NotifyTimeout, logger)

	// Build the dependency graph.
	accounts := service.NewAccountService(st.users, st.profiles, hasher, tokens, a.dispatcher, logger)
	terms := service.NewTermsService(st.terms, st.users, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	a.handler = handler.NewRouter(accounts, terms, healthHandler, logger, handler.RouterConfig{
		ServiceName:       ServiceName,
		APIPrefix:         cfg.APIPrefix,
		CORS:              corsCfg,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Registerer:        a.registry,
		Gatherer:          prometheus.Gatherers{a.registry, prometheus.DefaultGatherer},
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           a.handler,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) openStores(ctx context.Context, healthHandler *health.Handler) (*stores, error) {
	if a.cfg.Store == config.StoreMemory {
		a.logger.Warn("using in-memory store, data is lost on restart")
		store := memory.NewStore()
		return &stores{users: store, profiles: store, terms: store}, nil
	}

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPool(ctx, a.cfg.Postgres(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", a.cfg.PostgresHost),
		slog.Int("port", a.cfg.PostgresPort),
		slog.String("database", a.cfg.PostgresDB),
	)

	if err := database.RegisterPoolMetrics(a.registry, pool, ServiceName); err != nil {
		a.logger.Warn("register pool metrics", slog.String("error", err.Error()))
	}

	if a.cfg.RunMigrations {
		if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.logger.Info("database migrations completed")
	}

	database.SetSlowQueryLogging(a.cfg.SlowQueryThreshold(), a.logger)

	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	return &stores{
		users:    postgres.NewUserRepository(pool),
		profiles: postgres.NewProfileRepository(pool),
		terms:    postgres.NewTermsRepository(pool),
	}, nil
}

// newNotifier sends mail in-process, or hands verification requests to the
// mailer over Kafka.
func (a *App) newNotifier(healthHandler *health.Handler) (notifier.Notifier, error) {
	switch a.cfg.Notifier {
	case config.NotifierKafka:
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(a.cfg.KafkaBrokers), a.logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		a.logger.Info("verification emails go through kafka",
			slog.Any("brokers", a.cfg.KafkaBrokers),
			slog.String("topic", event.TopicVerificationRequested),
		)
		return event.NewProducer(a.producer, a.logger), nil
	case config.NotifierDirect:
		return NewEmailNotifier(a.cfg, a.logger), nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", a.cfg.Notifier)
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Pending verification emails
// 3. Tracer (flush pending spans)
// 4. Kafka producer
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.dispatcher != nil {
		if err := a.dispatcher.Wait(ctx); err != nil {
			a.logger.Error("pending notifications abandoned", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.release()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release closes the tracer, producer and pool. Safe on a partially built App.
func (a *App) release() []error {
	var errs []error

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}

	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errs
}

package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/blossom-account/internal/service"
	"github.com/utafrali/blossom-account/pkg/health"
	"github.com/utafrali/blossom-account/pkg/httputil"
	"github.com/utafrali/blossom-account/pkg/middleware"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Welcome to the Blossom Foundation Retreat Platform API"

// RouterConfig holds the non-service inputs of NewRouter.
type RouterConfig struct {
	ServiceName string
	APIPrefix   string
	CORS        middleware.CORSConfig

	// TrustProxyHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool

	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter creates a chi router with all account service routes registered.
func NewRouter(
	accounts *service.AccountService,
	terms *service.TermsService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/auth"
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	// Global middleware
	if cfg.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.NewHTTPMetrics(cfg.Registerer, cfg.ServiceName).Handler)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteMessage(w, WelcomeMessage)
	})

	// Health check endpoints
	r.Get("/health", health.OKHandler())
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	authHandler := NewAuthHandler(accounts, logger)
	termsHandler := NewTermsHandler(terms, logger)

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/token", authHandler.Token)
		r.Post("/login", authHandler.Login)
		r.Get("/me", authHandler.Me)
		r.Post("/verify-email", authHandler.VerifyEmail)

		r.Get("/terms/active", termsHandler.Active)
		r.With(middleware.Auth(accounts.Authenticate)).Post("/terms/consent", termsHandler.Consent)
	})

	return r
}

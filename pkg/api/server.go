// Package api serves the read surface over tracked objects and their
// ephemerides, plus the admin routes for grants, imports and the access log.
package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/IBM/arcade/pkg/audit"
	"github.com/IBM/arcade/pkg/authz"
	"github.com/IBM/arcade/pkg/cache"
	"github.com/IBM/arcade/pkg/interpolate"
	"github.com/IBM/arcade/pkg/jobs"
	"github.com/IBM/arcade/pkg/store"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	db        *gorm.DB
	store     store.EntityStore
	evaluator *authz.Evaluator
	interp    *interpolate.Interpolator
	logger    *slog.Logger
	startedAt time.Time

	userHeader   string
	tokens       *authz.TokenVerifier
	cacheManager *cache.CacheManager
	accessStore  *audit.AccessStore
	auditConfig  *audit.AuditConfig
	jobStore     *jobs.JobStore
	runner       jobs.SourceRunner
	gatherer     prometheus.Gatherer
}

// ServerOption configures optional Server behavior.
type ServerOption func(*Server)

// WithIdentity sets how requests are authenticated: the trusted user header
// and, when non-nil, the bearer token verifier.
func WithIdentity(userHeader string, tokens *authz.TokenVerifier) ServerOption {
	return func(s *Server) {
		s.userHeader = userHeader
		s.tokens = tokens
	}
}

// WithCacheManager enables response caching of the tracked object listing.
func WithCacheManager(cm *cache.CacheManager) ServerOption {
	return func(s *Server) { s.cacheManager = cm }
}

// WithAccessLog mounts the access log and user report routes.
func WithAccessLog(as *audit.AccessStore, cfg *audit.AuditConfig) ServerOption {
	return func(s *Server) {
		s.accessStore = as
		s.auditConfig = cfg
	}
}

// WithJobs mounts the import job routes.
func WithJobs(js *jobs.JobStore, runner jobs.SourceRunner) ServerOption {
	return func(s *Server) {
		s.jobStore = js
		s.runner = runner
	}
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// NewServer creates a Server. A nil interpolator uses the local Lagrange
// engine without a result cache.
func NewServer(db *gorm.DB, evaluator *authz.Evaluator, interp *interpolate.Interpolator, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if interp == nil {
		interp = interpolate.NewInterpolator(nil, nil, logger)
	}
	s := &Server{
		db:        db,
		store:     store.NewGormStore(db),
		evaluator: evaluator,
		interp:    interp,
		logger:    logger,
		startedAt: time.Now(),
		gatherer:  prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the HTTP router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", s.identityHeader()},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(authz.IdentityMiddleware(s.userHeader, s.tokens))
	if s.auditConfig != nil && s.auditConfig.Enabled {
		r.Use(audit.ManagementLogMiddleware(s.auditConfig, s.logger))
		s.logger.Info("management request logging enabled", "logDenied", s.auditConfig.LogDenied)
	}

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readyHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(authz.PrincipalMiddleware(s.store, s.logger))

		r.With(s.cacheManager.CatalogMiddleware()).Get("/asos", s.listObjectsHandler)
		r.Get("/asos/{asoId}", s.getObjectHandler)
		r.Get("/ephemeris/{asoId}", s.ephemerisHandler)
		r.Get("/interpolate/{asoId}", s.interpolateHandler)
		r.Get("/compliance/{asoId}", s.complianceHandler)

		r.Group(func(r chi.Router) {
			r.Use(authz.RequireAdmin)
			r.Post("/principals/{name}/grants", s.grantHandler)
			if s.accessStore != nil {
				r.Get("/user_reports", audit.UserReportHandler(s.accessStore))
				r.Mount("/audit", audit.Router(s.accessStore))
			}
			if s.jobStore != nil {
				r.Mount("/imports", jobs.Router(s.jobStore, s.runner))
			}
		})
	})

	return r
}

func (s *Server) identityHeader() string {
	if s.userHeader == "" {
		return authz.DefaultUserHeader
	}
	return s.userHeader
}

package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/apievolve/pkg/httputil"
	"github.com/platinummonkey/apievolve/pkg/middleware"
	"github.com/platinummonkey/apievolve/pkg/observability"
	"github.com/platinummonkey/apievolve/pkg/service"
)

// DefaultMaxBodyBytes bounds request bodies when Options.MaxBodyBytes is unset
const DefaultMaxBodyBytes = 4 << 20

// Options configures a Server. All fields are optional.
type Options struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
	// Registry is served on /metrics when set
	Registry *prometheus.Registry
	// Health is served on /health/live and /health/ready when set
	Health       *observability.HealthChecker
	MaxBodyBytes int64
	// RateLimiter limits /api/v1 requests per client when set
	RateLimiter middleware.Limiter
}

// Server represents our API server
type Server struct {
	service *service.Service
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(svc *service.Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		service: svc,
		router:  mux.NewRouter(),
	}
	s.setupRoutes(opts)

	handler := httputil.Chain(
		httputil.RequestIDMiddleware(opts.Logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(opts.MaxBodyBytes),
	)(s.router)

	s.handler = otelhttp.NewHandler(handler, "apievolve",
		otelhttp.WithFilter(traced),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	)
	return s
}

// traced excludes health checks and scrapes from tracing
func traced(r *http.Request) bool {
	return !strings.HasPrefix(r.URL.Path, "/health/") && r.URL.Path != "/metrics"
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(opts Options) {
	if opts.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(opts.Metrics))
	}

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	if opts.RateLimiter != nil {
		v1.Use(middleware.RateLimit(opts.RateLimiter))
	}

	// History routes
	v1.HandleFunc("/histories", s.listHistories).Methods("GET")
	v1.HandleFunc("/histories/{name}/revisions", s.listRevisions).Methods("GET")
	v1.HandleFunc("/histories/{name}/revisions", s.createRevision).Methods("POST")
	v1.HandleFunc("/histories/{name}/revisions/{revision}", s.getRevision).Methods("GET")

	// Resolution routes
	v1.HandleFunc("/histories/{name}/resolve", s.resolve).Methods("POST")
	v1.HandleFunc("/histories/{name}/merged", s.merged).Methods("GET")

	if opts.Health != nil {
		s.router.HandleFunc("/health/live", opts.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/health/ready", opts.Health.Readiness).Methods("GET")
	}
	if opts.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(opts.Registry)).Methods("GET")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router returns the underlying router, e.g. to mount additional routes
func (s *Server) Router() *mux.Router {
	return s.router
}

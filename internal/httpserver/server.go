// Package httpserver wires the chi router, the global middleware
// stack, and the dynamic tenant-dispatch pipeline described in
// spec.md §4 and §6.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/constructive-io/apigateway/internal/config"
	"github.com/constructive-io/apigateway/pkg/adminguard"
	"github.com/constructive-io/apigateway/pkg/auth"
	"github.com/constructive-io/apigateway/pkg/flush"
	"github.com/constructive-io/apigateway/pkg/handler"
	"github.com/constructive-io/apigateway/pkg/pool"
	"github.com/constructive-io/apigateway/pkg/tenant"
)

// Deps bundles every collaborator the dynamic dispatch pipeline needs.
// Built once in internal/app and handed to New.
type Deps struct {
	Resolver      *tenant.Resolver
	Builder       *handler.Builder
	Authenticator *auth.Authenticator
	Guard         *adminguard.Guard
	Pools         *pool.Registry
	Cache         *tenant.ServiceCache
	Flush         *flush.Handler // nil disables POST /flush
}

// Server holds the HTTP server's router and its wired dependencies.
type Server struct {
	Router *chi.Mux

	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time

	resolver      *tenant.Resolver
	builder       *handler.Builder
	authenticator *auth.Authenticator
	pools         *pool.Registry
	cache         *tenant.ServiceCache
}

// New builds the router, installs the global middleware chain and the
// fixed route table, and mounts deps.Flush when non-nil.
func New(cfg *config.Config, logger *slog.Logger, metricsReg *prometheus.Registry, deps Deps) *Server {
	s := &Server{
		Router:        chi.NewRouter(),
		cfg:           cfg,
		logger:        logger,
		startedAt:     time.Now(),
		resolver:      deps.Resolver,
		builder:       deps.Builder,
		authenticator: deps.Authenticator,
		pools:         deps.Pools,
		cache:         deps.Cache,
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowOriginFunc: dynamicOriginAllowed(deps.Cache, cfg.IsPublic),
		AllowedMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", "X-Request-ID",
			"X-Api-Name", "X-Schemata", "X-Database-Id", "X-Meta-Schema", "X-Admin-Api-Key",
		},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	s.Router.Get("/graphiql", s.handleGraphiQL)

	s.Router.Group(func(r chi.Router) {
		if deps.Guard != nil {
			r.Use(deps.Guard.Middleware)
		}
		r.Post("/graphql", s.handleGraphQL)
		r.Get("/debug/cache", s.handleDebugCache)
	})

	if deps.Flush != nil {
		s.Router.Post("/flush", deps.Flush.ServeHTTP)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

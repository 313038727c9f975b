// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the HTTP router, middleware chain, admission
pipeline and all handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.

Request flow:

	RequestID -> ClientIP -> StructuredLogger -> PanicRecovery -> CleanPath -> Timeout -> CORS
	    -> infrastructure probes (/health, /ready, /metrics)
	    -> admission pipeline -> Authenticate -> application routes
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/aegis/internal/pipeline"
	"github.com/taibuivan/aegis/internal/platform/apperr"
	"github.com/taibuivan/aegis/internal/platform/config"
	"github.com/taibuivan/aegis/internal/platform/constants"
	"github.com/taibuivan/aegis/internal/platform/metrics"
	"github.com/taibuivan/aegis/internal/platform/middleware"
	"github.com/taibuivan/aegis/internal/platform/respond"
	"github.com/taibuivan/aegis/internal/session"
	"github.com/taibuivan/aegis/internal/users/account"
	"github.com/taibuivan/aegis/internal/users/auth"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all HTTP handler sets.
type Handlers struct {
	// Liveness is the /health handler. It always returns 200 if the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler. It returns 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Metrics exposes the Prometheus registry.
	Metrics http.Handler

	// Auth handles authentication routes (login, refresh, logout).
	Auth *auth.Handler

	// Account handles password changes and the operator endpoints.
	Account *account.Handler

	// Session issues the browser session cookie and CSRF token.
	Session *session.Handler
}

// Dependencies are the cross-cutting collaborators of the router.
type Dependencies struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Verifier middleware.TokenVerifier
	Gate     *pipeline.Pipeline
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(deps Dependencies, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.ClientIP())
	r.Use(middleware.StructuredLogger(deps.Logger, deps.Metrics))
	r.Use(middleware.PanicRecovery(deps.Logger))
	r.Use(chimw.CleanPath)
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(middleware.CORS(deps.Config.CORSOrigins))

	// # Infrastructure Endpoints
	// Probes bypass admission so orchestrators are never rate limited.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	// Unrouted requests are still admitted (and counted) like any other.
	r.NotFound(deps.Gate.Handler(http.HandlerFunc(notFound)).ServeHTTP)
	r.MethodNotAllowed(deps.Gate.Handler(http.HandlerFunc(methodNotAllowed)).ServeHTTP)

	// # Application Routes
	// Everything below runs the admission pipeline, then bearer authentication.
	r.Group(func(gated chi.Router) {
		gated.Use(deps.Gate.Handler)
		gated.Use(middleware.Authenticate(deps.Verifier, deps.Metrics))

		gated.Mount("/session", h.Session.Routes())
		gated.Route("/api/v1", func(api chi.Router) {
			api.Mount("/auth", h.Auth.Routes())
			api.Mount("/account", h.Account.Routes())
			api.Mount("/admin", h.Account.AdminRoutes())
		})
	})

	return &Server{
		router: r,
		log:    deps.Logger,
		httpServer: &http.Server{
			Addr:              ":" + deps.Config.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

func notFound(writer http.ResponseWriter, request *http.Request) {
	respond.Error(writer, request, apperr.NotFound("Resource not found"))
}

func methodNotAllowed(writer http.ResponseWriter, request *http.Request) {
	respond.Error(writer, request, apperr.MethodNotAllowed())
}

// Handler exposes the composed router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server_starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

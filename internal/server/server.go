// Package server provides the HTTP server and routing for PlotPay.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/jowabu/plotpay/internal/clients/daraja"
	"github.com/jowabu/plotpay/internal/config"
	"github.com/jowabu/plotpay/internal/modules/callbacks"
	callbackhandlers "github.com/jowabu/plotpay/internal/modules/callbacks/handlers"
	"github.com/jowabu/plotpay/internal/modules/payments"
	paymenthandlers "github.com/jowabu/plotpay/internal/modules/payments/handlers"
	"github.com/jowabu/plotpay/internal/modules/plots"
	plothandlers "github.com/jowabu/plotpay/internal/modules/plots/handlers"
	"github.com/jowabu/plotpay/internal/modules/reconciliation"
)

// Config holds server dependencies
type Config struct {
	Log           zerolog.Logger
	Config        *config.Config
	PlotRepo      *plots.Repository
	PaymentRepo   *payments.Repository
	IntakeRepo    *callbacks.Repository
	Reconciler    *reconciliation.Service
	GatewayClient *daraja.Client
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    *config.Config
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg.Config,
	}

	s.setupMiddleware()
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes. Gateway callbacks are mounted outside
// the auth middleware; everything else on /api requires a bearer token.
func (s *Server) setupRoutes(cfg Config) {
	s.router.Get("/health", s.handleHealth)

	callbackH := callbackhandlers.New(cfg.IntakeRepo, cfg.Reconciler, cfg.Log)
	plotH := plothandlers.New(cfg.PlotRepo, cfg.Log)
	paymentH := paymenthandlers.New(cfg.PaymentRepo, cfg.Reconciler, cfg.Log)
	gatewayH := NewGatewayHandlers(cfg.GatewayClient, cfg.Log)

	auth := newAuthMiddleware(s.cfg.JWTSecret, s.cfg.DevMode, cfg.Log)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/callbacks", callbackH.RegisterRoutes)

		r.Group(func(r chi.Router) {
			r.Use(auth.Handler)
			plotH.RegisterRoutes(r)
			paymentH.RegisterRoutes(r)
			gatewayH.RegisterRoutes(r)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Router returns the underlying router, for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

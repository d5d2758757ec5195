package server

import (
	"context"
	"fmt"
	"net/http"

	"ServerMonitorAPI/internal/config"
	"ServerMonitorAPI/internal/handler"
	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/middleware"

	"github.com/gorilla/mux"
)

type Server struct {
	httpServer *http.Server
	router     *mux.Router
	cfg        *config.Config
	log        *logger.Logger
}

// Handlers groups everything mounted on the router. Nil entries are
// skipped.
type Handlers struct {
	Alert        *handler.AlertHandler
	Notification *handler.NotificationHandler
	System       *handler.SystemHandler
	Telemetry    *handler.TelemetryHandler
	Analytics    *handler.AnalyticsHandler
	Health       *handler.HealthHandler
	WebSocket    http.Handler
	Metrics      http.Handler
}

func New(cfg *config.Config, log *logger.Logger) *Server {
	router := mux.NewRouter()

	server := &Server{
		router: router,
		cfg:    cfg,
		log:    log,
		httpServer: &http.Server{
			Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:        router,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		},
	}

	return server
}

func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) RegisterHandlers(h Handlers) {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.Use(middleware.RequestLogger(s.log))
	api.Use(middleware.CORS(s.cfg.Security.CORSAllowedOrigins, s.cfg.Security.CORSAllowedMethods))
	api.Use(middleware.Recovery(s.log))

	if s.cfg.Security.EnableRateLimit {
		api.Use(middleware.RateLimit(s.cfg.Security.RateLimitPerMinute))
	}

	if h.Alert != nil {
		h.Alert.RegisterRoutes(api)
	}
	if h.Notification != nil {
		h.Notification.RegisterRoutes(api)
	}
	if h.System != nil {
		h.System.RegisterRoutes(api)
	}
	if h.Telemetry != nil {
		h.Telemetry.RegisterRoutes(api)
	}
	if h.Analytics != nil {
		h.Analytics.RegisterRoutes(api)
	}
	if h.Health != nil {
		h.Health.RegisterRoutes(s.router)
	}
	if h.WebSocket != nil {
		s.router.Handle("/ws", h.WebSocket).Methods("GET")
	}
	if h.Metrics != nil {
		s.router.Handle("/metrics", h.Metrics).Methods("GET")
	}

	s.log.Info("All handlers registered")
}

func (s *Server) Start() error {
	s.log.Info("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

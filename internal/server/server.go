package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bobmcallan/screener/internal/app"
	"github.com/bobmcallan/screener/internal/common"
	"github.com/bobmcallan/screener/internal/interfaces"
	"github.com/bobmcallan/screener/internal/metrics"
)

// Server wraps the HTTP server and the services it exposes.
type Server struct {
	config      *common.Config
	logger      *common.Logger
	performance interfaces.PerformanceService
	fluctuation interfaces.FluctuationService
	metrics     *metrics.Metrics
	server      *http.Server
}

// NewServer creates the HTTP REST API server for an application.
func NewServer(a *app.App) *Server {
	return newServer(a.Config, a.Logger, a.PerformanceService, a.FluctuationService, a.Metrics)
}

func newServer(
	config *common.Config,
	logger *common.Logger,
	performance interfaces.PerformanceService,
	fluctuation interfaces.FluctuationService,
	m *metrics.Metrics,
) *Server {
	s := &Server{
		config:      config,
		logger:      logger,
		performance: performance,
		fluctuation: fluctuation,
		metrics:     m,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := applyMiddleware(mux, logger)

	// Analyses are bounded by screening.request_timeout; leave room to write the response.
	writeTimeout := config.Screening.GetRequestTimeout() + 30*time.Second

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

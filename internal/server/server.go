// -----------------------------------------------------------------------
// HTTP Server - REST API and websocket endpoint
// -----------------------------------------------------------------------

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/handlers"
)

// Handlers bundles the HTTP handlers the server exposes.
type Handlers struct {
	Upload      *handlers.UploadHandler
	Job         *handlers.JobHandler
	Attestation *handlers.AttestationHandler
	Analysis    *handlers.AnalysisHandler
	WebSocket   *handlers.WebSocketHandler
}

// Server manages the HTTP server and routes.
type Server struct {
	logger   arbor.ILogger
	config   *common.ServerConfig
	handlers Handlers
	router   *http.ServeMux
	server   *http.Server
}

// New creates the HTTP server with the given handler set.
func New(logger arbor.ILogger, config *common.ServerConfig, h Handlers) *Server {
	s := &Server{
		logger:   logger,
		config:   config,
		handlers: h,
	}

	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withConditionalMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

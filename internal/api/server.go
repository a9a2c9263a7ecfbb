// Package api exposes the indexed collections over HTTP.
// @title OpenR&D Indexer API
// @version 1.0
// @description REST API for querying tasks, RFPs, disputes, drafts and users materialized from on-chain events
// @license.name MIT
// @host localhost:8080
// @basePath /api/v1
// @schemes http https
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/Openmesh-Network/openrd-indexer/internal/api/docs"
	icommon "github.com/Openmesh-Network/openrd-indexer/internal/common"
	"github.com/Openmesh-Network/openrd-indexer/internal/config"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
)

// Ensure the generated swagger doc registers itself.
var _ = docs.SwaggerInfo

const shutdownTimeout = 10 * time.Second

// Server is the read API HTTP server.
type Server struct {
	cfg     config.APIConfig
	handler *Handler
	server  *http.Server
	log     *logger.Logger
}

// NewServer wires the handler into a configured HTTP server.
func NewServer(cfg config.APIConfig, handler *Handler, log *logger.Logger) *Server {
	cfg.ApplyDefaults()
	log = log.WithComponent(icommon.ComponentAPI)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.Health)

	mux.HandleFunc("GET /api/v1/tasks/{chainId}/{taskId}", handler.GetTask)
	mux.HandleFunc("GET /api/v1/tasks/{chainId}/{taskId}/disputes", handler.GetTaskDisputes)
	mux.HandleFunc("GET /api/v1/events/{chainId}/{txHash}/{logIndex}", handler.GetEvent)
	mux.HandleFunc("GET /api/v1/users/{address}", handler.GetUser)
	mux.HandleFunc("GET /api/v1/drafts/{chainId}/{dao}", handler.GetDrafts)
	mux.HandleFunc("GET /api/v1/rfps/{chainId}/{rfpId}", handler.GetRFP)
	mux.HandleFunc("GET /api/v1/stats", handler.GetStats)
	mux.HandleFunc("GET /api/v1/schemas/{collection}", handler.GetSchema)

	mux.HandleFunc("POST /api/v1/resync", handler.Resync)

	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
	))

	var h http.Handler = mux
	h = RecoveryMiddleware(log)(h)
	h = LoggingMiddleware(log)(h)
	h = CORSMiddleware(cfg.CORSOrigins)(h)

	return &Server{
		cfg:     cfg,
		handler: handler,
		log:     log,
		server: &http.Server{
			Addr:         cfg.ListenAddress,
			Handler:      h,
			ReadTimeout:  cfg.ReadTimeout.Duration,
			WriteTimeout: cfg.WriteTimeout.Duration,
		},
	}
}

// Handler returns the server's root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("api server is disabled")
		<-ctx.Done()
		return nil
	}

	s.log.Infof("starting api server on %s", s.cfg.ListenAddress)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}

	s.log.Info("api server stopped")

	return nil
}

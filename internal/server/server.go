// Package server exposes the task manager and upload store as MCP tools
// over an SSE transport, plus a plain health endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"reconciliation-task-service/internal/task"
	"reconciliation-task-service/internal/upload"
	"reconciliation-task-service/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// ServiceName is the MCP server name and the service field of /health.
const ServiceName = "reconciliation-task-service"

// Config holds the transport settings.
type Config struct {
	Host    string
	Port    int
	Version string
}

// Server ties the tool surface to an HTTP listener.
type Server struct {
	cfg     Config
	manager *task.Manager
	store   *upload.Store
	httpSrv *http.Server
	log     logger.Logger
}

// New builds the MCP server, registers the tools and mounts the routes.
func New(cfg Config, manager *task.Manager, store *upload.Store) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{
		cfg:     cfg,
		manager: manager,
		store:   store,
		log:     logger.GetGlobalLogger().WithComponent("server"),
	}

	mcpSrv := mcpserver.NewMCPServer(ServiceName, cfg.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	s.registerTools(mcpSrv)

	sse := mcpserver.NewSSEServer(mcpSrv,
		mcpserver.WithSSEEndpoint("/sse"),
		mcpserver.WithMessageEndpoint("/messages"),
	)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/sse", sse.SSEHandler())
	r.Method(http.MethodPost, "/messages", sse.MessageHandler())
	r.Get("/health", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.httpSrv.Addr).Info("Server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return s.manager.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": ServiceName,
		"version": s.cfg.Version,
	})
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"vidfetch/internal/library"
	"vidfetch/pkg/models"
)

var (
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrServerNotRunning     = errors.New("server is not running")
)

const apiTimeout = 30 * time.Second

// Orchestrator is the job surface the API drives
type Orchestrator interface {
	Start() error
	Stop() error
	Submit(sourceURL string) (string, error)
	GetStatus(jobID string) (models.Job, error)
	ListJobs() []models.Job
	Cancel(jobID string) error
}

// Server represents the HTTP server
type Server struct {
	port     int
	orch     Orchestrator
	library  *library.Library
	router   *chi.Mux
	server   *http.Server
	listener net.Listener
	running  bool
	mu       sync.RWMutex
	log      *zap.Logger
}

// NewServer creates a new HTTP server listening on port once started
func NewServer(port int, orch Orchestrator, lib *library.Library, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		port:    port,
		orch:    orch,
		library: lib,
		router:  chi.NewRouter(),
		log:     logger.Named("api"),
	}

	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))

		r.Get("/health", s.handleHealth)
		r.Post("/download", s.handleSubmit)
		r.Get("/download-status/{id}", s.handleStatus)
		r.Get("/downloads", s.handleList)
		r.Post("/download/{id}/cancel", s.handleCancel)
		r.Post("/delete-download", s.handleDelete)
	})

	// File routes run without the request timeout; large videos take a while
	s.router.Get("/download/{filename}", s.handleFile(true))
	s.router.Get("/stream/{filename}", s.handleFile(false))
}

// Start starts the orchestrator and then the HTTP server
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrServerAlreadyRunning
	}

	listener, err := net.Listen("tcp", s.GetAddr())
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	if err := s.orch.Start(); err != nil {
		listener.Close()
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	s.listener = listener
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.server = httpServer
	s.running = true

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", zap.Error(err))
		}
	}()

	s.log.Info("server listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Stop shuts the HTTP server down and then stops the orchestrator
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServerNotRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	shutdownErr := s.server.Shutdown(ctx)

	if err := s.orch.Stop(); err != nil {
		s.log.Warn("orchestrator stop error", zap.Error(err))
	}

	s.running = false
	s.server = nil
	s.listener = nil

	if shutdownErr != nil {
		return fmt.Errorf("server shutdown failed: %w", shutdownErr)
	}
	return nil
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// GetAddr returns the configured address
func (s *Server) GetAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.port)
}

// GetActualAddr returns the listening address (useful when port is 0)
func (s *Server) GetActualAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.GetAddr()
}

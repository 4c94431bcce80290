// Package http exposes the permission and approval engines over a JSON API.
// The caller identity is taken from the X-User-ID header; authentication
// happens upstream.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/doc-approval/internal/application/permission"
	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/application/workflow"
	"github.com/garyjia/doc-approval/internal/infrastructure/report"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AdminUsers may call /api/admin; empty disables the admin routes
	AdminUsers []string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// HTTPObserver records per-route request metrics
type HTTPObserver interface {
	ObserveHTTP(method, path string, status int, elapsed time.Duration)
}

// Services are the application components the API exposes
type Services struct {
	Permissions permission.Engine
	Workflows   workflow.Engine
	Definitions workflow.DefinitionService
	Users       port.UserRegistry
	Documents   port.DocumentRegistry
	Audit       port.AuditRepository
	Reports     *report.Exporter

	// Optional
	Observer       HTTPObserver
	MetricsHandler http.Handler
	Health         func() (bool, interface{})
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	if s.services.Observer != nil {
		s.router.Use(metricsMiddleware(s.services.Observer))
	}
}

func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.services.MetricsHandler != nil {
		s.router.GET("/metrics", gin.WrapH(s.services.MetricsHandler))
	}

	api := s.router.Group("/api", requireUser())
	{
		docs := api.Group("/documents/:id")
		docs.GET("/permissions/check", h.CheckPermission)
		docs.POST("/grants", h.Grant)
		docs.GET("/grants", h.ListGrants)
		docs.GET("/grants.xlsx", h.ExportGrants)
		docs.DELETE("/grants/:user", h.RevokeAll)
		docs.DELETE("/grants/:user/:type", h.Revoke)
		docs.POST("/submissions", h.Submit)
		docs.GET("/approvals", h.ListDocumentApprovals)
		docs.GET("/audit", h.ListAudit)

		api.GET("/me/shared", h.SharedWithMe)

		adminOnly := requireAdmin(s.config.AdminUsers)

		// definitions decide who approves, so only admins may write them
		api.POST("/workflows", adminOnly, h.CreateWorkflow)
		api.GET("/workflows", h.ListWorkflows)
		api.GET("/workflows/:id", h.GetWorkflow)
		api.PUT("/workflows/:id", adminOnly, h.UpdateWorkflow)

		api.GET("/approvals/pending", h.PendingApprovals)
		api.GET("/approvals/:id", h.GetApproval)
		api.GET("/approvals/:id/history.xlsx", h.ExportHistory)
		api.POST("/approvals/:id/approve", h.Approve)
		api.POST("/approvals/:id/reject", h.Reject)

		admin := api.Group("/admin", adminOnly)
		admin.PUT("/users/:id", h.SaveUser)
		admin.PUT("/documents/:id", h.SaveDocument)
		admin.GET("/documents/:id", h.GetDocument)
		admin.POST("/grants/sweep", h.SweepGrants)
	}
}

// Start starts the HTTP server and blocks until ctx is done
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

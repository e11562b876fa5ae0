// Package api exposes certificate extraction and compliance analysis over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coi-compliance-server/internal/domain"
	"github.com/coi-compliance-server/internal/middleware"
)

// DocumentService is the extraction side of the API.
type DocumentService interface {
	ExtractText(text string) *domain.ExtractionResult
	CreateDocument(ctx context.Context, fileName, mimeType, text string, content []byte) (*domain.Document, error)
	GetDocument(ctx context.Context, documentID string) (*domain.Document, error)
	ProcessDocument(ctx context.Context, documentID string) (*domain.ExtractionResult, error)
}

// AnalysisService is the compliance side of the API.
type AnalysisService interface {
	Analyze(ctx context.Context, documentID, templateID string) (*domain.ComplianceAnalysis, error)
	AnalyzeExtraction(extraction *domain.ExtractionResult, template *domain.RequirementTemplate) (*domain.ComplianceAnalysis, error)
	GetAnalysis(ctx context.Context, id string) (*domain.ComplianceAnalysis, error)
	ListAnalyses(ctx context.Context, documentID string) ([]*domain.ComplianceAnalysis, error)
	ListTemplates(ctx context.Context) ([]*domain.RequirementTemplate, error)
	GetTemplate(ctx context.Context, id string) (*domain.RequirementTemplate, error)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	config     domain.ServerConfig
	logger     *logrus.Logger
	documents  DocumentService
	compliance AnalysisService
	checks     map[string]HealthChecker
	router     *gin.Engine
	server     *http.Server
	started    time.Time
}

// ServerOption configures optional server collaborators.
type ServerOption func(*Server)

// WithHealthCheck adds a named dependency to the /health report.
func WithHealthCheck(name string, check HealthChecker) ServerOption {
	return func(s *Server) {
		if check != nil {
			s.checks[name] = check
		}
	}
}

// NewServer creates a new HTTP server instance
func NewServer(config domain.ServerConfig, logger *logrus.Logger, documents DocumentService, compliance AnalysisService, opts ...ServerOption) *Server {
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.MaxBodySize(config.MaxUploadBytes))
	if config.WriteTimeout > 0 {
		router.Use(middleware.RequestTimeout(config.WriteTimeout))
	}
	if len(config.CORSOrigins) > 0 {
		router.Use(corsMiddleware(config.CORSOrigins))
	}

	s := &Server{
		config:     config,
		logger:     logger,
		documents:  documents,
		compliance: compliance,
		checks:     make(map[string]HealthChecker),
		router:     router,
		started:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/extract", s.handleExtract)
		v1.POST("/analyze", s.handleAnalyzeText)

		v1.GET("/templates", s.handleListTemplates)
		v1.GET("/templates/:id", s.handleGetTemplate)

		v1.POST("/documents", s.handleCreateDocument)
		v1.GET("/documents/:id", s.handleGetDocument)
		v1.POST("/documents/:id/process", s.handleProcessDocument)
		v1.POST("/documents/:id/analyses", s.handleAnalyzeDocument)
		v1.GET("/documents/:id/analyses", s.handleListAnalyses)

		v1.GET("/analyses/:id", s.handleGetAnalysis)
	}
}

// corsMiddleware adds CORS headers for the configured origins
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		allowed[origin] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed["*"] || allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Correlation-ID")
			c.Header("Access-Control-Expose-Headers", "X-Correlation-ID")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/coi-compliance-server/internal/cache"
	litecfg "github.com/coi-compliance-server/internal/config"
	"github.com/coi-compliance-server/internal/logging"
	"github.com/coi-compliance-server/internal/service"
	"github.com/coi-compliance-server/internal/store"
	"github.com/coi-compliance-server/pkg/certparse"
	"github.com/coi-compliance-server/pkg/external"
)

// Version is the server version reported to clients.
const Version = "v0.1.0"

// LiteServer is a standalone MCP server: SQLite for documents and analyses, YAML files for
// templates, an in-memory extraction cache, and stdio transport.
type LiteServer struct {
	config    *litecfg.LiteConfig
	mcpServer *mcp.Server
	store     *store.SQLStore
	templates *store.TemplateDirectory
	cache     *cache.ExtractionCache
	logger    *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	// stdout carries the protocol, so logs go to stderr
	server := &LiteServer{
		config: cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	sqlStore, err := store.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	server.store = sqlStore

	templates, err := store.NewTemplateDirectory(cfg.TemplateDir, server.logger)
	if err != nil {
		sqlStore.Close()
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	server.templates = templates

	server.cache = cache.New(cfg.CacheConfig(), nil, server.logger)

	extractionOpts := []service.ExtractionOption{service.WithExtractionCache(server.cache)}
	if cfg.VisionEnabled() {
		visionCfg := cfg.VisionConfig()
		vision := external.NewResilientVisionClient(external.NewVisionClient(visionCfg), visionCfg, server.logger)
		extractionOpts = append(extractionOpts, service.WithVision(vision))
	}

	extractor := certparse.NewExtractor()
	documents := service.NewExtractionService(server.logger, sqlStore, extractor, extractionOpts...)
	comparator := service.NewComparator(server.logger, nil, cfg.DefaultValidityDays)
	compliance := service.NewComplianceService(server.logger, sqlStore, templates, sqlStore, service.WithComparator(comparator))

	server.mcpServer = NewMCPServer(NewToolHandlers(server.logger, documents, compliance), Version)

	server.logger.WithFields(logrus.Fields{
		"data_dir":       cfg.DataDir,
		"template_dir":   cfg.TemplateDir,
		"vision_enabled": cfg.VisionEnabled(),
	}).Info("Lite server initialized successfully")
	return server, nil
}

// Start watches the template directory and serves MCP over stdio until ctx is done.
func (s *LiteServer) Start(ctx context.Context) error {
	if err := s.templates.Watch(ctx); err != nil {
		s.logger.WithError(err).Warn("Template hot reload disabled")
	}

	s.logger.Info("Starting COI compliance MCP server (lite) on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close store")
			return err
		}
	}
	return nil
}

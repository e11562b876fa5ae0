// Package config provides configuration management for the compliance servers.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/coi-compliance-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir     string // Base directory for data files
	TemplateDir string // Directory of YAML requirement templates

	// Cache settings
	CacheMaxItems int           // Maximum vision extractions kept in memory
	CacheTTL      time.Duration // Default cache TTL

	// Vision fallback for scanned certificates; disabled when no key is set
	VisionAPIKey  string
	VisionBaseURL string
	VisionModel   string
	VisionTimeout time.Duration

	// Comparison
	DefaultValidityDays int

	// Transport settings
	Transport string // Transport type: stdio, http
	HTTPPort  int    // HTTP port (if transport is http)

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".coi-compliance")

	return &LiteConfig{
		DataDir:             dataDir,
		TemplateDir:         filepath.Join(dataDir, "templates"),
		CacheMaxItems:       1000,
		CacheTTL:            24 * time.Hour,
		VisionTimeout:       60 * time.Second,
		DefaultValidityDays: 30,
		Transport:           "stdio",
		HTTPPort:            8080,
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("COI_DATA_DIR"); v != "" {
		cfg.DataDir = v
		cfg.TemplateDir = filepath.Join(v, "templates")
	}
	if v := os.Getenv("COI_TEMPLATE_DIR"); v != "" {
		cfg.TemplateDir = v
	}

	if v := os.Getenv("COI_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("COI_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	cfg.VisionAPIKey = os.Getenv("COI_VISION_API_KEY")
	cfg.VisionBaseURL = os.Getenv("COI_VISION_BASE_URL")
	cfg.VisionModel = os.Getenv("COI_VISION_MODEL")
	if v := os.Getenv("COI_VISION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.VisionTimeout = d
		}
	}

	if v := os.Getenv("COI_DEFAULT_VALIDITY_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.DefaultValidityDays = n
		}
	}

	if v := os.Getenv("COI_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("COI_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv("COI_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("COI_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// DatabasePath returns the path to the SQLite database.
func (c *LiteConfig) DatabasePath() string {
	return filepath.Join(c.DataDir, "coi.db")
}

// VisionEnabled reports whether scanned certificates can be sent to the vision model.
func (c *LiteConfig) VisionEnabled() bool {
	return c.VisionAPIKey != ""
}

// VisionConfig converts the lite vision settings to the shared client configuration.
func (c *LiteConfig) VisionConfig() domain.VisionConfig {
	return domain.VisionConfig{
		Enabled:    c.VisionEnabled(),
		BaseURL:    c.VisionBaseURL,
		APIKey:     c.VisionAPIKey,
		Model:      c.VisionModel,
		Timeout:    c.VisionTimeout,
		RateLimit:  5,
		RetryCount: 1,
	}
}

// CacheConfig returns a memory-only cache configuration.
func (c *LiteConfig) CacheConfig() domain.CacheConfig {
	return domain.CacheConfig{
		MemoryCap:  c.CacheMaxItems,
		DefaultTTL: c.CacheTTL,
	}
}

// EnsureDataDir creates the data and template directories if they don't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.TemplateDir, 0755)
}

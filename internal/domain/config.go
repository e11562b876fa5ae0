package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Vision      VisionConfig   `mapstructure:"vision"`
	Engine      EngineConfig   `mapstructure:"engine"`
	Templates   TemplateConfig `mapstructure:"templates"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig represents the vision extraction cache configuration
type CacheConfig struct {
	RedisURL     string        `mapstructure:"redis_url"`
	MemoryCap    int           `mapstructure:"memory_capacity"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	RedisEnabled bool          `mapstructure:"redis_enabled"`
}

// VisionConfig represents the vision model provider configuration
type VisionConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	MaxTokens  int           `mapstructure:"max_tokens"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RetryCount int           `mapstructure:"retry_count"`
}

// EngineConfig tunes extraction and comparison
type EngineConfig struct {
	WindowSize          int     `mapstructure:"window_size"`
	MinimumAmount       float64 `mapstructure:"minimum_amount"`
	DefaultValidityDays int     `mapstructure:"default_validity_days"`
}

// TemplateConfig points at the YAML requirement templates
type TemplateConfig struct {
	Directory string `mapstructure:"directory"`
	Watch     bool   `mapstructure:"watch"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

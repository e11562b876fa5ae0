package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/coi-compliance-server/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager. configFile may be empty, in which case
// config.yaml is searched for in the usual locations.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/coi-compliance-server/")
	}

	// COI_DATABASE_HOST overrides database.host, and so on
	v.SetEnvPrefix("COI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values. Every key needs a default so that
// AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.max_upload_bytes", 20<<20)
	v.SetDefault("server.cors_origins", []string{})

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "coi_compliance")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "migrations")

	// Cache defaults
	v.SetDefault("cache.redis_enabled", false)
	v.SetDefault("cache.redis_url", "redis://localhost:6379")
	v.SetDefault("cache.memory_capacity", 1000)
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Vision defaults
	v.SetDefault("vision.enabled", false)
	v.SetDefault("vision.base_url", "https://api.anthropic.com")
	v.SetDefault("vision.api_key", "")
	v.SetDefault("vision.model", "claude-sonnet-4-20250514")
	v.SetDefault("vision.max_tokens", 4096)
	v.SetDefault("vision.timeout", "60s")
	v.SetDefault("vision.rate_limit", 5)
	v.SetDefault("vision.retry_count", 1)

	// Engine defaults
	v.SetDefault("engine.window_size", 600)
	v.SetDefault("engine.minimum_amount", 10000)
	v.SetDefault("engine.default_validity_days", 30)

	// Template defaults
	v.SetDefault("templates.directory", "templates")
	v.SetDefault("templates.watch", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetVisionConfig returns the vision provider configuration
func (m *Manager) GetVisionConfig() *domain.VisionConfig {
	return &m.config.Vision
}

// GetEngineConfig returns extraction and comparison tuning
func (m *Manager) GetEngineConfig() *domain.EngineConfig {
	return &m.config.Engine
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}

	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if config.Cache.RedisEnabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when Redis is enabled")
	}

	if config.Vision.Enabled {
		if config.Vision.APIKey == "" {
			return fmt.Errorf("vision API key is required when vision is enabled")
		}
		if config.Vision.BaseURL == "" {
			return fmt.Errorf("vision base URL is required")
		}
	}

	if config.Engine.WindowSize <= 0 {
		return fmt.Errorf("invalid extraction window size: %d", config.Engine.WindowSize)
	}
	if config.Engine.MinimumAmount < 0 || config.Engine.DefaultValidityDays < 0 {
		return fmt.Errorf("engine thresholds must not be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManager(writeConfig(t, "environment: development\n"))
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(20<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, "coi_compliance", cfg.Database.Database)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, 1000, cfg.Cache.MemoryCap)
	assert.Equal(t, 24*time.Hour, cfg.Cache.DefaultTTL)
	assert.Equal(t, 60*time.Second, m.GetVisionConfig().Timeout)
	assert.Equal(t, 600, m.GetEngineConfig().WindowSize)
	assert.Equal(t, 30, m.GetEngineConfig().DefaultValidityDays)
	assert.Equal(t, "templates", cfg.Templates.Directory)
	assert.True(t, m.IsDevelopment())
	assert.False(t, m.IsProduction())

	assert.NoError(t, m.Validate())
}

func TestNewManager_FileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  port: 9000
database:
  host: db.internal
engine:
  default_validity_days: 14
vision:
  enabled: true
  api_key: from-file
`)
	t.Setenv("COI_DATABASE_PASSWORD", "s3cret")
	t.Setenv("COI_VISION_API_KEY", "from-env")

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 9000, m.GetServerConfig().Port)
	assert.Equal(t, "db.internal", m.GetDatabaseConfig().Host)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "from-env", cfg.Vision.APIKey)
	assert.Equal(t, 14, cfg.Engine.DefaultValidityDays)
	assert.True(t, m.IsProduction())
	assert.Contains(t, m.GetDatabaseConnectionString(), "host=db.internal port=5432")

	require.NoError(t, m.Validate())
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"Bad port", "server:\n  port: 70000\n", "invalid server port"},
		{"Vision without key", "vision:\n  enabled: true\n", "vision API key"},
		{"Bad log level", "logging:\n  level: loud\n", "invalid log level"},
		{"Missing database host", "database:\n  host: \"\"\n", "database host"},
		{"Bad window", "engine:\n  window_size: 0\n", "window size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(writeConfig(t, tt.content))
			require.NoError(t, err)

			err = m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManager_Reload(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8081\n")
	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, 8081, m.GetServerConfig().Port)

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8082\n"), 0o644))
	require.NoError(t, m.Reload())
	assert.Equal(t, 8082, m.GetServerConfig().Port)
}

func TestNewManager_MalformedFile(t *testing.T) {
	_, err := NewManager(writeConfig(t, "server: [\n"))
	assert.Error(t, err)
}

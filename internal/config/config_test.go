// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers env expansion, duration parsing, and required-field checks

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
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const validConfig = `
server:
  http_addr: "localhost:8080"
database:
  path: ":memory:"
auth:
  jwt_secret: "test-secret"
  agent_key: "agent-key"
agents:
  heartbeat_timeout: "90s"
  event_dedupe_ttl: "5m"
logging:
  level: "info"
  format: "text"
metrics:
  enabled: true
  path: "/metrics"
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Server.HTTPAddr)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "agent-key", cfg.Auth.AgentKey)
	assert.Equal(t, 90*time.Second, cfg.Agents.HeartbeatTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Agents.EventDedupeTTL)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("ORBIT_TEST_SECRET", "from-env")

	cfg, err := Load(writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: ":memory:"
auth:
  jwt_secret: "${ORBIT_TEST_SECRET}"
  agent_key: "agent-key"
`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  http_addr: "localhost:8080"
database:
  path: ":memory:"
auth:
  jwt_secret: "s"
  agent_key: "k"
agents:
  heartbeat_timeout: "ninety seconds"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeat_timeout")
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing http_addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret"},
		{"missing agent key", func(c *Config) { c.Auth.AgentKey = "" }, "auth.agent_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:   ServerConfig{HTTPAddr: "localhost:8080"},
				Database: DatabaseConfig{Path: ":memory:"},
				Auth:     AuthConfig{JWTSecret: "s", AgentKey: "k"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadTestConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Test server config
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 5*time.Second, cfg.Server.Timeout)

	// Test provider config
	assert.True(t, cfg.Providers.OpenAI.Enabled)
	assert.Equal(t, "test-key", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, 5.0, cfg.Providers.OpenAI.RequestsPerSecond)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Providers.OpenRouter.BaseURL)
	assert.Len(t, cfg.Providers.OpenRouter.HTTPHeaders, 2)

	// Test defaults and overrides
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "@every 5m", cfg.Cache.CleanupSchedule)
	assert.Equal(t, 30*time.Minute, cfg.RateLimit.BlockDuration)

	points, ok := cfg.RateLimit.PointsFor("codeReview")
	require.True(t, ok)
	assert.Equal(t, 25, points)

	_, ok = cfg.RateLimit.PointsFor("learning")
	assert.False(t, ok)

	assert.True(t, cfg.IsAdmin("admin-1"))
	assert.False(t, cfg.IsAdmin("user-1"))
}

func writeConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	dir := writeConfig(
		t, `
server:
  port: 9090
providers:
  openrouter:
    enabled: true
    api_key: or-key
`,
	)
	t.Setenv("CONFIG_PATH", dir)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "or-key", cfg.Providers.OpenRouter.APIKey)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := writeConfig(
		t, `
server:
  port: 8080
providers:
  openrouter:
    enabled: true
    api_key: or-key
ratelimit:
  points:
    codeReview: 1
  daily:
    codeReview: 500
`,
	)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{
				Port: 8080,
			},
			Providers: ProvidersConfig{
				OpenRouter: ProviderConfig{
					Enabled: true,
					APIKey:  "test-key",
				},
			},
			RateLimit: RateLimitConfig{Window: time.Hour},
		}
	}

	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{
			name:        "valid config",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid port",
			mutate:      func(c *Config) { c.Server.Port = -1 },
			expectError: true,
		},
		{
			name:        "no providers enabled",
			mutate:      func(c *Config) { c.Providers.OpenRouter.Enabled = false },
			expectError: true,
		},
		{
			name: "openai enabled without key",
			mutate: func(c *Config) {
				c.Providers.OpenAI.Enabled = true
			},
			expectError: true,
		},
		{
			name:        "unknown ledger driver",
			mutate:      func(c *Config) { c.Storage.Ledger = "mongo" },
			expectError: true,
		},
		{
			name:        "redis cache without redis",
			mutate:      func(c *Config) { c.Cache.Backend = "redis" },
			expectError: true,
		},
		{
			name: "redis rate limit store with redis",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.RateLimit.Store = "redis"
			},
			expectError: false,
		},
		{
			name: "daily ceiling above window refills",
			mutate: func(c *Config) {
				c.RateLimit.Points = map[string]int{"codereview": 2}
				c.RateLimit.Daily = map[string]int{"codereview": 49}
			},
			expectError: true,
		},
		{
			name: "daily ceiling within window refills",
			mutate: func(c *Config) {
				c.RateLimit.Points = map[string]int{"codereview": 2}
				c.RateLimit.Daily = map[string]int{"codereview": 48}
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				cfg := valid()
				tt.mutate(cfg)
				err := validateConfig(cfg)
				if tt.expectError {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
			},
		)
	}
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ATRIUM_POSTGRES_URL", "postgres://localhost/atrium?sslmode=disable")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Minute, cfg.Auth.MagicLinkTTL)
	assert.Equal(t, 90*24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ATRIUM_POSTGRES_URL", "postgres://localhost/atrium?sslmode=disable")
	t.Setenv("ATRIUM_PORT", "8181")
	t.Setenv("ATRIUM_MAGIC_LINK_TTL", "5m")
	t.Setenv("ATRIUM_COOKIE_SECURE", "true")
	t.Setenv("ATRIUM_POSTGRES_MAX_CONNS", "50")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Auth.MagicLinkTTL)
	assert.True(t, cfg.Auth.CookieSecure)
	assert.Equal(t, 50, cfg.Database.MaxConns)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing postgres URL",
			mutate:  func(c *Config) { c.Database.URL = "" },
			wantErr: "postgres URL is required",
		},
		{
			name:    "port collision",
			mutate:  func(c *Config) { c.Server.HealthPort = c.Server.Port },
			wantErr: "must be different",
		},
		{
			name:    "zero session TTL",
			mutate:  func(c *Config) { c.Auth.SessionTTL = 0 },
			wantErr: "session TTL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ATRIUM_POSTGRES_URL", "postgres://localhost/atrium?sslmode=disable")
			cfg, err := LoadConfig()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharingan/marketpulse/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", cfg.ModelIDDefault)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 2, cfg.RetryAttempts)
	assert.Equal(t, 45*time.Second, cfg.OrchestratorCeiling)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("MARKETPULSE_RETRY_ATTEMPTS", "5")
	t.Setenv("MARKETPULSE_CACHE_ENABLED", "false")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.RetryAttempts)
	assert.False(t, cfg.CacheEnabled)
}

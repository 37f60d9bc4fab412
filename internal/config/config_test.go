package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	require.Equal(t, "legacy", cfg.Search.Engine)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("HTTP_HOST", "0.0.0.0")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("AM_SEARCH_ENGINE", "shadow")
	t.Setenv("HTTP_RBAC_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	require.Equal(t, 9090, cfg.HTTP.Port)
	require.Equal(t, "shadow", cfg.Search.Engine)
	require.True(t, cfg.HTTP.RBACEnabled)
}

func TestLoadRejectsInvalidSearchEngine(t *testing.T) {
	t.Setenv("AM_SEARCH_ENGINE", "bogus")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("HTTP_PORT", "70000")
	_, err := Load()
	require.Error(t, err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
	assert.True(t, cfg.SeedParties)
	assert.Empty(t, cfg.LedgerRPCAddr)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loadblock.yaml")
	content := []byte("log_level: debug\nretry_attempts: 5\nledger_rpc_addr: http://localhost:26657\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.RetryAttempts)
	assert.Equal(t, "http://localhost:26657", cfg.LedgerRPCAddr)
	// untouched keys keep their defaults
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LOADBLOCK_LOG_LEVEL", "error")
	t.Setenv("LOADBLOCK_RETRY_ATTEMPTS", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, 7, cfg.RetryAttempts)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("LOADBLOCK_RETRY_ATTEMPTS", "0")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/loadblock.yaml")
	assert.Error(t, err)
}

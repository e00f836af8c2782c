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
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5.0, cfg.Engine.BridgeMarginPercent)
	assert.Equal(t, time.Minute, cfg.Engine.SweepInterval())
	assert.Equal(t, 24*time.Hour, cfg.Engine.OrderTTL())
	assert.Equal(t, 5*time.Minute, cfg.Engine.PendingTPSLTTL())
	assert.Equal(t, 30*time.Second, cfg.Engine.PriceCacheTTL())
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.ConfirmPollInterval())
	assert.Equal(t, 10*time.Second, cfg.Engine.ConfirmTimeout())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
engine:
  bridge_margin_percent: 2.5
  sweep_interval_sec: 30
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 2.5, cfg.Engine.BridgeMarginPercent)
	assert.Equal(t, 30*time.Second, cfg.Engine.SweepInterval())
	// Untouched fields keep their defaults
	assert.Equal(t, 24*time.Hour, cfg.Engine.OrderTTL())
}

func TestLoadRejectsInvalidMargin(t *testing.T) {
	path := writeConfig(t, `
engine:
  bridge_margin_percent: 100
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNegativeSlippage(t *testing.T) {
	path := writeConfig(t, `
engine:
  default_slippage: -1
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
`)
	t.Setenv("PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
}

package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9001
rules:
  strategy: no_big_moves
  expressions:
    no_big_moves: "action.lines_impacted.size() <= 1"
engine:
  rate_limit: 50
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9001", cfg.Server.Addr())
	assert.Equal(t, "no_big_moves", cfg.Rules.Strategy)
	assert.Equal(t, "action.lines_impacted.size() <= 1", cfg.Rules.Expressions["no_big_moves"])
	assert.Equal(t, 50.0, cfg.Engine.RateLimit)
	assert.Equal(t, 100, cfg.Engine.JournalBatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.JournalFlushInterval)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	path := writeConfig(t, "rules:\n  strategy: look_param\n")
	t.Setenv("RULES_STRATEGY", "default_rules")
	t.Setenv("AUTH_PUBLIC_KEY_DATA", "pem-data")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "default_rules", cfg.Rules.Strategy)
	assert.Equal(t, []byte("pem-data"), cfg.Auth.PublicKey)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 70000\n")
	_, err := LoadConfig(path)
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "engine:\n  journal_batch_size: 6554\n"))
	assert.ErrorContains(t, err, "journal_batch_size")

	cfg, err := LoadConfig(writeConfig(t, "engine:\n  journal_batch_size: 6553\n"))
	require.NoError(t, err)
	assert.Equal(t, MaxJournalBatchSize, cfg.Engine.JournalBatchSize)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = NewLogger(LoggerConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestStateKey(t *testing.T) {
	assert.Equal(t, "gridrules:env:case14:state", StateKey("case14"))
}

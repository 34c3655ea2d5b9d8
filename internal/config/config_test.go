package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detention.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
evalInterval: 15s
purgeAt: "03:30"
webhook:
  url: https://hooks.example.com/alerts
  maxAttempts: 4
`), 0o600))

	t.Setenv("PORT", "")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "")
	t.Setenv("EVAL_INTERVAL", "45s")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 45*time.Second, cfg.EvalInterval)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "https://hooks.example.com/alerts", cfg.Webhook.URL)
	assert.Equal(t, 4, cfg.Webhook.MaxAttempts)

	h, m, err := cfg.PurgeClock()
	require.NoError(t, err)
	assert.Equal(t, 3, h)
	assert.Equal(t, 30, m)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"PORT":                 "7000",
		"DB_MIGRATE":           "false",
		"RATE_RPS":             "2.5",
		"RATE_BURST":           "5",
		"WEBHOOK_MAX_ATTEMPTS": "3",
		"ALERT_WEBHOOK_SECRET": "s3cret",
	}))
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.False(t, cfg.DBMigrate)
	assert.Equal(t, 2.5, cfg.RateRPS)
	assert.Equal(t, 5, cfg.RateBurst)
	assert.Equal(t, 3, cfg.Webhook.MaxAttempts)
	assert.Equal(t, "s3cret", cfg.Webhook.Secret)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.applyEnv(envMap(map[string]string{"EVAL_INTERVAL": "soon"})))
	assert.Error(t, cfg.applyEnv(envMap(map[string]string{"RATE_BURST": "many"})))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.EvalInterval = 0
	cfg.PurgeAt = "25:99"
	cfg.LogFormat = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evalInterval")
	assert.Contains(t, err.Error(), "purgeAt")
	assert.Contains(t, err.Error(), "logFormat")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

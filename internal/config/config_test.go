package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "studio-ops.db", cfg.Store.DSN)
	assert.Equal(t, 3, cfg.Engine.MinEvidence)
	assert.Equal(t, 30, cfg.Engine.DecayDays)
	assert.Equal(t, 90, cfg.Engine.ValidationDays)
	assert.Equal(t, 24, cfg.Batch.Hours)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
store:
  driver: postgres
  dsn: postgres://localhost/studio
engine:
  min_evidence: 5
batch:
  hours: 48
  internal_domains:
    - ateliernorth.com
server:
  port: 9000
log:
  level: debug
  format: json
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644))
	chdir(t, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/studio", cfg.Store.DSN)
	assert.Equal(t, 5, cfg.Engine.MinEvidence)
	assert.Equal(t, 48, cfg.Batch.Hours)
	assert.Equal(t, []string{"ateliernorth.com"}, cfg.Batch.InternalDomains)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Unset sections keep their defaults.
	assert.Equal(t, 30, cfg.Engine.DecayDays)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
}

func TestLoadEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STUDIO_STORE_DRIVER", "postgres")
	t.Setenv("STUDIO_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestInitLogger(t *testing.T) {
	logger, err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

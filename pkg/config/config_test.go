package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Store.Zarr["path"] = "/data/store"
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, "zarr", cfg.Store.Type)
	assert.NotNil(t, cfg.Store.Zarr)
	assert.NotNil(t, cfg.Store.Hier)
}

func TestApplyDefaults_NormalizesLevel(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	ApplyDefaults(cfg)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(defaultConfig()))
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := defaultConfig()
	cfg.Logging.Level = "LOUD"
	assert.Error(t, Validate(cfg))
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := defaultConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, Validate(cfg))
}

func TestValidate_InvalidStoreType(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.Type = "postgres"
	assert.Error(t, Validate(cfg))
}

func TestValidate_ZarrRequiresPathOrBucket(t *testing.T) {
	cfg := defaultConfig()
	delete(cfg.Store.Zarr, "path")
	assert.Error(t, Validate(cfg))

	cfg.Store.Zarr["bucket"] = "my-bucket"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_HierRequiresPath(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.Type = "hier"
	assert.Error(t, Validate(cfg))

	cfg.Store.Hier["path"] = "/data/container.db"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_NegativeWorkers(t *testing.T) {
	cfg := defaultConfig()
	cfg.Reclaim.Workers = -1
	assert.Error(t, Validate(cfg))
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: json
store:
  type: hier
  hier:
    path: /data/container.db
reclaim:
  workers: 3
metrics:
  enabled: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "hier", cfg.Store.Type)
	assert.Equal(t, "/data/container.db", cfg.Store.Hier["path"])
	assert.Equal(t, 3, cfg.Reclaim.Workers)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_DefaultLocation(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	dir := filepath.Join(xdg, "gridstore")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
store:
  zarr:
    path: /data/store
`), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "zarr", cfg.Store.Type)
	assert.Equal(t, "/data/store", cfg.Store.Zarr["path"])
}

func TestGetDefaultConfigPath(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	assert.Equal(t, filepath.Join(xdg, "gridstore", "config.yaml"), GetDefaultConfigPath())
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: info
store:
  type: zarr
  zarr:
    path: /data/store
`), 0o644))

	t.Setenv("GRIDSTORE_LOGGING_LEVEL", "ERROR")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("frogs: [\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

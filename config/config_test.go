package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/archive-engine/archive"
	"github.com/warp/archive-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // no archive.yaml here

	cfg, err := config.Load(config.New(), "")

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, config.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "archive.db", cfg.Store.DSN)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, archive.DefaultOptions(), cfg.EngineOptions())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ARCHIVE_STORE_DRIVER", "Postgres")
	t.Setenv("ARCHIVE_STORE_DSN", "postgres://archive@db/archive")
	t.Setenv("ARCHIVE_STORE_TIMEOUT", "2s")
	t.Setenv("ARCHIVE_SEQUENCER_MAX_RETRIES", "9")
	t.Setenv("ARCHIVE_HTTP_PORT", "9000")

	cfg, err := config.Load(config.New(), "")

	require.NoError(t, err)
	assert.Equal(t, config.DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://archive@db/archive", cfg.Store.DSN)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 2*time.Second, cfg.EngineOptions().StoreTimeout)
	assert.Equal(t, 9, cfg.EngineOptions().MaxRetries)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: memory
  timeout: 250ms
sequencer:
  retry_backoff: 5ms
log:
  level: debug
`), 0o600))

	cfg, err := config.Load(config.New(), path)

	require.NoError(t, err)
	assert.Equal(t, config.DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.Timeout)
	assert.Equal(t, 5*time.Millisecond, cfg.Sequencer.RetryBackoff)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	_, err := config.Load(config.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := config.Config{
		HTTP:  config.HTTPConfig{Port: 8080},
		Store: config.StoreConfig{Driver: config.DriverSQLite, DSN: "a.db"},
	}
	require.NoError(t, valid.Validate())

	tests := map[string]func(c *config.Config){
		"unknown driver":   func(c *config.Config) { c.Store.Driver = "mysql" },
		"missing dsn":      func(c *config.Config) { c.Store.DSN = "" },
		"bad port":         func(c *config.Config) { c.HTTP.Port = 70000 },
		"negative retries": func(c *config.Config) { c.Sequencer.MaxRetries = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	memory := valid
	memory.Store = config.StoreConfig{Driver: config.DriverMemory}
	assert.NoError(t, memory.Validate())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

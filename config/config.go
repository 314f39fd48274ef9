// Package config loads engine configuration with Viper.
//
// Precedence, lowest first: built-in defaults, an optional archive.yaml,
// ARCHIVE_* environment variables (ARCHIVE_STORE_DSN overrides store.dsn).
// The three historical deployments (operator laptop, shared server, cloud)
// differ only in these values.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/warp/archive-engine/archive"
)

const (
	envPrefix      = "ARCHIVE"
	configFileName = "archive"
	configFileType = "yaml"

	keyPort           = "http.port"
	keyAllowedOrigins = "http.allowed_origins"
	keyDriver         = "store.driver"
	keyDSN            = "store.dsn"
	keyStoreTimeout   = "store.timeout"
	keyMaxRetries     = "sequencer.max_retries"
	keyRetryBackoff   = "sequencer.retry_backoff"
	keyLogLevel       = "log.level"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the resolved configuration.
type Config struct {
	HTTP      HTTPConfig
	Store     StoreConfig
	Sequencer SequencerConfig
	LogLevel  string
}

type HTTPConfig struct {
	Port           int
	AllowedOrigins []string
}

type StoreConfig struct {
	Driver  string
	DSN     string
	Timeout time.Duration
}

type SequencerConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// EngineOptions converts the store and sequencer settings for archive.NewEngine.
func (c Config) EngineOptions() archive.Options {
	return archive.Options{
		StoreTimeout: c.Store.Timeout,
		MaxRetries:   c.Sequencer.MaxRetries,
		RetryBackoff: c.Sequencer.RetryBackoff,
	}
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver != DriverMemory && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", c.HTTP.Port)
	}
	if c.Sequencer.MaxRetries < 0 {
		return errors.New("sequencer.max_retries must not be negative")
	}
	return nil
}

// New returns a Viper instance with defaults and env binding set up.
func New() *viper.Viper {
	defaults := archive.DefaultOptions()

	v := viper.New()
	v.SetDefault(keyPort, 8080)
	v.SetDefault(keyAllowedOrigins, []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault(keyDriver, DriverSQLite)
	v.SetDefault(keyDSN, "archive.db")
	v.SetDefault(keyStoreTimeout, defaults.StoreTimeout)
	v.SetDefault(keyMaxRetries, defaults.MaxRetries)
	v.SetDefault(keyRetryBackoff, defaults.RetryBackoff)
	v.SetDefault(keyLogLevel, "info")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration. path may name a config file; when empty,
// archive.yaml is looked up in the working directory and a missing file is
// not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		HTTP: HTTPConfig{
			Port:           v.GetInt(keyPort),
			AllowedOrigins: v.GetStringSlice(keyAllowedOrigins),
		},
		Store: StoreConfig{
			Driver:  strings.ToLower(v.GetString(keyDriver)),
			DSN:     v.GetString(keyDSN),
			Timeout: v.GetDuration(keyStoreTimeout),
		},
		Sequencer: SequencerConfig{
			MaxRetries:   v.GetInt(keyMaxRetries),
			RetryBackoff: v.GetDuration(keyRetryBackoff),
		},
		LogLevel: v.GetString(keyLogLevel),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

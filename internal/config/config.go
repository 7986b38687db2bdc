package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Global settings
	Format  string `mapstructure:"format"`
	Level   string `mapstructure:"level"`
	Quiet   bool   `mapstructure:"quiet"`
	Verbose bool   `mapstructure:"verbose"`

	Store StoreConfig `mapstructure:"store"`
	Relay RelayConfig `mapstructure:"relay"`
}

// StoreConfig locates the SQLite database
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// RelayConfig tunes peer delivery
type RelayConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	OutboxLimit  int           `mapstructure:"outbox_limit"`
}

// DefaultStorePath is dbgsync.db under the user config directory, or in the
// working directory when that is unknown.
func DefaultStorePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "dbgsync", "dbgsync.db")
	}
	return "dbgsync.db"
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Format:  "ndjson",
		Level:   "info",
		Quiet:   false,
		Verbose: false,
		Store: StoreConfig{
			Path: DefaultStorePath(),
		},
		Relay: RelayConfig{
			MaxAttempts:  3,
			RetryBackoff: 100 * time.Millisecond,
			OutboxLimit:  256,
		},
	}
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("dbgsync")
	v.SetConfigType("yaml")

	// Lowest precedence first
	v.AddConfigPath("/etc/dbgsync/")
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "dbgsync"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("DBGSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("format", "DBGSYNC_FORMAT")
	_ = v.BindEnv("level", "DBGSYNC_LEVEL")
	_ = v.BindEnv("quiet", "DBGSYNC_QUIET")
	_ = v.BindEnv("verbose", "DBGSYNC_VERBOSE")
	_ = v.BindEnv("store.path", "DBGSYNC_STORE", "DBGSYNC_STORE_PATH")

	cfg := Default()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// No dbgsync.yaml; try .dbgsyncrc before falling back to defaults
		v.SetConfigName(".dbgsyncrc")
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("format", cfg.Format)
	v.SetDefault("level", cfg.Level)
	v.SetDefault("quiet", cfg.Quiet)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("relay.max_attempts", cfg.Relay.MaxAttempts)
	v.SetDefault("relay.retry_backoff", cfg.Relay.RetryBackoff)
	v.SetDefault("relay.outbox_limit", cfg.Relay.OutboxLimit)
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigFile returns the path to the config file Load would use, or "".
func ConfigFile() string {
	v := viper.New()
	v.SetConfigType("yaml")
	if configDir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(configDir, "dbgsync"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath(".")

	for _, name := range []string{"dbgsync", ".dbgsyncrc"} {
		v.SetConfigName(name)
		if err := v.ReadInConfig(); err == nil {
			return v.ConfigFileUsed()
		}
	}
	return ""
}

// Package config loads tickctl configuration from the user config file and
// TICKCTL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Poll    PollConfig    `mapstructure:"poll"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Auth    AuthConfig    `mapstructure:"auth"`
	History HistoryConfig `mapstructure:"history"`
	Log     LogConfig     `mapstructure:"log"`
}

// APIConfig locates the backend.
type APIConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout returns the request timeout as a duration.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// PollConfig controls the job poller cadence.
type PollConfig struct {
	IntervalMS int `mapstructure:"interval_ms"`
}

// Interval returns the poll interval as a duration.
func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMS) * time.Millisecond
}

// CacheConfig bounds the plan comparison cache.
type CacheConfig struct {
	TTLMinutes int `mapstructure:"ttl_minutes"`
	MaxEntries int `mapstructure:"max_entries"`
}

// TTL returns the cache entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// AuthConfig carries environment-provided default credentials. Credentials
// set here are immutable: a 401 or an explicit logout cannot clear them.
type AuthConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// HistoryConfig locates the local job-history database.
type HistoryConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug | info | warn | error
}

// Dir returns the tickctl user config directory, creating it if needed.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	dir := filepath.Join(base, "tickctl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// Load reads the configuration. When configPath is empty the default
// location (<user config dir>/tickctl/config.yaml) is used; a missing file
// is not an error, defaults and environment still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("poll.interval_ms", 3000)
	v.SetDefault("cache.ttl_minutes", 30)
	v.SetDefault("cache.max_entries", 50)
	v.SetDefault("log.level", "info")

	// Declared so AutomaticEnv can populate them without a config file.
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password", "")

	if dir, err := Dir(); err == nil {
		v.SetDefault("history.db_path", filepath.Join(dir, "history.db"))
	}

	v.SetEnvPrefix("TICKCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	} else {
		if dir, err := Dir(); err == nil {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath(dir)
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("read config: %w", err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

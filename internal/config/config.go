package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is loaded from config.yaml with env overrides for secrets. The
// remote DSN is the one genuinely optional piece: without it the tracker is
// a purely local, offline application.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Remote RemoteConfig `mapstructure:"remote"`
	Sync   SyncConfig   `mapstructure:"sync"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug/release/test
}

type StoreConfig struct {
	Path string `mapstructure:"path"` // local cache directory
}

type RemoteConfig struct {
	DSN string `mapstructure:"dsn"`
}

type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Enabled  bool          `mapstructure:"enabled"`
}

// Load reads .env (if present), then config.yaml, then applies env
// overrides. A missing config file is fine; defaults carry a local-only
// setup.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("store.path", "./data/localstore")
	viper.SetDefault("sync.interval", time.Minute)
	viper.SetDefault("sync.enabled", true)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if v := os.Getenv("REMOTE_DSN"); v != "" {
		cfg.Remote.DSN = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	return &cfg, nil
}

// RemoteConfigured gates every sync operation: false means the engine runs
// local-only and remote calls short-circuit with a "not configured" result.
func (c *Config) RemoteConfigured() bool {
	return c.Remote.DSN != ""
}

// Package config loads server and store settings from a config file, the
// environment and defaults, in that order of precedence after flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "FREESYNC"

type Config struct {
	Server struct {
		Host    string `mapstructure:"host"`
		Port    int    `mapstructure:"port"`
		Workers int    `mapstructure:"workers"`
	} `mapstructure:"server"`

	Log struct {
		Level string `mapstructure:"level"` // debug, info, warn, error
		File  string `mapstructure:"file"`
		Echo  bool   `mapstructure:"echo"`
	} `mapstructure:"log"`

	Store struct {
		CacheSize int  `mapstructure:"cache_size"`
		Journal   bool `mapstructure:"journal"`
	} `mapstructure:"store"`
}

// Address is the listen address of the server.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// New returns a viper instance with defaults and environment binding set
// up. Flags may be bound to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 25565)
	v.SetDefault("server.workers", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "./logs/server.log")
	v.SetDefault("log.echo", true)
	v.SetDefault("store.cache_size", 1024)
	v.SetDefault("store.journal", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path into v. Without a path it looks for
// freesync.yaml in the working directory and falls back to defaults when
// there is none.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("freesync")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Workers < 1 {
		return fmt.Errorf("server.workers must be at least 1, got %d", c.Server.Workers)
	}
	if c.Store.CacheSize < 0 {
		return fmt.Errorf("store.cache_size must not be negative, got %d", c.Store.CacheSize)
	}
	return nil
}

// Package config loads parallelcache's runtime configuration, adapted
// from internal/cmd/root.go's viper wiring: a YAML config file searched
// in the current directory, overridable by environment variables under
// the PARALLELCACHE_ prefix and by CLI flags bound through cobra.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the subset of runtime knobs the driver, backend, and cache
// packages need but don't hardcode.
type Config struct {
	// PollInterval is how often the driver polls the backend for batch
	// completion during COMPUTING.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// CacheDriver selects the cache.Oracle implementation: "memory" or
	// "sqlite".
	CacheDriver string `mapstructure:"cache_driver"`

	// CachePath is the SQLite database path, used when CacheDriver is
	// "sqlite".
	CachePath string `mapstructure:"cache_path"`

	// Backend selects the backend.Backend implementation: "pool" or
	// "inline".
	Backend string `mapstructure:"backend"`

	// PoolSize bounds concurrency for the "pool" backend.
	PoolSize int `mapstructure:"pool_size"`
}

// defaults holds the fallback values Load registers with viper, used for
// any field that neither the config file nor the environment sets.
func defaults() *Config {
	return &Config{
		PollInterval: 50 * time.Millisecond,
		CacheDriver:  "memory",
		CachePath:    "parallelcache.db",
		Backend:      "pool",
		PoolSize:     4,
	}
}

// Load reads cfgFile (if non-empty) or searches the current directory for
// parallelcache.yaml, then overlays PARALLELCACHE_-prefixed environment
// variables, and unmarshals the result over the package defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("parallelcache")
	}

	v.SetEnvPrefix("PARALLELCACHE")
	v.AutomaticEnv()

	cfg := defaults()
	v.SetDefault("poll_interval", cfg.PollInterval)
	v.SetDefault("cache_driver", cfg.CacheDriver)
	v.SetDefault("cache_path", cfg.CachePath)
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("pool_size", cfg.PoolSize)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return cfg, nil
}

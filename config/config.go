// Package config loads the engine's tunables — buffer pool size, LRU-K's
// K, and the deadlock detector's tick interval — from a YAML file or
// environment variables via viper, the config library the rest of the
// retrieval pack's storage engines (tuannm99-novasql, ValentinKolb-dKV)
// use for the same purpose.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds every knob the Buffer Pool Manager, LRU-K Replacer and
// Lock Manager need at construction time.
type Config struct {
	Buffer struct {
		PoolSize int `mapstructure:"pool_size"`
		LRUK     int `mapstructure:"lru_k"`
	} `mapstructure:"buffer"`

	Index struct {
		LeafMaxSize     int `mapstructure:"leaf_max_size"`
		InternalMaxSize int `mapstructure:"internal_max_size"`
	} `mapstructure:"index"`

	Lock struct {
		DeadlockDetectionIntervalMs int `mapstructure:"deadlock_detection_interval_ms"`
	} `mapstructure:"lock"`

	DBFile string `mapstructure:"db_file"`
}

// DeadlockDetectionInterval is the Lock field above as a time.Duration.
func (c Config) DeadlockDetectionInterval() time.Duration {
	return time.Duration(c.Lock.DeadlockDetectionIntervalMs) * time.Millisecond
}

// Default returns the engine's built-in defaults, used when no config
// file is given.
func Default() Config {
	var c Config
	c.Buffer.PoolSize = 64
	c.Buffer.LRUK = 2
	c.Index.LeafMaxSize = 32
	c.Index.InternalMaxSize = 32
	c.Lock.DeadlockDetectionIntervalMs = 50
	c.DBFile = "petro.db"
	return c
}

// Load reads path (YAML) and overlays it onto the defaults; env vars
// prefixed PETRO_ (e.g. PETRO_BUFFER_POOL_SIZE) override both. An empty
// path skips the file read and returns the defaults plus env overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("PETRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper knows about, so register every key
	// (with its default) for the env lookup to apply to it.
	v.SetDefault("buffer.pool_size", cfg.Buffer.PoolSize)
	v.SetDefault("buffer.lru_k", cfg.Buffer.LRUK)
	v.SetDefault("index.leaf_max_size", cfg.Index.LeafMaxSize)
	v.SetDefault("index.internal_max_size", cfg.Index.InternalMaxSize)
	v.SetDefault("lock.deadlock_detection_interval_ms", cfg.Lock.DeadlockDetectionIntervalMs)
	v.SetDefault("db_file", cfg.DBFile)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, errors.Wrap(err, "reading config file")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "unmarshaling config")
	}
	return cfg, nil
}

// Package config loads pool, logging and metrics settings from defaults, an
// optional config file and FORKJOIN_* environment variables.
package config

import (
	"io"
	"strings"
	"time"

	"github.com/Swind/go-forkjoin/core"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// FORKJOIN_POOL_WORKERS for pool.workers.
const EnvPrefix = "FORKJOIN"

// Config holds all configuration for a forkjoin process
type Config struct {
	Pool    PoolConfig    `mapstructure:"pool"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// PoolConfig controls the worker pool
type PoolConfig struct {
	// ID names the pool in logs and metrics
	ID string `mapstructure:"id"`
	// Workers is the worker count; -1 means one per CPU
	Workers             int  `mapstructure:"workers"`
	OrphanQueueCapacity int  `mapstructure:"orphan_queue_capacity"`
	ChildQueueCapacity  int  `mapstructure:"child_queue_capacity"`
	LockOSThread        bool `mapstructure:"lock_os_thread"`
	HistoryCapacity     int  `mapstructure:"history_capacity"`
}

// LoggingConfig controls the logrus backend
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format is text or json
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Namespace    string        `mapstructure:"namespace"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Pool: PoolConfig{
			ID:                  "forkjoin",
			Workers:             -1,
			OrphanQueueCapacity: core.DefaultOrphanQueueCapacity,
			ChildQueueCapacity:  core.DefaultChildQueueCapacity,
			HistoryCapacity:     core.DefaultHistoryCapacity,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr:         ":9090",
			Namespace:    "forkjoin",
			PollInterval: time.Second,
		},
	}
}

// SetDefaults registers every key with its default so that environment
// variables and Unmarshal see the full key set.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	// Pool defaults
	v.SetDefault("pool.id", defaults.Pool.ID)
	v.SetDefault("pool.workers", defaults.Pool.Workers)
	v.SetDefault("pool.orphan_queue_capacity", defaults.Pool.OrphanQueueCapacity)
	v.SetDefault("pool.child_queue_capacity", defaults.Pool.ChildQueueCapacity)
	v.SetDefault("pool.lock_os_thread", defaults.Pool.LockOSThread)
	v.SetDefault("pool.history_capacity", defaults.Pool.HistoryCapacity)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	// Metrics defaults
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
	v.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
	v.SetDefault("metrics.poll_interval", defaults.Metrics.PollInterval)
}

// NewViper returns a viper instance with defaults and environment binding.
// When configFile is set it is read as well; its type follows the extension
// (yaml, toml, json).
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	// FORKJOIN_POOL_WORKERS for pool.workers
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading configuration file %q", configFile)
		}
	}
	return v, nil
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding configuration")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// LoadFile is NewViper followed by Load
func LoadFile(configFile string) (*Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	return Load(v)
}

// NewLogger builds the logrus-backed core.Logger described by c.
func (c LoggingConfig) NewLogger(out io.Writer) core.Logger {
	if c.Format != "json" {
		return core.NewLogrusLogger(c.Level, out)
	}

	log := logrus.New()
	if lvl, err := logrus.ParseLevel(c.Level); err == nil {
		log.SetLevel(lvl)
	}
	log.SetFormatter(&logrus.JSONFormatter{})
	if out != nil {
		log.SetOutput(out)
	}
	return core.WrapLogrus(log)
}

// ToPoolConfig converts c into a core.PoolConfig. Nil handlers fall back to
// the pool defaults.
func (c PoolConfig) ToPoolConfig(logger core.Logger, metrics core.Metrics) *core.PoolConfig {
	return &core.PoolConfig{
		ID:                  c.ID,
		Workers:             c.Workers,
		OrphanQueueCapacity: c.OrphanQueueCapacity,
		ChildQueueCapacity:  c.ChildQueueCapacity,
		LockOSThread:        c.LockOSThread,
		HistoryCapacity:     c.HistoryCapacity,
		Logger:              logger,
		Metrics:             metrics,
	}
}

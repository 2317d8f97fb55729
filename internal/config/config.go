// Package config loads the taskgraph CLI configuration from defaults, an
// optional YAML file, TASKGRAPH_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Swind/go-task-graph/core"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. TASKGRAPH_WORKERS.
const EnvPrefix = "TASKGRAPH"

// Config is the fully merged CLI configuration.
type Config struct {
	Workers            int           `yaml:"workers"`
	LocalQueueCapacity int           `yaml:"local-queue-capacity"`
	IdlePark           time.Duration `yaml:"idle-park"`
	FIFO               bool          `yaml:"fifo"`
	HistoryCapacity    int           `yaml:"history-capacity"`
	ShutdownTimeout    time.Duration `yaml:"shutdown-timeout"`

	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig controls the CLI logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr         string        `yaml:"addr"`
	Namespace    string        `yaml:"namespace"`
	PollInterval time.Duration `yaml:"poll-interval"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"workers":          "workers",
	"fifo":             "fifo",
	"shutdown-timeout": "shutdown-timeout",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"log-file":         "log.file",
	"metrics-addr":     "metrics.addr",
}

// New returns a viper instance preloaded with defaults and environment
// bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("workers", 0)
	v.SetDefault("local-queue-capacity", 256)
	v.SetDefault("idle-park", 2*time.Millisecond)
	v.SetDefault("fifo", false)
	v.SetDefault("history-capacity", 100)
	v.SetDefault("shutdown-timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max-size-mb", 100)
	v.SetDefault("log.max-backups", 3)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.namespace", "taskgraph")
	v.SetDefault("metrics.poll-interval", 5*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds every flag in fs that has a config key. Flags that are
// absent from fs are skipped, so subcommands can bind their own subset.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}

// Load reads path (if non-empty) into v and decodes the merged result.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error while reading the config file: %w", err)
		}
	}

	var c Config
	err := v.Unmarshal(&c, viper.DecodeHook(DecodeHook()), func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	if err != nil {
		return Config{}, fmt.Errorf("error while unmarshaling the config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// DecodeHook converts strings from files, env and flags into typed fields.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// Validate rejects values the scheduler cannot use.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	if c.LocalQueueCapacity < 0 {
		errs = append(errs, fmt.Errorf("local-queue-capacity must be >= 0, got %d", c.LocalQueueCapacity))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must be >= 0, got %s", c.ShutdownTimeout))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// PoolConfig maps the scheduler settings onto a core.PoolConfig. Zero
// values fall back to the core defaults.
func (c Config) PoolConfig(id string, logger core.Logger, metrics core.Metrics) *core.PoolConfig {
	return &core.PoolConfig{
		ID:                 id,
		Workers:            c.Workers,
		LocalQueueCapacity: c.LocalQueueCapacity,
		IdlePark:           c.IdlePark,
		FIFOInjector:       c.FIFO,
		HistoryCapacity:    c.HistoryCapacity,
		Logger:             logger,
		Metrics:            metrics,
	}
}

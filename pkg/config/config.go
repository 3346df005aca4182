// Package config loads the engine configuration from a YAML file, with
// CALLPATH_* environment overrides (CALLPATH_DATABASE_TYPE sets
// database.type).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/callpath-core/pkg/errors"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "CALLPATH"

// Config is the root of the configuration tree.
type Config struct {
	Channel  ChannelConfig  `mapstructure:"channel"`
	Reduce   ReduceConfig   `mapstructure:"reduce"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Trace    TraceConfig    `mapstructure:"trace"`
	Log      LogConfig      `mapstructure:"log"`
}

// ChannelConfig sizes the producer/consumer channels and paces the monitor.
type ChannelConfig struct {
	SlabSize     int `mapstructure:"slab_size"`     // records per arena slab
	MaxItems     int `mapstructure:"max_items"`     // 0 = unbounded
	PollInterval int `mapstructure:"poll_interval"` // milliseconds
	WakeBuffer   int `mapstructure:"wake_buffer"`
}

// PollDuration returns PollInterval as a duration.
func (c ChannelConfig) PollDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}

type ReduceConfig struct {
	MaxWorkers     int     `mapstructure:"max_workers"`
	PruneThreshold float64 `mapstructure:"prune_threshold"` // percent of the root, 0 disables
	ExportDir      string  `mapstructure:"export_dir"`
}

// DatabaseConfig locates the run and trace database.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite, postgres or mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"` // file path for sqlite
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig selects where exported profiles are uploaded. Backend
// specific checks live in the storage package.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // local or cos
	LocalPath string `mapstructure:"local_path"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`
	Scheme    string `mapstructure:"scheme"`
}

// TraceConfig controls persistence of attributed activity records.
type TraceConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	BatchSize int  `mapstructure:"batch_size"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text or json
	OutputPath string `mapstructure:"output_path"`
}

var defaults = map[string]any{
	"channel.slab_size":      256,
	"channel.max_items":      0,
	"channel.poll_interval":  10,
	"channel.wake_buffer":    1,
	"reduce.max_workers":     4,
	"reduce.prune_threshold": 0.0,
	"reduce.export_dir":      "./profiles",
	"database.type":          "sqlite",
	"database.database":      "callpath.db",
	"database.host":          "localhost",
	"database.port":          5432,
	"database.max_conns":     10,
	"storage.type":           "local",
	"storage.local_path":     "./storage",
	"trace.enabled":          false,
	"trace.batch_size":       128,
	"log.level":              "info",
	"log.format":             "text",
	"log.output_path":        "",
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, or config.yaml from ., ./configs or /etc/callpath when
// path is empty. A missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/callpath")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(apperrors.CodeConfigError, "read config", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "invalid config", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("config: bad defaults: %v", err))
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "decode config", err)
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Channel.SlabSize >= 1, "channel.slab_size must be at least 1")
	check(c.Channel.MaxItems >= 0, "channel.max_items must not be negative")
	check(c.Channel.PollInterval >= 1, "channel.poll_interval must be at least 1ms")
	check(c.Reduce.MaxWorkers >= 1, "reduce.max_workers must be at least 1")
	check(c.Reduce.PruneThreshold >= 0 && c.Reduce.PruneThreshold <= 100,
		"reduce.prune_threshold %v outside [0, 100]", c.Reduce.PruneThreshold)
	check(c.Trace.BatchSize >= 1, "trace.batch_size must be at least 1")

	switch c.Database.Type {
	case "sqlite", "sqlite3":
		check(c.Database.Database != "", "database.database: sqlite path is required")
	case "postgres", "postgresql", "mysql":
		check(c.Database.Host != "", "database.host is required for %s", c.Database.Type)
	default:
		errs = append(errs, fmt.Errorf("database.type: unsupported database type %q", c.Database.Type))
	}
	return errors.Join(errs...)
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/viant/vecdensity/density"
	"github.com/viant/vecdensity/index"
	"github.com/viant/vecdensity/vector"
)

// Config holds all application configuration.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Density DensityConfig `mapstructure:"density"`
	Log     LogConfig     `mapstructure:"log"`
}

type StoreConfig struct {
	DSN         string `mapstructure:"dsn"`
	Collection  string `mapstructure:"collection"`
	Metric      string `mapstructure:"metric"`
	Index       string `mapstructure:"index"`
	Parallelism int    `mapstructure:"parallelism"`
	// IndexCacheSize bounds the in-memory index cache, in collections.
	IndexCacheSize int `mapstructure:"index_cache_size"`
	// CompressionThreshold is the artifact size in bytes from which blobs
	// are zstd-compressed; 0 disables compression.
	CompressionThreshold int `mapstructure:"compression_threshold"`
}

type DensityConfig struct {
	Neighborhood int `mapstructure:"neighborhood"`
	Bins         int `mapstructure:"bins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.dsn", "vecdensity.db")
	v.SetDefault("store.collection", "default")
	v.SetDefault("store.metric", string(index.MetricL2))
	v.SetDefault("store.index", vector.IndexAuto)
	v.SetDefault("store.parallelism", 0)
	v.SetDefault("store.index_cache_size", vector.DefaultIndexCacheSize)
	v.SetDefault("store.compression_threshold", vector.DefaultCompressionThreshold)
	v.SetDefault("density.neighborhood", density.DefaultNeighborhood)
	v.SetDefault("density.bins", density.DefaultBins)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is empty"))
	}
	if c.Store.Collection == "" {
		errs = append(errs, errors.New("store.collection is empty"))
	}
	if _, err := index.ParseMetric(c.Store.Metric); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Index {
	case vector.IndexAuto, vector.IndexBrute, vector.IndexCover:
	default:
		errs = append(errs, fmt.Errorf("store.index %q is not one of auto, brute, cover", c.Store.Index))
	}
	if c.Store.IndexCacheSize < 1 {
		errs = append(errs, fmt.Errorf("store.index_cache_size %d must be positive", c.Store.IndexCacheSize))
	}
	if c.Store.CompressionThreshold < 0 {
		errs = append(errs, fmt.Errorf("store.compression_threshold %d must not be negative", c.Store.CompressionThreshold))
	}
	if c.Density.Neighborhood < 1 {
		errs = append(errs, fmt.Errorf("density.neighborhood %d must be positive", c.Density.Neighborhood))
	}
	if c.Density.Bins < 1 {
		errs = append(errs, fmt.Errorf("density.bins %d must be positive", c.Density.Bins))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Load reads configuration from v, which may already carry bound flags,
// merging the optional config file at path and VECDENSITY_* environment
// variables over the defaults.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix("VECDENSITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

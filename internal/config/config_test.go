package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "vecdensity.db", cfg.Store.DSN)
	assert.Equal(t, "default", cfg.Store.Collection)
	assert.Equal(t, "l2", cfg.Store.Metric)
	assert.Equal(t, "auto", cfg.Store.Index)
	assert.Equal(t, 64, cfg.Store.IndexCacheSize)
	assert.Equal(t, 4096, cfg.Store.CompressionThreshold)
	assert.Equal(t, 10, cfg.Density.Neighborhood)
	assert.Equal(t, 100, cfg.Density.Bins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vecdensity.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  dsn: /tmp/x.db
  collection: docs
  metric: cosine
density:
  neighborhood: 5
  bins: 20
log:
  format: json
`), 0o644))
	t.Setenv("VECDENSITY_DENSITY_BINS", "40")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.Store.DSN)
	assert.Equal(t, "docs", cfg.Store.Collection)
	assert.Equal(t, "cosine", cfg.Store.Metric)
	assert.Equal(t, 5, cfg.Density.Neighborhood)
	assert.Equal(t, 40, cfg.Density.Bins)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store:   StoreConfig{DSN: "x.db", Collection: "c", Metric: "l2", Index: "auto", IndexCacheSize: 8},
			Density: DensityConfig{Neighborhood: 10, Bins: 100},
			Log:     LogConfig{Level: "info", Format: "text"},
		}
	}
	require.NoError(t, valid().Validate())

	testCases := []struct {
		name   string
		mutate func(*Config)
		expect string
	}{
		{name: "metric", mutate: func(c *Config) { c.Store.Metric = "hamming" }, expect: "metric"},
		{name: "index", mutate: func(c *Config) { c.Store.Index = "hnsw" }, expect: "store.index"},
		{name: "neighborhood", mutate: func(c *Config) { c.Density.Neighborhood = 0 }, expect: "density.neighborhood"},
		{name: "bins", mutate: func(c *Config) { c.Density.Bins = -1 }, expect: "density.bins"},
		{name: "format", mutate: func(c *Config) { c.Log.Format = "xml" }, expect: "log.format"},
		{name: "cache", mutate: func(c *Config) { c.Store.IndexCacheSize = 0 }, expect: "store.index_cache_size"},
		{name: "compression", mutate: func(c *Config) { c.Store.CompressionThreshold = -1 }, expect: "store.compression_threshold"},
		{name: "dsn", mutate: func(c *Config) { c.Store.DSN = "" }, expect: "store.dsn"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expect)
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 2048, cfg.Cache.MinTokens)
	assert.Equal(t, 4, cfg.Cache.CharsPerToken)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 100, cfg.Engine.MaxSteps)
	assert.False(t, cfg.UsesRedis())
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	l := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml"))
	l.lookupEnv = envMap(nil)

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoader_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contentflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
store:
  backend: sqlite
  path: /var/lib/contentflow/threads.db
cache:
  ttl: 30m
llm:
  provider: openai
  tiers:
    standard: gpt-4o-mini
    advanced: gpt-4o
`), 0o644))

	l := NewLoader().WithConfigPath(path)
	l.lookupEnv = envMap(map[string]string{
		"CONTENTFLOW_STORE_BACKEND":    "redis",
		"CONTENTFLOW_REDIS_DB":         "3",
		"CONTENTFLOW_CACHE_ENABLED":    "false",
		"CONTENTFLOW_ENGINE_MAX_STEPS": "40",
		"CONTENTFLOW_RUNLOG_TTL":       "72h",
	})

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "redis", cfg.Store.Backend, "env wins over file")
	assert.Equal(t, "/var/lib/contentflow/threads.db", cfg.Store.Path)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 72*time.Hour, cfg.RunLog.TTL)
	assert.Equal(t, 40, cfg.Engine.MaxSteps)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Tiers["advanced"])
	assert.True(t, cfg.UsesRedis())
}

func TestLoader_BadEnvValue(t *testing.T) {
	l := NewLoader()
	l.lookupEnv = envMap(map[string]string{"CONTENTFLOW_CACHE_TTL": "soon"})
	_, err := l.Load()
	assert.ErrorContains(t, err, "CONTENTFLOW_CACHE_TTL")
}

func TestLoader_CustomPrefix(t *testing.T) {
	l := NewLoader().WithEnvPrefix("CF")
	l.lookupEnv = envMap(map[string]string{"CF_LOG_FORMAT": "json"})
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"store backend", func(c *Config) { c.Store.Backend = "postgres" }, "store.backend must be one of"},
		{"mysql dsn", func(c *Config) { c.Store.Backend = "mysql" }, "store.dsn is required"},
		{"records dsn", func(c *Config) { c.Records.Backend = "mysql" }, "records.dsn is required"},
		{"fallback tier", func(c *Config) { c.LLM.FallbackTier = "premium" }, `llm.fallback_tier "premium"`},
		{"threshold", func(c *Config) { c.Cache.MinTokens = 0 }, "cache.min_tokens"},
		{"max steps", func(c *Config) { c.Engine.MaxSteps = 0 }, "engine.max_steps"},
		{"provider", func(c *Config) { c.LLM.Provider = "local" }, "llm.provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

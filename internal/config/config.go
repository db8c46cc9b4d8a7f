// Package config loads contentflow configuration.
//
// Values are resolved in order: defaults, then the YAML file, then
// environment variables. Every field with an env tag can be overridden by
// CONTENTFLOW_<SECTION>_<FIELD>, for example CONTENTFLOW_STORE_BACKEND=sqlite
// or CONTENTFLOW_CACHE_TTL=30m.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("contentflow.yaml").
//	    Load()
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete contentflow configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Store     StoreConfig     `yaml:"store" env:"STORE"`
	Records   RecordsConfig   `yaml:"records" env:"RECORDS"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	RunLog    RunLogConfig    `yaml:"runlog" env:"RUNLOG"`
	Cache     CacheConfig     `yaml:"cache" env:"CACHE"`
	Router    RouterConfig    `yaml:"router" env:"ROUTER"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`
	Engine    EngineConfig    `yaml:"engine" env:"ENGINE"`
	Metrics   MetricsConfig   `yaml:"metrics" env:"METRICS"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// StoreConfig selects the checkpoint store.
type StoreConfig struct {
	// Backend: memory, sqlite, mysql, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// Path of the SQLite database file.
	Path string `yaml:"path" env:"PATH"`
	// DSN of the MySQL database.
	DSN string `yaml:"dsn" env:"DSN"`
	// KeyPrefix namespaces Redis keys.
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// RecordsConfig selects the content record service.
type RecordsConfig struct {
	// Backend: memory, sqlite, mysql
	Backend string `yaml:"backend" env:"BACKEND"`
	Path    string `yaml:"path" env:"PATH"`
	DSN     string `yaml:"dsn" env:"DSN"`
}

// RedisConfig is shared by every Redis-backed component.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// RunLogConfig selects where stage run logs go.
type RunLogConfig struct {
	// Backend: memory, file, redis
	Backend string `yaml:"backend" env:"BACKEND"`
	// Dir holds one JSONL file per thread for the file backend.
	Dir string `yaml:"dir" env:"DIR"`
	// TTL expires Redis log lists. Zero keeps them.
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// CacheConfig configures provider-side context caching.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	MinTokens     int           `yaml:"min_tokens" env:"MIN_TOKENS"`
	CharsPerToken int           `yaml:"chars_per_token" env:"CHARS_PER_TOKEN"`
	TTL           time.Duration `yaml:"ttl" env:"TTL"`
	// Registry: memory, redis
	Registry string `yaml:"registry" env:"REGISTRY"`
}

// RouterConfig points at a routing table. Empty uses the built-in table.
type RouterConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// LLMConfig selects the chat model provider and the model of each tier.
type LLMConfig struct {
	// Provider: google, openai, anthropic
	Provider string `yaml:"provider" env:"PROVIDER"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" env:"API_KEY_ENV"`
	// Tiers maps router tiers to model names.
	Tiers map[string]string `yaml:"tiers" env:"-"`
	// FallbackTier serves tiers missing from Tiers.
	FallbackTier string `yaml:"fallback_tier" env:"FALLBACK_TIER"`
	MaxAttempts  int    `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
}

// RetrievalConfig configures the HTTP context retrieval service.
type RetrievalConfig struct {
	// BaseURL of the post search endpoint. Empty disables retrieval.
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	APIKeyEnv    string        `yaml:"api_key_env" env:"API_KEY_ENV"`
	LimitPerTerm int           `yaml:"limit_per_term" env:"LIMIT_PER_TERM"`
	MaxContexts  int           `yaml:"max_contexts" env:"MAX_CONTEXTS"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// EngineConfig bounds engine execution.
type EngineConfig struct {
	MaxSteps int `yaml:"max_steps" env:"MAX_STEPS"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// Default returns a configuration that runs entirely in memory.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Store: StoreConfig{
			Backend:   "memory",
			Path:      "contentflow.db",
			KeyPrefix: "contentflow",
		},
		Records: RecordsConfig{Backend: "memory", Path: "contentflow.db"},
		Redis:   RedisConfig{Addr: "localhost:6379"},
		RunLog:  RunLogConfig{Backend: "memory", Dir: "runlogs"},
		Cache: CacheConfig{
			Enabled:       true,
			MinTokens:     2048,
			CharsPerToken: 4,
			TTL:           time.Hour,
			Registry:      "memory",
		},
		LLM: LLMConfig{
			Provider:  "google",
			APIKeyEnv: "GOOGLE_API_KEY",
			Tiers: map[string]string{
				"fast":     "gemini-2.0-flash",
				"standard": "gemini-1.5-flash",
				"advanced": "gemini-1.5-pro",
			},
			FallbackTier: "standard",
			MaxAttempts:  3,
		},
		Retrieval: RetrievalConfig{
			LimitPerTerm: 5,
			MaxContexts:  15,
			Timeout:      30 * time.Second,
		},
		Engine:  EngineConfig{MaxSteps: 100},
		Metrics: MetricsConfig{Addr: ":9090"},
	}
}

// Loader builds a Config from defaults, a YAML file and the environment.
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) string
}

// NewLoader returns a Loader reading CONTENTFLOW_* variables.
func NewLoader() *Loader {
	return &Loader{envPrefix: "CONTENTFLOW", lookupEnv: os.Getenv}
}

// WithConfigPath sets the YAML file. A missing file is not an error.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix replaces the CONTENTFLOW prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load resolves and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, key); err != nil {
				return err
			}
			continue
		}

		value := l.lookupEnv(key)
		if value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, "|"), value)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(oneOf("log.level", c.Log.Level, "debug", "info", "warn", "error"))
	add(oneOf("log.format", c.Log.Format, "json", "console"))
	add(oneOf("store.backend", c.Store.Backend, "memory", "sqlite", "mysql", "redis"))
	add(oneOf("records.backend", c.Records.Backend, "memory", "sqlite", "mysql"))
	add(oneOf("runlog.backend", c.RunLog.Backend, "memory", "file", "redis"))
	add(oneOf("cache.registry", c.Cache.Registry, "memory", "redis"))
	add(oneOf("llm.provider", c.LLM.Provider, "google", "openai", "anthropic"))

	if c.Store.Backend == "mysql" && c.Store.DSN == "" {
		add(errors.New("store.dsn is required for the mysql backend"))
	}
	if c.Records.Backend == "mysql" && c.Records.DSN == "" {
		add(errors.New("records.dsn is required for the mysql backend"))
	}
	if c.RunLog.Backend == "file" && c.RunLog.Dir == "" {
		add(errors.New("runlog.dir is required for the file backend"))
	}
	if c.Cache.MinTokens <= 0 || c.Cache.CharsPerToken <= 0 {
		add(errors.New("cache.min_tokens and cache.chars_per_token must be positive"))
	}
	if _, ok := c.LLM.Tiers[c.LLM.FallbackTier]; !ok {
		add(fmt.Errorf("llm.fallback_tier %q has no model in llm.tiers", c.LLM.FallbackTier))
	}
	if c.LLM.MaxAttempts < 1 {
		add(errors.New("llm.max_attempts must be at least 1"))
	}
	if c.Engine.MaxSteps < 1 {
		add(errors.New("engine.max_steps must be at least 1"))
	}
	return errors.Join(errs...)
}

// UsesRedis reports whether any component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Store.Backend == "redis" || c.RunLog.Backend == "redis" || (c.Cache.Enabled && c.Cache.Registry == "redis")
}

// Package config loads the settings of the xrlt command from a YAML file,
// a .env file and XRLT_* environment variables, in increasing precedence.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "XRLT_"

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds the settings of the command line front end.
type Config struct {
	Root           string          `mapstructure:"root"`
	Addr           string          `mapstructure:"addr"`
	LogLevel       string          `mapstructure:"log_level"`
	LogFile        string          `mapstructure:"log_file"`
	IncludeTimeout time.Duration   `mapstructure:"include_timeout"`
	ScriptTimeout  time.Duration   `mapstructure:"script_timeout"`
	ScriptMaxSteps uint64          `mapstructure:"script_max_steps"`
	Proxy          string          `mapstructure:"proxy"`
	StripTypes     bool            `mapstructure:"strip_types"`
	CORS           []string        `mapstructure:"cors"`
	Processors     string          `mapstructure:"processors"`
	Cache          CacheConfig     `mapstructure:"cache"`
	XSLT           XSLTConfig      `mapstructure:"xslt"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// CacheConfig selects and configures the include response cache.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Prefix        string        `mapstructure:"prefix"`
	// EncryptionKey is a base64 AES-256 key; when set, cached bodies are sealed.
	EncryptionKey string        `mapstructure:"encryption_key"`
	FallbackKeys  []string      `mapstructure:"fallback_keys"`
}

// Keys decodes the encryption keys. Both results are nil when encryption is off.
func (c CacheConfig) Keys() ([]byte, [][]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil, nil
	}
	active, err := decodeKey(c.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("cache.encryption_key: %w", err)
	}
	var fallback [][]byte
	for i, k := range c.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("cache.fallback_keys[%d]: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// XSLTConfig overrides the default stylesheet processor.
type XSLTConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// RateLimitConfig limits requests per client IP. Zero requests disables it.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Root:           ".",
		Addr:           ":8080",
		LogLevel:       "info",
		IncludeTimeout: 10 * time.Second,
		ScriptTimeout:  5 * time.Second,
		StripTypes:     true,
		Cache: CacheConfig{
			Backend: CacheNone,
			TTL:     time.Minute,
			Prefix:  "xrlt:include:",
		},
		RateLimit: RateLimitConfig{Window: time.Minute},
	}
}

// envKeys maps environment variables (without prefix) to config keys.
var envKeys = map[string]string{
	"ROOT":                 "root",
	"ADDR":                 "addr",
	"LOG_LEVEL":            "log_level",
	"LOG_FILE":             "log_file",
	"INCLUDE_TIMEOUT":      "include_timeout",
	"SCRIPT_TIMEOUT":       "script_timeout",
	"SCRIPT_MAX_STEPS":     "script_max_steps",
	"PROXY":                "proxy",
	"STRIP_TYPES":          "strip_types",
	"CORS":                 "cors",
	"PROCESSORS":           "processors",
	"CACHE_BACKEND":        "cache.backend",
	"CACHE_TTL":            "cache.ttl",
	"CACHE_REDIS_ADDR":     "cache.redis_addr",
	"CACHE_REDIS_PASSWORD": "cache.redis_password",
	"CACHE_REDIS_DB":       "cache.redis_db",
	"CACHE_PREFIX":         "cache.prefix",
	"CACHE_ENCRYPTION_KEY": "cache.encryption_key",
	"CACHE_FALLBACK_KEYS":  "cache.fallback_keys",
	"XSLT_COMMAND":         "xslt.command",
	"XSLT_ARGS":            "xslt.args",
	"RATE_LIMIT_REQUESTS":  "rate_limit.requests",
	"RATE_LIMIT_WINDOW":    "rate_limit.window",
}

// Load reads path (optional) and the environment on top of Default.
// A .env file in the working directory is loaded first if present.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}
	overlayEnv(raw, os.LookupEnv)

	cfg := Default()
	if err := Decode(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Decode applies raw onto cfg. Strings are accepted for durations, numbers,
// booleans and comma separated lists.
func Decode(raw map[string]any, cfg *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func overlayEnv(raw map[string]any, lookup func(string) (string, bool)) {
	for env, key := range envKeys {
		v, ok := lookup(EnvPrefix + env)
		if !ok {
			continue
		}
		section, field, nested := strings.Cut(key, ".")
		if !nested {
			raw[key] = v
			continue
		}
		sub, ok := raw[section].(map[string]any)
		if !ok {
			sub = map[string]any{}
			raw[section] = sub
		}
		sub[field] = v
	}
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	switch c.Cache.Backend {
	case "", CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if _, _, err := c.Cache.Keys(); err != nil {
		return err
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		return errors.New("rate_limit.window must be positive")
	}
	return nil
}

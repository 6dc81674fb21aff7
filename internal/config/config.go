// Package config loads poster-tint settings from a TOML file with .env and
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Store kinds accepted in cache.store.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "POSTER_TINT_"

type Config struct {
	Extract ExtractConfig `toml:"extract"`
	Cache   CacheConfig   `toml:"cache"`
	Redis   RedisConfig   `toml:"redis"`
	HTTP    HTTPConfig    `toml:"http"`
	Log     LogConfig     `toml:"log"`
}

type ExtractConfig struct {
	MaxDimension int           `toml:"max_dimension"`
	Timeout      time.Duration `toml:"timeout"`
	BaseURL      string        `toml:"base_url"`
	RootDir      string        `toml:"root_dir"`

	// ImageCacheSize is how many decoded posters the MCP image tools keep.
	ImageCacheSize int `toml:"image_cache_size"`
}

type CacheConfig struct {
	Concurrency int           `toml:"concurrency"`
	Capacity    int           `toml:"capacity"`
	TTL         time.Duration `toml:"ttl"`
	Namespace   string        `toml:"namespace"`
	Store       string        `toml:"store"`
	Dir         string        `toml:"dir"`
}

type RedisConfig struct {
	Addr string `toml:"addr"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		Extract: ExtractConfig{
			MaxDimension:   256,
			Timeout:        8 * time.Second,
			RootDir:        ".",
			ImageCacheSize: 16,
		},
		Cache: CacheConfig{
			Concurrency: 3,
			Capacity:    80,
			TTL:         24 * time.Hour,
			Namespace:   "poster-tint:colors",
			Store:       StoreFile,
			Dir:         defaultCacheDir(),
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		HTTP:  HTTPConfig{Addr: ":8080"},
		Log:   LogConfig{Level: "info"},
	}
}

func ConfigDir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "poster-tint"), nil
}

func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

func defaultCacheDir() string {
	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "poster-tint")
		}
		cacheHome = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheHome, "poster-tint")
}

// Load reads the config file at path, or the default path when path is
// empty, then applies .env and environment overrides. A missing file at the
// default path yields the defaults; a missing explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error

	c.Extract.MaxDimension = getEnvInt("MAX_DIMENSION", c.Extract.MaxDimension, &errs)
	c.Extract.Timeout = getEnvDuration("TIMEOUT", c.Extract.Timeout, &errs)
	c.Extract.BaseURL = getEnv("BASE_URL", c.Extract.BaseURL)
	c.Extract.RootDir = getEnv("ROOT_DIR", c.Extract.RootDir)
	c.Extract.ImageCacheSize = getEnvInt("IMAGE_CACHE_SIZE", c.Extract.ImageCacheSize, &errs)

	c.Cache.Concurrency = getEnvInt("CONCURRENCY", c.Cache.Concurrency, &errs)
	c.Cache.Capacity = getEnvInt("CAPACITY", c.Cache.Capacity, &errs)
	c.Cache.TTL = getEnvDuration("TTL", c.Cache.TTL, &errs)
	c.Cache.Namespace = getEnv("NAMESPACE", c.Cache.Namespace)
	c.Cache.Store = getEnv("STORE", c.Cache.Store)
	c.Cache.Dir = getEnv("CACHE_DIR", c.Cache.Dir)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	return errors.Join(errs...)
}

// Validate reports every setting that cannot be used.
func (c *Config) Validate() error {
	var errs []error
	if c.Extract.MaxDimension <= 0 {
		errs = append(errs, fmt.Errorf("extract.max_dimension must be positive, got %d", c.Extract.MaxDimension))
	}
	if c.Extract.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("extract.timeout must be positive, got %s", c.Extract.Timeout))
	}
	if c.Extract.ImageCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("extract.image_cache_size must be positive, got %d", c.Extract.ImageCacheSize))
	}
	if c.Cache.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("cache.concurrency must be positive, got %d", c.Cache.Concurrency))
	}
	if c.Cache.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL))
	}
	switch c.Cache.Store {
	case StoreFile:
		if c.Cache.Dir == "" {
			errs = append(errs, errors.New("cache.dir is required for the file store"))
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("cache.store must be one of file, redis, memory; got %q", c.Cache.Store))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(EnvPrefix + key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	value, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err))
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	value, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err))
		return fallback
	}
	return d
}

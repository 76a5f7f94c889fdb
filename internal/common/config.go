// Package common provides shared utilities for the screener
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bobmcallan/screener/internal/models"
)

// Config holds all configuration for the screener
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Cache       CacheConfig     `toml:"cache"`
	Redis       RedisConfig     `toml:"redis"`
	Storage     StorageConfig   `toml:"storage"`
	Screening   ScreeningConfig `toml:"screening"`
	Fetch       FetchConfig     `toml:"fetch"`
	Universe    UniverseConfig  `toml:"universe"`
	Clients     ClientsConfig   `toml:"clients"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Auth        AuthConfig      `toml:"auth"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// CacheConfig selects the persistent result cache tier.
type CacheConfig struct {
	Backend         string `toml:"backend"` // "redis", "surrealdb" or "memory"
	TTL             string `toml:"ttl"`
	MaxEntries      int    `toml:"max_entries"` // in-process tier bound
	Namespace       string `toml:"namespace"`
	ReprobeInterval string `toml:"reprobe_interval"` // lazy probe spacing of an unhealthy backend
}

// GetReprobeInterval parses and returns the lazy backend probe interval
func (c *CacheConfig) GetReprobeInterval() time.Duration {
	return parseDurationOr(c.ReprobeInterval, 30*time.Second)
}

// GetTTL parses and returns the cache TTL
func (c *CacheConfig) GetTTL() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// RedisConfig holds the Redis connection used by the redis cache backend
type RedisConfig struct {
	Addr        string `toml:"addr"`
	Password    string `toml:"password"`
	DB          int    `toml:"db"`
	DialTimeout string `toml:"dial_timeout"`
}

// GetDialTimeout parses and returns the dial timeout
func (c *RedisConfig) GetDialTimeout() time.Duration {
	d, err := time.ParseDuration(c.DialTimeout)
	if err != nil {
		return time.Second
	}
	return d
}

// StorageConfig holds the SurrealDB connection used by the surrealdb cache backend
type StorageConfig struct {
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// ScreeningConfig holds the per-endpoint limits and request policy
type ScreeningConfig struct {
	RequestTimeout string                 `toml:"request_timeout"`
	MaxRangeDays   int                    `toml:"max_range_days"`
	OutlierMin     float64                `toml:"outlier_min"`
	OutlierMax     float64                `toml:"outlier_max"`
	Default        models.ScreeningLimits `toml:"default"`
	Fast           models.ScreeningLimits `toml:"fast"`
}

// GetRequestTimeout parses and returns the end-to-end request timeout
func (c *ScreeningConfig) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// FetchConfig holds the upstream fetch policy
type FetchConfig struct {
	Attempts           int    `toml:"attempts"`
	RetryDelay         string `toml:"retry_delay"`
	RequestTimeout     string `toml:"request_timeout"`
	ChunkDelay         string `toml:"chunk_delay"`
	DomesticPause      string `toml:"domestic_pause"`
	DomesticPauseEvery int    `toml:"domestic_pause_every"`
	DomesticCap        int    `toml:"domestic_cap"`
}

// GetRetryDelay parses and returns the delay between attempts
func (c *FetchConfig) GetRetryDelay() time.Duration {
	return parseDurationOr(c.RetryDelay, time.Second)
}

// GetRequestTimeout parses and returns the per-request timeout
func (c *FetchConfig) GetRequestTimeout() time.Duration {
	return parseDurationOr(c.RequestTimeout, 5*time.Second)
}

// GetChunkDelay parses and returns the delay between chunks
func (c *FetchConfig) GetChunkDelay() time.Duration {
	return parseDurationOr(c.ChunkDelay, 200*time.Millisecond)
}

// GetDomesticPause parses and returns the periodic pause of the domestic path
func (c *FetchConfig) GetDomesticPause() time.Duration {
	return parseDurationOr(c.DomesticPause, 100*time.Millisecond)
}

// UniverseConfig holds the ticker listing cache settings
type UniverseConfig struct {
	TTL        string `toml:"ttl"`
	MaxEntries int    `toml:"max_entries"`
}

// GetTTL parses and returns the listing TTL
func (c *UniverseConfig) GetTTL() time.Duration {
	return parseDurationOr(c.TTL, 24*time.Hour)
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	EODHD EODHDConfig `toml:"eodhd"`
	Yahoo YahooConfig `toml:"yahoo"`
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *EODHDConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 30*time.Second)
}

// YahooConfig holds Yahoo Finance chart API configuration
type YahooConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

// GetTimeout parses and returns the timeout duration
func (c *YahooConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 30*time.Second)
}

// SchedulerConfig holds the background job schedules (cron with seconds)
type SchedulerConfig struct {
	Enabled          bool     `toml:"enabled"`
	UniverseRefresh  string   `toml:"universe_refresh"`
	CacheProbe       string   `toml:"cache_probe"`
	WarmMarkets      []string `toml:"warm_markets"`
	WarmLookbackDays int      `toml:"warm_lookback_days"`
}

// AuthConfig holds the admin token secret. An empty secret leaves admin routes open.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Cache: CacheConfig{
			Backend:         "redis",
			TTL:             "1h",
			MaxEntries:      100,
			Namespace:       "screener",
			ReprobeInterval: "30s",
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DialTimeout: "1s",
		},
		Storage: StorageConfig{
			Address:   "ws://localhost:8000/rpc",
			Namespace: "screener",
			Database:  "cache",
			Username:  "root",
			Password:  "root",
		},
		Screening: ScreeningConfig{
			RequestTimeout: "2m",
			MaxRangeDays:   365,
			OutlierMin:     -90,
			OutlierMax:     900,
			Default:        models.DefaultScreeningLimits(),
			Fast:           models.FastScreeningLimits(),
		},
		Fetch: FetchConfig{
			Attempts:           2,
			RetryDelay:         "1s",
			RequestTimeout:     "5s",
			ChunkDelay:         "200ms",
			DomesticPause:      "100ms",
			DomesticPauseEvery: 10,
			DomesticCap:        500,
		},
		Universe: UniverseConfig{
			TTL:        "24h",
			MaxEntries: 100,
		},
		Clients: ClientsConfig{
			EODHD: EODHDConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
			Yahoo: YahooConfig{
				BaseURL:   "https://query1.finance.yahoo.com",
				RateLimit: 5,
				Timeout:   "30s",
				UserAgent: "Mozilla/5.0 (compatible; screener/1.0)",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			UniverseRefresh:  "0 0 7 * * 1-5",
			CacheProbe:       "@every 1m",
			WarmMarkets:      []string{},
			WarmLookbackDays: 30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Outputs:    []string{"console"},
			FilePath:   "./logs/screener.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	config.Screening.Default = config.Screening.Default.Normalize()
	config.Screening.Fast = config.Screening.Fast.Normalize()

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SCREENER_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("SCREENER_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("SCREENER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("SCREENER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if addr := os.Getenv("SCREENER_REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}

	if backend := os.Getenv("SCREENER_CACHE_BACKEND"); backend != "" {
		config.Cache.Backend = strings.ToLower(backend)
	}

	if ttl := os.Getenv("SCREENER_CACHE_TTL"); ttl != "" {
		config.Cache.TTL = ttl
	}

	if addr := os.Getenv("SCREENER_STORAGE_ADDRESS"); addr != "" {
		config.Storage.Address = addr
	}

	if v := os.Getenv("SCREENER_JWT_SECRET"); v != "" {
		config.Auth.JWTSecret = v
	}

	for _, name := range []string{"EODHD_API_KEY", "SCREENER_EODHD_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			config.Clients.EODHD.APIKey = v
			break
		}
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// Package config loads the service configuration from environment variables.
//
// Variables may also come from .env files (LoadEnv). Load parses them with
// caarlos0/env, applies defaults and validates the result so the process
// fails fast on misconfiguration.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Backend names accepted by STORAGE_BACKEND, SESSION_BACKEND and
// RATE_LIMIT_STORAGE.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Upload   UploadConfig
	Import   ImportConfig
	Session  SessionConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15m"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DatabaseConfig holds PostgreSQL settings. DB_URL is accepted as an
// alternative to DATABASE_URL.
type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	MaxConns int    `env:"DB_MAX_CONNS" envDefault:"20"`

	// AutoMigrate applies the schema on start.
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

// StorageConfig selects where entities and imported users live.
type StorageConfig struct {
	// Backend is postgres or memory.
	Backend string `env:"STORAGE_BACKEND" envDefault:"postgres"`

	// SeedFile is a JSON file of entities loaded into the memory backend.
	SeedFile string `env:"STORAGE_SEED_FILE"`
}

// RedisConfig is shared by the redis session backend and rate limit store.
type RedisConfig struct {
	URL       string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Namespace string `env:"REDIS_NAMESPACE" envDefault:"staffimport"`
}

// UploadConfig bounds accepted files.
type UploadConfig struct {
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" envDefault:"10485760"`
	MaxRows     int   `env:"UPLOAD_MAX_ROWS" envDefault:"5000"`
}

// ImportConfig tunes import runs.
type ImportConfig struct {
	// DateLayout parses date cells given as text (Go reference layout).
	DateLayout string `env:"IMPORT_DATE_LAYOUT" envDefault:"2006-01-02"`

	// Affirmative is the cell value that grants a permission.
	Affirmative string `env:"IMPORT_AFFIRMATIVE" envDefault:"да"`

	MaxConcurrentRuns int           `env:"IMPORT_MAX_CONCURRENT_RUNS" envDefault:"4"`
	MaxWaitTime       time.Duration `env:"IMPORT_MAX_WAIT_TIME" envDefault:"30s"`
	RunTimeout        time.Duration `env:"IMPORT_RUN_TIMEOUT" envDefault:"10m"`
}

// SessionConfig selects the import session store.
type SessionConfig struct {
	// Backend is memory or redis.
	Backend       string        `env:"SESSION_BACKEND" envDefault:"memory"`
	TTL           time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"10m"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" envDefault:"100"`

	// UploadLimit applies to upload and commit requests.
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" envDefault:"10"`

	// Storage is memory or redis.
	Storage string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"`
}

// SecurityConfig holds API authentication and proxy settings.
type SecurityConfig struct {
	RequireAPIKey  bool     `env:"REQUIRE_API_KEY" envDefault:"false"`
	APIKeys        []string `env:"API_KEYS" envSeparator:","`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoadEnv loads the given .env files that exist. Variables already set in the
// environment win. It returns the number of files loaded.
func LoadEnv(files ...string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DB_URL")
	}
	cfg.Security.APIKeys = trimAll(cfg.Security.APIKeys)
	cfg.Security.TrustedProxies = trimAll(cfg.Security.TrustedProxies)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	switch c.Storage.Backend {
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required when STORAGE_BACKEND is postgres")
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_BACKEND (%q) must be one of: postgres, memory", c.Storage.Backend))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Upload.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Upload.MaxRows < 0 {
		errs = append(errs, "UPLOAD_MAX_ROWS must be non-negative")
	}

	if c.Import.DateLayout == "" {
		errs = append(errs, "IMPORT_DATE_LAYOUT must not be empty")
	}
	if strings.TrimSpace(c.Import.Affirmative) == "" {
		errs = append(errs, "IMPORT_AFFIRMATIVE must not be empty")
	}
	if c.Import.MaxConcurrentRuns <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT_RUNS must be positive")
	}
	if c.Import.MaxWaitTime <= 0 {
		errs = append(errs, "IMPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Import.RunTimeout <= 0 {
		errs = append(errs, "IMPORT_RUN_TIMEOUT must be positive")
	}

	switch c.Session.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Sprintf("SESSION_BACKEND (%q) must be one of: memory, redis", c.Session.Backend))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, "SESSION_TTL must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, "SESSION_SWEEP_INTERVAL must be positive")
	}

	if c.Rate.Enabled {
		if c.Rate.RequestsPerMinute <= 0 {
			errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
		}
		if c.Rate.UploadLimit <= 0 {
			errs = append(errs, "RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
		}
		switch c.Rate.Storage {
		case BackendMemory, BackendRedis:
		default:
			errs = append(errs, fmt.Sprintf("RATE_LIMIT_STORAGE (%q) must be one of: memory, redis", c.Rate.Storage))
		}
	}

	if c.UsesRedis() && c.Redis.URL == "" {
		errs = append(errs, "REDIS_URL is required when a redis backend is selected")
	}

	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}
	for _, cidr := range c.Security.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, fmt.Sprintf("TRUSTED_PROXIES entry %q is not a CIDR", cidr))
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// UsesRedis reports whether any component is configured to use redis.
func (c *Config) UsesRedis() bool {
	return c.Session.Backend == BackendRedis || (c.Rate.Enabled && c.Rate.Storage == BackendRedis)
}

// String returns a safe string representation of the config for logging.
// Connection URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q}, ", c.Server.Addr())
	fmt.Fprintf(&b, "Storage: {Backend: %q, Database: [MASKED], MaxConns: %d}, ", c.Storage.Backend, c.Database.MaxConns)
	fmt.Fprintf(&b, "Session: {Backend: %q, TTL: %s}, ", c.Session.Backend, c.Session.TTL)
	fmt.Fprintf(&b, "Redis: {URL: [MASKED], Namespace: %q}, ", c.Redis.Namespace)
	fmt.Fprintf(&b, "Upload: {MaxFileSize: %d, MaxRows: %d}, ", c.Upload.MaxFileSize, c.Upload.MaxRows)
	fmt.Fprintf(&b, "Import: {MaxConcurrentRuns: %d, RunTimeout: %s}, ", c.Import.MaxConcurrentRuns, c.Import.RunTimeout)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d, Storage: %q}, ", c.Rate.Enabled, c.Rate.RequestsPerMinute, c.Rate.Storage)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

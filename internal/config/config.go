package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Analytics AnalyticsConfig
	Digest    DigestConfig
	LogLevel  string
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port            string
	Mode            string // gin mode: debug, release or test
	AllowedOrigins  []string
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration // analytics responses; batch and yield events flush early
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the PostgreSQL connection and pool settings.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig holds token validation settings. Tokens are issued elsewhere.
type AuthConfig struct {
	JWTSecret     string
	PermissionTTL time.Duration
}

// AnalyticsConfig tunes the yield analytics defaults. Loaded from the YAML overlay.
type AnalyticsConfig struct {
	LowYieldThreshold  float64 `yaml:"low_yield_threshold"`
	HighYieldThreshold float64 `yaml:"high_yield_threshold"`
	RankingSize        int     `yaml:"ranking_size"`
	DefaultRangeDays   int     `yaml:"default_range_days"`
}

// DigestConfig holds the production digest scheduler settings.
type DigestConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CronSchedule string `yaml:"cron_schedule"`
	Timezone     string `yaml:"timezone"`
}

// DSN renders the postgres connection URL.
func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Name + "?sslmode=" + d.SSLMode
}

// Load reads environment variables (optionally from envFile), then applies the
// YAML overlay at overlayFile when it exists. Environment wins for the digest
// schedule so deployments can override it without editing the overlay.
func Load(envFile, overlayFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getenvWithDefault("PORT", "8080"),
			Mode:            getenvWithDefault("GIN_MODE", "debug"),
			AllowedOrigins:  splitList(getenvWithDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
			RateLimitPerSec: getenvFloat("RATE_LIMIT_PER_SEC", 20),
			RateLimitBurst:  getenvInt("RATE_LIMIT_BURST", 40),
			CacheTTL:        getenvDuration("ANALYTICS_CACHE_TTL", time.Minute),
			ShutdownTimeout: getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getenvWithDefault("DB_HOST", "localhost"),
			Port:            getenvWithDefault("DB_PORT", "5432"),
			User:            getenvWithDefault("DB_USER", "postgres"),
			Password:        getenvWithDefault("DB_PASSWORD", "postgres"),
			Name:            getenvWithDefault("DB_NAME", "ricemill"),
			SSLMode:         getenvWithDefault("DB_SSLMODE", "disable"),
			MaxOpenConns:    getenvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getenvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getenvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("JWT_SECRET"),
			PermissionTTL: getenvDuration("PERMISSION_CACHE_TTL", 5*time.Minute),
		},
		Analytics: AnalyticsConfig{
			LowYieldThreshold:  60,
			HighYieldThreshold: 70,
			RankingSize:        5,
			DefaultRangeDays:   30,
		},
		Digest: DigestConfig{
			Enabled:      true,
			CronSchedule: "0 6 * * *",
			Timezone:     "UTC",
		},
		LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
	}

	if overlayFile != "" {
		if err := cfg.applyOverlay(overlayFile); err != nil {
			return nil, err
		}
	}
	if v := os.Getenv("DIGEST_CRON_SCHEDULE"); v != "" {
		cfg.Digest.CronSchedule = v
	}
	if v := os.Getenv("DIGEST_TIMEZONE"); v != "" {
		cfg.Digest.Timezone = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type overlay struct {
	Analytics AnalyticsConfig `yaml:"analytics"`
	Digest    DigestConfig    `yaml:"digest"`
}

// applyOverlay decodes the YAML file on top of the defaults. A missing file is not an error.
func (c *Config) applyOverlay(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed opening config overlay %s: %w", path, err)
	}
	defer f.Close()

	o := overlay{Analytics: c.Analytics, Digest: c.Digest}
	if err := yaml.NewDecoder(f).Decode(&o); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed decoding config overlay %s: %w", path, err)
	}
	c.Analytics, c.Digest = o.Analytics, o.Digest
	return nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Port == "" {
		return errors.New("PORT must be provided")
	}
	if c.Server.Mode == "release" && c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET must be provided in release mode")
	}
	if c.Server.RateLimitPerSec <= 0 || c.Server.RateLimitBurst <= 0 {
		return errors.New("rate limit and burst must be positive")
	}

	a := c.Analytics
	if a.LowYieldThreshold < 0 || a.HighYieldThreshold > 100 || a.LowYieldThreshold > a.HighYieldThreshold {
		return fmt.Errorf("invalid yield thresholds: low %.2f, high %.2f", a.LowYieldThreshold, a.HighYieldThreshold)
	}
	if a.RankingSize <= 0 {
		return errors.New("analytics ranking_size must be positive")
	}
	if a.DefaultRangeDays <= 0 {
		return errors.New("analytics default_range_days must be positive")
	}

	if c.Digest.Enabled {
		if c.Digest.CronSchedule == "" {
			return errors.New("digest cron_schedule must be provided when the digest is enabled")
		}
		if _, err := time.LoadLocation(c.Digest.Timezone); err != nil {
			return fmt.Errorf("invalid digest timezone %q: %w", c.Digest.Timezone, err)
		}
	}
	return nil
}

func getenvWithDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

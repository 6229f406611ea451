package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Jobs     JobsConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Relay    RelayConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type ScraperConfig struct {
	FetchTimeout   time.Duration
	UserAgent      string
	AcceptLanguage string
	MaxBodyBytes   int64
	CacheTTL       time.Duration
}

type JobsConfig struct {
	Enabled       bool
	Workers       int
	HostRate      float64
	HostBurst     int
	PollInterval  time.Duration
	MaxURLsPerJob int
	JobTimeout    time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RelayConfig struct {
	Enabled      bool
	PollInterval time.Duration
	BatchSize    int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. Values from a .env file in
// the working directory (or the file named by ENV_FILE) are applied first but
// never override variables that are already set.
func Load() (*Config, error) {
	if err := loadDotEnv(getEnvOrDefault("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			RequestTimeout:  getDurationOrDefault("SERVER_REQUEST_TIMEOUT", 45*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Scraper: ScraperConfig{
			FetchTimeout:   getDurationOrDefault("SCRAPER_FETCH_TIMEOUT", 15*time.Second),
			UserAgent:      getEnvOrDefault("SCRAPER_USER_AGENT", ""),
			AcceptLanguage: getEnvOrDefault("SCRAPER_ACCEPT_LANGUAGE", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"),
			MaxBodyBytes:   int64(getIntOrDefault("SCRAPER_MAX_BODY_BYTES", 10*1024*1024)),
			CacheTTL:       getDurationOrDefault("SCRAPER_CACHE_TTL", 30*time.Minute),
		},
		Jobs: JobsConfig{
			Enabled:       getBoolOrDefault("JOBS_ENABLED", true),
			Workers:       getIntOrDefault("JOBS_WORKERS", 4),
			HostRate:      getFloatOrDefault("JOBS_HOST_RATE", 1),
			HostBurst:     getIntOrDefault("JOBS_HOST_BURST", 2),
			PollInterval:  getDurationOrDefault("JOBS_POLL_INTERVAL", 5*time.Second),
			MaxURLsPerJob: getIntOrDefault("JOBS_MAX_URLS", 100),
			JobTimeout:    getDurationOrDefault("JOBS_TIMEOUT", 30*time.Minute),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "product_import"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
			MinConns: int32(getIntOrDefault("DB_MIN_CONNS", 1)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Relay: RelayConfig{
			Enabled:      getBoolOrDefault("RELAY_ENABLED", true),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %q", c.Server.Port)
	}

	if c.Scraper.FetchTimeout <= 0 {
		return fmt.Errorf("SCRAPER_FETCH_TIMEOUT must be positive")
	}

	if c.Scraper.MaxBodyBytes < 1024 {
		return fmt.Errorf("SCRAPER_MAX_BODY_BYTES must be at least 1024")
	}

	if c.Scraper.CacheTTL < 0 {
		return fmt.Errorf("SCRAPER_CACHE_TTL cannot be negative")
	}

	if c.Jobs.Workers < 1 {
		return fmt.Errorf("JOBS_WORKERS must be at least 1")
	}

	if c.Jobs.HostRate <= 0 || c.Jobs.HostBurst < 1 {
		return fmt.Errorf("JOBS_HOST_RATE must be positive and JOBS_HOST_BURST at least 1")
	}

	if c.Jobs.MaxURLsPerJob < 1 {
		return fmt.Errorf("JOBS_MAX_URLS must be at least 1")
	}

	if c.Relay.BatchSize < 1 {
		return fmt.Errorf("RELAY_BATCH_SIZE must be at least 1")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}

	return nil
}

// DSN builds a pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultMigrationsPath  = "migrations/products"
	defaultShutdownTimeout = 10 * time.Second

	defaultDBMaxOpenConns    = 25
	defaultDBMaxIdleConns    = 5
	defaultDBConnMaxLifetime = 5 * time.Minute
	defaultDBPingTimeout     = 5 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second

	defaultRedisCacheTTL    = 5 * time.Minute
	defaultForecastTimeout  = 10 * time.Second
	defaultExpirationCutoff = "2025-04-27"
	defaultDisplayTimezone  = "UTC"
	defaultExpiringSoonDays = 30
	defaultMaxUploadBytes   = 10 << 20
	defaultCORSOrigins      = "*"

	cutoffLayout = "2006-01-02"
)

type Products struct {
	DatabaseURL       string
	RabbitMQURL       string
	HTTPAddr          string
	MigrationsPath    string
	ShutdownTimeout   time.Duration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBPingTimeout     time.Duration
	ReadHeaderTimeout time.Duration

	// RedisAddr is optional; the product cache is disabled when empty.
	RedisAddr     string
	RedisCacheTTL time.Duration
	// ForecastURL is optional; forecast routes answer 503 when empty.
	ForecastURL     string
	ForecastTimeout time.Duration

	ExpirationCutoff   time.Time
	DisplayLocation    *time.Location
	ExpiringSoonDays   int
	MaxUploadBytes     int64
	CORSAllowedOrigins []string
}

func LoadProducts() (Products, error) {
	cfg := Products{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RabbitMQURL:       getEnv("RABBITMQ_URL", ""),
		HTTPAddr:          getEnv("HTTP_ADDR", defaultHTTPAddr),
		MigrationsPath:    getEnv("MIGRATIONS_PATH", defaultMigrationsPath),
		ShutdownTimeout:   defaultShutdownTimeout,
		DBMaxOpenConns:    defaultDBMaxOpenConns,
		DBMaxIdleConns:    defaultDBMaxIdleConns,
		DBConnMaxLifetime: defaultDBConnMaxLifetime,
		DBPingTimeout:     defaultDBPingTimeout,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		ForecastURL:       strings.TrimRight(getEnv("FORECAST_URL", ""), "/"),
	}

	if cfg.DatabaseURL == "" {
		return Products{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RabbitMQURL == "" {
		return Products{}, fmt.Errorf("RABBITMQ_URL is required")
	}

	var err error
	if cfg.RedisCacheTTL, err = getDuration("REDIS_CACHE_TTL", defaultRedisCacheTTL); err != nil {
		return Products{}, err
	}
	if cfg.ForecastTimeout, err = getDuration("FORECAST_TIMEOUT", defaultForecastTimeout); err != nil {
		return Products{}, err
	}
	if cfg.ExpiringSoonDays, err = expiringSoonDays(); err != nil {
		return Products{}, err
	}

	cutoff := getEnv("EXPIRATION_CUTOFF_DATE", defaultExpirationCutoff)
	cfg.ExpirationCutoff, err = time.Parse(cutoffLayout, cutoff)
	if err != nil {
		return Products{}, fmt.Errorf("EXPIRATION_CUTOFF_DATE must use YYYY-MM-DD: %w", err)
	}

	cfg.DisplayLocation, err = time.LoadLocation(getEnv("DISPLAY_TIMEZONE", defaultDisplayTimezone))
	if err != nil {
		return Products{}, fmt.Errorf("DISPLAY_TIMEZONE: %w", err)
	}

	maxUpload, err := getInt("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil {
		return Products{}, err
	}
	if maxUpload <= 0 {
		return Products{}, fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	cfg.CORSAllowedOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", defaultCORSOrigins))

	return cfg, nil
}

func expiringSoonDays() (int, error) {
	days, err := getInt("EXPIRING_SOON_DAYS", defaultExpiringSoonDays)
	if err != nil {
		return 0, err
	}
	if days < 0 {
		return 0, fmt.Errorf("EXPIRING_SOON_DAYS must be >= 0")
	}
	return days, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Package config содержит загрузку и валидацию конфигурации.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Драйверы локального хранилища
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config представляет конфигурацию приложения
type Config struct {
	// Database
	DatabaseURL   string
	StorageDriver string

	// HTTP API
	HTTPAddr string

	// Health
	HealthPort         string
	HealthCheckEnabled bool

	// Logging
	LogLevel string
	LogPath  string

	// Timezone локального гражданского времени (граница суток, разбор дат)
	Timezone string

	// Remote KV
	KV KVConfig

	// Monitor
	MonitorEnabled bool
	MonitorCron    string

	// Rate limiting изменяющих запросов учителя
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// KVConfig представляет конфигурацию клиента удаленного KV хранилища
type KVConfig struct {
	BaseURL    string
	AppID      string
	KeyPrefix  string
	Timeout    time.Duration
	HTTPClient HTTPClientConfig
}

// HTTPClientConfig представляет конфигурацию HTTP клиента
type HTTPClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	TLSHandshakeTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	// .env необязателен, переменные берутся из окружения
	_ = godotenv.Load()

	config := &Config{
		DatabaseURL:        getEnv("DB_DSN", ""),
		StorageDriver:      getEnv("STORAGE_DRIVER", StorageDriverPostgres),
		HTTPAddr:           getEnv("HTTP_ADDR", ":5000"),
		HealthPort:         getEnv("HEALTH_PORT", "8080"),
		HealthCheckEnabled: getEnvBool("HEALTH_CHECK_ENABLED", true),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogPath:            getEnv("LOG_PATH", "logs/dlass.log"),
		Timezone:           getEnv("TIMEZONE", "Asia/Shanghai"),
		KV: KVConfig{
			BaseURL:   getEnv("KV_BASE_URL", "https://kv-service.wuyuan.dev"),
			AppID:     getEnv("KV_APP_ID", "aaaaaaa"),
			KeyPrefix: getEnv("KV_KEY_PREFIX", "data-"),
			Timeout:   getEnvDuration("KV_TIMEOUT", 10*time.Second),
			HTTPClient: HTTPClientConfig{
				MaxIdleConns:        getEnvInt("HTTP_MAX_IDLE_CONNS", 100),
				MaxIdleConnsPerHost: getEnvInt("HTTP_MAX_IDLE_CONNS_PER_HOST", 10),
				IdleConnTimeout:     getEnvDuration("HTTP_IDLE_CONN_TIMEOUT", 90*time.Second),
				TLSHandshakeTimeout: getEnvDuration("HTTP_TLS_HANDSHAKE_TIMEOUT", 10*time.Second),
			},
		},
		MonitorEnabled: getEnvBool("MONITOR_ENABLED", true),
		MonitorCron:    getEnv("MONITOR_CRON", "*/30 * * * *"),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DB_DSN is required")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.KV.BaseURL == "" {
		return fmt.Errorf("KV_BASE_URL is required")
	}

	if c.KV.Timeout <= 0 {
		return fmt.Errorf("KV_TIMEOUT must be positive")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}

	if c.RateLimitRequests > 0 && c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}

	if c.MonitorEnabled {
		if _, err := cron.ParseStandard(c.MonitorCron); err != nil {
			return fmt.Errorf("invalid MONITOR_CRON %q: %w", c.MonitorCron, err)
		}
	}

	return nil
}

// Location возвращает часовой пояс приложения
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv получает переменную окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает переменную окружения как int
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration получает переменную окружения как time.Duration
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvBool получает переменную окружения как bool
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OTel        OTelConfig
	Redis       RedisConfig
	OpenAI      OpenAIConfig
	Constraints ConstraintsConfig
	Env         string
	Port        string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type RedisConfig struct {
	URL         string
	EventStream string // prefix for per-session event streams
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ConstraintsConfig holds the session constraint policy applied at creation
// time and enforced by the sweeper.
type ConstraintsConfig struct {
	MaxConcurrentPairs int
	CleanupDelay       time.Duration
	MaxWaitingTime     time.Duration
	SweepInterval      time.Duration
	WatchBlock         time.Duration
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
)

// Load loads configuration from environment variables.
// In development, it loads from service-specific .env files:
//   - .env.server for the API server
//   - .env.worker for the constraint sweeper
//
// Falls back to .env if the service-specific file doesn't exist.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("CALLASSIST_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:  getEnv("CALLASSIST_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "callassist"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
		Redis: RedisConfig{
			URL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
			EventStream: getEnv("REDIS_EVENT_STREAM", "call-events"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Constraints: ConstraintsConfig{
			MaxConcurrentPairs: getEnvInt("SESSION_MAX_CONCURRENT_PAIRS", 1),
			CleanupDelay:       getEnvDuration("SESSION_CLEANUP_DELAY", 30*time.Minute),
			MaxWaitingTime:     getEnvDuration("SESSION_MAX_WAITING_TIME", 10*time.Minute),
			SweepInterval:      getEnvDuration("SESSION_SWEEP_INTERVAL", 30*time.Second),
			WatchBlock:         getEnvDuration("SESSION_WATCH_BLOCK", 500*time.Millisecond),
		},
	}

	if cfg.Constraints.MaxConcurrentPairs < 1 {
		return Config{}, fmt.Errorf("SESSION_MAX_CONCURRENT_PAIRS must be at least 1")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Enabled reports whether live suggestion mode is configured. Without an API
// key the suggestion service runs in mock mode.
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates application configuration values.
type Config struct {
	Port string
	Env  string

	// DatabaseURL selects the account store; when empty the service runs on
	// the in-memory store seeded with mock accounts.
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string

	RateAPIURL     string
	RateAPIKey     string
	RateAPITimeout time.Duration

	RetryInterval time.Duration

	GeneratorEnabled  bool
	GeneratorInterval time.Duration
	GeneratorBatch    int
	GeneratorWorkers  int

	SeedUsers     int
	SeedFirstUser int64
	SeedBalance   int64
}

// Load reads .env when present, then the environment, applying defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on environment variables")
	}

	return &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		KafkaBrokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),

		RateAPIURL:     getEnv("EXCHANGE_API_URL", "https://v6.exchangerate-api.com/v6"),
		RateAPIKey:     getEnv("EXCHANGE_API_KEY", ""),
		RateAPITimeout: getEnvDuration("EXCHANGE_API_TIMEOUT", 5*time.Second),

		RetryInterval: getEnvDuration("RETRY_INTERVAL", 3*time.Minute),

		GeneratorEnabled:  getEnvBool("GENERATOR_ENABLED", false),
		GeneratorInterval: getEnvDuration("GENERATOR_INTERVAL", 2*time.Minute),
		GeneratorBatch:    getEnvInt("GENERATOR_BATCH", 1000),
		GeneratorWorkers:  getEnvInt("GENERATOR_WORKERS", 20),

		SeedUsers:     getEnvInt("SEED_USERS", 500),
		SeedFirstUser: int64(getEnvInt("SEED_FIRST_USER", 1)),
		SeedBalance:   int64(getEnvInt("SEED_BALANCE", 1000)),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

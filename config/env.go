package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// Config holds all environment configuration
type Config struct {
	// Server
	Port     string
	LogLevel string

	// speedrun.com
	SrcBaseURL           string
	SrcUserAgent         string
	SrcRequestsPerMinute float64
	SrcTimeoutSeconds    int
	SrcPageSize          int
	SrcMinPageSize       int

	// Remote cache
	CacheBackend       string
	CacheFreshnessDays int
	RedisHost          string
	RedisPassword      string

	// Scoring
	ScoringWorkers int
	MaxRuns        int

	// Database (game values sink)
	DatabaseHost     string
	DatabasePort     string
	PostgresUser     string
	PostgresPassword string
	DatabaseName     string

	// Kafka (game values sink)
	KafkaBroker     string
	GameValuesTopic string
}

var (
	appConfig *Config
	onceEnv   sync.Once
)

func loadConfig() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		Port:     getEnvWithDefault("PORT", "8000"),
		LogLevel: getEnvWithDefault("LOG_LEVEL", "info"),

		SrcBaseURL:           getEnvWithDefault("SRC_BASE_URL", "https://www.speedrun.com/api/v1"),
		SrcUserAgent:         getEnvWithDefault("SRC_USER_AGENT", "global-scoreboard/2.0"),
		SrcRequestsPerMinute: getEnvAsFloat("SRC_REQUESTS_PER_MINUTE", 100),
		SrcTimeoutSeconds:    getEnvAsInt("SRC_TIMEOUT_SECONDS", 30),
		SrcPageSize:          getEnvAsInt("SRC_PAGE_SIZE", 200),
		SrcMinPageSize:       getEnvAsInt("SRC_MIN_PAGE_SIZE", 20),

		CacheBackend:       getEnvWithDefault("CACHE_BACKEND", "memory"),
		CacheFreshnessDays: getEnvAsInt("CACHE_FRESHNESS_DAYS", 1),
		RedisHost:          getEnvWithDefault("REDIS_HOST", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),

		ScoringWorkers: getEnvAsInt("SCORING_WORKERS", 8),
		MaxRuns:        getEnvAsInt("MAX_RUNS", 1000),

		// Database - optional, the sink is disabled without a host
		DatabaseHost:     os.Getenv("DATABASE_HOST"),
		DatabasePort:     getEnvWithDefault("DATABASE_PORT", "5432"),
		PostgresUser:     getEnvWithDefault("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnvWithDefault("POSTGRES_PASSWORD", "postgres"),
		DatabaseName:     getEnvWithDefault("DATABASE_NAME", "postgres"),

		// Kafka - optional
		KafkaBroker:     os.Getenv("KAFKA_BROKER"),
		GameValuesTopic: getEnvWithDefault("GAME_VALUES_TOPIC", "game-values"),
	}
	if IsProduction() {
		config.SrcUserAgent = getEnv("SRC_USER_AGENT")
	}

	appConfig = config
	return config
}

func Env() *Config {
	onceEnv.Do(func() {
		appConfig = loadConfig()
	})
	return appConfig
}

// Helper functions
func getEnv(key string) string {
	value := os.Getenv(key)
	if value == "" && IsProduction() {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var value float64
	_, err := fmt.Sscanf(valueStr, "%g", &value)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// IsProduction returns true if running in production
func IsProduction() bool {
	return getEnvWithDefault("ENVIRONMENT", "development") == "production"
}

// IsDevelopment returns true if running in development
func IsDevelopment() bool {
	return !IsProduction()
}

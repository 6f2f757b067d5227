package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	BroadcastAppKey    string
	BroadcastAppSecret string
	BroadcastTimeout   time.Duration
	MessageEditWindow  time.Duration // zero disables the edit deadline
	LogLevel           string
}

// Load reads configuration from the environment. A local .env is
// loaded first when present, matching the deployment layout.
func Load() *Config {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil {
			log.Println(".env not found, using environment variables")
		}
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		BroadcastAppKey:    getEnv("BROADCAST_APP_KEY", "famlink"),
		BroadcastAppSecret: os.Getenv("BROADCAST_APP_SECRET"),
		BroadcastTimeout:   parseDuration(getEnv("BROADCAST_TIMEOUT", "2s"), 2*time.Second),
		MessageEditWindow:  parseDuration(getEnv("MESSAGE_EDIT_WINDOW", "0"), 0),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	if s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

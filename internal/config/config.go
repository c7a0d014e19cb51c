package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config — все настройки процесса из окружения.
type Config struct {
	AppPort       string
	AllowedOrigin string
	RedisURL      string

	LogLevel  string
	LogFormat string

	// Default turn timer for rooms that do not pick one, seconds.
	TurnSecondsDefault int
}

// Load reads .env if present, then the environment. Missing keys fall back
// to development defaults.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppPort:            getEnv("APP_PORT", "8080"),
		AllowedOrigin:      os.Getenv("ALLOWED_ORIGIN"),
		RedisURL:           os.Getenv("REDIS_URL"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		TurnSecondsDefault: getEnvInt("ROOM_TURN_SECONDS_DEFAULT", 30),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

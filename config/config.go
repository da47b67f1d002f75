package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	Redis          RedisConfig
}

type RedisConfig struct {
	// Enabled controls the optional presence mirror. The in-memory
	// registry is always the source of truth; Redis only exposes
	// room membership for external inspection.
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "https://mindguardai.vercel.app,http://localhost:5173")
	origins := strings.Split(originsStr, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Config{
		Port:           getEnv("PORT", "5000"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_MIRROR", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

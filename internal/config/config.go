package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port          string
	AllowedOrigin string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Env      string
	LogLevel string

	// Display-only currency code used when the config store has no
	// "currency" key yet.
	Currency string

	ReportCacheTTLSeconds int
	NotifyTimeoutSeconds  int

	AuthSecret            string
	AccessTokenTTLMinutes int
	AdminUsername         string
	AdminPassword         string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, err := strconv.Atoi(getEnv("REPORT_CACHE_TTL_SECONDS", "300"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 300
	}
	notifyTimeout, err := strconv.Atoi(getEnv("NOTIFY_TIMEOUT_SECONDS", "15"))
	if err != nil || notifyTimeout < 1 {
		notifyTimeout = 15
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "720"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 720
	}

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:5173"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		Env:                   getEnv("ENV", "development"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		Currency:              getEnv("CURRENCY", "PLN"),
		ReportCacheTTLSeconds: cacheTTL,
		NotifyTimeoutSeconds:  notifyTimeout,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		AdminUsername:         getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:         strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

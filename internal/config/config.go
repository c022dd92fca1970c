// Package config loads server settings from the environment.
//
// A .env file in the working directory is read first if present (handy in
// development); variables already set in the real environment win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const MinJWTSecretLength = 16

type Config struct {
	Port                 int
	DBPath               string
	JWTSecret            string
	LogLevel             slog.Level
	StatsRefreshInterval time.Duration
	CORSAllowedOrigins   []string
}

// Load reads .env (if any) and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("reading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables alone.
func FromEnv() (Config, error) {
	cfg := Config{
		DBPath:             getEnv("DB_PATH", "data/cofounder.db"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.Port, err = strconv.Atoi(getEnv("PORT", "8080")); err != nil || cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %q", os.Getenv("PORT"))
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	interval := getEnv("STATS_REFRESH_INTERVAL", "5m")
	if cfg.StatsRefreshInterval, err = time.ParseDuration(interval); err != nil || cfg.StatsRefreshInterval <= 0 {
		return Config{}, fmt.Errorf("invalid STATS_REFRESH_INTERVAL %q", interval)
	}

	if len(cfg.JWTSecret) < MinJWTSecretLength {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least %d characters", MinJWTSecretLength)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

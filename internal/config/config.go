// Package config loads securitygate configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenHost  string
	ListenPort  int
	MetricsPort int
	DataPath    string

	// Logging settings
	LogLevel  string
	LogFormat string

	// External integrations
	GitHubToken string

	// Risk model
	ModelPath string

	// Scanning
	SemgrepRules []string
	CloneTimeout time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{
		ListenHost:   getEnv("SECURITYGATE_HOST", "0.0.0.0"),
		ListenPort:   getEnvInt("SECURITYGATE_PORT", 8000),
		MetricsPort:  getEnvInt("SECURITYGATE_METRICS_PORT", 9091),
		DataPath:     getEnv("SECURITYGATE_DATA_PATH", "./data"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "auto"),
		GitHubToken:  getEnv("GITHUB_TOKEN", ""),
		ModelPath:    getEnv("ML_MODEL_PATH", "./models/securitygate_v1.json"),
		SemgrepRules: getEnvList("SEMGREP_RULES"),
		CloneTimeout: getEnvDuration("CLONE_TIMEOUT", 120*time.Second),
	}

	return cfg
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
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid integer in environment, using default")
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration in environment, using default")
		return fallback
	}
	return d
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Package config reads configuration from the process environment, with
// optional .env overlays for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var envFiles = []string{".env", ".env.dev"}

// LoadEnv overlays local .env files onto the process environment. Missing
// files are normal outside development.
func LoadEnv(logger *logrus.Logger) {
	var loaded []string
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("Failed to load %s", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger != nil && len(loaded) > 0 {
		logger.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
	}
}

func lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

// GetEnv returns the variable or fallback when unset.
func GetEnv(key, fallback string) string {
	if value, ok := lookup(key); ok {
		return value
	}
	return fallback
}

// GetEnvInt parses the variable as an integer; unset or malformed values
// yield the fallback.
func GetEnvInt(key string, fallback int) int {
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// GetEnvBool parses the variable with strconv.ParseBool semantics.
func GetEnvBool(key string, fallback bool) bool {
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// GetEnvDuration parses the variable with time.ParseDuration.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// GetLogLevel maps LOG_LEVEL onto a logrus level, defaulting to info.
func GetLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(GetEnv("LOG_LEVEL", "info"))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// RequireEnv returns the variable or exits: the service cannot run without
// it and a loud early failure beats a confusing one later.
func RequireEnv(key string) string {
	value, ok := lookup(key)
	if !ok {
		logrus.Fatalf("environment variable %s is required but not set", key)
	}
	return value
}

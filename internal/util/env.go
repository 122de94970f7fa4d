// Package util provides small text and environment helpers shared across components.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// EnvOrDefault returns the value of the environment variable key, or fallback
// when the variable is unset or empty.
func EnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ParseBoolEnv reads a boolean environment variable. It accepts
// true/1/yes/on and false/0/no/off case-insensitively; anything else falls
// back to fallback with a warning.
func ParseBoolEnv(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	slog.Warn("Ignoring unparseable boolean environment variable", "key", key, "value", raw)
	return fallback
}

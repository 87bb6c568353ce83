// Package config loads process settings from the environment and job
// options from flags or a YAML job file.
package config

import (
	"log/slog"
	"os"
	"strings"
)

// Config holds all configuration values.
type Config struct {
	// AWS
	AWSRegion       string
	AthenaWorkGroup string
	// AthenaResults is the s3:// staging location for engine results.
	AthenaResults string

	// Run ledger (SurrealDB); disabled unless TRIGGEREXPORT_LEDGER=true
	LedgerEnabled      bool
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		AWSRegion:       getEnv("AWS_REGION", getEnv("AWS_DEFAULT_REGION", "")),
		AthenaWorkGroup: getEnv("TRIGGEREXPORT_ATHENA_WORKGROUP", "primary"),
		AthenaResults:   getEnv("TRIGGEREXPORT_ATHENA_RESULTS", ""),

		LedgerEnabled:      getEnv("TRIGGEREXPORT_LEDGER", "false") == "true",
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "triggerexport"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "runs"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LogFile:  getEnv("TRIGGEREXPORT_LOG_FILE", ""),
		LogLevel: parseLogLevel(getEnv("TRIGGEREXPORT_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Package config loads flag/environment-driven configuration (the usual
// env-with-fallback pattern), extended with the engine-specific knobs this
// service needs: worker pool size, default node timeout, and the
// step-debug/shutdown grace window.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration for cmd/server. Every field has
// an environment-variable source and a sane default so the server starts
// with zero configuration for local development.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseDSN string

	// StorageDriver selects the domain.Store implementation: "memory" (the
	// default, internal/storage/memstore) or "postgres"
	// (internal/storage/sqlstore, requires DatabaseDSN).
	StorageDriver string

	// WorkerPoolSize is the engine's Config.MaxConcurrentNodes.
	WorkerPoolSize int
	// DefaultNodeTimeout bounds every node dispatch; the engine does not
	// read a per-node timeout from a node's parameters.
	DefaultNodeTimeout time.Duration
	// RetryBudget caps total retry attempts across a run; 0 means
	// unlimited.
	RetryBudget int

	// ShutdownGrace is the grace window the host waits for in-flight
	// coordinator goroutines before force-cancelling them.
	ShutdownGrace time.Duration

	// JWTSecret signs/verifies the admin HTTP surface's bearer tokens
	// (internal/adminapi). Blank disables admin-surface authentication,
	// which is only acceptable for local development.
	JWTSecret string

	// EncryptionPassphrase/EncryptionSalt derive the at-rest key for
	// Credential secrets and SECRET variables (internal/crypto).
	EncryptionPassphrase string
	EncryptionSalt       string
}

// Load reads Config from the environment, falling back to development
// defaults for anything unset.
func Load() *Config {
	return &Config{
		Port:                 getEnv("PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:          getEnv("DATABASE_DSN", ""),
		StorageDriver:        getEnv("STORAGE_DRIVER", "memory"),
		WorkerPoolSize:       getEnvInt("WORKER_POOL_SIZE", 8),
		DefaultNodeTimeout:   getEnvDuration("DEFAULT_NODE_TIMEOUT", 30*time.Second),
		RetryBudget:          getEnvInt("RETRY_BUDGET", 0),
		ShutdownGrace:        getEnvDuration("SHUTDOWN_GRACE", 5*time.Second),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		EncryptionPassphrase: getEnv("ENCRYPTION_PASSPHRASE", "nervemind-dev-passphrase"),
		EncryptionSalt:       getEnv("ENCRYPTION_SALT", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

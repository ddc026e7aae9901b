package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana configuration
	SolanaMainnetRPCURL string
	SolanaDevnetRPCURL  string
	ProgramID           string
	KeypairFiles        []string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Invocation pipeline configuration
	SubmitRetryMax      int
	SubmitRetryBase     time.Duration
	ConfirmPollInterval time.Duration
	SkipPreflight       bool
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana configuration
	cfg.SolanaMainnetRPCURL = os.Getenv("SOLANA_MAINNET_RPC_URL")
	if cfg.SolanaMainnetRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_MAINNET_RPC_URL is required"))
	}

	cfg.SolanaDevnetRPCURL = os.Getenv("SOLANA_DEVNET_RPC_URL")
	if cfg.SolanaDevnetRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_DEVNET_RPC_URL is required"))
	}

	// Validate RPC URLs are different
	if cfg.SolanaMainnetRPCURL != "" && cfg.SolanaMainnetRPCURL == cfg.SolanaDevnetRPCURL {
		errs = append(errs, fmt.Errorf("SOLANA_MAINNET_RPC_URL and SOLANA_DEVNET_RPC_URL must be different"))
	}

	cfg.ProgramID = getEnvOrDefault("PROGRAM_ID", "5e4vTmm5pcUFHPr34rtrpu33kXC5nG4eN7JmkHhJpJsP")

	// Comma-separated list of solana-cli keypair files the worker signs with.
	if files := os.Getenv("SOLANA_KEYPAIR_FILES"); files != "" {
		for _, f := range strings.Split(files, ",") {
			if f = strings.TrimSpace(f); f != "" {
				cfg.KeypairFiles = append(cfg.KeypairFiles, f)
			}
		}
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "zero-fun-invocations")

	// Invocation pipeline configuration
	retryMax, err := parseInt("SUBMIT_RETRY_MAX", 5)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SubmitRetryMax = retryMax
	}

	retryBase, err := parseDuration("SUBMIT_RETRY_BASE", "500ms")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SubmitRetryBase = retryBase
	}

	pollInterval, err := parseDuration("CONFIRM_POLL_INTERVAL", "2s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmPollInterval = pollInterval
	}

	cfg.SkipPreflight = os.Getenv("SKIP_PREFLIGHT") == "true"

	// Validate pipeline bounds
	if cfg.SubmitRetryMax < 1 {
		errs = append(errs, fmt.Errorf("SUBMIT_RETRY_MAX must be at least 1"))
	}
	if cfg.ConfirmPollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("CONFIRM_POLL_INTERVAL (%v) is below the 100ms floor", cfg.ConfirmPollInterval))
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.SolanaMainnetRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaMainnetRPCURL is required"))
	}

	if c.SolanaDevnetRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaDevnetRPCURL is required"))
	}

	if c.ProgramID == "" {
		errs = append(errs, fmt.Errorf("ProgramID is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.SubmitRetryMax < 1 {
		errs = append(errs, fmt.Errorf("SubmitRetryMax must be at least 1"))
	}

	if c.SubmitRetryBase <= 0 {
		errs = append(errs, fmt.Errorf("SubmitRetryBase must be positive"))
	}

	if c.ConfirmPollInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("ConfirmPollInterval must be at least 100ms"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

package app

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethaccount/userop/erc4337"
	"github.com/ethaccount/userop/src/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type AppConfig struct {
	// =========================== REQUIRED ===========================

	// Database configuration (required)
	DSN *string
	// Redis configuration (required)
	RedisAddr *string
	// Private key for signing user operations (required)
	PrivateKey *string
	// Execution client RPC URL, used for fees and nonces (required)
	RPCURL *string
	// Bundler RPC URL (required)
	BundlerURL *string

	// =========================== OPTIONAL ===========================

	// API secret protecting the submission endpoint, disabled when empty
	APISecret *string

	// Logging configuration
	LogLevel *string

	// Deployment environment: dev, staging, prod
	Environment *string

	// HTTP server configuration
	Port *string
	Host *string

	// CORS configuration
	AllowOrigins *[]string

	// Migration configuration
	MigrationPath *string

	// ERC-4337 configuration
	EntryPoint   *common.Address
	PersonalSign *bool

	// Receipt polling configuration
	PollingDelay *time.Duration
	MaxAttempts  *int

	// Gas configuration
	BaseFeeMultiplier        *decimal.Decimal
	VerificationGasMargin    *decimal.Decimal
	PreVerificationGasMargin *decimal.Decimal

	// Submission queue configuration
	QueueName         *string
	WorkerConcurrency *int
}

func NewAppConfig() *AppConfig {
	config := &AppConfig{}

	// Load required configuration
	loadRequiredConfig(config)

	// Load optional configuration with defaults
	loadOptionalConfig(config)

	return config
}

// loadRequiredConfig loads all required configuration values and fails fast if any are missing
func loadRequiredConfig(config *AppConfig) {
	config.DSN = requireEnv("DB_URL")
	config.RedisAddr = requireEnv("REDIS_URL")

	// Remove 0x prefix if it exists
	privateKey := strings.TrimPrefix(*requireEnv("PRIVATE_KEY"), "0x")
	config.PrivateKey = &privateKey

	config.RPCURL = requireEnv("RPC_URL")
	config.BundlerURL = requireEnv("BUNDLER_URL")
}

// loadOptionalConfig loads all optional configuration values with sensible defaults
func loadOptionalConfig(config *AppConfig) {
	apiSecret := os.Getenv("API_SECRET")
	config.APISecret = &apiSecret

	// Available levels: "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"
	logLevel := getEnvWithDefault("LOG_LEVEL", "debug")
	config.LogLevel = &logLevel

	environment := getEnvWithDefault("ENVIRONMENT", "dev")
	config.Environment = &environment

	port := getEnvWithDefault("PORT", "8080")
	config.Port = &port

	host := getEnvWithDefault("HOST", "localhost:"+port)
	config.Host = &host

	// CORS origins (required in production, optional in development)
	loadCORSConfig(config)

	migrationPath := getEnvWithDefault("MIGRATION_PATH", "file://migrations")
	config.MigrationPath = &migrationPath

	entryPoint := erc4337.EntryPointV07
	if value := os.Getenv("ENTRY_POINT"); value != "" {
		if !common.IsHexAddress(value) {
			log.Fatalf("Invalid ENTRY_POINT value '%s'", value)
		}
		entryPoint = common.HexToAddress(value)
	}
	config.EntryPoint = &entryPoint

	personalSign := getBoolWithDefault("PERSONAL_SIGN", true)
	config.PersonalSign = &personalSign

	// POLLING_DELAY_MS=0 polls without waiting
	pollingDelay := erc4337.NoPollingDelay
	if os.Getenv("POLLING_DELAY_MS") != "0" {
		pollingDelay = time.Duration(getIntWithDefault("POLLING_DELAY_MS", int(erc4337.DefaultPollingDelay/time.Millisecond))) * time.Millisecond
	}
	config.PollingDelay = &pollingDelay

	maxAttempts := getIntWithDefault("MAX_ATTEMPTS", erc4337.DefaultMaxAttempts)
	config.MaxAttempts = &maxAttempts

	baseFeeMultiplier := getDecimalWithDefault("BASE_FEE_MULTIPLIER", service.DefaultBaseFeeMultiplier)
	config.BaseFeeMultiplier = &baseFeeMultiplier

	verificationGasMargin := getDecimalWithDefault("VERIFICATION_GAS_MARGIN", service.DefaultVerificationGasMargin)
	config.VerificationGasMargin = &verificationGasMargin

	preVerificationGasMargin := getDecimalWithDefault("PRE_VERIFICATION_GAS_MARGIN", service.DefaultPreVerificationGasMargin)
	config.PreVerificationGasMargin = &preVerificationGasMargin

	queueName := getEnvWithDefault("QUEUE_NAME", "userop_queue")
	config.QueueName = &queueName

	workerConcurrency := getIntWithDefault("WORKER_CONCURRENCY", 4)
	config.WorkerConcurrency = &workerConcurrency
}

// loadCORSConfig handles CORS origins configuration with environment-specific behavior
func loadCORSConfig(config *AppConfig) {
	allowOriginsStr := os.Getenv("ALLOW_ORIGINS")
	var allowOrigins []string

	if allowOriginsStr != "" {
		// Parse comma-separated origins
		origins := strings.Split(allowOriginsStr, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowOrigins = append(allowOrigins, origin)
			}
		}
	} else {
		// Handle missing ALLOW_ORIGINS based on environment
		if *config.Environment == "development" || *config.Environment == "dev" {
			// Default to localhost in development
			allowOrigins = []string{"http://localhost:5173"}
		} else {
			log.Fatalf("REQUIRED: ALLOW_ORIGINS not set in environment (required in production)")
		}
	}

	config.AllowOrigins = &allowOrigins
}

// WaitConfig returns the receipt polling settings
func (c AppConfig) WaitConfig() erc4337.WaitConfig {
	cfg := erc4337.DefaultWaitConfig()
	if c.PollingDelay != nil {
		cfg.PollingDelay = *c.PollingDelay
	}
	if c.MaxAttempts != nil {
		cfg.MaxAttempts = *c.MaxAttempts
	}
	return cfg
}

func requireEnv(key string) *string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("REQUIRED: %s not set in environment", key)
	}
	return &value
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if parsed, err := strconv.Atoi(valueStr); err == nil && parsed > 0 {
		return parsed
	}

	log.Printf("Warning: Invalid %s value '%s', using default %d", key, valueStr, defaultValue)
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if parsed, err := strconv.ParseBool(valueStr); err == nil {
		return parsed
	}

	log.Printf("Warning: Invalid %s value '%s', using default %t", key, valueStr, defaultValue)
	return defaultValue
}

func getDecimalWithDefault(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if parsed, err := decimal.NewFromString(valueStr); err == nil && !parsed.IsNegative() {
		return parsed
	}

	log.Printf("Warning: Invalid %s value '%s', using default %s", key, valueStr, defaultValue)
	return defaultValue
}
